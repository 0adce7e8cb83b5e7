package core

// Database is the final build product: an insertion-ordered mapping from
// table name to frame. Per-table record frames come first in ingestion
// order, then one master_<block> frame per terminal block. The database is
// an immutable snapshot once returned from a build.
type Database struct {
	// Name is the logical database name (also the default output base name).
	Name string

	names  []string
	tables map[string]*Frame
}

// NewDatabase returns an empty database with the given name.
func NewDatabase(name string) *Database {
	return &Database{
		Name:   name,
		tables: make(map[string]*Frame),
	}
}

// Set stores a table under name. An existing entry is replaced in place,
// keeping its original position; new names append.
func (d *Database) Set(name string, f *Frame) {
	if _, ok := d.tables[name]; !ok {
		d.names = append(d.names, name)
	}
	d.tables[name] = f
}

// Table returns the frame stored under name.
func (d *Database) Table(name string) (*Frame, bool) {
	f, ok := d.tables[name]
	return f, ok
}

// Names returns the table names in insertion order.
func (d *Database) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len returns the number of tables.
func (d *Database) Len() int {
	return len(d.names)
}
