package core

import "fmt"

// Column is one named column of a Frame. Values may contain nil for NULL.
type Column struct {
	// Name is the column header. Names are not unique within a Frame:
	// master tables concatenate shape groups that repeat block columns.
	Name string
	// Values holds one entry per row.
	Values []any
}

// Frame is a structure-of-arrays table: an ordered list of equally long
// columns. It is the in-memory representation of every table in the final
// database. Lookups by name return the first matching column.
type Frame struct {
	cols []Column
	rows int
}

// NewFrame returns an empty frame with the given column headers.
func NewFrame(names ...string) *Frame {
	f := &Frame{cols: make([]Column, len(names))}
	for i, name := range names {
		f.cols[i] = Column{Name: name}
	}
	return f
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	return f.rows
}

// NumCols returns the number of columns.
func (f *Frame) NumCols() int {
	return len(f.cols)
}

// Columns returns the backing columns in order. Callers must not mutate.
func (f *Frame) Columns() []Column {
	return f.cols
}

// ColumnNames returns the column headers in order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the first column with the given name.
func (f *Frame) Column(name string) (*Column, bool) {
	for i := range f.cols {
		if f.cols[i].Name == name {
			return &f.cols[i], true
		}
	}
	return nil, false
}

// AppendRow appends one row across all columns. The value count must match
// the column count.
func (f *Frame) AppendRow(values []any) error {
	if len(values) != len(f.cols) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.cols))
	}
	for i, v := range values {
		f.cols[i].Values = append(f.cols[i].Values, v)
	}
	f.rows++
	return nil
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.cols))
	for j, c := range f.cols {
		row[j] = c.Values[i]
	}
	return row
}

// AddColumn appends a column. On an empty frame the column defines the row
// count; otherwise the value count must match the existing rows.
func (f *Frame) AddColumn(name string, values []any) error {
	if len(f.cols) == 0 && f.rows == 0 {
		f.rows = len(values)
	} else if len(values) != f.rows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.cols = append(f.cols, Column{Name: name, Values: values})
	return nil
}

// Pad extends every column to n rows with trailing nils. Padding to fewer
// rows than the frame already has is a no-op.
func (f *Frame) Pad(n int) {
	if n <= f.rows {
		return
	}
	for i := range f.cols {
		for len(f.cols[i].Values) < n {
			f.cols[i].Values = append(f.cols[i].Values, nil)
		}
	}
	f.rows = n
}

// ConcatColumns places frames side by side: the result holds every column of
// every input in order, padded with nils to the longest input's row count.
// Rows are NOT aligned across inputs; position in one column block carries no
// meaning in another. Duplicate column names are preserved.
func ConcatColumns(frames ...*Frame) *Frame {
	rows := 0
	for _, in := range frames {
		if in.rows > rows {
			rows = in.rows
		}
	}
	out := &Frame{rows: rows}
	for _, in := range frames {
		for _, c := range in.cols {
			values := make([]any, rows)
			copy(values, c.Values)
			out.cols = append(out.cols, Column{Name: c.Name, Values: values})
		}
	}
	return out
}
