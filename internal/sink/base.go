package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/steplab/stepdb/pkg/core"
)

// affinity is the canonical storage class inferred for a column.
type affinity int

const (
	affinityUnknown affinity = iota
	affinityText
	affinityInt
	affinityReal
	affinityBool
)

// typeNames maps inferred affinities to dialect type names.
type typeNames struct {
	Int  string
	Real string
	Bool string
	Text string
}

func (t typeNames) of(a affinity) string {
	switch a {
	case affinityInt:
		return t.Int
	case affinityReal:
		return t.Real
	case affinityBool:
		return t.Bool
	default:
		return t.Text
	}
}

// placeholderFunc renders the VALUES placeholder list for n parameters.
type placeholderFunc func(n int) string

func questionPlaceholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func dollarPlaceholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

// BaseSQLWriter provides common database/sql functionality for writers.
// Embed this struct in concrete writer implementations to get standard
// Close and WriteDatabase implementations.
type BaseSQLWriter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger

	// Types and Placeholders are set by the concrete writer's constructor.
	Types        typeNames
	Placeholders placeholderFunc
}

// Close closes the target connection.
func (b *BaseSQLWriter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing target connection")
		}
		return b.DB.Close()
	}
	return nil
}

// WriteDatabase persists every table of the database inside one transaction.
// Existing tables are replaced. Any failure rolls the whole write back.
func (b *BaseSQLWriter) WriteDatabase(ctx context.Context, db *core.Database) error {
	if b.DB == nil {
		return fmt.Errorf("target connection not established")
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, name := range db.Names() {
		frame, _ := db.Table(name)
		if err := b.writeTable(ctx, tx, name, frame); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to write table %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// writeTable replaces one table: drop, create with inferred column types,
// insert row by row through a prepared statement.
func (b *BaseSQLWriter) writeTable(ctx context.Context, tx *sql.Tx, name string, frame *core.Frame) error {
	if frame.NumCols() == 0 {
		return nil
	}

	cols := frame.Columns()
	names := dedupeColumnNames(frame.ColumnNames())

	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(names[i])
		defs[i] = fmt.Sprintf("%s %s", quoted[i], b.Types.of(columnAffinity(c.Values)))
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(name))); err != nil {
		return fmt.Errorf("failed to drop existing table: %w", err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if frame.NumRows() == 0 {
		return nil
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), b.Placeholders(len(cols)))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(cols))
	for i := 0; i < frame.NumRows(); i++ {
		for j := range cols {
			args[j] = driverValue(cols[j].Values[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return nil
}

// columnAffinity infers a column's storage class from its values. Integers
// widen to real when mixed with floats; any string or structured value forces
// text; all-nil columns default to text.
func columnAffinity(values []any) affinity {
	inferred := affinityUnknown
	for _, v := range values {
		var k affinity
		switch v.(type) {
		case nil:
			continue
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			k = affinityInt
		case float32, float64:
			k = affinityReal
		case bool:
			k = affinityBool
		default:
			return affinityText
		}
		switch {
		case inferred == affinityUnknown:
			inferred = k
		case inferred == k:
		case inferred == affinityInt && k == affinityReal,
			inferred == affinityReal && k == affinityInt:
			inferred = affinityReal
		default:
			return affinityText
		}
	}
	if inferred == affinityUnknown {
		return affinityText
	}
	return inferred
}

// dedupeColumnNames makes duplicate column names unique at the SQL boundary
// (name, name_2, ...). The in-memory database keeps the duplicates.
func dedupeColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		seen[name]++
		if seen[name] == 1 {
			out[i] = name
			continue
		}
		out[i] = fmt.Sprintf("%s_%d", name, seen[name])
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// driverValue converts a cell to a value the SQL driver accepts. Primitives
// pass through; structured values are rendered as text.
func driverValue(v any) any {
	switch v.(type) {
	case nil, bool, string, []byte, time.Time,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
