package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDBWriter persists databases to a DuckDB file, for workflows that
// analyze the results with DuckDB directly.
type DuckDBWriter struct {
	BaseSQLWriter
}

// NewDuckDBWriter creates a new DuckDB writer instance.
// If logger is nil, a discard logger is used.
func NewDuckDBWriter(logger *slog.Logger) *DuckDBWriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBWriter{
		BaseSQLWriter: BaseSQLWriter{
			Logger:       logger,
			Types:        typeNames{Int: "BIGINT", Real: "DOUBLE", Bool: "BOOLEAN", Text: "VARCHAR"},
			Placeholders: questionPlaceholders,
		},
	}
}

// DialectName returns the SQL dialect for this writer.
func (w *DuckDBWriter) DialectName() string {
	return "duckdb"
}

// Connect opens (or creates) the DuckDB database file.
// Use ":memory:" as the path for an in-memory database.
func (w *DuckDBWriter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	w.Logger.Debug("opening duckdb target", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	w.DB = db
	w.Cfg = cfg
	return nil
}

func init() {
	Register(KindDuckDB, func(logger *slog.Logger) Writer { return NewDuckDBWriter(logger) })
}

// Ensure DuckDBWriter implements the Writer interface
var _ Writer = (*DuckDBWriter)(nil)
