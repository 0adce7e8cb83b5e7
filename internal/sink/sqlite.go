package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteWriter persists databases to a SQLite file. It is the default
// target: the whole build lands in one self-contained file.
type SQLiteWriter struct {
	BaseSQLWriter
}

// NewSQLiteWriter creates a new SQLite writer instance.
// If logger is nil, a discard logger is used.
func NewSQLiteWriter(logger *slog.Logger) *SQLiteWriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteWriter{
		BaseSQLWriter: BaseSQLWriter{
			Logger:       logger,
			Types:        typeNames{Int: "INTEGER", Real: "REAL", Bool: "BOOLEAN", Text: "TEXT"},
			Placeholders: questionPlaceholders,
		},
	}
}

// DialectName returns the SQL dialect for this writer.
func (w *SQLiteWriter) DialectName() string {
	return "sqlite"
}

// Connect opens (or creates) the SQLite database file.
// Use ":memory:" as the path for an in-memory database.
func (w *SQLiteWriter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	w.Logger.Debug("opening sqlite target", slog.String("path", path))

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	w.DB = db
	w.Cfg = cfg
	return nil
}

func init() {
	Register(KindSQLite, func(logger *slog.Logger) Writer { return NewSQLiteWriter(logger) })
}

// Ensure SQLiteWriter implements the Writer interface
var _ Writer = (*SQLiteWriter)(nil)
