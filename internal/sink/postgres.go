package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

// PostgresWriter persists databases to a PostgreSQL server, for teams that
// keep pipeline results in a shared warehouse.
type PostgresWriter struct {
	BaseSQLWriter
}

// NewPostgresWriter creates a new PostgreSQL writer instance.
// If logger is nil, a discard logger is used.
func NewPostgresWriter(logger *slog.Logger) *PostgresWriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresWriter{
		BaseSQLWriter: BaseSQLWriter{
			Logger:       logger,
			Types:        typeNames{Int: "BIGINT", Real: "DOUBLE PRECISION", Bool: "BOOLEAN", Text: "TEXT"},
			Placeholders: dollarPlaceholders,
		},
	}
}

// DialectName returns the SQL dialect for this writer.
func (w *PostgresWriter) DialectName() string {
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (w *PostgresWriter) Connect(ctx context.Context, cfg Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("postgres target requires a DSN")
	}

	w.Logger.Debug("connecting to postgres target")

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	w.DB = db
	w.Cfg = cfg
	return nil
}

func init() {
	Register(KindPostgres, func(logger *slog.Logger) Writer { return NewPostgresWriter(logger) })
}

// Ensure PostgresWriter implements the Writer interface
var _ Writer = (*PostgresWriter)(nil)
