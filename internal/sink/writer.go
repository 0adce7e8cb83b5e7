// Package sink persists assembled databases to SQL targets.
//
// This package contains the contract every output writer implements plus the
// bundled implementations (sqlite, duckdb, postgres). Writers replace tables
// wholesale inside one transaction: a build either lands completely or not
// at all.
package sink

import (
	"context"

	"github.com/steplab/stepdb/pkg/core"
)

// Target kinds understood by the bundled writers.
const (
	KindSQLite   = "sqlite"
	KindDuckDB   = "duckdb"
	KindPostgres = "postgres"
)

// Config holds output target configuration.
type Config struct {
	// Kind selects the writer implementation (sqlite, duckdb, postgres).
	Kind string
	// Path is the database file path for file-backed targets.
	Path string
	// DSN is the connection string for server-backed targets.
	DSN string
}

// Writer defines the interface that all output writers must implement.
type Writer interface {
	// Connect establishes a connection to the target using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the target connection and releases resources.
	Close() error

	// WriteDatabase persists every table of the database, replacing existing
	// tables, inside a single transaction.
	WriteDatabase(ctx context.Context, db *core.Database) error

	// DialectName returns the SQL dialect name of the target.
	DialectName() string
}
