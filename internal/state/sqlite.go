package state

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
// If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database, creating parent
// directories as needed. An empty path or ":memory:" opens an in-memory
// store.
func (s *SQLiteStore) Open(path string) error {
	if path == "" {
		path = ":memory:"
	}

	// Enable foreign keys and WAL mode for better performance
	dsn := ":memory:?_foreign_keys=on"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// In-memory databases are per-connection; keep the pool at one.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Build operations ---

// CreateBuild records the start of a build for the named database.
func (s *SQLiteStore) CreateBuild(database string) (*Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	build := &Build{
		ID:        generateID(),
		Database:  database,
		Status:    BuildStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO builds (id, database_name, status, started_at) VALUES (?, ?, ?, ?)`,
		build.ID, build.Database, build.Status, build.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create build: %w", err)
	}

	return build, nil
}

// CompleteBuild marks a build as finished with the given status and sizes.
func (s *SQLiteStore) CompleteBuild(id string, status BuildStatus, errMsg string, tables, rows int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE builds SET status = ?, completed_at = ?, error = ?, table_count = ?, row_count = ? WHERE id = ?`,
		status, now, errorPtr, tables, rows, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete build: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("build not found: %s", id)
	}

	return nil
}

// GetBuild retrieves a build by ID.
func (s *SQLiteStore) GetBuild(id string) (*Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	build := &Build{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, database_name, status, started_at, completed_at, error, table_count, row_count
		 FROM builds WHERE id = ?`,
		id,
	).Scan(&build.ID, &build.Database, &build.Status, &build.StartedAt, &completedAt, &errMsg, &build.Tables, &build.Rows)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("build not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	if completedAt.Valid {
		build.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		build.Error = errMsg.String
	}

	return build, nil
}

// GetLatestBuild retrieves the most recent build for a database.
// Returns nil without error when the database has no builds yet.
func (s *SQLiteStore) GetLatestBuild(database string) (*Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	build := &Build{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, database_name, status, started_at, completed_at, error, table_count, row_count
		 FROM builds WHERE database_name = ? ORDER BY started_at DESC LIMIT 1`,
		database,
	).Scan(&build.ID, &build.Database, &build.Status, &build.StartedAt, &completedAt, &errMsg, &build.Tables, &build.Rows)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest build: %w", err)
	}

	if completedAt.Valid {
		build.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		build.Error = errMsg.String
	}

	return build, nil
}

// ListBuilds retrieves the most recent builds, newest first.
func (s *SQLiteStore) ListBuilds(limit int) ([]*Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, database_name, status, started_at, completed_at, error, table_count, row_count
		 FROM builds ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		build := &Build{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(&build.ID, &build.Database, &build.Status, &build.StartedAt, &completedAt, &errMsg, &build.Tables, &build.Rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}

		if completedAt.Valid {
			build.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			build.Error = errMsg.String
		}
		builds = append(builds, build)
	}

	return builds, rows.Err()
}

// --- Table stats operations ---

// RecordBuildTables stores per-table sizes for a build.
// This replaces any previously recorded tables for the build.
func (s *SQLiteStore) RecordBuildTables(buildID string, tables []*BuildTable) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM build_tables WHERE build_id = ?`, buildID)
	if err != nil {
		return fmt.Errorf("failed to delete existing build tables: %w", err)
	}

	for i, t := range tables {
		_, err = tx.Exec(
			`INSERT INTO build_tables (build_id, position, name, kind, row_count, column_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			buildID, i, t.Name, t.Kind, t.Rows, t.Columns,
		)
		if err != nil {
			return fmt.Errorf("failed to insert build table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetBuildTables retrieves per-table sizes for a build in database order.
func (s *SQLiteStore) GetBuildTables(buildID string) ([]*BuildTable, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT build_id, name, kind, row_count, column_count
		 FROM build_tables WHERE build_id = ? ORDER BY position`,
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get build tables: %w", err)
	}
	defer rows.Close()

	var tables []*BuildTable
	for rows.Next() {
		t := &BuildTable{}
		if err := rows.Scan(&t.BuildID, &t.Name, &t.Kind, &t.Rows, &t.Columns); err != nil {
			return nil, fmt.Errorf("failed to scan build table: %w", err)
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
