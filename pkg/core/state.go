package core

import "time"

// BuildStatus represents the lifecycle state of a build attempt.
type BuildStatus string

// Build status constants.
const (
	BuildStatusRunning BuildStatus = "running"
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusFailed  BuildStatus = "failed"
)

// Table kind constants for BuildTable.Kind.
const (
	TableKindRecord = "record"
	TableKindMaster = "master"
)

// Build represents one build attempt recorded in the state store. The state
// store is audit metadata only; a failed build records its error here and
// persists no database output.
type Build struct {
	// ID is a generated unique identifier.
	ID string
	// Database is the logical database name the build targeted.
	Database string
	// Status is the current lifecycle state.
	Status BuildStatus
	// StartedAt is when the build began (UTC).
	StartedAt time.Time
	// CompletedAt is when the build finished, nil while running.
	CompletedAt *time.Time
	// Error holds the failure message for failed builds.
	Error string
	// Tables is the number of tables in the produced database.
	Tables int64
	// Rows is the total row count across all produced tables.
	Rows int64
}

// BuildTable records the size of one table produced by a successful build.
type BuildTable struct {
	// BuildID references the owning build.
	BuildID string
	// Name is the table name in the produced database.
	Name string
	// Kind is TableKindRecord or TableKindMaster.
	Kind string
	// Rows is the table's row count.
	Rows int64
	// Columns is the table's column count.
	Columns int64
}

// StateStore defines the interface for build history operations.
type StateStore interface {
	Open(path string) error
	Close() error
	Migrate() error

	// Build operations
	CreateBuild(database string) (*Build, error)
	CompleteBuild(id string, status BuildStatus, errMsg string, tables, rows int64) error
	GetBuild(id string) (*Build, error)
	GetLatestBuild(database string) (*Build, error)
	ListBuilds(limit int) ([]*Build, error)

	// Table stats operations
	RecordBuildTables(buildID string, tables []*BuildTable) error
	GetBuildTables(buildID string) ([]*BuildTable, error)
}
