// Package state tracks build history using SQLite.
//
// Note: Core types are defined in pkg/core. This package re-exports them
// via type aliases so callers can stay within internal/state.
package state

import (
	"github.com/steplab/stepdb/pkg/core"
)

// Type aliases for the build-history types defined in pkg/core.
type (
	// Store is an alias for core.StateStore.
	Store = core.StateStore

	// BuildStatus is an alias for core.BuildStatus.
	BuildStatus = core.BuildStatus

	// Build is an alias for core.Build.
	Build = core.Build

	// BuildTable is an alias for core.BuildTable.
	BuildTable = core.BuildTable
)

// Re-export status constants from core.
const (
	BuildStatusRunning = core.BuildStatusRunning
	BuildStatusSuccess = core.BuildStatusSuccess
	BuildStatusFailed  = core.BuildStatusFailed
)
