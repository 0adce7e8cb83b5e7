// Package core defines the shared language of the StepDB system.
//
// This package contains:
//   - Domain entities (StepRecord, Sequence, MasterTable, Database)
//   - The structure-of-arrays Frame type backing every table
//   - The build error taxonomy (SchemaMismatchError, DependencyNotFoundError, ...)
//   - State types and the StateStore interface for build history
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
