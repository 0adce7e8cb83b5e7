package core

import (
	"fmt"
	"strings"
)

// Build errors are all fatal: any of them aborts the build with no partial
// output. They carry enough structure for errors.As callers to identify the
// offending step, table or artifact.

// SourceNotFoundError indicates the raw metadata source is missing entirely:
// either the directory does not exist or it contains no matching files.
type SourceNotFoundError struct {
	Dir     string
	Pattern string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("cannot load source data to build database: no %s files under %s", e.Pattern, e.Dir)
}

// DependencyNotFoundError indicates a depends pointer that cannot be
// resolved to any known step. During ingestion the unresolved reference is a
// return identifier; during chain resolution it is a step id.
type DependencyNotFoundError struct {
	// Return is the unresolved return identifier, set during ingestion.
	Return string
	// StepID is the unresolved step id, set during chain resolution when
	// Return is empty.
	StepID int64
}

func (e *DependencyNotFoundError) Error() string {
	if e.Return != "" {
		return fmt.Sprintf("cannot find dependency step for output %q", e.Return)
	}
	return fmt.Sprintf("cannot find step %d in any table", e.StepID)
}

// SchemaMismatchError indicates two records of the same table disagree on
// their attribute key set.
type SchemaMismatchError struct {
	Table string
	// StepID is the id of the record that violated the schema.
	StepID int64
	// FirstStepID is the id of the record that established the schema.
	FirstStepID int64
	Got         []string
	Want        []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %q: attribute keys of step %d [%s] are inconsistent with step %d [%s]",
		e.Table, e.StepID, strings.Join(e.Got, " "), e.FirstStepID, strings.Join(e.Want, " "))
}

// BlockLookupError indicates a table with no owning block. Ingestion
// guarantees every table a block, so hitting this means corrupted state.
type BlockLookupError struct {
	Table string
}

func (e *BlockLookupError) Error() string {
	return fmt.Sprintf("cannot find table %q in any block", e.Table)
}

// OutputSchemaMismatchError indicates two artifact fetches for the same
// block produced different enrichment column sets.
type OutputSchemaMismatchError struct {
	// Artifact identifies the offending artifact (store path or id).
	Artifact string
	Got      []string
	Want     []string
}

func (e *OutputSchemaMismatchError) Error() string {
	return fmt.Sprintf("variables in artifact %q [%s] are not consistent with existing variables [%s]",
		e.Artifact, strings.Join(e.Got, " "), strings.Join(e.Want, " "))
}

// CorruptGraphError indicates a dependency cycle. The data model assigns
// step ids from a monotonic counter so cycles cannot occur in well formed
// input; resolution guards against them anyway instead of recursing forever.
type CorruptGraphError struct {
	Table  string
	StepID int64
}

func (e *CorruptGraphError) Error() string {
	return fmt.Sprintf("dependency cycle detected at step %d (table %q)", e.StepID, e.Table)
}

// ArtifactReadError indicates an artifact that exists but cannot be read or
// parsed.
type ArtifactReadError struct {
	Path string
	Err  error
}

func (e *ArtifactReadError) Error() string {
	return fmt.Sprintf("cannot read artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactReadError) Unwrap() error {
	return e.Err
}
