package core

// StepRecord represents one executed pipeline step.
// Records are grouped by table and owned by a per-table record store;
// the step id is the only globally unique identifier.
type StepRecord struct {
	// Table is the name of the executable that produced the step.
	// All records sharing a table share one attribute schema.
	Table string
	// StepID is globally unique, assigned monotonically in ingestion order.
	StepID int64
	// Return is the logical output identifier the step produced.
	// Not guaranteed globally unique; the first record wins index lookups.
	Return string
	// Depends is the StepID of the consumed input step, nil for initial steps.
	Depends *int64
	// Block is the pipeline stage this record's table belongs to.
	Block string
	// Attributes holds the parameter/result fields recorded for the
	// execution. The key set is identical across all records of a table;
	// first-seen key order is tracked by the owning store, not here.
	Attributes map[string]any
}

// StepRef identifies one step inside a reconstructed sequence.
type StepRef struct {
	// Table is the owning table name.
	Table string
	// StepID is the step's global id.
	StepID int64
}

// Sequence is an ordered chain of steps from an initial step (Depends == nil)
// to a terminal step, reconstructed by walking Depends pointers backward.
// Sequences are derived on demand and never stored.
type Sequence []StepRef

// Shape returns the ordered tuple of blocks the sequence passes through,
// given a table -> block lookup. The second return is the first table with
// no owning block, or "" when the whole sequence resolved.
func (s Sequence) Shape(blockOf func(table string) (string, bool)) ([]string, string) {
	shape := make([]string, 0, len(s))
	for _, ref := range s {
		block, ok := blockOf(ref.Table)
		if !ok {
			return nil, ref.Table
		}
		shape = append(shape, block)
	}
	return shape, ""
}
