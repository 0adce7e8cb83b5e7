package core

// ShapeGroup collects every reconstructed sequence sharing one structural
// shape (the ordered tuple of blocks traversed). Its frame has two columns
// per shape element, <block>_name and <block>_id, and one row per sequence.
type ShapeGroup struct {
	// Shape is the block tuple, in chain order.
	Shape []string
	// Frame holds the pivoted rows for this shape.
	Frame *Frame
}

// MasterTable is the wide summary of all sequences terminating in one block.
// Differently shaped sequences are kept in separate groups because their rows
// are structurally incompatible; Table flattens the groups side by side for
// reporting. Keeping the groups is what makes enrichment joins well defined
// when several shapes end in the same block.
type MasterTable struct {
	// Block is the terminal block this table summarizes.
	Block string
	// Groups holds one ShapeGroup per distinct shape, in first-seen order.
	Groups []*ShapeGroup
}

// Name returns the database entry name for the master table.
func (m *MasterTable) Name() string {
	return "master_" + m.Block
}

// Group returns the group with the given shape, if present.
func (m *MasterTable) Group(shape []string) (*ShapeGroup, bool) {
	for _, g := range m.Groups {
		if equalShape(g.Shape, shape) {
			return g, true
		}
	}
	return nil, false
}

// Table materializes the master table as a single frame: every group's
// columns in group order, padded to the largest group's row count. Column
// names repeat across groups by design; rows are not aligned across groups.
func (m *MasterTable) Table() *Frame {
	frames := make([]*Frame, len(m.Groups))
	for i, g := range m.Groups {
		frames[i] = g.Frame
	}
	return ConcatColumns(frames...)
}

func equalShape(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
