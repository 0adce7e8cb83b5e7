package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAppendRow(t *testing.T) {
	f := NewFrame("step_id", "return")

	require.NoError(t, f.AppendRow([]any{int64(1), "res1"}))
	require.NoError(t, f.AppendRow([]any{int64(2), "res2"}))

	assert.Equal(t, 2, f.NumRows())
	assert.Equal(t, []string{"step_id", "return"}, f.ColumnNames())
	assert.Equal(t, []any{int64(1), "res1"}, f.Row(0))

	err := f.AppendRow([]any{int64(3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 values")
}

func TestFrameAddColumn(t *testing.T) {
	f := NewFrame()

	// First column fixes the row count.
	require.NoError(t, f.AddColumn("step_id", []any{int64(1), int64(2)}))
	assert.Equal(t, 2, f.NumRows())

	require.NoError(t, f.AddColumn("return", []any{"a", "b"}))

	err := f.AddColumn("depends", []any{nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "depends"`)
}

func TestFrameColumnFirstMatch(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddColumn("b_id", []any{int64(1)}))
	require.NoError(t, f.AddColumn("b_id", []any{int64(9)}))

	col, ok := f.Column("b_id")
	require.True(t, ok)
	assert.Equal(t, []any{int64(1)}, col.Values)

	_, ok = f.Column("missing")
	assert.False(t, ok)
}

func TestFramePad(t *testing.T) {
	f := NewFrame("x")
	require.NoError(t, f.AppendRow([]any{"v"}))

	f.Pad(3)
	assert.Equal(t, 3, f.NumRows())
	col, _ := f.Column("x")
	assert.Equal(t, []any{"v", nil, nil}, col.Values)

	// Shrinking is a no-op.
	f.Pad(1)
	assert.Equal(t, 3, f.NumRows())
}

func TestConcatColumns(t *testing.T) {
	a := NewFrame("a_name", "a_id")
	require.NoError(t, a.AppendRow([]any{"A", int64(1)}))
	require.NoError(t, a.AppendRow([]any{"A", int64(2)}))
	require.NoError(t, a.AppendRow([]any{"A", int64(3)}))

	b := NewFrame("b_name", "b_id")
	require.NoError(t, b.AppendRow([]any{"B", int64(4)}))

	out := ConcatColumns(a, b)

	// Row count follows the largest input; shorter inputs pad with nils.
	assert.Equal(t, 3, out.NumRows())
	assert.Equal(t, []string{"a_name", "a_id", "b_name", "b_id"}, out.ColumnNames())
	assert.Equal(t, []any{"A", int64(3), nil, nil}, out.Row(2))

	// Inputs are copied, not shared.
	col, _ := out.Column("b_name")
	col.Values[0] = "mutated"
	orig, _ := b.Column("b_name")
	assert.Equal(t, "B", orig.Values[0])
}

func TestDatabaseOrderAndUpdate(t *testing.T) {
	db := NewDatabase("bench")

	db.Set("simulate.R", NewFrame("step_id"))
	db.Set("analyze.R", NewFrame("step_id"))
	db.Set("master_score", NewFrame("score_name"))

	assert.Equal(t, []string{"simulate.R", "analyze.R", "master_score"}, db.Names())
	assert.Equal(t, 3, db.Len())

	// Replacing keeps the original position.
	replacement := NewFrame("score_name", "score_id")
	db.Set("master_score", replacement)
	assert.Equal(t, []string{"simulate.R", "analyze.R", "master_score"}, db.Names())
	got, ok := db.Table("master_score")
	require.True(t, ok)
	assert.Equal(t, 2, got.NumCols())
}

func TestMasterTable(t *testing.T) {
	g1 := NewFrame("a_name", "a_id", "b_name", "b_id")
	require.NoError(t, g1.AppendRow([]any{"A", int64(1), "B", int64(2)}))
	require.NoError(t, g1.AppendRow([]any{"A", int64(3), "B", int64(4)}))

	g2 := NewFrame("a_name", "a_id", "c_name", "c_id", "b_name", "b_id")
	require.NoError(t, g2.AppendRow([]any{"A", int64(5), "C", int64(6), "B", int64(7)}))

	mt := &MasterTable{
		Block: "b",
		Groups: []*ShapeGroup{
			{Shape: []string{"a", "b"}, Frame: g1},
			{Shape: []string{"a", "c", "b"}, Frame: g2},
		},
	}

	assert.Equal(t, "master_b", mt.Name())

	got, ok := mt.Group([]string{"a", "c", "b"})
	require.True(t, ok)
	assert.Equal(t, 1, got.Frame.NumRows())
	_, ok = mt.Group([]string{"a", "c"})
	assert.False(t, ok)

	wide := mt.Table()
	assert.Equal(t, 2, wide.NumRows())
	assert.Equal(t, 10, wide.NumCols())
	// The shorter group's columns pad with nils past its own rows.
	assert.Equal(t, []any{"A", int64(3), "B", int64(4), nil, nil, nil, nil, nil, nil}, wide.Row(1))
}

func TestSequenceShape(t *testing.T) {
	blocks := map[string]string{"simulate.R": "simulate", "score.R": "score"}
	lookup := func(table string) (string, bool) {
		b, ok := blocks[table]
		return b, ok
	}

	seq := Sequence{{Table: "simulate.R", StepID: 1}, {Table: "score.R", StepID: 2}}
	shape, missing := seq.Shape(lookup)
	assert.Empty(t, missing)
	assert.Equal(t, []string{"simulate", "score"}, shape)

	seq = append(seq, StepRef{Table: "rogue.R", StepID: 3})
	shape, missing = seq.Shape(lookup)
	assert.Nil(t, shape)
	assert.Equal(t, "rogue.R", missing)
}
