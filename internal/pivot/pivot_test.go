package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplab/stepdb/internal/ingest"
	"github.com/steplab/stepdb/internal/testutil"
)

func load(t *testing.T, content string) *ingest.Result {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "01_bench.steps.yaml", content)
	res, err := ingest.Load(ingest.Options{Dir: dir, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return res
}

func TestBuildMasterTableSingleShape(t *testing.T) {
	res := load(t, `1_r1:
  exec: A
  stage: a_1
  pipeline: a_1+b_1
  n: 1
2_m1_r1:
  exec: B
  stage: b_1
  pipeline: a_1+b_1
  method: mean
`)

	mt, err := NewBuilder(res, testutil.NewTestLogger(t)).BuildMasterTable("b")
	require.NoError(t, err)

	assert.Equal(t, "master_b", mt.Name())
	require.Len(t, mt.Groups, 1)
	assert.Equal(t, []string{"a", "b"}, mt.Groups[0].Shape)

	wide := mt.Table()
	assert.Equal(t, []string{"a_name", "a_id", "b_name", "b_id"}, wide.ColumnNames())
	require.Equal(t, 1, wide.NumRows())
	assert.Equal(t, []any{"A", int64(1), "B", int64(2)}, wide.Row(0))
}

func TestBuildMasterTableGroupsByShape(t *testing.T) {
	// Two pipelines end in block b: a+b (twice) and a+c+b (once).
	res := load(t, `1_r1:
  exec: A
  stage: a_1
  pipeline: a_1+b_1
  n: 1
2_r2:
  exec: A
  stage: a_1
  pipeline: a_1+b_1
  n: 2
3_m1_r1:
  exec: B
  stage: b_1
  pipeline: a_1+b_1
  method: mean
4_m2_r2:
  exec: B
  stage: b_1
  pipeline: a_1+b_1
  method: mean
5_c1_r1:
  exec: C
  stage: c_1
  pipeline: a_1+c_1+b_1
  shrink: 0.5
6_m3_c1:
  exec: B
  stage: b_1
  pipeline: a_1+c_1+b_1
  method: mean
`)

	mt, err := NewBuilder(res, testutil.NewTestLogger(t)).BuildMasterTable("b")
	require.NoError(t, err)

	require.Len(t, mt.Groups, 2)
	assert.Equal(t, []string{"a", "b"}, mt.Groups[0].Shape)
	assert.Equal(t, []string{"a", "c", "b"}, mt.Groups[1].Shape)

	// Every chain lands in exactly one group.
	short, long := mt.Groups[0].Frame, mt.Groups[1].Frame
	assert.Equal(t, 2, short.NumRows())
	assert.Equal(t, 1, long.NumRows())
	bStore, _ := res.Table("B")
	assert.Equal(t, bStore.Len(), short.NumRows()+long.NumRows())

	assert.Equal(t, []any{"A", int64(1), "B", int64(3)}, short.Row(0))
	assert.Equal(t, []any{"A", int64(2), "B", int64(4)}, short.Row(1))
	assert.Equal(t, []any{"A", int64(1), "C", int64(5), "B", int64(6)}, long.Row(0))

	// The wide table keeps the groups in disjoint column ranges, padded to
	// the larger group, with no row alignment between them.
	wide := mt.Table()
	assert.Equal(t, 2, wide.NumRows())
	assert.Equal(t, []string{
		"a_name", "a_id", "b_name", "b_id",
		"a_name", "a_id", "c_name", "c_id", "b_name", "b_id",
	}, wide.ColumnNames())
	assert.Equal(t, []any{"A", int64(2), "B", int64(4), nil, nil, nil, nil, nil, nil}, wide.Row(1))
}

func TestBuildMasterTableSharedUpstream(t *testing.T) {
	// Two analysis tables in one block consume the same simulated input;
	// rows appear in block-table order, then record order.
	res := load(t, `1_r1:
  exec: sim.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1
  n: 10
2_m1_r1:
  exec: mean.R
  stage: analyze_1
  pipeline: simulate_1+analyze_1
  trim: 0
3_v1_r1:
  exec: median.R
  stage: analyze_2
  pipeline: simulate_1+analyze_2
  trim: 1
`)

	mt, err := NewBuilder(res, testutil.NewTestLogger(t)).BuildMasterTable("analyze")
	require.NoError(t, err)

	require.Len(t, mt.Groups, 1)
	frame := mt.Groups[0].Frame
	require.Equal(t, 2, frame.NumRows())
	assert.Equal(t, []any{"sim.R", int64(1), "mean.R", int64(2)}, frame.Row(0))
	assert.Equal(t, []any{"sim.R", int64(1), "median.R", int64(3)}, frame.Row(1))
}

func TestBuildMasterTableUnknownBlock(t *testing.T) {
	res := load(t, `1_r1:
  exec: A
  stage: a_1
  pipeline: a_1
  n: 1
`)

	mt, err := NewBuilder(res, testutil.NewTestLogger(t)).BuildMasterTable("nope")
	require.NoError(t, err)
	assert.Empty(t, mt.Groups)
	assert.Equal(t, 0, mt.Table().NumRows())
}
