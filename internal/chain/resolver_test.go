package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplab/stepdb/internal/ingest"
	"github.com/steplab/stepdb/internal/testutil"
	"github.com/steplab/stepdb/pkg/core"
)

// fakeIndex lets tests hand the resolver records the ingestor would never
// produce, like cycles.
type fakeIndex map[int64]core.StepRecord

func (f fakeIndex) Lookup(stepID int64) (core.StepRecord, bool) {
	rec, ok := f[stepID]
	return rec, ok
}

func ptr(v int64) *int64 { return &v }

func TestResolveChain(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "01_bench.steps.yaml", `1_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1+score_1
  n: 100
2_mean1_rnorm1:
  exec: analyze.R
  stage: analyze_1
  pipeline: simulate_1+analyze_1+score_1
  method: mean
3_err1_mean1:
  exec: score.R
  stage: score_1
  pipeline: simulate_1+analyze_1+score_1
  metric: rmse
`)
	res, err := ingest.Load(ingest.Options{Dir: dir, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	r := NewResolver(res)

	seq, err := r.ResolveChain("score.R", 3)
	require.NoError(t, err)
	assert.Equal(t, core.Sequence{
		{Table: "simulate.R", StepID: 1},
		{Table: "analyze.R", StepID: 2},
		{Table: "score.R", StepID: 3},
	}, seq)

	// The walk always ends at the step it was asked about.
	assert.Equal(t, core.StepRef{Table: "score.R", StepID: 3}, seq[len(seq)-1])

	// Deterministic: the same question gets the same answer.
	again, err := r.ResolveChain("score.R", 3)
	require.NoError(t, err)
	assert.Equal(t, seq, again)

	// An initial step resolves to a one-element sequence.
	seq, err = r.ResolveChain("simulate.R", 1)
	require.NoError(t, err)
	assert.Equal(t, core.Sequence{{Table: "simulate.R", StepID: 1}}, seq)
}

func TestResolveChainMissingStep(t *testing.T) {
	idx := fakeIndex{
		2: {Table: "analyze.R", StepID: 2, Depends: ptr(99)},
	}

	_, err := NewResolver(idx).ResolveChain("analyze.R", 2)
	var notFound *core.DependencyNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, int64(99), notFound.StepID)
	assert.Contains(t, err.Error(), "99")
}

func TestResolveChainUnknownStart(t *testing.T) {
	_, err := NewResolver(fakeIndex{}).ResolveChain("analyze.R", 7)
	var notFound *core.DependencyNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, int64(7), notFound.StepID)
}

func TestResolveChainWrongTable(t *testing.T) {
	idx := fakeIndex{
		1: {Table: "simulate.R", StepID: 1},
	}

	_, err := NewResolver(idx).ResolveChain("analyze.R", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `belongs to table "simulate.R"`)
}

func TestResolveChainCycle(t *testing.T) {
	idx := fakeIndex{
		1: {Table: "a.R", StepID: 1, Depends: ptr(2)},
		2: {Table: "b.R", StepID: 2, Depends: ptr(1)},
	}

	_, err := NewResolver(idx).ResolveChain("a.R", 1)
	var corrupt *core.CorruptGraphError
	require.True(t, errors.As(err, &corrupt), "got %v", err)
	assert.Equal(t, int64(1), corrupt.StepID)
	assert.Equal(t, "a.R", corrupt.Table)
}

func TestResolveChainSelfLoop(t *testing.T) {
	idx := fakeIndex{
		5: {Table: "a.R", StepID: 5, Depends: ptr(5)},
	}

	_, err := NewResolver(idx).ResolveChain("a.R", 5)
	var corrupt *core.CorruptGraphError
	require.True(t, errors.As(err, &corrupt), "got %v", err)
	assert.Equal(t, int64(5), corrupt.StepID)
}
