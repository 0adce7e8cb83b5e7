package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplab/stepdb/internal/testutil"
	"github.com/steplab/stepdb/pkg/core"
)

const shardOne = `1_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1
  pipeline_id: 1
  n: 100
  seed: 42
2_mean1_rnorm1:
  exec: analyze.R
  stage: analyze_1
  pipeline: simulate_1+analyze_1
  pipeline_id: 1
  method: mean
`

func loadDir(t *testing.T, files map[string]string) (*Result, error) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		testutil.WriteFile(t, dir, name, content)
	}
	return Load(Options{Dir: dir, Logger: testutil.NewTestLogger(t)})
}

func TestLoadBasic(t *testing.T) {
	res, err := loadDir(t, map[string]string{"01_bench.steps.yaml": shardOne})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Records())

	sim, ok := res.Table("simulate.R")
	require.True(t, ok)
	assert.Equal(t, 1, sim.Len())
	assert.Equal(t, int64(1), sim.StepIDAt(0))
	assert.Equal(t, "rnorm1", sim.ReturnAt(0))
	assert.Nil(t, sim.DependsAt(0))
	assert.Equal(t, []string{"n", "seed"}, sim.AttrKeys())
	assert.Equal(t, "simulate", sim.Block())

	ana, ok := res.Table("analyze.R")
	require.True(t, ok)
	assert.Equal(t, int64(2), ana.StepIDAt(0))
	require.NotNil(t, ana.DependsAt(0))
	assert.Equal(t, int64(1), *ana.DependsAt(0))

	// Meta fields never leak into attributes.
	rec, ok := res.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"method": "mean"}, rec.Attributes)

	blocks := res.Blocks()
	assert.Equal(t, []string{"simulate", "analyze"}, blocks.Names())
	assert.Equal(t, []string{"analyze"}, blocks.Terminal())
	owner, ok := blocks.BlockOf("analyze.R")
	require.True(t, ok)
	assert.Equal(t, "analyze", owner)
}

func TestLoadMergesShardsInSortedOrder(t *testing.T) {
	// The second shard depends on a return id declared in the first; the
	// file names guarantee the ingestion order.
	shardTwo := `5_score1_mean1:
  exec: score.R
  stage: score_1
  pipeline: simulate_1+analyze_1+score_1
  pipeline_id: 2
  metric: rmse
`
	res, err := loadDir(t, map[string]string{
		"01_bench.steps.yaml": shardOne,
		"02_bench.steps.yaml": shardTwo,
	})
	require.NoError(t, err)

	score, ok := res.Table("score.R")
	require.True(t, ok)
	assert.Equal(t, int64(3), score.StepIDAt(0))
	require.NotNil(t, score.DependsAt(0))
	assert.Equal(t, int64(2), *score.DependsAt(0))
	assert.Equal(t, []string{"analyze", "score"}, res.Blocks().Terminal())
}

func TestLoadResolvesForwardReferences(t *testing.T) {
	// A depends reference may point at an entry that appears later in the
	// merged stream; the return index spans all entries.
	content := `1_mean1_rnorm1:
  exec: analyze.R
  stage: analyze_1
  pipeline: simulate_1+analyze_1
  method: mean
2_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1
  n: 10
`
	res, err := loadDir(t, map[string]string{"01_bench.steps.yaml": content})
	require.NoError(t, err)

	ana, _ := res.Table("analyze.R")
	require.NotNil(t, ana.DependsAt(0))
	assert.Equal(t, int64(2), *ana.DependsAt(0))
}

func TestLoadDeduplicationIsIdempotent(t *testing.T) {
	once, err := loadDir(t, map[string]string{"01_bench.steps.yaml": shardOne})
	require.NoError(t, err)

	// Same entries re-ingested from a second shard under fresh order
	// prefixes: the key suffix is the identity, duplicates are dropped.
	reshard := `7_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1
  n: 100
  seed: 42
8_mean1_rnorm1:
  exec: analyze.R
  stage: analyze_1
  pipeline: simulate_1+analyze_1
  method: mean
`
	twice, err := loadDir(t, map[string]string{
		"01_bench.steps.yaml": shardOne,
		"02_bench.steps.yaml": reshard,
	})
	require.NoError(t, err)

	assert.Equal(t, once.Records(), twice.Records())
	for _, store := range once.Tables() {
		dup, ok := twice.Table(store.Name())
		require.True(t, ok)
		assert.Equal(t, store.Len(), dup.Len())
		for i := 0; i < store.Len(); i++ {
			assert.Equal(t, store.Record(i), dup.Record(i))
		}
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	content := shardOne + `3_rnorm2:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1
  n: 200
  sd: 1.5
`
	_, err := loadDir(t, map[string]string{"01_bench.steps.yaml": content})

	var mismatch *core.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "simulate.R", mismatch.Table)
	assert.Equal(t, int64(3), mismatch.StepID)
	assert.Equal(t, int64(1), mismatch.FirstStepID)
	assert.Equal(t, []string{"n", "sd"}, mismatch.Got)
	assert.Equal(t, []string{"n", "seed"}, mismatch.Want)
}

func TestLoadDependencyNotFound(t *testing.T) {
	content := `1_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1+analyze_1
  n: 100
2_mean1_99:
  exec: analyze.R
  stage: analyze_1
  pipeline: simulate_1+analyze_1
  method: mean
`
	_, err := loadDir(t, map[string]string{"01_bench.steps.yaml": content})

	var notFound *core.DependencyNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "99", notFound.Return)
	assert.Contains(t, err.Error(), "99")
}

func TestLoadSourceNotFound(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{
			name: "missing directory",
			dir: func(t *testing.T) string {
				return "/nonexistent/stepdb-meta"
			},
		},
		{
			name: "no matching files",
			dir: func(t *testing.T) string {
				dir := t.TempDir()
				testutil.WriteFile(t, dir, "readme.txt", "not metadata")
				return dir
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Options{Dir: tt.dir(t)})
			var notFound *core.SourceNotFoundError
			require.True(t, errors.As(err, &notFound), "got %v", err)
		})
	}
}

func TestLoadEscapesReservedAttributeNames(t *testing.T) {
	content := `1_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1
  return: custom
  n: 100
`
	res, err := loadDir(t, map[string]string{"01_bench.steps.yaml": content})
	require.NoError(t, err)

	sim, _ := res.Table("simulate.R")
	assert.Equal(t, []string{".return", "n"}, sim.AttrKeys())
	rec, _ := res.Lookup(1)
	assert.Equal(t, "custom", rec.Attributes[".return"])
	// The real return column still comes from the composite key.
	assert.Equal(t, "rnorm1", rec.Return)
}

func TestLoadRejectsBlockConflict(t *testing.T) {
	content := `1_rnorm1:
  exec: simulate.R
  stage: simulate_1
  pipeline: simulate_1
  n: 100
2_rnorm2:
  exec: simulate.R
  stage: generate_1
  pipeline: generate_1
  n: 100
`
	_, err := loadDir(t, map[string]string{"01_bench.steps.yaml": content})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `belongs to block "simulate"`)
}

func TestLoadRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "key without return segment",
			content: "justorder:\n  exec: a.R\n  stage: a_1\n  pipeline: a_1\n",
			wantErr: "malformed record key",
		},
		{
			name:    "missing exec",
			content: "1_r1:\n  stage: a_1\n  pipeline: a_1\n  n: 1\n",
			wantErr: `missing required field "exec"`,
		},
		{
			name:    "non-string stage",
			content: "1_r1:\n  exec: a.R\n  stage: 12\n  pipeline: a_1\n",
			wantErr: `field "stage" must be a string`,
		},
		{
			name:    "entry is not a mapping",
			content: "1_r1: 42\n",
			wantErr: "expected a field mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadDir(t, map[string]string{"01_bench.steps.yaml": tt.content})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBlockName(t *testing.T) {
	assert.Equal(t, "simulate", blockName("simulate_1"))
	assert.Equal(t, "score", blockName("score"))
	assert.Equal(t, "a", blockName("a_b_c"))
}

func TestLastStage(t *testing.T) {
	assert.Equal(t, "score_1", lastStage("simulate_1+analyze_2+score_1"))
	assert.Equal(t, "solo", lastStage("solo"))
}
