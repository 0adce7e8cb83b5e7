package enrich

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplab/stepdb/pkg/core"
)

type fakeStore struct {
	artifacts map[string]map[string][]any
	failing   map[string]error
}

func (s *fakeStore) Exists(id string) bool {
	if _, ok := s.artifacts[id]; ok {
		return true
	}
	_, ok := s.failing[id]
	return ok
}

func (s *fakeStore) Fetch(id string) (map[string][]any, error) {
	if err, ok := s.failing[id]; ok {
		return nil, err
	}
	values, ok := s.artifacts[id]
	if !ok {
		return nil, &core.ArtifactReadError{Path: id, Err: errors.New("not found")}
	}
	return values, nil
}

type fakeIndex map[int64]core.StepRecord

func (f fakeIndex) Lookup(id int64) (core.StepRecord, bool) {
	rec, ok := f[id]
	return rec, ok
}

func group(t *testing.T, shape []string, rows ...[]any) *core.ShapeGroup {
	t.Helper()
	names := make([]string, 0, len(shape)*2)
	for _, b := range shape {
		names = append(names, b+"_name", b+"_id")
	}
	f := core.NewFrame(names...)
	for _, r := range rows {
		require.NoError(t, f.AppendRow(r))
	}
	return &core.ShapeGroup{Shape: shape, Frame: f}
}

func TestEnrichJoinsArtifactValues(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(10)},
				[]any{"normal.R", int64(2), "rmse.R", int64(11)},
				[]any{"normal.R", int64(3), "rmse.R", int64(12)},
			),
		},
	}
	index := fakeIndex{
		10: {Table: "rmse.R", StepID: 10, Return: "r10"},
		11: {Table: "rmse.R", StepID: 11, Return: "r11"},
		12: {Table: "rmse.R", StepID: 12, Return: "r12"},
	}
	store := &fakeStore{artifacts: map[string]map[string][]any{
		"r10": {"score": {0.5}, "beta": {1, 2}},
		"r12": {"score": {0.9}, "beta": {3, 4}},
	}}

	err := NewEnricher(store, index, nil).Enrich(mt)
	require.NoError(t, err)

	f := mt.Groups[0].Frame
	assert.Equal(t, 3, f.NumRows())
	assert.Equal(t, []string{
		"simulate_name", "simulate_id", "score_name", "score_id",
		"beta_1", "beta_2", "score",
	}, f.ColumnNames())

	assert.Equal(t, []any{"normal.R", int64(1), "rmse.R", int64(10), 1, 2, 0.5}, f.Row(0))
	assert.Equal(t, []any{"normal.R", int64(2), "rmse.R", int64(11), nil, nil, nil}, f.Row(1))
	assert.Equal(t, []any{"normal.R", int64(3), "rmse.R", int64(12), 3, 4, 0.9}, f.Row(2))
}

func TestEnrichColumnConsistency(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(10)},
				[]any{"normal.R", int64(2), "rmse.R", int64(11)},
			),
		},
	}
	index := fakeIndex{
		10: {Table: "rmse.R", StepID: 10, Return: "r10"},
		11: {Table: "rmse.R", StepID: 11, Return: "r11"},
	}
	store := &fakeStore{artifacts: map[string]map[string][]any{
		"r10": {"score": {0.5}},
		"r11": {"gamma": {0.7}},
	}}

	err := NewEnricher(store, index, nil).Enrich(mt)

	var mismatch *core.OutputSchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "r11", mismatch.Artifact)
	assert.Equal(t, []string{"gamma"}, mismatch.Got)
	assert.Equal(t, []string{"score"}, mismatch.Want)
}

func TestEnrichSpansShapeGroups(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(10)},
			),
			group(t, []string{"simulate", "shrink", "score"},
				[]any{"normal.R", int64(1), "lasso.R", int64(5), "rmse.R", int64(20)},
			),
		},
	}
	index := fakeIndex{
		10: {Table: "rmse.R", StepID: 10, Return: "r10"},
		20: {Table: "rmse.R", StepID: 20, Return: "r20"},
	}
	store := &fakeStore{artifacts: map[string]map[string][]any{
		"r10": {"score": {0.1}},
		"r20": {"score": {0.2}},
	}}

	err := NewEnricher(store, index, nil).Enrich(mt)
	require.NoError(t, err)

	short, long := mt.Groups[0].Frame, mt.Groups[1].Frame
	assert.Equal(t, 5, short.NumCols())
	assert.Equal(t, 7, long.NumCols())
	assert.Equal(t, 0.1, short.Row(0)[4])
	assert.Equal(t, 0.2, long.Row(0)[6])

	// Groups stay column-independent in the concatenated table.
	wide := mt.Table()
	assert.Equal(t, 12, wide.NumCols())
	assert.Equal(t, 1, wide.NumRows())
}

func TestEnrichAcrossGroupsUsesOneColumnSet(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(10)},
			),
			group(t, []string{"simulate", "shrink", "score"},
				[]any{"normal.R", int64(1), "lasso.R", int64(5), "rmse.R", int64(20)},
			),
		},
	}
	index := fakeIndex{
		10: {Table: "rmse.R", StepID: 10, Return: "r10"},
		20: {Table: "rmse.R", StepID: 20, Return: "r20"},
	}
	store := &fakeStore{artifacts: map[string]map[string][]any{
		"r10": {"score": {0.1}},
		"r20": {"score": {0.2}, "extra": {1}},
	}}

	err := NewEnricher(store, index, nil).Enrich(mt)

	var mismatch *core.OutputSchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "r20", mismatch.Artifact)
}

func TestEnrichWithoutArtifacts(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(10)},
			),
		},
	}
	index := fakeIndex{10: {Table: "rmse.R", StepID: 10, Return: "r10"}}
	store := &fakeStore{}

	err := NewEnricher(store, index, nil).Enrich(mt)
	require.NoError(t, err)
	assert.Equal(t, 4, mt.Groups[0].Frame.NumCols())
	assert.Equal(t, 1, mt.Groups[0].Frame.NumRows())
}

func TestEnrichFetchError(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(10)},
			),
		},
	}
	index := fakeIndex{10: {Table: "rmse.R", StepID: 10, Return: "r10"}}
	store := &fakeStore{failing: map[string]error{
		"r10": &core.ArtifactReadError{Path: "r10.yaml", Err: errors.New("truncated")},
	}}

	err := NewEnricher(store, index, nil).Enrich(mt)

	var read *core.ArtifactReadError
	require.ErrorAs(t, err, &read)
	assert.Equal(t, "r10.yaml", read.Path)
}

func TestEnrichUnknownStep(t *testing.T) {
	mt := &core.MasterTable{
		Block: "score",
		Groups: []*core.ShapeGroup{
			group(t, []string{"simulate", "score"},
				[]any{"normal.R", int64(1), "rmse.R", int64(99)},
			),
		},
	}

	err := NewEnricher(&fakeStore{}, fakeIndex{}, nil).Enrich(mt)

	var missing *core.DependencyNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.EqualValues(t, 99, missing.StepID)
}
