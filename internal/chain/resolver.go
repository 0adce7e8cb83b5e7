// Package chain reconstructs execution sequences by walking depends pointers
// backward through the ingested record set.
package chain

import (
	"fmt"

	"github.com/steplab/stepdb/pkg/core"
)

// RecordIndex looks up records by global step id. The ingest result
// implements it; tests may substitute corrupted indexes.
type RecordIndex interface {
	Lookup(stepID int64) (core.StepRecord, bool)
}

// Resolver walks dependency pointers into full sequences.
type Resolver struct {
	index RecordIndex
}

// NewResolver creates a resolver over the given record index.
func NewResolver(index RecordIndex) *Resolver {
	return &Resolver{index: index}
}

// ResolveChain returns the ordered sequence from the initial step to the
// given step. The walk collects back-to-front and reverses. Step ids come
// from a monotonic counter so cycles cannot occur in well formed input; a
// visited guard turns corrupted input into a CorruptGraphError instead of an
// endless walk.
func (r *Resolver) ResolveChain(table string, stepID int64) (core.Sequence, error) {
	var seq core.Sequence
	visited := make(map[int64]struct{})

	cur := stepID
	for {
		rec, ok := r.index.Lookup(cur)
		if !ok {
			return nil, &core.DependencyNotFoundError{StepID: cur}
		}
		if len(seq) == 0 && rec.Table != table {
			return nil, fmt.Errorf("step %d belongs to table %q, not %q", stepID, rec.Table, table)
		}
		if _, dup := visited[cur]; dup {
			return nil, &core.CorruptGraphError{Table: rec.Table, StepID: cur}
		}
		visited[cur] = struct{}{}

		seq = append(seq, core.StepRef{Table: rec.Table, StepID: cur})
		if rec.Depends == nil {
			break
		}
		cur = *rec.Depends
	}

	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}
	return seq, nil
}
