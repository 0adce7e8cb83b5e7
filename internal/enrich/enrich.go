// Package enrich joins externally computed artifact values into master
// tables.
package enrich

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/steplab/stepdb/internal/artifact"
	"github.com/steplab/stepdb/pkg/core"
)

// RecordIndex looks up records by global step id.
type RecordIndex interface {
	Lookup(stepID int64) (core.StepRecord, bool)
}

// Enricher extends master tables with artifact values. Enrichment works per
// shape group: each group carries exactly one terminal name/id column pair,
// which keeps the join keyed on <block>_id well defined even when several
// shapes end in the same block.
type Enricher struct {
	store  artifact.Store
	index  RecordIndex
	logger *slog.Logger
}

// NewEnricher creates an enricher reading from the given artifact store.
// If logger is nil, a discard logger is used.
func NewEnricher(store artifact.Store, index RecordIndex, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Enricher{store: store, index: index, logger: logger}
}

type enrichedRow struct {
	id     int64
	values []any
}

// Enrich looks up the artifact of every chain's terminal step and joins the
// artifact values into the owning shape group, keyed on the group's
// <block>_id column. Rows without artifacts keep nil enrichment values; row
// counts never change. The first fetched artifact fixes the enrichment
// column set for the whole block.
func (e *Enricher) Enrich(mt *core.MasterTable) error {
	var colnames []string
	perGroup := make([][]enrichedRow, len(mt.Groups))

	enriched, skipped := 0, 0
	for gi, g := range mt.Groups {
		idCol, err := terminalIDColumn(g)
		if err != nil {
			return err
		}

		for i := 0; i < g.Frame.NumRows(); i++ {
			id, ok := idCol.Values[i].(int64)
			if !ok {
				return fmt.Errorf("master_%s: %s value %v is not a step id", mt.Block, idCol.Name, idCol.Values[i])
			}
			rec, ok := e.index.Lookup(id)
			if !ok {
				return &core.DependencyNotFoundError{StepID: id}
			}
			if !e.store.Exists(rec.Return) {
				skipped++
				continue
			}

			values, err := e.store.Fetch(rec.Return)
			if err != nil {
				return err
			}

			names, flat := expand(values)
			if colnames == nil {
				colnames = names
			} else if !equalStrings(names, colnames) {
				return &core.OutputSchemaMismatchError{Artifact: rec.Return, Got: names, Want: colnames}
			}
			perGroup[gi] = append(perGroup[gi], enrichedRow{id: id, values: flat})
			enriched++
		}
	}

	if colnames == nil {
		e.logger.Debug("no artifacts for block", slog.String("block", mt.Block))
		return nil
	}

	for gi, g := range mt.Groups {
		byID := make(map[int64][]any, len(perGroup[gi]))
		for _, r := range perGroup[gi] {
			byID[r.id] = r.values
		}

		idCol, err := terminalIDColumn(g)
		if err != nil {
			return err
		}

		rows := g.Frame.NumRows()
		joined := make([][]any, len(colnames))
		for j := range joined {
			joined[j] = make([]any, rows)
		}
		for i := 0; i < rows; i++ {
			vals, ok := byID[idCol.Values[i].(int64)]
			if !ok {
				continue
			}
			for j := range colnames {
				joined[j][i] = vals[j]
			}
		}
		for j, name := range colnames {
			if err := g.Frame.AddColumn(name, joined[j]); err != nil {
				return fmt.Errorf("master_%s: %w", mt.Block, err)
			}
		}
	}

	e.logger.Debug("master table enriched",
		slog.String("block", mt.Block),
		slog.Int("rows", enriched),
		slog.Int("skipped", skipped),
		slog.Int("columns", len(colnames)))

	return nil
}

// terminalIDColumn returns the group's <block>_id column: the last column of
// the pivoted frame, paired with the terminal step's name column.
func terminalIDColumn(g *core.ShapeGroup) (*core.Column, error) {
	cols := g.Frame.Columns()
	if len(cols) < 2 {
		return nil, fmt.Errorf("shape group %v has no terminal columns", g.Shape)
	}
	return &cols[len(cols)-1], nil
}

// expand flattens artifact values into enrichment columns: names are
// processed in sorted order, one-element values keep their name and longer
// vectors fan out into name_1..name_n.
func expand(values map[string][]any) ([]string, []any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, 0, len(keys))
	flat := make([]any, 0, len(keys))
	for _, k := range keys {
		v := values[k]
		if len(v) == 1 {
			names = append(names, k)
			flat = append(flat, v[0])
			continue
		}
		for i, item := range v {
			names = append(names, fmt.Sprintf("%s_%d", k, i+1))
			flat = append(flat, item)
		}
	}
	return names, flat
}

func equalStrings(a, b []string) bool {
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
