// Package ingest parses raw per-step metadata into normalized, schema-checked
// per-table record stores, assigning global step ids and resolving dependency
// references along the way.
package ingest

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/steplab/stepdb/pkg/core"
)

// DefaultPattern matches the metadata shards the upstream runner writes.
const DefaultPattern = "*.steps.yaml"

// Meta fields carried by every raw entry. They describe provenance and are
// excluded from the attribute schema.
const (
	fieldExec       = "exec"
	fieldStage      = "stage"
	fieldPipeline   = "pipeline"
	fieldPipelineID = "pipeline_id"
)

// reserved column names; attribute keys that collide are kept under a dotted
// alias so they cannot shadow the record columns.
var reservedNames = map[string]string{
	"step_id": ".step_id",
	"return":  ".return",
	"depends": ".depends",
}

// Options configures a metadata load.
type Options struct {
	// Dir is the metadata directory.
	Dir string
	// Pattern is the file glob within Dir; DefaultPattern when empty.
	Pattern string
	// Workers bounds the parse fan-out; defaults to 4.
	Workers int
	// Logger receives debug output; a discard logger when nil.
	Logger *slog.Logger
}

type recordRef struct {
	table string
	row   int
}

// Result is the ingested record set: per-table stores, the block mapping and
// the step id index consulted during chain resolution.
type Result struct {
	order  []string
	tables map[string]*TableStore
	blocks *Blocks
	byID   map[int64]recordRef
}

// Tables returns the per-table stores in first-seen order.
func (r *Result) Tables() []*TableStore {
	out := make([]*TableStore, len(r.order))
	for i, name := range r.order {
		out[i] = r.tables[name]
	}
	return out
}

// Table returns the store for one table.
func (r *Result) Table(name string) (*TableStore, bool) {
	s, ok := r.tables[name]
	return s, ok
}

// Blocks returns the block group mapping.
func (r *Result) Blocks() *Blocks {
	return r.blocks
}

// Lookup finds a record by global step id.
func (r *Result) Lookup(stepID int64) (core.StepRecord, bool) {
	ref, ok := r.byID[stepID]
	if !ok {
		return core.StepRecord{}, false
	}
	return r.tables[ref.table].Record(ref.row), true
}

// Records returns the total record count across all tables.
func (r *Result) Records() int {
	return len(r.byID)
}

func (r *Result) store(table, block string) *TableStore {
	if s, ok := r.tables[table]; ok {
		return s
	}
	s := newTableStore(table, block)
	r.tables[table] = s
	r.order = append(r.order, table)
	return s
}

// Load reads every metadata shard under opts.Dir, merges them in sorted file
// order, deduplicates re-ingested entries and builds the record stores.
// Shards are parsed concurrently; the merge is deterministic.
func Load(opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	files, err := filepath.Glob(filepath.Join(opts.Dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad metadata pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, &core.SourceNotFoundError{Dir: opts.Dir, Pattern: pattern}
	}
	sort.Strings(files)

	logger.Debug("loading step metadata", slog.Int("files", len(files)), slog.String("dir", opts.Dir))

	parsed := make([][]rawEntry, len(files))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			entries, err := parseFile(file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			parsed[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in file order, first occurrence of a dedup key wins.
	var entries []rawEntry
	seen := make(map[string]struct{})
	for _, shard := range parsed {
		for _, e := range shard {
			if _, dup := seen[e.dedupKey]; dup {
				continue
			}
			seen[e.dedupKey] = struct{}{}
			entries = append(entries, e)
		}
	}

	// Step ids are positions after dedup. The return index is first-wins
	// and spans all entries, so forward references resolve too.
	byReturn := make(map[string]int64, len(entries))
	for i, e := range entries {
		if _, ok := byReturn[e.ret]; !ok {
			byReturn[e.ret] = int64(i + 1)
		}
	}

	res := &Result{
		tables: make(map[string]*TableStore),
		blocks: newBlocks(),
		byID:   make(map[int64]recordRef, len(entries)),
	}

	for idx, e := range entries {
		stepID := int64(idx + 1)

		meta, attrs, err := splitFields(e)
		if err != nil {
			return nil, err
		}

		block := blockName(meta.stage)
		if err := res.blocks.assign(block, meta.exec); err != nil {
			return nil, err
		}
		if meta.stage == lastStage(meta.pipeline) {
			res.blocks.markTerminal(block)
		}

		var depends *int64
		if e.dependsRet != "" {
			sid, ok := byReturn[e.dependsRet]
			if !ok {
				return nil, &core.DependencyNotFoundError{Return: e.dependsRet}
			}
			depends = &sid
		}

		store := res.store(meta.exec, block)
		if err := store.append(stepID, e.ret, depends, attrs); err != nil {
			return nil, err
		}
		res.byID[stepID] = recordRef{table: meta.exec, row: store.Len() - 1}
	}

	logger.Info("step metadata loaded",
		slog.Int("records", res.Records()),
		slog.Int("tables", len(res.order)),
		slog.Int("blocks", len(res.blocks.Names())),
		slog.Int("terminal_blocks", len(res.blocks.Terminal())))

	return res, nil
}

type entryMeta struct {
	exec     string
	stage    string
	pipeline string
}

// splitFields separates an entry's meta fields from its attributes. Meta
// fields are required strings; attribute keys that collide with record
// column names are escaped with a leading dot.
func splitFields(e rawEntry) (entryMeta, []rawField, error) {
	var meta entryMeta
	attrs := make([]rawField, 0, len(e.fields))

	for _, f := range e.fields {
		switch f.name {
		case fieldExec, fieldStage, fieldPipeline:
			s, ok := f.value.(string)
			if !ok {
				return entryMeta{}, nil, fmt.Errorf("record %q: field %q must be a string", e.key, f.name)
			}
			switch f.name {
			case fieldExec:
				meta.exec = s
			case fieldStage:
				meta.stage = s
			case fieldPipeline:
				meta.pipeline = s
			}
		case fieldPipelineID:
			// provenance only, never an attribute
		default:
			name := f.name
			if escaped, ok := reservedNames[name]; ok {
				name = escaped
			}
			attrs = append(attrs, rawField{name: name, value: f.value})
		}
	}

	switch {
	case meta.exec == "":
		return entryMeta{}, nil, fmt.Errorf("record %q: missing required field %q", e.key, fieldExec)
	case meta.stage == "":
		return entryMeta{}, nil, fmt.Errorf("record %q: missing required field %q", e.key, fieldStage)
	case meta.pipeline == "":
		return entryMeta{}, nil, fmt.Errorf("record %q: missing required field %q", e.key, fieldPipeline)
	}
	return meta, attrs, nil
}

// blockName derives the block from a stage name: the part before the first
// underscore, or the whole stage when it has none.
func blockName(stage string) string {
	if block, _, found := strings.Cut(stage, "_"); found {
		return block
	}
	return stage
}

// lastStage returns the final '+'-separated segment of a pipeline
// declaration.
func lastStage(pipeline string) string {
	if i := strings.LastIndex(pipeline, "+"); i >= 0 {
		return pipeline[i+1:]
	}
	return pipeline
}
