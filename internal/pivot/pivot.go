// Package pivot groups reconstructed sequences by structural shape and
// pivots each group into the wide master table of its terminal block.
package pivot

import (
	"fmt"
	"log/slog"

	"github.com/steplab/stepdb/internal/chain"
	"github.com/steplab/stepdb/internal/ingest"
	"github.com/steplab/stepdb/pkg/core"
)

// Builder pivots ingested records into master tables.
type Builder struct {
	records  *ingest.Result
	resolver *chain.Resolver
	logger   *slog.Logger
}

// NewBuilder creates a builder over an ingested record set.
// If logger is nil, a discard logger is used.
func NewBuilder(records *ingest.Result, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		records:  records,
		resolver: chain.NewResolver(records),
		logger:   logger,
	}
}

// BuildMasterTable reconstructs every chain ending in the given block and
// pivots the chains into shape groups: one sub-frame per distinct block
// tuple, columns <block>_name and <block>_id per tuple element, one row per
// chain. Every chain lands in exactly one group.
func (b *Builder) BuildMasterTable(block string) (*core.MasterTable, error) {
	blocks := b.records.Blocks()
	mt := &core.MasterTable{Block: block}

	chains := 0
	for _, table := range blocks.TablesOf(block) {
		store, ok := b.records.Table(table)
		if !ok {
			return nil, fmt.Errorf("block %q lists table %q but no records were ingested for it", block, table)
		}

		for i := 0; i < store.Len(); i++ {
			seq, err := b.resolver.ResolveChain(table, store.StepIDAt(i))
			if err != nil {
				return nil, err
			}

			shape, missing := seq.Shape(blocks.BlockOf)
			if missing != "" {
				return nil, &core.BlockLookupError{Table: missing}
			}

			group, ok := mt.Group(shape)
			if !ok {
				group = &core.ShapeGroup{Shape: shape, Frame: core.NewFrame(shapeHeader(shape)...)}
				mt.Groups = append(mt.Groups, group)
			}

			row := make([]any, 0, 2*len(seq))
			for _, ref := range seq {
				row = append(row, ref.Table, ref.StepID)
			}
			if err := group.Frame.AppendRow(row); err != nil {
				return nil, fmt.Errorf("pivot block %q: %w", block, err)
			}
			chains++
		}
	}

	b.logger.Debug("master table built",
		slog.String("block", block),
		slog.Int("chains", chains),
		slog.Int("shapes", len(mt.Groups)))

	return mt, nil
}

// shapeHeader expands a block tuple into the paired name/id column headers.
func shapeHeader(shape []string) []string {
	header := make([]string, 0, 2*len(shape))
	for _, blk := range shape {
		header = append(header, blk+"_name", blk+"_id")
	}
	return header
}
