package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/steplab/stepdb/internal/chain"
	"github.com/steplab/stepdb/internal/ingest"
	"github.com/steplab/stepdb/pkg/core"
)

// ChainsOptions holds options for the chains command.
type ChainsOptions struct {
	Block string
}

// NewChainsCommand creates the chains command.
func NewChainsCommand() *cobra.Command {
	opts := &ChainsOptions{}

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Show reconstructed execution chains grouped by shape",
		Long: `Walk the depends pointer of every terminal step backward and group the
resulting chains by the sequence of blocks they pass through. Each distinct
shape becomes one sub-frame of the block's master table.`,
		Example: `  stepdb chains
  stepdb chains --block score`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChains(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Block, "block", "b", "", "Only show chains ending in this block")

	return cmd
}

// chainShape is one distinct block sequence and how many chains share it.
type chainShape struct {
	block string
	shape string
	count int
}

func runChains(cmd *cobra.Command, opts *ChainsOptions) error {
	cmdCtx := NewCommandContext(cmd)

	if err := cmdCtx.Cfg.Validate(); err != nil {
		return err
	}
	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	res, err := ingest.Load(ingest.Options{Dir: cmdCtx.Cfg.MetaDir, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}

	blocks := res.Blocks()
	terminal := blocks.Terminal()
	if opts.Block != "" {
		if !slices.Contains(blocks.Names(), opts.Block) {
			return fmt.Errorf("unknown block %q\nAvailable blocks: %v", opts.Block, blocks.Names())
		}
		terminal = []string{opts.Block}
	}

	shapes, err := collectShapes(res, terminal)
	if err != nil {
		return err
	}
	if len(shapes) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "(no chains)")
		return nil
	}

	renderShapes(cmd.OutOrStdout(), shapes)
	return nil
}

// collectShapes resolves every step of every table in the given blocks and
// tallies chains per distinct shape, preserving first-seen order.
func collectShapes(res *ingest.Result, targetBlocks []string) ([]*chainShape, error) {
	resolver := chain.NewResolver(res)
	blocks := res.Blocks()

	var shapes []*chainShape
	index := make(map[string]*chainShape)

	for _, block := range targetBlocks {
		for _, tbl := range blocks.TablesOf(block) {
			store, ok := res.Table(tbl)
			if !ok {
				continue
			}
			for i := 0; i < store.Len(); i++ {
				seq, err := resolver.ResolveChain(tbl, store.StepIDAt(i))
				if err != nil {
					return nil, err
				}
				shape, missing := seq.Shape(blocks.BlockOf)
				if missing != "" {
					return nil, &core.BlockLookupError{Table: missing}
				}

				key := block + "\x00" + strings.Join(shape, " -> ")
				sc, seen := index[key]
				if !seen {
					sc = &chainShape{block: block, shape: strings.Join(shape, " -> ")}
					index[key] = sc
					shapes = append(shapes, sc)
				}
				sc.count++
			}
		}
	}
	return shapes, nil
}

func renderShapes(w io.Writer, shapes []*chainShape) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Block", "Shape", "Chains"})
	for _, sc := range shapes {
		t.AppendRow(table.Row{sc.block, sc.shape, sc.count})
	}
	t.Render()
}
