package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/steplab/stepdb/internal/state"
)

// BuildsOptions holds options for the builds command.
type BuildsOptions struct {
	Limit int
}

// NewBuildsCommand creates the builds command.
func NewBuildsCommand() *cobra.Command {
	opts := &BuildsOptions{}

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Show build history",
		Long:  `List past builds recorded in the state store, newest first.`,
		Example: `  stepdb builds
  stepdb builds --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuilds(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of builds to show")

	return cmd
}

func runBuilds(cmd *cobra.Command, opts *BuildsOptions) error {
	cmdCtx := NewCommandContext(cmd)

	store := state.NewSQLiteStore(cmdCtx.Logger)
	if err := store.Open(cmdCtx.Cfg.StatePath); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate state store: %w", err)
	}

	builds, err := store.ListBuilds(opts.Limit)
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No builds recorded yet (run 'stepdb build' first)")
		return nil
	}

	renderBuilds(cmd.OutOrStdout(), builds)
	return nil
}

func renderBuilds(w io.Writer, builds []*state.Build) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Status", "Started", "Duration", "Tables", "Rows", "Error"})

	for _, b := range builds {
		t.AppendRow(table.Row{
			shortID(b.ID),
			b.Status,
			b.StartedAt.Local().Format("2006-01-02 15:04:05"),
			buildDuration(b),
			b.Tables,
			b.Rows,
			truncate(b.Error, 40),
		})
	}
	t.Render()
}

func renderBuildTables(w io.Writer, tables []*state.BuildTable) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Kind", "Rows", "Columns"})
	for _, bt := range tables {
		t.AppendRow(table.Row{bt.Name, bt.Kind, bt.Rows, bt.Columns})
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func buildDuration(b *state.Build) string {
	if b.CompletedAt == nil {
		return "-"
	}
	return b.CompletedAt.Sub(b.StartedAt).Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
