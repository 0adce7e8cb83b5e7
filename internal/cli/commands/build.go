package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steplab/stepdb/internal/cli/config"
	"github.com/steplab/stepdb/internal/ingest"
	"github.com/steplab/stepdb/internal/watch"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	Watch   bool
	Workers int
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the results database from pipeline metadata",
		Long: `Scan the metadata directory, reconstruct execution chains and write one
table per executable plus one master table per terminal block.

The build is all-or-nothing: a malformed shard, an unresolved dependency or
an inconsistent artifact aborts the run and leaves no output behind.`,
		Example: `  # Build using stepdb.yaml in the current directory
  stepdb build

  # Write to a different SQLite file
  stepdb build --db results.db

  # Keep rebuilding as the pipeline reruns
  stepdb build --watch`,
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rebuild whenever step metadata changes")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Concurrent shard parses (0 for default)")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions) error {
	cmdCtx := NewCommandContext(cmd)

	if err := cmdCtx.Cfg.Validate(); err != nil {
		return err
	}
	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	if opts.Watch {
		return runBuildWatch(cmd, cmdCtx, opts)
	}
	return buildOnce(cmd.Context(), cmd, cmdCtx, opts)
}

func buildOnce(ctx context.Context, cmd *cobra.Command, cmdCtx *CommandContext, opts *BuildOptions) error {
	start := time.Now()

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger, opts.Workers)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	build, err := eng.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Build %s: %s\n", shortID(build.ID), build.Status)
	_, _ = fmt.Fprintf(w, "Wrote %d tables (%d rows) to %s\n", build.Tables, build.Rows, describeTarget(cmdCtx.Cfg))

	if cmdCtx.Cfg.Verbose {
		tables, err := eng.GetStateStore().GetBuildTables(build.ID)
		if err == nil && len(tables) > 0 {
			renderBuildTables(w, tables)
		}
	}

	_, _ = fmt.Fprintf(w, "Completed in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runBuildWatch(cmd *cobra.Command, cmdCtx *CommandContext, opts *BuildOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rebuild := func() {
		if err := buildOnce(ctx, cmd, cmdCtx, opts); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	rebuild()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes (Ctrl+C to stop)\n", cmdCtx.Cfg.MetaDir)
	w := watch.New(cmdCtx.Cfg.MetaDir, ingest.DefaultPattern, rebuild, cmdCtx.Logger)
	return w.Run(ctx)
}

// describeTarget names the output destination for build summaries.
func describeTarget(cfg *config.Config) string {
	if cfg.Target == nil {
		return "sqlite target"
	}
	if cfg.Target.Path != "" {
		return cfg.Target.Path
	}
	return cfg.Target.Kind + " target"
}
