package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steplab/stepdb/internal/cli/config"
	"github.com/steplab/stepdb/internal/sink"

	// sqlite driver for read-only queries against the built database.
	_ "modernc.org/sqlite"
)

// resolveOutputPath returns the built database path from config.
// Server-backed targets have no local file to query.
func resolveOutputPath(cfg *config.Config) (string, error) {
	if cfg.Target == nil || cfg.Target.Path == "" {
		return "", fmt.Errorf("query requires a file-backed target (sqlite or duckdb)\nHint: Check your target in stepdb.yaml or pass --db")
	}
	return cfg.Target.Path, nil
}

// openOutputDBReadOnly opens the built database in read-only mode.
func openOutputDBReadOnly(cfg *config.Config, path string) (*sql.DB, error) {
	kind := sink.KindSQLite
	if cfg.Target != nil && cfg.Target.Kind != "" {
		kind = cfg.Target.Kind
	}

	switch kind {
	case sink.KindSQLite:
		return sql.Open("sqlite", path+"?mode=ro")
	case sink.KindDuckDB:
		return sql.Open("duckdb", path+"?access_mode=read_only")
	default:
		return nil, fmt.Errorf("query supports file-backed targets only, not %q", kind)
	}
}

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the built results database",
		Long: `Execute SQL queries against the built results database to inspect step
tables and master tables. Supports multiple output formats for scripting
and integration.

When invoked without arguments, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  stepdb query "SELECT * FROM master_score"

  # List available tables
  stepdb query tables

  # Show schema for a table
  stepdb query schema master_score

  # Output as JSON
  stepdb query "SELECT return, n FROM \"simulate.R\"" --format json

  # Interactive mode
  stepdb query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	// Flags
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	// Subcommands
	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx := NewCommandContext(cmd)

	path, err := resolveOutputPath(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("results database not found at %s (run 'stepdb build' first)", path)
	}

	// Determine SQL source
	var sqlQuery string

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, cmdCtx.Cfg, path, opts)
	}

	// Execute the query
	return executeAndRender(cmd.Context(), cmd, cmdCtx.Cfg, path, sqlQuery, opts.Format)
}

func executeAndRender(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path, sqlQuery, format string) error {
	db, err := openOutputDBReadOnly(cfg, path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return renderResults(cmd.OutOrStdout(), rows, format)
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List all tables in the results database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			path, err := resolveOutputPath(cmdCtx.Cfg)
			if err != nil {
				return err
			}
			return listTables(cmd, cmdCtx.Cfg, path, opts.Format)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show schema for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			path, err := resolveOutputPath(cmdCtx.Cfg)
			if err != nil {
				return err
			}
			return showSchema(cmd, cmdCtx.Cfg, path, args[0], opts.Format)
		},
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
