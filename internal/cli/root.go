// Package cli provides the command-line interface for stepdb.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steplab/stepdb/internal/cli/commands"
	"github.com/steplab/stepdb/internal/cli/config"
	"github.com/steplab/stepdb/internal/sink"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stepdb",
		Short: "stepdb - Pipeline Results Database Builder",
		Long: `stepdb assembles the step metadata a pipeline run leaves behind into a
queryable SQL database: one table per executable, one master table per
terminal block, enriched with values loaded from step artifacts.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			// Load configuration with CLI flag overrides
			var err error
			cfg, err = config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// Commands report through their own output; the logger stays
			// quiet unless --verbose asks for the build internals.
			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			// Store config and logger in context
			ctx := context.WithValue(cmd.Context(), config.ConfigKey(), cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Pipeline results database builder
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./stepdb.yaml)")
	rootCmd.PersistentFlags().String("name", "", "Database name")
	rootCmd.PersistentFlags().String("meta-dir", "", "Path to step metadata directory")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "Path to step artifacts directory")
	rootCmd.PersistentFlags().String("state", "", "Path to build-history database")
	rootCmd.PersistentFlags().StringP("target", "t", "", "Output target kind (sqlite, duckdb, postgres)")
	rootCmd.PersistentFlags().String("db", "", "Output database path or DSN")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	// Register completion for target flag
	_ = rootCmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return sink.ListWriters(), cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(commands.NewBuildsCommand())
	rootCmd.AddCommand(commands.NewChainsCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewIOMapCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for stepdb.

To load completions:

Bash:
  $ source <(stepdb completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ stepdb completion bash > /etc/bash_completion.d/stepdb
  # macOS:
  $ stepdb completion bash > $(brew --prefix)/etc/bash_completion.d/stepdb

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ stepdb completion zsh > "${fpath[1]}/_stepdb"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ stepdb completion fish | source

  # To load completions for each session, execute once:
  $ stepdb completion fish > ~/.config/fish/completions/stepdb.fish

PowerShell:
  PS> stepdb completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> stepdb completion powershell > stepdb.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
