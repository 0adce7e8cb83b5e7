package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/steplab/stepdb/internal/cli/config"
	"github.com/steplab/stepdb/internal/engine"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext collects the config and logger stashed on the command
// context by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	return &CommandContext{
		Cfg:    config.GetConfig(cmd.Context()),
		Logger: config.GetLogger(cmd.Context()),
	}
}

// createEngine creates an engine from the CLI configuration.
func createEngine(cfg *config.Config, logger *slog.Logger, workers int) (*engine.Engine, error) {
	sinkCfg := cfg.SinkConfig()
	return engine.New(engine.Config{
		Name:         cfg.Name,
		MetaDir:      cfg.MetaDir,
		ArtifactsDir: cfg.ArtifactsDir,
		StatePath:    cfg.StatePath,
		Workers:      workers,
		Sink:         &sinkCfg,
		Logger:       logger,
	})
}
