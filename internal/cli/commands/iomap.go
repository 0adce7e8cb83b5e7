package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steplab/stepdb/internal/iomap"
)

// IOMapOptions holds options for the iomap command.
type IOMapOptions struct {
	Out string
}

// NewIOMapCommand creates the iomap command.
func NewIOMapCommand() *cobra.Command {
	opts := &IOMapOptions{}

	cmd := &cobra.Command{
		Use:   "iomap",
		Short: "Merge per-step io remap files into one JSON map",
		Long: `Scan the metadata directory for io remap files (*.io.tmp), re-root the
file paths they reference and write the merged map as JSON, grouped by
file id and step id.`,
		Example: `  stepdb iomap
  stepdb iomap --out remap.conf.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIOMap(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Output path (default: <meta_dir>/<name>.conf.json)")

	return cmd
}

func runIOMap(cmd *cobra.Command, opts *IOMapOptions) error {
	cmdCtx := NewCommandContext(cmd)

	if err := cmdCtx.Cfg.Validate(); err != nil {
		return err
	}
	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	out, err := iomap.Build(iomap.Options{
		MetaDir: cmdCtx.Cfg.MetaDir,
		Name:    cmdCtx.Cfg.Name,
		OutPath: opts.Out,
		Logger:  cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote io map to %s\n", out)
	return nil
}
