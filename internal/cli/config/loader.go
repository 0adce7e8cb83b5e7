package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/steplab/stepdb/internal/sink"
)

// loggerKey is used to store the logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
)

// findConfigFile finds the config file to use.
// Priority: explicit path > stepdb.yaml > stepdb.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("stepdb.yaml"); err == nil {
		return "stepdb.yaml"
	}
	if _, err := os.Stat("stepdb.yml"); err == nil {
		return "stepdb.yml"
	}
	return ""
}

// configExistsIn checks if a stepdb config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{"stepdb.yaml", "stepdb.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRootUpward searches upward from startDir for a stepdb config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Directory of an explicit --config file
//  2. Search upward from CWD for stepdb.yaml
//  3. Current working directory
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile)

	// Track paths that were explicitly provided as flags (relative to CWD).
	// These are converted to absolute paths at parse time so the project-root
	// resolution step below does not re-anchor them.
	var flagMetaDir, flagArtifactsDir, flagStatePath, flagDB string
	if flags != nil {
		if flags.Changed("meta-dir") {
			if v, _ := flags.GetString("meta-dir"); v != "" {
				flagMetaDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("artifacts-dir") {
			if v, _ := flags.GetString("artifacts-dir"); v != "" {
				flagArtifactsDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("state") {
			if v, _ := flags.GetString("state"); v != "" {
				flagStatePath, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("db") {
			flagDB, _ = flags.GetString("db")
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"state_path":  DefaultStateFile,
		"verbose":     false,
		"target.kind": DefaultTargetKind,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	// Search in project root if no explicit config file provided
	if cfgFile == "" {
		for _, name := range []string{"stepdb.yaml", "stepdb.yml"} {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (STEPDB_ prefix)
	// Transform: STEPDB_META_DIR -> meta_dir, STEPDB_TARGET_KIND -> target.kind
	if err := k.Load(env.Provider("STEPDB_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "STEPDB_"))
		if rest, ok := strings.CutPrefix(key, "target_"); ok {
			return "target." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			switch key {
			case "state":
				// The CLI uses --state for brevity; the config key is state_path
				return "state_path", posflag.FlagVal(flags, f)
			case "target":
				return "target.kind", posflag.FlagVal(flags, f)
			case "db":
				// Mapped onto target.path or target.dsn after unmarshal
				return "", nil
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Fill derived defaults. Pipelines lay their step metadata and
	// artifacts out under a directory named after the database.
	if cfg.MetaDir == "" {
		cfg.MetaDir = cfg.Name
	}
	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = cfg.MetaDir
	}
	if cfg.Target == nil {
		cfg.Target = &TargetConfig{Kind: DefaultTargetKind}
	}
	if cfg.Target.Kind == "" {
		cfg.Target.Kind = DefaultTargetKind
	}

	// 7. Resolve relative paths against the project root. Paths explicitly
	// provided via flags use the pre-computed absolute paths instead.
	if flagMetaDir != "" {
		cfg.MetaDir = flagMetaDir
	} else {
		cfg.MetaDir = resolvePathRelativeTo(cfg.MetaDir, projectRoot)
	}
	if flagArtifactsDir != "" {
		cfg.ArtifactsDir = flagArtifactsDir
	} else {
		cfg.ArtifactsDir = resolvePathRelativeTo(cfg.ArtifactsDir, projectRoot)
	}
	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}

	// 8. Apply the --db flag: a value with a scheme is a DSN, anything else
	// is a file path for the file-backed targets.
	if flagDB != "" {
		if strings.Contains(flagDB, "://") {
			cfg.Target.DSN = flagDB
		} else if abs, err := filepath.Abs(flagDB); err == nil {
			cfg.Target.Path = abs
		} else {
			cfg.Target.Path = flagDB
		}
	}

	// Default output path for file-backed targets
	if cfg.Target.Path == "" && cfg.Target.DSN == "" && cfg.Target.Kind != sink.KindPostgres && cfg.Name != "" {
		cfg.Target.Path = resolvePathRelativeTo(cfg.Name+".db", projectRoot)
	}
	cfg.Target.Path = resolvePathRelativeTo(cfg.Target.Path, projectRoot)

	// Expand ${VAR} references so credentials can stay out of stepdb.yaml
	cfg.Target.DSN = expandEnvVars(cfg.Target.DSN)

	if !sink.IsRegistered(cfg.Target.Kind) {
		return nil, fmt.Errorf("invalid target configuration: %w",
			&sink.UnknownTargetError{Kind: cfg.Target.Kind, Available: sink.ListWriters()})
	}

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// ConfigKey returns the context key used for storing the loaded config.
func ConfigKey() interface{} {
	return configKey{}
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	// Return default config if none in context
	return &Config{
		StatePath: DefaultStateFile,
		Target:    &TargetConfig{Kind: DefaultTargetKind},
	}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if s == "" {
		return s
	}
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}
