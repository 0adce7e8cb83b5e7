// Package config provides configuration management for the stepdb CLI.
//
// Configuration is merged from defaults, an optional stepdb.yaml file,
// STEPDB_* environment variables, and command-line flags, in increasing
// order of precedence.
package config

import "github.com/steplab/stepdb/internal/sink"

// TargetConfig selects the output database a build writes to.
type TargetConfig struct {
	Kind string `koanf:"kind"`
	Path string `koanf:"path"`
	DSN  string `koanf:"dsn"`
}

// Config holds all CLI configuration options.
type Config struct {
	Name         string        `koanf:"name"`
	MetaDir      string        `koanf:"meta_dir"`
	ArtifactsDir string        `koanf:"artifacts_dir"`
	StatePath    string        `koanf:"state_path"`
	Verbose      bool          `koanf:"verbose"`
	Target       *TargetConfig `koanf:"target"`
}

// Default configuration values.
const (
	DefaultStateFile  = ".stepdb/state.db"
	DefaultTargetKind = sink.KindSQLite
)

// SinkConfig converts the target section into the writer configuration.
func (c *Config) SinkConfig() sink.Config {
	t := c.Target
	if t == nil {
		return sink.Config{Kind: DefaultTargetKind}
	}
	return sink.Config{Kind: t.Kind, Path: t.Path, DSN: t.DSN}
}
