package config

import (
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("database name is required\nHint: Set name in stepdb.yaml or pass --name")
	}

	// Directory existence is checked separately so help-style commands
	// work without a pipeline on disk.
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.MetaDir); os.IsNotExist(err) {
		return fmt.Errorf("metadata directory does not exist: %s\nHint: Run your pipeline first or use --meta-dir to point at its output", c.MetaDir)
	}
	return nil
}
