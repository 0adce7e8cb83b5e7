// Package engine orchestrates the pipeline-results database build.
// It handles metadata ingest, master table construction, artifact
// enrichment and persistence of the assembled database.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steplab/stepdb/internal/artifact"
	"github.com/steplab/stepdb/internal/sink"
	"github.com/steplab/stepdb/internal/state"
)

// Engine builds pipeline-results databases.
type Engine struct {
	// Output writer (lazy initialized)
	writer    sink.Writer
	sinkCfg   sink.Config
	connected bool
	sinkMu    sync.Mutex

	// Structured logger
	logger *slog.Logger

	store     state.Store
	artifacts artifact.Store
	name      string
	metaDir   string
	workers   int
}

// Config holds engine configuration.
type Config struct {
	// Name is the logical database name. It names the build output and the
	// default artifact directory.
	Name string
	// MetaDir is the directory holding the step metadata shards.
	MetaDir string
	// ArtifactsDir is the directory holding step artifacts. Defaults to
	// <Name>/ the way pipeline runs lay out their outputs.
	ArtifactsDir string
	// StatePath is the path to the SQLite build-history database (empty for
	// in-memory).
	StatePath string
	// Workers bounds the concurrent metadata shard parses.
	Workers int
	// Sink contains the output database configuration. Defaults to a SQLite
	// file named <Name>.db.
	Sink *sink.Config
	// Artifacts overrides the filesystem artifact store.
	Artifacts artifact.Store
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a new engine with a lazy output connection.
// The output writer is only connected when Build() is called.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if cfg.MetaDir == "" {
		return nil, fmt.Errorf("metadata directory is required")
	}

	logger.Debug("initializing engine", "database", cfg.Name, "meta_dir", cfg.MetaDir)

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	artifacts := cfg.Artifacts
	if artifacts == nil {
		dir := cfg.ArtifactsDir
		if dir == "" {
			dir = cfg.Name
		}
		artifacts = artifact.NewFSStore(dir, logger)
	}

	sinkCfg := sink.Config{Kind: sink.KindSQLite}
	if cfg.Sink != nil {
		sinkCfg = *cfg.Sink
	}
	if sinkCfg.Kind == "" {
		sinkCfg.Kind = sink.KindSQLite
	}
	if sinkCfg.Path == "" && sinkCfg.DSN == "" {
		sinkCfg.Path = cfg.Name + ".db"
	}

	return &Engine{
		writer:    nil, // Lazy
		sinkCfg:   sinkCfg,
		connected: false,
		logger:    logger,
		store:     store,
		artifacts: artifacts,
		name:      cfg.Name,
		metaDir:   cfg.MetaDir,
		workers:   cfg.Workers,
	}, nil
}

// ensureSinkConnected lazily connects the output writer.
func (e *Engine) ensureSinkConnected(ctx context.Context) error {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()

	if e.connected {
		return nil
	}

	e.logger.Debug("connecting output writer", "kind", e.sinkCfg.Kind)

	w, err := sink.NewWriter(e.sinkCfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create output writer: %w", err)
	}
	if err := w.Connect(ctx, e.sinkCfg); err != nil {
		return fmt.Errorf("failed to connect output writer: %w", err)
	}

	e.writer = w
	e.connected = true

	return nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.writer != nil {
		if err := e.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// GetStateStore returns the build-history store.
func (e *Engine) GetStateStore() state.Store {
	return e.store
}
