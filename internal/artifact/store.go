// Package artifact reads externally computed step outputs.
//
// Artifacts are keyed by a step's return identifier. A missing artifact is
// normal (the upstream runner may not have produced one); an artifact that
// exists but cannot be parsed is corrupt input and fails the build.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/steplab/stepdb/pkg/core"
)

// Store is the read-only artifact collaborator consulted during enrichment.
type Store interface {
	// Exists reports whether an artifact is present for the return id.
	Exists(id string) bool
	// Fetch reads the artifact's named values. Every value is a flat
	// vector; scalars arrive as one-element vectors.
	Fetch(id string) (map[string][]any, error)
}

// FSStore reads YAML artifacts from a directory, one <id>.yaml file per
// return identifier. JSON artifacts parse too, YAML being a superset.
type FSStore struct {
	dir    string
	logger *slog.Logger
}

// NewFSStore creates a filesystem store rooted at dir.
// If logger is nil, a discard logger is used.
func NewFSStore(dir string, logger *slog.Logger) *FSStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FSStore{dir: dir, logger: logger}
}

// Path returns the file an artifact id maps to.
func (s *FSStore) Path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// Exists reports whether the artifact file is present.
func (s *FSStore) Exists(id string) bool {
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// Fetch reads and normalizes the artifact. Values that are not flat vectors
// (nested mappings or sequences of containers) are skipped, mirroring the
// typed loading of the upstream runner's output files.
func (s *FSStore) Fetch(id string) (map[string][]any, error) {
	path := s.Path(id)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ArtifactReadError{Path: path, Err: err}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &core.ArtifactReadError{Path: path, Err: fmt.Errorf("parse yaml: %w", err)}
	}

	values := make(map[string][]any, len(doc))
	for name, v := range doc {
		vec, ok := normalize(v)
		if !ok {
			s.logger.Debug("skipping non-vector artifact value",
				slog.String("artifact", id), slog.String("name", name))
			continue
		}
		values[name] = vec
	}
	return values, nil
}

// normalize flattens a decoded YAML value into a vector. Scalars wrap into
// one-element vectors; sequences pass through when every element is scalar.
func normalize(v any) ([]any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case []any:
		for _, item := range x {
			switch item.(type) {
			case map[string]any, []any, nil:
				return nil, false
			}
		}
		return x, true
	case map[string]any:
		return nil, false
	default:
		return []any{x}, true
	}
}
