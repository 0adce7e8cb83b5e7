package sink

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Writer)
)

// Register adds a writer factory to the registry.
// Called by writer implementations in their init() functions.
func Register(kind string, factory func(*slog.Logger) Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Get retrieves a writer factory by kind.
func Get(kind string) (func(*slog.Logger) Writer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// NewWriter creates a new writer instance based on the config kind.
// The logger parameter is passed to the writer constructor (nil uses discard logger).
func NewWriter(cfg Config, logger *slog.Logger) (Writer, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("target kind not specified")
	}

	factory, ok := Get(cfg.Kind)
	if !ok {
		return nil, &UnknownTargetError{
			Kind:      cfg.Kind,
			Available: ListWriters(),
		}
	}
	return factory(logger), nil
}

// ListWriters returns all registered writer kinds (sorted).
func ListWriters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// IsRegistered checks if a writer kind is registered.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// UnknownTargetError is returned when an unknown target kind is requested.
type UnknownTargetError struct {
	Kind      string
	Available []string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target kind %q\nAvailable targets: %v\nHint: Check your target.kind in stepdb.yaml", e.Kind, e.Available)
}
