package dmthedev

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// StoreFactory opens a Store backend. Backends register one from init.
type StoreFactory func(config StoreConfig) (Store, error)

// StoreConfig selects a backend and tells it where its data lives.
type StoreConfig struct {
	// Type names a registered backend: "sqlite" or "maildir" in this module.
	// Matching ignores case and surrounding space.
	Type string

	// BasePath is the database file for sqlite and the root directory for maildir.
	BasePath string

	// Options holds backend-specific settings, such as maildir_subdir.
	Options map[string]string

	// Logger receives backend diagnostics, tagged with the backend name.
	// nil discards them.
	Logger *zap.Logger
}

// Option returns the named backend option, or def when it is unset.
func (c StoreConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

var backends = struct {
	sync.RWMutex
	factories map[string]StoreFactory
}{factories: make(map[string]StoreFactory)}

func backendName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register makes a backend available to Open under name. It is meant to be
// called from a backend package's init and panics on an empty name, a nil
// factory or a name that is already taken.
func Register(name string, factory StoreFactory) {
	key := backendName(name)
	switch {
	case key == "":
		panic("dmthedev: Register called with empty name")
	case factory == nil:
		panic("dmthedev: Register called with nil factory for " + key)
	}

	backends.Lock()
	defer backends.Unlock()
	if _, dup := backends.factories[key]; dup {
		panic("dmthedev: Register called twice for " + key)
	}
	backends.factories[key] = factory
}

// Open opens the backend named by config.Type. The returned Store owns its
// resources until Close. Errors from the backend itself are returned as is.
func Open(config StoreConfig) (Store, error) {
	key := backendName(config.Type)

	backends.RLock()
	factory, ok := backends.factories[key]
	backends.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)",
			errors.ErrStoreNotRegistered, config.Type, strings.Join(RegisteredTypes(), ", "))
	}

	config.Type = key
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	config.Logger = config.Logger.With(zap.String("store", key))
	return factory(config)
}

// RegisteredTypes lists the backend names Open accepts, sorted.
func RegisteredTypes() []string {
	backends.RLock()
	defer backends.RUnlock()

	names := make([]string, 0, len(backends.factories))
	for name := range backends.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
