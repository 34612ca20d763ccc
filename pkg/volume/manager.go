package volume

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	// BackendLoopback is the name of the loopback reference backend
	BackendLoopback = "loopback"
)

var _ BlockDeviceAPI = (*LoopbackAPI)(nil)

// BackendConfig selects and configures a storage backend
type BackendConfig struct {
	Name    string            `yaml:"name"`
	Root    string            `yaml:"root"`
	Options map[string]string `yaml:"options,omitempty"`
}

// Factory opens a backend from its configuration
type Factory func(cfg BackendConfig) (BlockDeviceAPI, error)

// Manager is the registry of storage backends available to the agent
type Manager struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewManager creates a backend registry with the loopback backend registered
func NewManager() *Manager {
	m := &Manager{
		factories: make(map[string]Factory),
	}
	m.Register(BackendLoopback, openLoopback)
	return m
}

func openLoopback(cfg BackendConfig) (BlockDeviceAPI, error) {
	var opts []LoopbackOption
	if path := cfg.Options["losetup"]; path != "" {
		opts = append(opts, WithLoopDevices(&Losetup{Path: path}))
	}
	return NewLoopbackAPI(cfg.Root, opts...)
}

// Register adds or replaces the factory for a backend name
func (m *Manager) Register(name string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
}

// Backends returns the registered backend names in sorted order
func (m *Manager) Backends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns the backend selected by cfg
func (m *Manager) Open(cfg BackendConfig) (BlockDeviceAPI, error) {
	name := cfg.Name
	if name == "" {
		name = BackendLoopback
	}

	m.mu.RLock()
	factory, ok := m.factories[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown volume backend %q (available: %s)", name, strings.Join(m.Backends(), ", "))
	}

	api, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", name, err)
	}
	return api, nil
}
