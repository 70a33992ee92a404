package casregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/postledger/storage"
)

// Backend is a build-time plugin that can open a storage.CAS implementation.
//
// Backends typically register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Keys lists the configuration keys the backend accepts. The same keys are
	// exposed as command-line flags by RegisterFlags, so key names should be
	// prefixed with the backend name (e.g. "localfs-dir").
	Keys []Key

	// Open constructs the CAS from a config map holding every key in Keys
	// (defaults already applied). It returns an optional close function.
	Open func(cfg map[string]string) (storage.CAS, func() error, error)
}

// Key describes one backend configuration key.
type Key struct {
	Name    string
	Default string
	Help    string
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}
	for _, k := range b.Keys {
		if k.Name == "" {
			return fmt.Errorf("casregistry: backend %q has an unnamed key", b.Name)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags registers one string flag per backend key for all backends
// matching usage. Keys shared between backends are registered once.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		for _, k := range b.Keys {
			if fs.Lookup(k.Name) != nil {
				continue
			}
			fs.String(k.Name, k.Default, fmt.Sprintf("%s (for --backend=%s)", k.Help, b.Name))
		}
	}
}

// Open opens the named backend using values parsed into flags registered by
// RegisterFlags.
func Open(name string, usage Usage, fs *pflag.FlagSet) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := flagConfig(b, fs)
	if err != nil {
		return nil, nil, err
	}
	return b.Open(cfg)
}

// FlagConfig returns the named backend's config map as parsed into fs, in
// the shape OpenWithConfig and casconfig.BackendConfig expect.
func FlagConfig(name string, usage Usage, fs *pflag.FlagSet) (map[string]string, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, err
	}
	return flagConfig(b, fs)
}

func flagConfig(b Backend, fs *pflag.FlagSet) (map[string]string, error) {
	cfg := make(map[string]string, len(b.Keys))
	for _, k := range b.Keys {
		v, err := fs.GetString(k.Name)
		if err != nil {
			return nil, fmt.Errorf("casregistry: flag %q: %w", k.Name, err)
		}
		cfg[k.Name] = v
	}
	return cfg, nil
}

// OpenWithConfig opens the named backend from an explicit config map.
// Unknown keys are rejected; missing keys take their defaults.
func OpenWithConfig(name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]Key, len(b.Keys))
	for _, k := range b.Keys {
		known[k.Name] = k
	}
	for k := range cfg {
		if _, ok := known[k]; !ok {
			return nil, nil, fmt.Errorf("casregistry: backend %q does not accept key %q", name, k)
		}
	}
	full := make(map[string]string, len(b.Keys))
	for _, k := range b.Keys {
		full[k.Name] = k.Default
		if v, ok := cfg[k.Name]; ok {
			full[k.Name] = v
		}
	}
	return b.Open(full)
}

func lookup(name string, usage Usage) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b, nil
}
