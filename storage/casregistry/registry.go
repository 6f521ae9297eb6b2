// Package casregistry links CAS backends into binaries at build time.
//
// A backend package registers itself from init; a binary picks the
// backends it supports by importing them for side effects and then opens
// one by name, either from command-line flags or from a settings map.
package casregistry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/szdt/storage"
)

var (
	ErrUnknownBackend = errors.New("casregistry: unknown backend")
	ErrUnsupported    = errors.New("casregistry: backend not supported in this binary")
)

// Backend describes one registered CAS implementation.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// RegisterFlags adds backend-specific flags to fs. It may be called for
	// several flag sets; each call rebinds the backend's flag values.
	RegisterFlags func(fs *pflag.FlagSet)

	// Open builds the CAS from the values parsed into RegisterFlags' flags.
	// The close function may be nil.
	Open func() (storage.CAS, func() error, error)

	// OpenConfig builds the CAS from settings keyed by the backend's flag
	// names.
	OpenConfig func(cfg map[string]string) (storage.CAS, func() error, error)
}

func (b Backend) check() error {
	switch {
	case b.Name == "":
		return fmt.Errorf("casregistry: backend name is required")
	case b.RegisterFlags == nil:
		return fmt.Errorf("casregistry: backend %q missing RegisterFlags", b.Name)
	case b.Open == nil:
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	case b.OpenConfig == nil:
		return fmt.Errorf("casregistry: backend %q missing OpenConfig", b.Name)
	case b.Usage == 0:
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}
	return nil
}

// Registry is a set of backends keyed by name. The zero value is empty and
// ready to use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// Default holds the backends registered from init functions.
var Default = &Registry{}

func (r *Registry) Register(b Backend) error {
	if err := b.check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	if r.backends == nil {
		r.backends = make(map[string]Backend)
	}
	r.backends[b.Name] = b
	return nil
}

// List returns the backends allowed for usage, sorted by name.
func (r *Registry) List(usage Usage) []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) lookup(name string, usage Usage) (Backend, error) {
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("%w %q", ErrUnknownBackend, name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
	return b, nil
}

// Open opens the named backend from its parsed flags.
func (r *Registry) Open(name string, usage Usage) (storage.CAS, func() error, error) {
	b, err := r.lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	return b.Open()
}

// OpenWithConfig opens the named backend from explicit settings.
func (r *Registry) OpenWithConfig(name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	b, err := r.lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	return b.OpenConfig(cfg)
}

// RegisterFlags adds the flags of every backend allowed for usage, so one
// parse accepts the options of all linked backends.
func (r *Registry) RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range r.List(usage) {
		b.RegisterFlags(fs)
	}
}

// Register adds b to Default.
func Register(b Backend) error { return Default.Register(b) }

// MustRegister is Register that panics, for use from init.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

func List(usage Usage) []Backend { return Default.List(usage) }

// Names returns the sorted names of Default's backends allowed for usage.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

func RegisterFlags(fs *pflag.FlagSet, usage Usage) { Default.RegisterFlags(fs, usage) }

func Open(name string, usage Usage) (storage.CAS, func() error, error) {
	return Default.Open(name, usage)
}

func OpenWithConfig(name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	return Default.OpenWithConfig(name, usage, cfg)
}
