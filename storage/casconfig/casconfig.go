package casconfig

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"xdao.co/szdt/storage"
	"xdao.co/szdt/storage/casregistry"
)

// Config describes how to open one or more CAS backends via casregistry.
//
// Callers still need to link desired backend plugins via blank imports.
//
// WritePolicy values:
//   - "first" (default): write only to the first backend; reads fall back in order
//   - "all": write to all backends and require CID equality (see storage.ReplicatingCAS)
//
// Example:
//
//	write_policy: all
//	backends:
//	  - name: localfs
//	    config:
//	      localfs-dir: /var/lib/szdt/cas
//	  - name: grpc
//	    id: mirror
//	    config:
//	      grpc-target: cas.internal:7070
//
// Config values are backend-specific and mirror the backend's flag names.
type Config struct {
	WritePolicy string          `yaml:"write_policy,omitempty"`
	Backends    []BackendConfig `yaml:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend name to open (e.g. "grpc", "localfs").
	Name string `yaml:"name"`
	// ID is an optional stable alias used for identification and per-backend CID maps.
	// If empty, Name is used.
	ID     string            `yaml:"id,omitempty"`
	Config map[string]string `yaml:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens a CAS per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes when WritePolicy=="first").
func (c Config) Open(usage casregistry.Usage, preferredBackend string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered, err := c.ordered(preferredBackend)
	if err != nil {
		return nil, nil, err
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	var closers []func() error
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("casconfig: backend %q: %w", b.id(), err)
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}

	if c.WritePolicy == "all" {
		return storage.ReplicatingCAS{Backends: named}, closeAll, nil
	}
	adapters := make([]storage.CAS, 0, len(named))
	for _, n := range named {
		adapters = append(adapters, n.CAS)
	}
	return storage.MultiCAS{Adapters: adapters}, closeAll, nil
}

func (c Config) ordered(preferred string) ([]BackendConfig, error) {
	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferred == "" {
		return ordered, nil
	}
	for i := range ordered {
		if ordered[i].Name == preferred || ordered[i].ID == preferred {
			b := ordered[i]
			copy(ordered[1:i+1], ordered[0:i])
			ordered[0] = b
			return ordered, nil
		}
	}
	return nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
}
