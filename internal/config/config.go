// Package config loads szdt command configuration.
//
// The file is read from, in order: the --config flag, the SZDT_CONFIG
// environment variable, or ~/.config/szdt/config.yaml. Only an explicitly
// named file is required to exist; otherwise defaults apply.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/szdt/archive"
	"xdao.co/szdt/storage/casconfig"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "SZDT_CONFIG"

// Config is the szdt command configuration.
type Config struct {
	// Keys configures the keystore.
	Keys KeysConfig `yaml:"keys"`

	// Verify configures archive verification.
	Verify VerifyConfig `yaml:"verify"`

	// Storage optionally names CAS backends that `szdt import` writes to.
	Storage *casconfig.Config `yaml:"storage,omitempty"`
}

// KeysConfig configures the keystore.
type KeysConfig struct {
	// Dir is the keystore root. Default: <user config dir>/szdt/keys
	Dir string `yaml:"dir"`
}

// VerifyConfig configures archive verification.
type VerifyConfig struct {
	// Skew is the tolerated clock skew for nbf/exp checks.
	// Default: 60s
	Skew string `yaml:"skew"`

	// Mode is "strict" or "permissive".
	// Default: strict
	Mode string `yaml:"mode"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Verify: VerifyConfig{
			Skew: "60s",
			Mode: archive.Strict.String(),
		},
	}
}

// DefaultPath returns ~/.config/szdt/config.yaml (or the platform
// equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "szdt", "config.yaml"), nil
}

// Load resolves the config path and reads it over the defaults.
func Load(explicit string) (*Config, error) {
	path, required := explicit, explicit != ""
	if path == "" {
		if env := os.Getenv(EnvVar); env != "" {
			path, required = env, true
		}
	}
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return Default(), nil
		}
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile reads one YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value syntax.
func (c *Config) Validate() error {
	if _, err := c.SkewDuration(); err != nil {
		return err
	}
	if _, err := c.ReadMode(); err != nil {
		return err
	}
	if c.Storage != nil {
		return c.Storage.Validate()
	}
	return nil
}

// SkewDuration parses Verify.Skew.
func (c *Config) SkewDuration() (time.Duration, error) {
	if c.Verify.Skew == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Verify.Skew)
	if err != nil {
		return 0, fmt.Errorf("verify.skew: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("verify.skew: negative duration %s", d)
	}
	return d, nil
}

// ReadMode parses Verify.Mode.
func (c *Config) ReadMode() (archive.Mode, error) {
	return archive.ParseMode(c.Verify.Mode)
}
