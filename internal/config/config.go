// Package config resolves fsremap's persistent defaults from
// ~/.fstransform/config.toml, following the same override precedence the
// rest of the CLI uses: explicit flag > environment variable > config file >
// built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the schema of config.toml.
type Config struct {
	MemBufferBytes uint64 `toml:"mem_buffer_bytes,omitempty"`
	IOBackend      string `toml:"io_backend,omitempty"`
	ClearFreeSpace string `toml:"clear_free_space,omitempty"`
	JobDir         string `toml:"job_dir,omitempty"`
}

// homeOverride is set by --job-dir / FSREMAP_HOME, mirroring the teacher's
// SetConfigDir/DHGHome pair.
var homeOverride string

// SetHome overrides the fsremap home directory for the remainder of the process.
func SetHome(dir string) { homeOverride = dir }

// Home returns the fsremap home directory: --job-dir flag > FSREMAP_HOME env
// > ~/.fstransform.
func Home() string {
	if homeOverride != "" {
		return homeOverride
	}
	if v := os.Getenv("FSREMAP_HOME"); v != "" {
		return v
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".fstransform")
	}
	return filepath.Join(dir, ".fstransform")
}

// Path returns the full path to config.toml.
func Path() string { return filepath.Join(Home(), "config.toml") }

// EnsureHome creates the fsremap home directory if missing.
func EnsureHome() error { return os.MkdirAll(Home(), 0o755) }

// Load reads config.toml, returning a zero-value Config if it does not exist.
func Load() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureHome(); err != nil {
		return fmt.Errorf("creating fsremap home: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config.toml: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}
