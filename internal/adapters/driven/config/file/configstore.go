// Package file provides TOML-backed configuration with optional change
// watching, so a long-lived client process can pick up edits without a
// restart.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/sams-labs/synckit/internal/core/domain"
)

// Settings is the on-disk configuration shape: client-level settings
// plus the engine tuning block.
type Settings struct {
	// ServerURL is the base URL of the remote API.
	ServerURL string `toml:"server_url"`

	// DataDir overrides the default data directory (~/.synckit/data).
	DataDir string `toml:"data_dir"`

	// HealthPath is the endpoint the connectivity prober polls,
	// relative to ServerURL.
	HealthPath string `toml:"health_path"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose"`

	// Engine holds sync engine tuning.
	Engine domain.Config `toml:"engine"`
}

// DefaultSettings returns settings with engine defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		HealthPath: "/api/v1/health",
		Engine:     domain.DefaultConfig(),
	}
}

// Store reads and writes the TOML configuration file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a config store at path. If path is empty, defaults
// to ~/.synckit/config.toml.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".synckit", "config.toml")
	}
	return &Store{path: path}, nil
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the configuration. A missing file yields defaults; a
// present file is merged over defaults and normalised.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Settings, error) {
	cfg := DefaultSettings()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Engine.Normalise()
	return cfg, nil
}

// Save writes the configuration atomically via a temp file rename.
func (s *Store) Save(cfg Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}
