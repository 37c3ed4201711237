// Package config provides configuration loading for playbookd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/logging"
)

// Config is the root playbookd configuration.
type Config struct {
	Logging     logging.Config    `koanf:"logging"`
	Storage     StorageConfig     `koanf:"storage"`
	Vectorstore VectorstoreConfig `koanf:"vectorstore"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// Path is the SQLite database file.
	// Default: ~/.config/playbookd/playbookd.db
	Path string `koanf:"path"`
}

// VectorstoreConfig configures the optional semantic backend.
type VectorstoreConfig struct {
	// Enabled selects whether the semantic-similarity signal is computed
	// during retrieval. When false, retrieval re-normalizes to the
	// category/keyword signals only.
	Enabled bool `koanf:"enabled"`

	// Path is the chromem persistence directory.
	// Default: ~/.config/playbookd/vectorstore
	Path string `koanf:"path"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// CacheDir is the embedding model cache directory.
	CacheDir string `koanf:"cache_dir"`
}

// RetrievalConfig configures the knowledge retrieval engine.
type RetrievalConfig struct {
	// Limit is the default page size for ranked results.
	Limit int `koanf:"limit"`

	// VoteDelta is the confidence adjustment applied per vote.
	VoteDelta float64 `koanf:"vote_delta"`

	// Timeout bounds a single retrieval call. On timeout the engine
	// fails soft and phase advancement proceeds without lessons.
	Timeout time.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns configuration defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: logging.NewDefaultConfig(),
		Storage: StorageConfig{
			Path: "~/.config/playbookd/playbookd.db",
		},
		Vectorstore: VectorstoreConfig{
			Enabled:  false,
			Path:     "~/.config/playbookd/vectorstore",
			Model:    "BAAI/bge-small-en-v1.5",
			CacheDir: "~/.cache/playbookd/models",
		},
		Retrieval: RetrievalConfig{
			Limit:     10,
			VoteDelta: 0.05,
			Timeout:   5 * time.Second,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	if c.Retrieval.Limit <= 0 {
		return fmt.Errorf("retrieval.limit must be positive, got %d", c.Retrieval.Limit)
	}
	if c.Retrieval.VoteDelta <= 0 || c.Retrieval.VoteDelta > 1 {
		return fmt.Errorf("retrieval.vote_delta must be in (0, 1], got %g", c.Retrieval.VoteDelta)
	}
	if c.Retrieval.Timeout <= 0 {
		return fmt.Errorf("retrieval.timeout must be positive")
	}
	if c.Vectorstore.Enabled && c.Vectorstore.Path == "" {
		return fmt.Errorf("vectorstore.path cannot be empty when vectorstore is enabled")
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
