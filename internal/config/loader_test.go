package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Retrieval.Limit)
	assert.InDelta(t, 0.05, cfg.Retrieval.VoteDelta, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.Timeout)
	assert.NotEmpty(t, cfg.Storage.Path)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: console
retrieval:
  limit: 25
  vote_delta: 0.1
  timeout: 2s
storage:
  path: /tmp/playbookd-test.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 25, cfg.Retrieval.Limit)
	assert.InDelta(t, 0.1, cfg.Retrieval.VoteDelta, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.Timeout)
	assert.Equal(t, "/tmp/playbookd-test.db", cfg.Storage.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  limit: 25\n"), 0o600))

	t.Setenv("PLAYBOOKD_RETRIEVAL_LIMIT", "7")
	t.Setenv("PLAYBOOKD_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.Limit)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Retrieval.Limit)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("PLAYBOOKD_RETRIEVAL_VOTE_DELTA", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "shout"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Retrieval.Limit = -1
	assert.Error(t, cfg.Validate())
}
