package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/config"
)

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.BatchSize)
	assert.Equal(t, 30, cfg.LockTimeoutSec)
	assert.Empty(t, cfg.DatabaseURI)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestLoadMergesTOMLFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idxctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database-uri = "sqlite:/var/idxctl/catalog.db"
batch-size = 1000
quiet = true
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:/var/idxctl/catalog.db", cfg.DatabaseURI)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.True(t, cfg.Quiet)
	// Untouched by the file, lock-timeout-seconds keeps its default.
	assert.Equal(t, 30, cfg.LockTimeoutSec)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("IDXCTL_BATCH_SIZE", "2048")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.BatchSize)
}
