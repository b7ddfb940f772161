package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
)

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[daemon]
http_addr = "127.0.0.1:9000"

[[runtimes]]
id = "rt-local"
type = "local-mux"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Daemon.HTTPAddr)
	assert.Equal(t, config.Default().Daemon.CaptureTickMS, cfg.Daemon.CaptureTickMS)
	assert.Equal(t, 50, cfg.Daemon.LogMaxSizeMB)
	require.Len(t, cfg.Runtimes, 1)
	assert.Equal(t, "local-mux", cfg.Runtimes[0].Type)
}

func TestLoadExpandsHomeInPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[daemon]
data_dir = "$HOME/agents-data"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "agents-data"), cfg.Daemon.DataDir)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
