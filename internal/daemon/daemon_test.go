package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/store"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/supervisor"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "daemon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSeedRuntimesRegistersDefaultAndConfigured(t *testing.T) {
	st := openTestStore(t)
	cfg := config.Config{Runtimes: []config.RuntimeConfig{
		{ID: "rt-remote", Type: "remote-shell", Host: "build-box"},
	}}

	require.NoError(t, seedRuntimes(context.Background(), st, cfg))

	def, err := st.GetRuntime(context.Background(), supervisor.DefaultRuntimeID)
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeLocalMux, def.Type)

	rt, err := st.GetRuntime(context.Background(), "rt-remote")
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeRemoteShell, rt.Type)
	assert.Equal(t, "build-box", rt.Host)
}

func TestSeedRuntimesIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	cfg := config.Config{Runtimes: []config.RuntimeConfig{{ID: "rt-1", Type: "local-mux"}}}

	require.NoError(t, seedRuntimes(context.Background(), st, cfg))
	require.NoError(t, seedRuntimes(context.Background(), st, cfg))

	runtimes, err := st.ListRuntimes(context.Background())
	require.NoError(t, err)
	count := 0
	for _, rt := range runtimes {
		if rt.ID == "rt-1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRegisterFactoriesCoversEveryRuntimeType(t *testing.T) {
	registry := backend.NewRegistry()
	registerFactories(registry, map[string]config.RuntimeConfig{
		"rt-remote": {Host: "build-box", Port: 2222, User: "ci"},
	})

	localBackend, err := registry.Ensure(model.Runtime{ID: "rt-local", Type: model.RuntimeLocalMux})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeLocalMux, localBackend.Type())

	remoteBackend, err := registry.Ensure(model.Runtime{ID: "rt-remote", Type: model.RuntimeRemoteShell, Host: "build-box"})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeRemoteShell, remoteBackend.Type())

	podBackend, err := registry.Ensure(model.Runtime{ID: "rt-pod", Type: model.RuntimePod, Namespace: "agents"})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimePod, podBackend.Type())

	containerBackend, err := registry.Ensure(model.Runtime{ID: "rt-container", Type: model.RuntimeContainer, Image: "agents/claude:latest"})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeContainer, containerBackend.Type())
}
