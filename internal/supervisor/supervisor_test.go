package supervisor_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/supervisor"
)

func newHarness(t *testing.T) (*supervisor.Supervisor, *supervisor.StoreDouble, *supervisor.BackendDouble) {
	t.Helper()
	store := supervisor.NewStoreDouble()
	store.Runtimes[supervisor.DefaultRuntimeID] = model.Runtime{ID: supervisor.DefaultRuntimeID, Type: model.RuntimeLocalMux}
	be := supervisor.NewBackendDouble()
	sup := supervisor.New(store, eventbus.New(), supervisor.RegistryDouble{Backend: be},
		map[string]config.ProviderConfig{"": {ConfirmPrompts: []string{"Continue? [y/n]"}}},
		20*time.Millisecond, time.Hour, slog.Default())
	return sup, store, be
}

func TestSpawnTransitionsToWorking(t *testing.T) {
	sup, store, _ := newHarness(t)
	task := model.Task{ID: "t1", Title: "demo", Column: model.ColumnDoing, Overrides: model.Toggles{AutoClose: model.BoolPtr(true)}}
	store.Tasks["t1"] = task

	agent, err := sup.Spawn(context.Background(), task, model.Lane{})
	require.NoError(t, err)
	assert.Equal(t, model.AgentWorking, agent.State)
}

func TestCoreLoopDetectsCompletionAndAutoCloses(t *testing.T) {
	sup, store, be := newHarness(t)
	task := model.Task{ID: "t2", Title: "demo", Column: model.ColumnDoing, Overrides: model.Toggles{AutoClose: model.BoolPtr(true)}}
	store.Tasks["t2"] = task

	_, err := sup.Spawn(context.Background(), task, model.Lane{})
	require.NoError(t, err)

	mux := be.Mux(model.Handle{Session: "gt-t2"}).(*supervisor.FakeMux)
	mux.SetScreen("working...\n<promise>Done</promise>\n")

	require.Eventually(t, func() bool {
		got, err := store.GetTask(context.Background(), "t2")
		return err == nil && got.Column == model.ColumnDone
	}, time.Second, 10*time.Millisecond)
}

func TestCoreLoopParsesProgressMarker(t *testing.T) {
	sup, store, be := newHarness(t)
	task := model.Task{ID: "t3", Title: "demo", Column: model.ColumnDoing}
	store.Tasks["t3"] = task

	_, err := sup.Spawn(context.Background(), task, model.Lane{})
	require.NoError(t, err)

	mux := be.Mux(model.Handle{Session: "gt-t3"}).(*supervisor.FakeMux)
	mux.SetScreen(`<task-progress>{"phase":"implement","status":"ok"}</task-progress>`)

	require.Eventually(t, func() bool {
		got, err := store.GetTask(context.Background(), "t3")
		return err == nil && got.Output != ""
	}, time.Second, 10*time.Millisecond)
}

func TestCoreLoopAutoRespondsToConfirmPrompt(t *testing.T) {
	sup, store, be := newHarness(t)
	task := model.Task{ID: "t4", Title: "demo", Column: model.ColumnDoing, Overrides: model.Toggles{AutoPilot: model.BoolPtr(true)}}
	store.Tasks["t4"] = task

	_, err := sup.Spawn(context.Background(), task, model.Lane{})
	require.NoError(t, err)

	mux := be.Mux(model.Handle{Session: "gt-t4"}).(*supervisor.FakeMux)
	mux.SetScreen("About to delete files. Continue? [y/n]")

	require.Eventually(t, func() bool {
		mux.SetScreen("About to delete files. Continue? [y/n]")
		return len(mux.Keys) > 1 // launch prompt paste, plus the "y" response
	}, time.Second, 10*time.Millisecond)
}

func TestStopTerminatesLoopAndDemotesTask(t *testing.T) {
	sup, store, _ := newHarness(t)
	task := model.Task{ID: "t5", Title: "demo", Column: model.ColumnDoing}
	store.Tasks["t5"] = task

	_, err := sup.Spawn(context.Background(), task, model.Lane{})
	require.NoError(t, err)

	sup.Stop("t5")

	require.Eventually(t, func() bool {
		got, err := store.GetTask(context.Background(), "t5")
		return err == nil && got.Column == model.ColumnTodo
	}, time.Second, 10*time.Millisecond)
}
