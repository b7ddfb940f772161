package scheduler_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/scheduler"
)

func newHarness() (*scheduler.Scheduler, *scheduler.StoreDouble, *scheduler.SupervisorDouble) {
	store := scheduler.NewStoreDouble()
	sup := scheduler.NewSupervisorDouble()
	s := scheduler.New(store, sup, eventbus.New(), slog.Default())
	return s, store, sup
}

func TestDispatchRespectsWipLimit(t *testing.T) {
	s, store, sup := newHarness()
	store.Lanes["L1"] = model.Lane{ID: "L1", Name: "dev", WipLimit: 1}
	laneID := "L1"
	for i, id := range []string{"t1", "t2"} {
		store.Tasks[id] = model.Task{
			ID: id, Column: model.ColumnTodo, LaneID: &laneID,
			Priority:  model.PriorityMedium,
			Overrides: model.Toggles{AutoStart: model.BoolPtr(true)},
			CreatedAt: model.Millis(int64(i)),
		}
	}

	report, err := s.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Dispatched, 1)
	assert.Equal(t, []string{"t1"}, sup.Spawned)
}

func TestDispatchSkipsTasksWithUnmetDependencies(t *testing.T) {
	s, store, sup := newHarness()
	store.Tasks["t1"] = model.Task{
		ID: "t1", Column: model.ColumnTodo, DependsOn: []string{"t0"},
		Overrides: model.Toggles{AutoStart: model.BoolPtr(true)},
	}

	_, err := s.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sup.Spawned)
}

func TestDispatchSkipsAutoStartFalse(t *testing.T) {
	s, store, sup := newHarness()
	store.Tasks["t1"] = model.Task{ID: "t1", Column: model.ColumnTodo}

	_, err := s.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sup.Spawned)
}

func TestMoveRejectsInvalidTransition(t *testing.T) {
	s, store, _ := newHarness()
	store.Tasks["t1"] = model.Task{ID: "t1", Column: model.ColumnBacklog}

	_, err := s.Move(context.Background(), "t1", model.ColumnDoing, false)
	assert.Error(t, err)
}

func TestMoveDoingToTodoStopsSupervisor(t *testing.T) {
	s, store, sup := newHarness()
	store.Tasks["t1"] = model.Task{ID: "t1", Column: model.ColumnDoing}

	_, err := s.Move(context.Background(), "t1", model.ColumnTodo, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, sup.Stopped)
}

func TestMoveTodoToDoneRequiresCancelled(t *testing.T) {
	s, store, _ := newHarness()
	store.Tasks["t1"] = model.Task{ID: "t1", Column: model.ColumnTodo}

	_, err := s.Move(context.Background(), "t1", model.ColumnDone, false)
	assert.Error(t, err)

	got, err := s.Move(context.Background(), "t1", model.ColumnDone, true)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
}

func TestStartTaskDispatchesExplicitly(t *testing.T) {
	s, store, sup := newHarness()
	store.Tasks["t1"] = model.Task{ID: "t1", Column: model.ColumnTodo}

	_, err := s.StartTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, sup.Spawned)
}
