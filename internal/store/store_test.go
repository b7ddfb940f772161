package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/store"
)

func open(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "daemon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRuntimeRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	rt := model.Runtime{ID: "rt-1", Type: model.RuntimeLocalMux, Reachable: true, CreatedAt: model.NowMillis()}
	require.NoError(t, s.PutRuntime(ctx, rt))

	got, err := s.GetRuntime(ctx, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, rt.Type, got.Type)
	assert.True(t, got.Reachable)

	require.NoError(t, s.SetRuntimeReachable(ctx, "rt-1", false))
	got, err = s.GetRuntime(ctx, "rt-1")
	require.NoError(t, err)
	assert.False(t, got.Reachable)

	require.NoError(t, s.DeleteRuntime(ctx, "rt-1"))
	_, err = s.GetRuntime(ctx, "rt-1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestLaneRoundTripPreservesToggles(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	lane := model.Lane{
		ID:             "lane-1",
		Name:           "backend",
		WipLimit:       3,
		DefaultToggles: model.Toggles{AutoStart: model.BoolPtr(true)},
		CreatedAt:      model.NowMillis(),
	}
	require.NoError(t, s.PutLane(ctx, lane))

	got, err := s.GetLaneByName(ctx, "backend")
	require.NoError(t, err)
	require.NotNil(t, got.DefaultToggles.AutoStart)
	assert.True(t, *got.DefaultToggles.AutoStart)
	assert.Nil(t, got.DefaultToggles.AutoPilot)
}

func TestTaskRoundTripAndResolution(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	task := model.Task{
		ID:        "aaaaaaaa-0000-0000-0000-000000000001",
		Title:     "write docs",
		Column:    model.ColumnTodo,
		Priority:  model.PriorityMedium,
		DependsOn: []string{"dep-1"},
		Tags:      []string{"docs"},
		CreatedAt: model.NowMillis(),
	}
	require.NoError(t, s.PutTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dep-1"}, got.DependsOn)
	assert.Equal(t, []string{"docs"}, got.Tags)
	assert.Equal(t, model.UnassignedLaneID, got.EffectiveLaneID())

	resolved, err := s.ResolveTaskID(ctx, "aaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, task.ID, resolved)

	_, err = s.ResolveTaskID(ctx, "zzzz")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestAgentCheckpointRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	agent := model.Agent{
		ID:             "task-1",
		RuntimeID:      "rt-1",
		Handle:         model.Handle{Kind: model.RuntimeLocalMux, Session: "gt-task-1"},
		State:          model.AgentWorking,
		LastActivityAt: model.NowMillis(),
		LastProgress:   &model.Progress{Phase: "implement", Status: "ok"},
	}
	require.NoError(t, s.PutAgentCheckpoint(ctx, agent))

	got, err := s.GetAgentCheckpoint(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, agent.Handle.Session, got.Handle.Session)
	require.NotNil(t, got.LastProgress)
	assert.Equal(t, "implement", got.LastProgress.Phase)

	require.NoError(t, s.DeleteAgentCheckpoint(ctx, "task-1"))
	_, err = s.GetAgentCheckpoint(ctx, "task-1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestPipelineDefinitionAndRunRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	def := model.PipelineDefinition{
		ID:   "pipe-1",
		Name: "ship-feature",
		Stages: []model.Stage{
			{Name: "implement", Type: model.StageSequential},
			{Name: "review", Type: model.StageSequential, Dependencies: []string{"implement"}},
		},
	}
	require.NoError(t, s.PutPipelineDefinition(ctx, def))

	gotDef, err := s.GetPipelineDefinition(ctx, "pipe-1")
	require.NoError(t, err)
	require.Len(t, gotDef.Stages, 2)
	assert.Equal(t, "review", gotDef.Stages[1].Name)

	run := model.PipelineRun{
		ID:         "run-1",
		PipelineID: def.ID,
		Status:     model.RunRunning,
		StageStates: map[string]model.StageState{
			"implement": {Status: model.StageRunning},
		},
		StartedAt: model.NowMillis(),
	}
	require.NoError(t, s.PutPipelineRun(ctx, run))

	active, err := s.ListActivePipelineRuns(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.StageRunning, active[0].StageStates["implement"].Status)
}

func TestTeamRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	team := model.Team{ID: "team-1", Name: "platform", LaneIDs: []string{"lane-1", "lane-2"}, CreatedAt: model.NowMillis()}
	require.NoError(t, s.PutTeam(ctx, team))

	got, err := s.GetTeam(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, "platform", got.Name)
	assert.Equal(t, []string{"lane-1", "lane-2"}, got.LaneIDs)

	all, err := s.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteTeam(ctx, "team-1"))
	_, err = s.GetTeam(ctx, "team-1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
