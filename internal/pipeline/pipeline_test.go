package pipeline_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/pipeline"
)

func newHarness(t *testing.T, def model.PipelineDefinition) (*pipeline.Engine, *pipeline.StoreDouble) {
	t.Helper()
	store := pipeline.NewStoreDouble()
	store.Defs[def.ID] = def
	eng, err := pipeline.New(store, eventbus.New(), slog.Default())
	require.NoError(t, err)
	return eng, store
}

func TestRunActivatesRootStage(t *testing.T) {
	def := model.PipelineDefinition{
		ID:   "p1",
		Name: "simple",
		Stages: []model.Stage{
			{Name: "analyze", Type: model.StageSequential, Role: "analyst", Prompt: "analyze it"},
		},
	}
	eng, store := newHarness(t, def)

	run, err := eng.Run(context.Background(), "p1")
	require.NoError(t, err)

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, model.RunRunning, run.Status)
	state := run.StageStates["analyze"]
	assert.Equal(t, model.StageRunning, state.Status)
	require.NotNil(t, state.TaskID)
	assert.Contains(t, store.Tasks, *state.TaskID)
}

func TestSecondStageWaitsOnDependency(t *testing.T) {
	def := model.PipelineDefinition{
		ID:   "p1",
		Name: "chain",
		Stages: []model.Stage{
			{Name: "analyze", Type: model.StageSequential, Role: "analyst", Prompt: "step 1"},
			{Name: "fix", Type: model.StageSequential, Role: "fixer", Prompt: "step 2", Dependencies: []string{"analyze"}},
		},
	}
	eng, store := newHarness(t, def)
	run, err := eng.Run(context.Background(), "p1")
	require.NoError(t, err)

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StagePending, run.StageStates["fix"].Status)

	analyzeTaskID := *run.StageStates["analyze"].TaskID
	store.CompleteTask(analyzeTaskID, false, "found a bug")

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageSucceeded, run.StageStates["analyze"].Status)
	assert.Equal(t, model.StageRunning, run.StageStates["fix"].Status)

	fixTaskID := *run.StageStates["fix"].TaskID
	store.CompleteTask(fixTaskID, false, "fixed")

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.NotNil(t, run.EndedAt)
}

func TestConditionalStageSkippedWhenPredicateFalse(t *testing.T) {
	def := model.PipelineDefinition{
		ID:   "p1",
		Name: "conditional",
		Stages: []model.Stage{
			{Name: "analyze", Type: model.StageSequential, Role: "analyst", Prompt: "check"},
			{
				Name: "fix", Type: model.StageConditional, Role: "fixer", Prompt: "fix it",
				Dependencies: []string{"analyze"}, When: `succeeded["analyze"] && outputs["analyze"].contains("bug")`,
			},
		},
	}
	eng, store := newHarness(t, def)
	run, err := eng.Run(context.Background(), "p1")
	require.NoError(t, err)
	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)

	analyzeTaskID := *run.StageStates["analyze"].TaskID
	store.CompleteTask(analyzeTaskID, false, "all clean, no issues")

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageSkipped, run.StageStates["fix"].Status)
	assert.Equal(t, model.RunCompleted, run.Status)
}

func TestFanOutAllPolicyFailsIfAnySiblingFails(t *testing.T) {
	def := model.PipelineDefinition{
		ID:   "p1",
		Name: "fanout",
		Stages: []model.Stage{
			{Name: "shard", Type: model.StageFanOut, Role: "worker", Prompt: "do a shard", FanOutCount: 2, FanOutPolicy: model.FanOutAll},
		},
	}
	eng, store := newHarness(t, def)
	run, err := eng.Run(context.Background(), "p1")
	require.NoError(t, err)
	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)

	ids := run.StageStates["shard"].TaskIDs
	require.Len(t, ids, 2)
	store.CompleteTask(ids[0], false, "ok")
	store.CompleteTask(ids[1], true, "") // cancelled sibling

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, run.StageStates["shard"].Status)
	assert.Equal(t, model.RunFailed, run.Status)
}

func TestPauseStopsTickFromProgressing(t *testing.T) {
	def := model.PipelineDefinition{
		ID:   "p1",
		Name: "pausable",
		Stages: []model.Stage{
			{Name: "analyze", Type: model.StageSequential, Role: "analyst", Prompt: "analyze"},
		},
	}
	eng, _ := newHarness(t, def)
	run, err := eng.Run(context.Background(), "p1")
	require.NoError(t, err)

	_, err = eng.Pause(context.Background(), run.ID)
	require.NoError(t, err)

	run, err = eng.Tick(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StagePending, run.StageStates["analyze"].Status)
	assert.Equal(t, model.RunPaused, run.Status)
}
