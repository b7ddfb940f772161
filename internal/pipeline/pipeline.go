// Package pipeline implements the DAG pipeline engine (spec.md §4.4):
// activating stages whose dependencies have succeeded, materialising backing
// tasks for them, and aggregating per-stage status into an overall run
// status. Grounded on the teacher's internal/crew rig orchestration in
// spirit (a fixed graph of work driving ephemeral workers) but there is no
// teacher DAG engine proper, so the stage-activation and fan-out mechanics
// here are newly composed from spec.md §4.4 using the same store/eventbus
// plumbing as internal/scheduler.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Engine advances PipelineRuns. Tick is idempotent and safe to call
// repeatedly (on the scheduler's periodic tick and on every task.completed
// event, per spec.md §4.4).
type Engine struct {
	store     Store
	events    *eventbus.Bus
	evaluator *Evaluator
	log       *slog.Logger
}

// New builds an Engine.
func New(store Store, events *eventbus.Bus, log *slog.Logger) (*Engine, error) {
	ev, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{store: store, events: events, evaluator: ev, log: log}, nil
}

// Run creates a PipelineRun for pipelineDefID with every stage state pending
// and publishes pipeline.started.
func (e *Engine) Run(ctx context.Context, pipelineDefID string) (model.PipelineRun, error) {
	def, err := e.store.GetPipelineDefinition(ctx, pipelineDefID)
	if err != nil {
		return model.PipelineRun{}, err
	}
	states := make(map[string]model.StageState, len(def.Stages))
	for _, st := range def.Stages {
		states[st.Name] = model.StageState{Status: model.StagePending}
	}
	run := model.PipelineRun{
		ID:          ids.New(),
		PipelineID:  def.ID,
		Status:      model.RunPending,
		StageStates: states,
		StartedAt:   model.NowMillis(),
	}
	if err := e.store.PutPipelineRun(ctx, run); err != nil {
		return model.PipelineRun{}, err
	}
	e.events.Publish(eventbus.Event{Type: eventbus.EventPipelineStarted, At: model.NowMillis(), Data: run.ID})
	return run, nil
}

// Tick advances one PipelineRun by one step: refreshing in-flight stages'
// status from their backing tasks, then activating every stage whose
// dependencies are now satisfied.
func (e *Engine) Tick(ctx context.Context, runID string) (model.PipelineRun, error) {
	run, err := e.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return model.PipelineRun{}, err
	}
	if run.Status != model.RunPending && run.Status != model.RunRunning {
		return run, nil
	}
	def, err := e.store.GetPipelineDefinition(ctx, run.PipelineID)
	if err != nil {
		return model.PipelineRun{}, err
	}
	stageByName := make(map[string]model.Stage, len(def.Stages))
	for _, st := range def.Stages {
		stageByName[st.Name] = st
	}

	if err := e.refreshRunningStages(ctx, &run, stageByName); err != nil {
		return model.PipelineRun{}, err
	}
	if err := e.activateReadyStages(ctx, &run, def); err != nil {
		return model.PipelineRun{}, err
	}
	e.recomputeStatus(&run, def)

	if err := e.store.PutPipelineRun(ctx, run); err != nil {
		return model.PipelineRun{}, err
	}
	if run.Status == model.RunCompleted || run.Status == model.RunFailed {
		e.events.Publish(eventbus.Event{Type: eventbus.EventPipelineFinished, At: model.NowMillis(), Data: run.ID})
	}
	return run, nil
}

// refreshRunningStages reads each running stage's backing task(s) and
// resolves the stage to succeeded/failed once its task(s) reach a terminal
// column. A task in `done` and not cancelled counts as succeeded; `done` and
// cancelled counts as failed (stage tasks are always spawned with
// autoClose=true, so they resolve straight to done rather than lingering in
// review).
func (e *Engine) refreshRunningStages(ctx context.Context, run *model.PipelineRun, stageByName map[string]model.Stage) error {
	for name, state := range run.StageStates {
		if state.Status != model.StageRunning {
			continue
		}
		st := stageByName[name]

		taskIDs := state.TaskIDs
		if state.TaskID != nil {
			taskIDs = []string{*state.TaskID}
		}
		if len(taskIDs) == 0 {
			continue
		}

		results := make([]bool, 0, len(taskIDs))
		done := 0
		var lastOutput string
		for _, id := range taskIDs {
			t, err := e.store.GetTask(ctx, id)
			if err != nil {
				return err
			}
			if t.Column != model.ColumnDone {
				continue
			}
			done++
			results = append(results, !t.Cancelled)
			lastOutput = t.Output
		}
		if done < len(taskIDs) {
			continue // still in flight
		}

		succeeded := allTrue(results)
		if st.Type == model.StageFanOut && st.FanOutPolicy == model.FanOutAny {
			succeeded = anyTrue(results)
		}

		newState := state
		newState.Output = lastOutput
		if succeeded {
			newState.Status = model.StageSucceeded
			e.events.Publish(eventbus.Event{Type: eventbus.EventPipelineStageDone, At: model.NowMillis(),
				Data: map[string]string{"run": run.ID, "stage": name, "status": "succeeded"}})
		} else {
			newState.Status = model.StageFailed
			e.events.Publish(eventbus.Event{Type: eventbus.EventPipelineStageDone, At: model.NowMillis(),
				Data: map[string]string{"run": run.ID, "stage": name, "status": "failed"}})
		}
		run.StageStates[name] = newState
	}
	return nil
}

// activateReadyStages materialises backing tasks for every pending stage
// whose dependencies have all succeeded.
func (e *Engine) activateReadyStages(ctx context.Context, run *model.PipelineRun, def model.PipelineDefinition) error {
	outputs, succeeded := e.priorResults(run)

	for _, st := range def.Stages {
		state := run.StageStates[st.Name]
		if state.Status != model.StagePending {
			continue
		}
		if !e.dependenciesSucceeded(st, run.StageStates) {
			continue
		}

		if st.Type == model.StageConditional && st.When != "" {
			ok, err := e.evaluator.Eval(st.When, outputs, succeeded)
			if err != nil {
				e.log.Warn("pipeline when-predicate failed, skipping stage", "run", run.ID, "stage", st.Name, "error", err)
				ok = false
			}
			if !ok {
				run.StageStates[st.Name] = model.StageState{Status: model.StageSkipped}
				continue
			}
		}

		prompt := composePrompt(st, outputs)

		if st.Type == model.StageFanOut {
			ids, err := e.materializeFanOut(ctx, run, st, prompt)
			if err != nil {
				return err
			}
			run.StageStates[st.Name] = model.StageState{Status: model.StageRunning, TaskIDs: ids}
			continue
		}

		taskID, err := e.materializeTask(ctx, run, st, prompt)
		if err != nil {
			return err
		}
		run.StageStates[st.Name] = model.StageState{Status: model.StageRunning, TaskID: &taskID}
	}
	return nil
}

func (e *Engine) materializeTask(ctx context.Context, run *model.PipelineRun, st model.Stage, prompt string) (string, error) {
	taskID := ids.New()
	t := model.Task{
		ID:          taskID,
		Title:       fmt.Sprintf("%s / %s", run.PipelineID, st.Name),
		Description: prompt,
		Column:      model.ColumnTodo,
		Priority:    model.PriorityMedium,
		Role:        st.Role,
		Overrides: model.Toggles{
			AutoStart: model.BoolPtr(true),
			AutoClose: model.BoolPtr(true),
		},
		CreatedAt: model.NowMillis(),
	}
	if err := e.store.PutTask(ctx, t); err != nil {
		return "", err
	}
	return taskID, nil
}

func (e *Engine) materializeFanOut(ctx context.Context, run *model.PipelineRun, st model.Stage, prompt string) ([]string, error) {
	n := st.FanOutCount
	if n <= 0 {
		n = 1
	}
	taskIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := e.materializeTask(ctx, run, st, fmt.Sprintf("%s\n\n(fan-out %d/%d)", prompt, i+1, n))
		if err != nil {
			return nil, err
		}
		taskIDs = append(taskIDs, id)
	}
	return taskIDs, nil
}

func composePrompt(st model.Stage, outputs map[string]string) string {
	if len(st.Dependencies) == 0 {
		return st.Prompt
	}
	var b strings.Builder
	b.WriteString(st.Prompt)
	for _, dep := range st.Dependencies {
		if out, ok := outputs[dep]; ok && out != "" {
			fmt.Fprintf(&b, "\n\n[%s output]\n%s", dep, out)
		}
	}
	return b.String()
}

func (e *Engine) dependenciesSucceeded(st model.Stage, states map[string]model.StageState) bool {
	for _, dep := range st.Dependencies {
		if states[dep].Status != model.StageSucceeded {
			return false
		}
	}
	return true
}

// priorResults builds the outputs/succeeded maps exposed to conditional
// stage `when` predicates and prompt composition.
func (e *Engine) priorResults(run *model.PipelineRun) (outputs map[string]string, succeeded map[string]bool) {
	outputs = make(map[string]string, len(run.StageStates))
	succeeded = make(map[string]bool, len(run.StageStates))
	for name, state := range run.StageStates {
		outputs[name] = state.Output
		succeeded[name] = state.Status == model.StageSucceeded
	}
	return outputs, succeeded
}

// recomputeStatus derives run.Status from its stage states, per spec.md
// §4.4: running while any stage is pending/running, completed when all
// terminal and none failed, failed if any non-skippable stage failed.
func (e *Engine) recomputeStatus(run *model.PipelineRun, def model.PipelineDefinition) {
	if run.Status == model.RunPaused || run.Status == model.RunCancelled {
		return
	}
	anyPending, anyFailed := false, false
	for _, st := range def.Stages {
		switch run.StageStates[st.Name].Status {
		case model.StagePending, model.StageRunning:
			anyPending = true
		case model.StageFailed:
			anyFailed = true
		}
	}
	switch {
	case anyFailed:
		run.Status = model.RunFailed
	case anyPending:
		run.Status = model.RunRunning
	default:
		run.Status = model.RunCompleted
	}
	if run.Status == model.RunFailed || run.Status == model.RunCompleted {
		now := model.NowMillis()
		run.EndedAt = &now
	}
}

// Pause marks a run paused; Tick will no-op on it until Resume.
func (e *Engine) Pause(ctx context.Context, runID string) (model.PipelineRun, error) {
	run, err := e.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return model.PipelineRun{}, err
	}
	run.Status = model.RunPaused
	if err := e.store.PutPipelineRun(ctx, run); err != nil {
		return model.PipelineRun{}, err
	}
	return run, nil
}

// Resume un-pauses a run, letting the next Tick continue activating stages.
func (e *Engine) Resume(ctx context.Context, runID string) (model.PipelineRun, error) {
	run, err := e.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return model.PipelineRun{}, err
	}
	if run.Status != model.RunPaused {
		return run, nil
	}
	run.Status = model.RunRunning
	if err := e.store.PutPipelineRun(ctx, run); err != nil {
		return model.PipelineRun{}, err
	}
	return run, nil
}

// Cancel marks a run cancelled; its already-running backing tasks are left
// for the caller (typically the scheduler, via task.move) to stop.
func (e *Engine) Cancel(ctx context.Context, runID string) (model.PipelineRun, error) {
	run, err := e.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return model.PipelineRun{}, err
	}
	run.Status = model.RunCancelled
	now := model.NowMillis()
	run.EndedAt = &now
	if err := e.store.PutPipelineRun(ctx, run); err != nil {
		return model.PipelineRun{}, err
	}
	return run, nil
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return len(bs) > 0
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}
