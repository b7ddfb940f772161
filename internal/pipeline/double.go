package pipeline

import (
	"context"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// StoreDouble is an in-memory fake implementing Store, mirroring the style
// of internal/scheduler's and internal/supervisor's doubles.
type StoreDouble struct {
	mu    sync.Mutex
	Defs  map[string]model.PipelineDefinition
	Runs  map[string]model.PipelineRun
	Tasks map[string]model.Task
}

// NewStoreDouble builds an empty StoreDouble.
func NewStoreDouble() *StoreDouble {
	return &StoreDouble{
		Defs:  make(map[string]model.PipelineDefinition),
		Runs:  make(map[string]model.PipelineRun),
		Tasks: make(map[string]model.Task),
	}
}

func (d *StoreDouble) GetPipelineDefinition(_ context.Context, id string) (model.PipelineDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.Defs[id]
	if !ok {
		return model.PipelineDefinition{}, apperr.Newf(apperr.NotFound, "pipeline %s not found", id)
	}
	return def, nil
}

func (d *StoreDouble) PutPipelineRun(_ context.Context, run model.PipelineRun) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Runs[run.ID] = run
	return nil
}

func (d *StoreDouble) GetPipelineRun(_ context.Context, id string) (model.PipelineRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.Runs[id]
	if !ok {
		return model.PipelineRun{}, apperr.Newf(apperr.NotFound, "pipeline run %s not found", id)
	}
	return r, nil
}

func (d *StoreDouble) ListActivePipelineRuns(_ context.Context) ([]model.PipelineRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.PipelineRun
	for _, r := range d.Runs {
		if r.Status == model.RunPending || r.Status == model.RunRunning {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *StoreDouble) GetTask(_ context.Context, id string) (model.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.Tasks[id]
	if !ok {
		return model.Task{}, apperr.Newf(apperr.NotFound, "task %s not found", id)
	}
	return t, nil
}

func (d *StoreDouble) PutTask(_ context.Context, t model.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Tasks[t.ID] = t
	return nil
}

// CompleteTask is a test helper moving a materialized task straight to done,
// simulating what the supervisor's completeLocked does for an autoClose
// stage task.
func (d *StoreDouble) CompleteTask(id string, cancelled bool, output string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.Tasks[id]
	t.Column = model.ColumnDone
	t.Cancelled = cancelled
	t.Output = output
	d.Tasks[id] = t
}
