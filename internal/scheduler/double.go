package scheduler

import (
	"context"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// StoreDouble is an in-memory fake implementing Store.
type StoreDouble struct {
	mu    sync.Mutex
	Tasks map[string]model.Task
	Lanes map[string]model.Lane
}

// NewStoreDouble builds an empty StoreDouble.
func NewStoreDouble() *StoreDouble {
	return &StoreDouble{Tasks: make(map[string]model.Task), Lanes: make(map[string]model.Lane)}
}

func (d *StoreDouble) ListTasksByColumn(_ context.Context, column model.Column) ([]model.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Task
	for _, t := range d.Tasks {
		if t.Column == column {
			out = append(out, t)
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

func (d *StoreDouble) GetLane(_ context.Context, id string) (model.Lane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.Lanes[id]
	if !ok {
		return model.Lane{}, apperr.Newf(apperr.NotFound, "lane %s not found", id)
	}
	return l, nil
}

func (d *StoreDouble) ListLanes(_ context.Context) ([]model.Lane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Lane, 0, len(d.Lanes))
	for _, l := range d.Lanes {
		out = append(out, l)
	}
	return out, nil
}

// SupervisorDouble records every Spawn/Stop call instead of touching a
// backend.
type SupervisorDouble struct {
	mu      sync.Mutex
	Spawned []string
	Stopped []string
}

// NewSupervisorDouble builds an empty SupervisorDouble.
func NewSupervisorDouble() *SupervisorDouble { return &SupervisorDouble{} }

func (d *SupervisorDouble) Spawn(_ context.Context, t model.Task, _ model.Lane) (model.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Spawned = append(d.Spawned, t.ID)
	return model.Agent{ID: t.ID, State: model.AgentWorking}, nil
}

func (d *SupervisorDouble) Stop(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Stopped = append(d.Stopped, taskID)
}
