package reconciler

import (
	"context"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// storeDouble is an in-memory fake implementing Store, mirroring the
// supervisor package's test double idiom.
type storeDouble struct {
	mu          sync.Mutex
	Tasks       map[string]model.Task
	Lanes       map[string]model.Lane
	Runtimes    map[string]model.Runtime
	Checkpoints map[string]model.Agent
}

func newStoreDouble() *storeDouble {
	return &storeDouble{
		Tasks:       make(map[string]model.Task),
		Lanes:       make(map[string]model.Lane),
		Runtimes:    make(map[string]model.Runtime),
		Checkpoints: make(map[string]model.Agent),
	}
}

func (d *storeDouble) ListTasksByColumn(_ context.Context, column model.Column) ([]model.Task, error) {
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

func (d *storeDouble) GetTask(_ context.Context, id string) (model.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.Tasks[id]
	if !ok {
		return model.Task{}, apperr.Newf(apperr.NotFound, "task %s not found", id)
	}
	return t, nil
}

func (d *storeDouble) PutTask(_ context.Context, t model.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Tasks[t.ID] = t
	return nil
}

func (d *storeDouble) GetLane(_ context.Context, id string) (model.Lane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.Lanes[id]
	if !ok {
		return model.Lane{}, apperr.Newf(apperr.NotFound, "lane %s not found", id)
	}
	return l, nil
}

func (d *storeDouble) GetRuntime(_ context.Context, id string) (model.Runtime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rt, ok := d.Runtimes[id]
	if !ok {
		return model.Runtime{}, apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	return rt, nil
}

func (d *storeDouble) ListRuntimes(_ context.Context) ([]model.Runtime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Runtime, 0, len(d.Runtimes))
	for _, rt := range d.Runtimes {
		out = append(out, rt)
	}
	return out, nil
}

func (d *storeDouble) GetAgentCheckpoint(_ context.Context, agentID string) (model.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.Checkpoints[agentID]
	if !ok {
		return model.Agent{}, apperr.Newf(apperr.NotFound, "checkpoint %s not found", agentID)
	}
	return a, nil
}

func (d *storeDouble) PutAgentCheckpoint(_ context.Context, a model.Agent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Checkpoints[a.ID] = a
	return nil
}

func (d *storeDouble) DeleteAgentCheckpoint(_ context.Context, agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Checkpoints, agentID)
	return nil
}

// supervisorDouble records every Resume call for assertions.
type supervisorDouble struct {
	mu      sync.Mutex
	Resumed []model.Agent
}

func (s *supervisorDouble) Resume(agent model.Agent, _ backend.Backend, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resumed = append(s.Resumed, agent)
}

// registryDouble always hands back the same backend.Backend.
type registryDouble struct {
	Backend backend.Backend
}

func (r registryDouble) Ensure(model.Runtime) (backend.Backend, error) {
	return r.Backend, nil
}

// backendDouble is a minimal backend.Backend fake whose Exists/ListManaged
// behaviour is driven directly by test setup, rather than a running session.
type backendDouble struct {
	mu      sync.Mutex
	Alive   map[string]bool // handle.Session -> alive
	Managed []model.Handle
	Killed  []model.Handle
}

func newBackendDouble() *backendDouble {
	return &backendDouble{Alive: make(map[string]bool)}
}

func (b *backendDouble) Type() model.RuntimeType { return model.RuntimeLocalMux }

func (b *backendDouble) Spawn(context.Context, backend.Spec) (model.Handle, error) {
	return model.Handle{}, backend.ErrNotSupported
}

func (b *backendDouble) Kill(_ context.Context, handle model.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Killed = append(b.Killed, handle)
	return nil
}

func (b *backendDouble) ListManaged(context.Context) ([]model.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Managed, nil
}

func (b *backendDouble) Exists(_ context.Context, handle model.Handle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Alive[handle.Session], nil
}

func (b *backendDouble) AttachCommand(model.Handle) string { return "" }

func (b *backendDouble) Mux(model.Handle) backend.MuxHandle { return nil }

func (b *backendDouble) Ping(context.Context) error { return nil }
