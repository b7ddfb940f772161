package supervisor

import (
	"context"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// StoreDouble is an in-memory fake implementing Store, mirroring the
// teacher's internal/agent/double.go fakes used throughout its test suite
// instead of a mocking library.
type StoreDouble struct {
	mu          sync.Mutex
	Tasks       map[string]model.Task
	Lanes       map[string]model.Lane
	Runtimes    map[string]model.Runtime
	Checkpoints map[string]model.Agent
}

// NewStoreDouble builds an empty StoreDouble.
func NewStoreDouble() *StoreDouble {
	return &StoreDouble{
		Tasks:       make(map[string]model.Task),
		Lanes:       make(map[string]model.Lane),
		Runtimes:    make(map[string]model.Runtime),
		Checkpoints: make(map[string]model.Agent),
	}
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

func (d *StoreDouble) GetRuntime(_ context.Context, id string) (model.Runtime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rt, ok := d.Runtimes[id]
	if !ok {
		return model.Runtime{}, apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	return rt, nil
}

func (d *StoreDouble) PutAgentCheckpoint(_ context.Context, a model.Agent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Checkpoints[a.ID] = a
	return nil
}

func (d *StoreDouble) DeleteAgentCheckpoint(_ context.Context, agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Checkpoints, agentID)
	return nil
}

// RegistryDouble always returns the same backend.Backend, regardless of
// runtime.
type RegistryDouble struct {
	Backend backend.Backend
}

func (r RegistryDouble) Ensure(model.Runtime) (backend.Backend, error) {
	return r.Backend, nil
}

// BackendDouble is an in-memory fake backend.Backend driving a FakeMux,
// mirroring the teacher's test doubles for terminal.Backend.
type BackendDouble struct {
	mu       sync.Mutex
	sessions map[string]*FakeMux
}

// NewBackendDouble builds an empty BackendDouble.
func NewBackendDouble() *BackendDouble {
	return &BackendDouble{sessions: make(map[string]*FakeMux)}
}

func (b *BackendDouble) Type() model.RuntimeType { return model.RuntimeLocalMux }

func (b *BackendDouble) Spawn(_ context.Context, spec backend.Spec) (model.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[spec.SessionName] = &FakeMux{}
	return model.Handle{Kind: model.RuntimeLocalMux, Session: spec.SessionName, Label: spec.Label}, nil
}

func (b *BackendDouble) Kill(_ context.Context, handle model.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, handle.Session)
	return nil
}

func (b *BackendDouble) ListManaged(context.Context) ([]model.Handle, error) { return nil, nil }

func (b *BackendDouble) Exists(_ context.Context, handle model.Handle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[handle.Session]
	return ok, nil
}

func (b *BackendDouble) AttachCommand(model.Handle) string { return "" }

func (b *BackendDouble) Mux(handle model.Handle) backend.MuxHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[handle.Session]
}

func (b *BackendDouble) Ping(context.Context) error { return nil }

// FakeMux is an in-memory backend.MuxHandle whose CapturePane returns
// whatever Screen currently holds, letting tests drive the supervisor's
// sentinel parsing deterministically.
type FakeMux struct {
	mu     sync.Mutex
	Screen string
	Keys   []string
}

func (m *FakeMux) SendKeys(_ context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, keys)
	return nil
}

func (m *FakeMux) Paste(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, text)
	return nil
}

func (m *FakeMux) CapturePane(context.Context, int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Screen, nil
}

func (m *FakeMux) ListWindows(context.Context) ([]string, error) { return nil, nil }
func (m *FakeMux) ListPanes(context.Context) ([]string, error)   { return nil, nil }

// SetScreen overwrites the fake pane contents under lock, for use from test
// goroutines racing the supervisor's capture loop.
func (m *FakeMux) SetScreen(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Screen = text
}
