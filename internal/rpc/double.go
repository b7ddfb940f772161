package rpc

import (
	"context"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/health"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/reconciler"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/scheduler"
)

// storeDouble is an in-memory Store for router tests, following the same
// map-of-structs-behind-a-mutex shape as the other packages' doubles.
type storeDouble struct {
	mu         sync.Mutex
	runtimes   map[string]model.Runtime
	lanes      map[string]model.Lane
	tasks      map[string]model.Task
	agents     map[string]model.Agent
	pipelines  map[string]model.PipelineDefinition
	runs       map[string]model.PipelineRun
	teams      map[string]model.Team
}

func newStoreDouble() *storeDouble {
	return &storeDouble{
		runtimes:  map[string]model.Runtime{},
		lanes:     map[string]model.Lane{},
		tasks:     map[string]model.Task{},
		agents:    map[string]model.Agent{},
		pipelines: map[string]model.PipelineDefinition{},
		runs:      map[string]model.PipelineRun{},
		teams:     map[string]model.Team{},
	}
}

func (s *storeDouble) PutRuntime(ctx context.Context, rt model.Runtime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtimes[rt.ID] = rt
	return nil
}

func (s *storeDouble) GetRuntime(ctx context.Context, id string) (model.Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[id]
	if !ok {
		return model.Runtime{}, apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	return rt, nil
}

func (s *storeDouble) ListRuntimes(ctx context.Context) ([]model.Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Runtime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		out = append(out, rt)
	}
	return out, nil
}

func (s *storeDouble) SetRuntimeReachable(ctx context.Context, id string, reachable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	rt.Reachable = reachable
	s.runtimes[id] = rt
	return nil
}

func (s *storeDouble) DeleteRuntime(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runtimes[id]; !ok {
		return apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	delete(s.runtimes, id)
	return nil
}

func (s *storeDouble) PutLane(ctx context.Context, l model.Lane) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lanes[l.ID] = l
	return nil
}

func (s *storeDouble) GetLane(ctx context.Context, id string) (model.Lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[id]
	if !ok {
		return model.Lane{}, apperr.Newf(apperr.NotFound, "lane %s not found", id)
	}
	return l, nil
}

func (s *storeDouble) GetLaneByName(ctx context.Context, name string) (model.Lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lanes {
		if l.Name == name {
			return l, nil
		}
	}
	return model.Lane{}, apperr.Newf(apperr.NotFound, "lane %q not found", name)
}

func (s *storeDouble) ListLanes(ctx context.Context) ([]model.Lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Lane, 0, len(s.lanes))
	for _, l := range s.lanes {
		out = append(out, l)
	}
	return out, nil
}

func (s *storeDouble) DeleteLane(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lanes[id]; !ok {
		return apperr.Newf(apperr.NotFound, "lane %s not found", id)
	}
	delete(s.lanes, id)
	return nil
}

func (s *storeDouble) PutTask(ctx context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *storeDouble) GetTask(ctx context.Context, id string) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, apperr.Newf(apperr.NotFound, "task %s not found", id)
	}
	return t, nil
}

func (s *storeDouble) ListTasks(ctx context.Context, laneID string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if laneID != "" && (t.LaneID == nil || *t.LaneID != laneID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *storeDouble) ListTasksByColumn(ctx context.Context, column model.Column) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.Column == column {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *storeDouble) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return apperr.Newf(apperr.NotFound, "task %s not found", id)
	}
	delete(s.tasks, id)
	return nil
}

func (s *storeDouble) ResolveTaskID(ctx context.Context, idOrPrefix string) (string, error) {
	s.mu.Lock()
	candidates := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		candidates = append(candidates, id)
	}
	s.mu.Unlock()
	return ids.Resolve(candidates, idOrPrefix)
}

func (s *storeDouble) GetAgentCheckpoint(ctx context.Context, agentID string) (model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return model.Agent{}, apperr.Newf(apperr.NotFound, "agent %s not found", agentID)
	}
	return a, nil
}

func (s *storeDouble) ListAgentCheckpoints(ctx context.Context) ([]model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

func (s *storeDouble) PutPipelineDefinition(ctx context.Context, p model.PipelineDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[p.ID] = p
	return nil
}

func (s *storeDouble) GetPipelineDefinition(ctx context.Context, id string) (model.PipelineDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	if !ok {
		return model.PipelineDefinition{}, apperr.Newf(apperr.NotFound, "pipeline %s not found", id)
	}
	return p, nil
}

func (s *storeDouble) ListPipelineDefinitions(ctx context.Context) ([]model.PipelineDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PipelineDefinition, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, p)
	}
	return out, nil
}

func (s *storeDouble) GetPipelineRun(ctx context.Context, id string) (model.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return model.PipelineRun{}, apperr.Newf(apperr.NotFound, "pipeline run %s not found", id)
	}
	return r, nil
}

func (s *storeDouble) ListPipelineRuns(ctx context.Context) ([]model.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PipelineRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *storeDouble) ListActivePipelineRuns(ctx context.Context) ([]model.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PipelineRun
	for _, r := range s.runs {
		if r.Status == model.RunRunning || r.Status == model.RunPaused || r.Status == model.RunPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *storeDouble) PutTeam(ctx context.Context, t model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[t.ID] = t
	return nil
}

func (s *storeDouble) GetTeam(ctx context.Context, id string) (model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return model.Team{}, apperr.Newf(apperr.NotFound, "team %s not found", id)
	}
	return t, nil
}

func (s *storeDouble) ListTeams(ctx context.Context) ([]model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	return out, nil
}

func (s *storeDouble) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return apperr.Newf(apperr.NotFound, "team %s not found", id)
	}
	delete(s.teams, id)
	return nil
}

// schedulerDouble records calls instead of running the real kanban FSM; Move
// still rejects a column change outside the kanban edge set with a conflict.
type schedulerDouble struct {
	mu        sync.Mutex
	moved     []string
	started   []string
	dispatchReport scheduler.DispatchReport
	store     *storeDouble
}

func (s *schedulerDouble) Move(ctx context.Context, taskID string, to model.Column, cancelled bool) (model.Task, error) {
	s.mu.Lock()
	s.moved = append(s.moved, taskID)
	s.mu.Unlock()
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	edges := map[model.Column][]model.Column{
		model.ColumnBacklog: {model.ColumnTodo},
		model.ColumnTodo:    {model.ColumnDone},
		model.ColumnDoing:   {model.ColumnReview, model.ColumnTodo},
		model.ColumnReview:  {model.ColumnDone, model.ColumnTodo},
	}
	allowed := t.Column == to
	for _, c := range edges[t.Column] {
		allowed = allowed || c == to
	}
	if !allowed {
		return model.Task{}, apperr.Newf(apperr.Conflict, "invalid-transition: %s -> %s", t.Column, to)
	}
	t.Column = to
	t.Cancelled = cancelled
	_ = s.store.PutTask(ctx, t)
	return t, nil
}

func (s *schedulerDouble) StartTask(ctx context.Context, taskID string) (model.Agent, error) {
	s.mu.Lock()
	s.started = append(s.started, taskID)
	s.mu.Unlock()
	return model.Agent{ID: taskID, State: model.AgentSpawning}, nil
}

func (s *schedulerDouble) Dispatch(ctx context.Context) (scheduler.DispatchReport, error) {
	return s.dispatchReport, nil
}

// supervisorDouble is the rpc package's own narrow supervisor test double.
type supervisorDouble struct {
	mu      sync.Mutex
	stopped []string
	agents  map[string]model.Agent
}

func (s *supervisorDouble) Stop(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, taskID)
}

func (s *supervisorDouble) Get(taskID string) (model.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[taskID]
	return a, ok
}

// pipelinesDouble stubs the pipeline engine's externally-driven operations.
type pipelinesDouble struct {
	run model.PipelineRun
}

func (p *pipelinesDouble) Run(ctx context.Context, pipelineDefID string) (model.PipelineRun, error) {
	r := p.run
	r.PipelineID = pipelineDefID
	return r, nil
}

func (p *pipelinesDouble) Pause(ctx context.Context, runID string) (model.PipelineRun, error) {
	r := p.run
	r.Status = model.RunPaused
	return r, nil
}

func (p *pipelinesDouble) Resume(ctx context.Context, runID string) (model.PipelineRun, error) {
	r := p.run
	r.Status = model.RunRunning
	return r, nil
}

func (p *pipelinesDouble) Cancel(ctx context.Context, runID string) (model.PipelineRun, error) {
	r := p.run
	r.Status = model.RunCancelled
	return r, nil
}

// backendRegistryDouble resolves every Runtime to the same fake Backend.
type backendRegistryDouble struct {
	be backend.Backend
}

func (b *backendRegistryDouble) Ensure(rt model.Runtime) (backend.Backend, error) {
	return b.be, nil
}

// reconcilerDouble stubs the Deps.Reconciler dependency.
type reconcilerDouble struct {
	report reconciler.Report
}

func (r *reconcilerDouble) Reconcile(ctx context.Context) (reconciler.Report, error) {
	return r.report, nil
}

// healthDouble stubs daemon.health.
type healthDouble struct {
	snapshot health.Snapshot
}

func (h *healthDouble) Last() health.Snapshot { return h.snapshot }

func (h *healthDouble) Probe(ctx context.Context) health.Snapshot { return h.snapshot }

// backendDouble is a minimal backend.Backend for agent.* handler tests.
type backendDouble struct {
	pingErr error
	output  string
}

func (b *backendDouble) Type() model.RuntimeType { return model.RuntimeLocalMux }

func (b *backendDouble) Spawn(ctx context.Context, spec backend.Spec) (model.Handle, error) {
	return model.Handle{Kind: model.RuntimeLocalMux, Session: spec.SessionName}, nil
}

func (b *backendDouble) Kill(ctx context.Context, handle model.Handle) error { return nil }

func (b *backendDouble) ListManaged(ctx context.Context) ([]model.Handle, error) { return nil, nil }

func (b *backendDouble) Exists(ctx context.Context, handle model.Handle) (bool, error) {
	return true, nil
}

func (b *backendDouble) AttachCommand(handle model.Handle) string {
	return "tmux attach -t " + handle.Session
}

func (b *backendDouble) Mux(handle model.Handle) backend.MuxHandle {
	return &muxDouble{output: b.output}
}

func (b *backendDouble) Ping(ctx context.Context) error { return b.pingErr }

// muxDouble is a minimal backend.MuxHandle.
type muxDouble struct {
	mu     sync.Mutex
	sent   []string
	output string
}

func (m *muxDouble) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, keys)
	return nil
}

func (m *muxDouble) Paste(ctx context.Context, text string) error { return m.SendKeys(ctx, text) }

func (m *muxDouble) CapturePane(ctx context.Context, lines int) (string, error) {
	return m.output, nil
}

func (m *muxDouble) ListWindows(ctx context.Context) ([]string, error) { return nil, nil }

func (m *muxDouble) ListPanes(ctx context.Context) ([]string, error) { return nil, nil }
