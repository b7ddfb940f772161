package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/health"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps() (Deps, *storeDouble, *supervisorDouble) {
	st := newStoreDouble()
	sup := &supervisorDouble{agents: map[string]model.Agent{}}
	sched := &schedulerDouble{store: st}
	cfg := config.Default()
	d := Deps{
		Store:      st,
		Scheduler:  sched,
		Supervisor: sup,
		Pipelines:  &pipelinesDouble{run: model.PipelineRun{ID: "run-1"}},
		Backends:   &backendRegistryDouble{be: &backendDouble{output: "hello from pane"}},
		Reconciler: &reconcilerDouble{},
		Health:     &healthDouble{snapshot: health.Snapshot{Overall: health.StatusHealthy}},
		Events:     eventbus.New(),
		Config:     &cfg,
		Log:        discardLog(),
		Version:    "test",
	}
	return d, st, sup
}

func call(t *testing.T, r *Router, method string, params any) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return r.Handle(context.Background(), Request{ProtocolVersion: ProtocolVersion, ID: json.RawMessage(`1`), Method: method, Params: raw})
}

func TestUnknownMethodReturnsInvalidParams(t *testing.T) {
	d, _, _ := newTestDeps()
	r := NewRouter(d)
	resp := call(t, r, "bogus.method", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid-params", resp.Error.Kind)
}

func TestTaskSubmitGetMoveLifecycle(t *testing.T) {
	d, _, _ := newTestDeps()
	r := NewRouter(d)

	submitResp := call(t, r, "task.submit", map[string]any{"title": "write docs"})
	require.Nil(t, submitResp.Error)

	resultBytes, err := json.Marshal(submitResp.Result)
	require.NoError(t, err)
	var task model.Task
	require.NoError(t, json.Unmarshal(resultBytes, &task))
	assert.Equal(t, model.ColumnTodo, task.Column)

	getResp := call(t, r, "task.get", map[string]any{"id": task.ID[:8]})
	require.Nil(t, getResp.Error)

	moveResp := call(t, r, "task.move", map[string]any{"id": task.ID, "to": "done", "cancelled": true})
	require.Nil(t, moveResp.Error)
}

func TestTaskSubmitMissingTitleFailsValidation(t *testing.T) {
	d, _, _ := newTestDeps()
	r := NewRouter(d)
	resp := call(t, r, "task.submit", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid-params", resp.Error.Kind)
}

func TestLaneCreateDuplicateNameConflicts(t *testing.T) {
	d, _, _ := newTestDeps()
	r := NewRouter(d)

	first := call(t, r, "lane.createLane", map[string]any{"name": "dev", "wipLimit": 2})
	require.Nil(t, first.Error)

	second := call(t, r, "lane.createLane", map[string]any{"name": "dev", "wipLimit": 2})
	require.NotNil(t, second.Error)
	assert.Equal(t, "conflict", second.Error.Kind)
}

func TestAgentSendAndOutputRoundTrip(t *testing.T) {
	d, st, sup := newTestDeps()
	r := NewRouter(d)

	rt := model.Runtime{ID: "rt-1", Type: model.RuntimeLocalMux}
	require.NoError(t, st.PutRuntime(context.Background(), rt))

	task := model.Task{ID: "aaaaaaaa-0000-0000-0000-000000000001", Column: model.ColumnDoing}
	require.NoError(t, st.PutTask(context.Background(), task))
	sup.agents[task.ID] = model.Agent{ID: task.ID, RuntimeID: rt.ID, State: model.AgentWorking}

	sendResp := call(t, r, "agent.send", map[string]any{"id": task.ID, "text": "hello"})
	require.Nil(t, sendResp.Error)

	outResp := call(t, r, "agent.output", map[string]any{"id": task.ID})
	require.Nil(t, outResp.Error)
	outBytes, err := json.Marshal(outResp.Result)
	require.NoError(t, err)
	var out struct {
		Output string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(outBytes, &out))
	assert.Equal(t, "hello from pane", out.Output)
}

func TestDaemonHealthReturnsSnapshot(t *testing.T) {
	d, _, _ := newTestDeps()
	r := NewRouter(d)
	resp := call(t, r, "daemon.health", map[string]any{})
	require.Nil(t, resp.Error)
}

func TestTeamQuickCodeSubmitsIntoTeamLane(t *testing.T) {
	d, st, _ := newTestDeps()
	r := NewRouter(d)

	lane := model.Lane{ID: "lane-1", Name: "backend", DefaultToggles: model.Toggles{}}
	require.NoError(t, st.PutLane(context.Background(), lane))
	team := model.Team{ID: "team-1", Name: "platform", LaneIDs: []string{"lane-1"}}
	require.NoError(t, st.PutTeam(context.Background(), team))

	resp := call(t, r, "team.quickCode", map[string]any{"teamId": "team-1", "title": "fix bug"})
	require.Nil(t, resp.Error)
}

func TestFanoutRunCreatesSiblingTasks(t *testing.T) {
	d, _, _ := newTestDeps()
	r := NewRouter(d)

	resp := call(t, r, "fanout.run", map[string]any{"title": "explore", "count": 3})
	require.Nil(t, resp.Error)

	resultBytes, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result fanoutRunResult
	require.NoError(t, json.Unmarshal(resultBytes, &result))
	assert.Len(t, result.TaskIDs, 3)
}

func TestTaskMoveInvalidTransitionIsConflict(t *testing.T) {
	d, st, _ := newTestDeps()
	r := NewRouter(d)
	task := model.Task{ID: "bbbbbbbb-0000-0000-0000-000000000001", Column: model.ColumnBacklog}
	require.NoError(t, st.PutTask(context.Background(), task))

	resp := call(t, r, "task.move", map[string]any{"id": task.ID, "to": "done"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "conflict", resp.Error.Kind)
}
