package rpc

import (
	"context"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/health"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/reconciler"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/scheduler"
)

// Store is the slice of internal/store.Store every RPC method namespace
// needs. It is the union of every narrower Store interface already defined
// in internal/scheduler, internal/supervisor, internal/reconciler, kept
// here as one interface since the router talks to every entity.
type Store interface {
	PutRuntime(ctx context.Context, rt model.Runtime) error
	GetRuntime(ctx context.Context, id string) (model.Runtime, error)
	ListRuntimes(ctx context.Context) ([]model.Runtime, error)
	SetRuntimeReachable(ctx context.Context, id string, reachable bool) error
	DeleteRuntime(ctx context.Context, id string) error

	PutLane(ctx context.Context, l model.Lane) error
	GetLane(ctx context.Context, id string) (model.Lane, error)
	GetLaneByName(ctx context.Context, name string) (model.Lane, error)
	ListLanes(ctx context.Context) ([]model.Lane, error)
	DeleteLane(ctx context.Context, id string) error

	PutTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (model.Task, error)
	ListTasks(ctx context.Context, laneID string) ([]model.Task, error)
	ListTasksByColumn(ctx context.Context, column model.Column) ([]model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ResolveTaskID(ctx context.Context, idOrPrefix string) (string, error)

	GetAgentCheckpoint(ctx context.Context, agentID string) (model.Agent, error)
	ListAgentCheckpoints(ctx context.Context) ([]model.Agent, error)

	PutPipelineDefinition(ctx context.Context, p model.PipelineDefinition) error
	GetPipelineDefinition(ctx context.Context, id string) (model.PipelineDefinition, error)
	ListPipelineDefinitions(ctx context.Context) ([]model.PipelineDefinition, error)
	GetPipelineRun(ctx context.Context, id string) (model.PipelineRun, error)
	ListPipelineRuns(ctx context.Context) ([]model.PipelineRun, error)
	ListActivePipelineRuns(ctx context.Context) ([]model.PipelineRun, error)

	PutTeam(ctx context.Context, t model.Team) error
	GetTeam(ctx context.Context, id string) (model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	DeleteTeam(ctx context.Context, id string) error
}

// Scheduler is the slice of internal/scheduler.Scheduler the router drives.
type Scheduler interface {
	Move(ctx context.Context, taskID string, to model.Column, cancelled bool) (model.Task, error)
	StartTask(ctx context.Context, taskID string) (model.Agent, error)
	Dispatch(ctx context.Context) (scheduler.DispatchReport, error)
}

// Supervisor is the slice of internal/supervisor.Supervisor the router
// drives directly (task submission dispatch goes through Scheduler instead).
type Supervisor interface {
	Stop(taskID string)
	Get(taskID string) (model.Agent, bool)
}

// Pipelines is the slice of internal/pipeline.Engine the router drives.
type Pipelines interface {
	Run(ctx context.Context, pipelineDefID string) (model.PipelineRun, error)
	Pause(ctx context.Context, runID string) (model.PipelineRun, error)
	Resume(ctx context.Context, runID string) (model.PipelineRun, error)
	Cancel(ctx context.Context, runID string) (model.PipelineRun, error)
}

// BackendRegistry resolves a live backend.Backend for a Runtime, shared
// with internal/reconciler.Registry and internal/health.BackendResolver.
type BackendRegistry interface {
	Ensure(rt model.Runtime) (backend.Backend, error)
}

// Reconciler re-runs reconciliation on demand. The router is given one, but
// no registered method calls it; daemon.reload does not reconcile.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconciler.Report, error)
}

// HealthMonitor is the slice of internal/health.Monitor the router exposes
// as daemon.health.
type HealthMonitor interface {
	Last() health.Snapshot
	Probe(ctx context.Context) health.Snapshot
}

// Mux is the per-pane multiplexer handle, used by agent.send/agent.output.
type Mux = backend.MuxHandle
