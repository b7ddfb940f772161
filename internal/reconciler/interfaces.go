package reconciler

import (
	"context"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Store is the narrow slice of internal/store.Store the reconciler depends
// on.
type Store interface {
	ListTasksByColumn(ctx context.Context, column model.Column) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	PutTask(ctx context.Context, t model.Task) error
	GetLane(ctx context.Context, id string) (model.Lane, error)
	GetRuntime(ctx context.Context, id string) (model.Runtime, error)
	ListRuntimes(ctx context.Context) ([]model.Runtime, error)
	GetAgentCheckpoint(ctx context.Context, agentID string) (model.Agent, error)
	PutAgentCheckpoint(ctx context.Context, a model.Agent) error
	DeleteAgentCheckpoint(ctx context.Context, agentID string) error
}

// Supervisor is the slice of internal/supervisor.Supervisor the reconciler
// rebinds a still-live agent through.
type Supervisor interface {
	Resume(agent model.Agent, be backend.Backend, provider string)
}

// Registry resolves the live backend.Backend for a runtime.
type Registry interface {
	Ensure(rt model.Runtime) (backend.Backend, error)
}
