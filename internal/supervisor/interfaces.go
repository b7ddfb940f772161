package supervisor

import (
	"context"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Store is the narrow slice of internal/store.Store the supervisor depends
// on, segregated the way the teacher's internal/agent/interfaces.go narrows
// Agents into AgentObserver/AgentStopper/etc. so tests can supply a double
// instead of an embedded SQLite database.
type Store interface {
	GetTask(ctx context.Context, id string) (model.Task, error)
	PutTask(ctx context.Context, t model.Task) error
	GetLane(ctx context.Context, id string) (model.Lane, error)
	GetRuntime(ctx context.Context, id string) (model.Runtime, error)
	PutAgentCheckpoint(ctx context.Context, a model.Agent) error
	DeleteAgentCheckpoint(ctx context.Context, agentID string) error
}

// Registry resolves the live backend.Backend for a runtime.
type Registry interface {
	Ensure(rt model.Runtime) (backend.Backend, error)
}
