package scheduler

import (
	"context"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Store is the narrow slice of internal/store.Store the scheduler depends
// on.
type Store interface {
	ListTasksByColumn(ctx context.Context, column model.Column) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	PutTask(ctx context.Context, t model.Task) error
	GetLane(ctx context.Context, id string) (model.Lane, error)
	ListLanes(ctx context.Context) ([]model.Lane, error)
}

// Supervisor is the slice of internal/supervisor.Supervisor the scheduler
// dispatches through.
type Supervisor interface {
	Spawn(ctx context.Context, t model.Task, lane model.Lane) (model.Agent, error)
	Stop(taskID string)
}
