package pipeline

import (
	"context"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Store is the narrow slice of internal/store.Store the pipeline engine
// depends on.
type Store interface {
	GetPipelineDefinition(ctx context.Context, id string) (model.PipelineDefinition, error)
	PutPipelineRun(ctx context.Context, run model.PipelineRun) error
	GetPipelineRun(ctx context.Context, id string) (model.PipelineRun, error)
	ListActivePipelineRuns(ctx context.Context) ([]model.PipelineRun, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	PutTask(ctx context.Context, t model.Task) error
}
