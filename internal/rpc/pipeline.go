package rpc

import (
	"context"
	"encoding/json"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

func resolvePipelineDefID(ctx context.Context, d Deps, prefix string) (string, error) {
	defs, err := d.Store.ListPipelineDefinitions(ctx)
	if err != nil {
		return "", err
	}
	candidates := make([]string, len(defs))
	for i, def := range defs {
		candidates[i] = def.ID
	}
	return ids.Resolve(candidates, prefix)
}

func resolvePipelineRunID(ctx context.Context, d Deps, prefix string) (string, error) {
	runs, err := d.Store.ListPipelineRuns(ctx)
	if err != nil {
		return "", err
	}
	candidates := make([]string, len(runs))
	for i, run := range runs {
		candidates[i] = run.ID
	}
	return ids.Resolve(candidates, prefix)
}

type pipelineCreateParams struct {
	Name   string        `json:"name" validate:"required"`
	Stages []model.Stage `json:"stages" validate:"required,min=1"`
}

type pipelineIDParams struct {
	ID string `json:"id" validate:"required"`
}

type pipelineRunIDParams struct {
	RunID string `json:"runId" validate:"required"`
}

func registerPipeline(r *Router, d Deps) {
	r.Register("pipeline.list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Store.ListPipelineDefinitions(ctx)
	})

	r.Register("pipeline.listActive", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Store.ListActivePipelineRuns(ctx)
	})

	r.Register("pipeline.create", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineCreateParams](raw)
		if err != nil {
			return nil, err
		}
		def := model.PipelineDefinition{ID: ids.New(), Name: p.Name, Stages: p.Stages}
		if err := d.Store.PutPipelineDefinition(ctx, def); err != nil {
			return nil, err
		}
		return def, nil
	})

	r.Register("pipeline.run", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolvePipelineDefID(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		return d.Pipelines.Run(ctx, id)
	})

	r.Register("pipeline.status", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineRunIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolvePipelineRunID(ctx, d, p.RunID)
		if err != nil {
			return nil, err
		}
		return d.Store.GetPipelineRun(ctx, id)
	})

	r.Register("pipeline.pause", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineRunIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolvePipelineRunID(ctx, d, p.RunID)
		if err != nil {
			return nil, err
		}
		return d.Pipelines.Pause(ctx, id)
	})

	r.Register("pipeline.resume", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineRunIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolvePipelineRunID(ctx, d, p.RunID)
		if err != nil {
			return nil, err
		}
		return d.Pipelines.Resume(ctx, id)
	})

	r.Register("pipeline.cancel", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[pipelineRunIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolvePipelineRunID(ctx, d, p.RunID)
		if err != nil {
			return nil, err
		}
		return d.Pipelines.Cancel(ctx, id)
	})
}
