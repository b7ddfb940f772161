package rpc

import (
	"context"
	"encoding/json"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

func resolveRuntimeID(ctx context.Context, d Deps, prefix string) (string, error) {
	runtimes, err := d.Store.ListRuntimes(ctx)
	if err != nil {
		return "", err
	}
	candidates := make([]string, len(runtimes))
	for i, rt := range runtimes {
		candidates[i] = rt.ID
	}
	return ids.Resolve(candidates, prefix)
}

type runtimeAddParams struct {
	ID        string `json:"id" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=local-mux remote-shell container pod"`
	Host      string `json:"host"`
	Image     string `json:"image"`
	Namespace string `json:"namespace"`
}

type runtimeIDParams struct {
	ID string `json:"id" validate:"required"`
}

func registerRuntime(r *Router, d Deps) {
	r.Register("runtime.list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Store.ListRuntimes(ctx)
	})

	r.Register("runtime.add", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[runtimeAddParams](raw)
		if err != nil {
			return nil, err
		}
		rt := model.Runtime{
			ID:        p.ID,
			Type:      model.RuntimeType(p.Type),
			Host:      p.Host,
			Image:     p.Image,
			Namespace: p.Namespace,
			CreatedAt: model.NowMillis(),
		}
		if _, err := d.Backends.Ensure(rt); err != nil {
			return nil, apperr.Wrap(apperr.BackendUnreachable, err, "constructing backend")
		}
		if err := d.Store.PutRuntime(ctx, rt); err != nil {
			return nil, err
		}
		return rt, nil
	})

	r.Register("runtime.remove", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[runtimeIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolveRuntimeID(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if err := d.Store.DeleteRuntime(ctx, id); err != nil {
			return nil, err
		}
		return struct {
			Removed string `json:"removed"`
		}{id}, nil
	})

	r.Register("runtime.ping", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[runtimeIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolveRuntimeID(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		rt, err := d.Store.GetRuntime(ctx, id)
		if err != nil {
			return nil, err
		}
		be, err := d.Backends.Ensure(rt)
		if err != nil {
			return nil, apperr.Wrap(apperr.BackendUnreachable, err, "constructing backend")
		}
		pingErr := be.Ping(ctx)
		reachable := pingErr == nil
		_ = d.Store.SetRuntimeReachable(ctx, id, reachable)
		if pingErr != nil {
			return nil, apperr.Wrap(apperr.BackendUnreachable, pingErr, "runtime unreachable")
		}
		return struct {
			Reachable bool `json:"reachable"`
		}{true}, nil
	})
}
