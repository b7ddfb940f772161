package rpc

import (
	"context"
	"encoding/json"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

type agentIDParams struct {
	ID string `json:"id" validate:"required"`
}

type agentSendParams struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type agentOutputParams struct {
	ID    string `json:"id" validate:"required"`
	Lines int    `json:"lines"`
}

// resolveAgent finds the live in-memory Agent if the supervisor still runs
// it, otherwise falls back to the last checkpoint (spec.md §3: the
// checkpoint is what reconciliation rebinds from after a restart).
func resolveAgent(ctx context.Context, d Deps, idOrPrefix string) (model.Agent, error) {
	id, err := d.Store.ResolveTaskID(ctx, idOrPrefix)
	if err != nil {
		return model.Agent{}, err
	}
	if a, ok := d.Supervisor.Get(id); ok {
		return a, nil
	}
	return d.Store.GetAgentCheckpoint(ctx, id)
}

func (d Deps) muxFor(ctx context.Context, a model.Agent) (backend.MuxHandle, error) {
	rt, err := d.Store.GetRuntime(ctx, a.RuntimeID)
	if err != nil {
		return nil, err
	}
	be, err := d.Backends.Ensure(rt)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnreachable, err, "resolving backend")
	}
	return be.Mux(a.Handle), nil
}

func registerAgent(r *Router, d Deps) {
	r.Register("agent.list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Store.ListAgentCheckpoints(ctx)
	})

	info := func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[agentIDParams](raw)
		if err != nil {
			return nil, err
		}
		return resolveAgent(ctx, d, p.ID)
	}
	r.Register("agent.info", info)
	r.Register("agent.status", info)

	r.Register("agent.kill", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[agentIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := d.Store.ResolveTaskID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		d.Supervisor.Stop(id)
		return struct {
			Killed string `json:"killed"`
		}{id}, nil
	})

	r.Register("agent.send", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[agentSendParams](raw)
		if err != nil {
			return nil, err
		}
		a, err := resolveAgent(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		mux, err := d.muxFor(ctx, a)
		if err != nil {
			return nil, err
		}
		if err := mux.SendKeys(ctx, p.Text); err != nil {
			return nil, apperr.Wrap(apperr.BackendFailure, err, "sending keys")
		}
		return struct {
			Sent bool `json:"sent"`
		}{true}, nil
	})

	r.Register("agent.output", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[agentOutputParams](raw)
		if err != nil {
			return nil, err
		}
		a, err := resolveAgent(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		mux, err := d.muxFor(ctx, a)
		if err != nil {
			return nil, err
		}
		lines := p.Lines
		if lines <= 0 {
			lines = 200
		}
		text, err := mux.CapturePane(ctx, lines)
		if err != nil {
			return nil, apperr.Wrap(apperr.BackendFailure, err, "capturing pane")
		}
		return struct {
			Output string `json:"output"`
		}{text}, nil
	})

	r.Register("agent.attach", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[agentIDParams](raw)
		if err != nil {
			return nil, err
		}
		a, err := resolveAgent(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		rt, err := d.Store.GetRuntime(ctx, a.RuntimeID)
		if err != nil {
			return nil, err
		}
		be, err := d.Backends.Ensure(rt)
		if err != nil {
			return nil, apperr.Wrap(apperr.BackendUnreachable, err, "resolving backend")
		}
		return struct {
			Command string `json:"command"`
		}{be.AttachCommand(a.Handle)}, nil
	})
}
