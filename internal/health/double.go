package health

import (
	"context"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

type storeDouble struct {
	err error
}

func (s storeDouble) Ping(context.Context) error { return s.err }

type runtimeRegistryDouble struct {
	runtimes []model.Runtime
	err      error
}

func (r runtimeRegistryDouble) ListRuntimes(context.Context) ([]model.Runtime, error) {
	return r.runtimes, r.err
}

type backendResolverDouble struct {
	backends map[string]backend.Backend
	err      error
}

func (b backendResolverDouble) Ensure(rt model.Runtime) (backend.Backend, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.backends[rt.ID], nil
}

type backendPingDouble struct {
	err error
}

func (b backendPingDouble) Type() model.RuntimeType                              { return model.RuntimeLocalMux }
func (b backendPingDouble) Spawn(context.Context, backend.Spec) (model.Handle, error) {
	return model.Handle{}, backend.ErrNotSupported
}
func (b backendPingDouble) Kill(context.Context, model.Handle) error                { return nil }
func (b backendPingDouble) ListManaged(context.Context) ([]model.Handle, error)     { return nil, nil }
func (b backendPingDouble) Exists(context.Context, model.Handle) (bool, error)      { return false, nil }
func (b backendPingDouble) AttachCommand(model.Handle) string                      { return "" }
func (b backendPingDouble) Mux(model.Handle) backend.MuxHandle                     { return nil }
func (b backendPingDouble) Ping(context.Context) error                             { return b.err }
