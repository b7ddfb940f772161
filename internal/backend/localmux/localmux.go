// Package localmux implements backend.Backend over a local tmux instance —
// the default backend for locally-running agents (spec.md §4.1), grounded
// on the teacher's internal/terminal.TmuxBackend.
package localmux

import (
	"context"
	"fmt"
	"time"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/tmux"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// LabelKey is a reserved name for a tmux user-option label. Spawn and
// ListManaged do not use it: they mark and find sessions by the "managed"
// option set to "true", and the Label itself is not stored on the session.
const LabelKey = "@tmux_agents_managed"

// Backend implements backend.Backend over local tmux sessions.
type Backend struct {
	tmux   *tmux.Tmux
	warmup time.Duration
}

// New builds a local multiplexer backend. warmup is the provider-configured
// delay between sending the launch command and pasting the prompt
// (spec.md §4.2 step 4).
func New(warmup time.Duration) *Backend {
	return &Backend{tmux: tmux.New(), warmup: warmup}
}

func (b *Backend) Type() model.RuntimeType { return model.RuntimeLocalMux }

func (b *Backend) Spawn(ctx context.Context, spec backend.Spec) (model.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.SpawnTimeout)
	defer cancel()

	exists, err := b.tmux.HasSession(ctx, spec.SessionName)
	if err != nil {
		return model.Handle{}, fmt.Errorf("checking existing session: %w", err)
	}
	if exists {
		return model.Handle{}, backend.ErrNameConflict
	}

	if err := b.tmux.NewSession(ctx, spec.SessionName, spec.WorkingDir, ""); err != nil {
		return model.Handle{}, fmt.Errorf("spawning local session: %w", err)
	}
	if err := b.tmux.SetOption(ctx, spec.SessionName, "managed", "true"); err != nil {
		return model.Handle{}, fmt.Errorf("labelling session: %w", err)
	}

	if spec.Command != "" {
		if err := b.tmux.SendKeysAndEnter(ctx, spec.SessionName, spec.Command); err != nil {
			return model.Handle{}, fmt.Errorf("launching provider command: %w", err)
		}
	}

	handle := model.Handle{
		Kind:    model.RuntimeLocalMux,
		Session: spec.SessionName,
		Label:   spec.Label,
	}
	return handle, nil
}

func (b *Backend) Kill(ctx context.Context, handle model.Handle) error {
	ctx, cancel := context.WithTimeout(ctx, backend.KillTimeout)
	defer cancel()
	return b.tmux.KillSession(ctx, handle.Session)
}

func (b *Backend) ListManaged(ctx context.Context) ([]model.Handle, error) {
	names, err := b.tmux.ListManagedSessions(ctx, "managed")
	if err != nil {
		return nil, err
	}
	handles := make([]model.Handle, 0, len(names))
	for _, n := range names {
		handles = append(handles, model.Handle{Kind: model.RuntimeLocalMux, Session: n})
	}
	return handles, nil
}

func (b *Backend) Exists(ctx context.Context, handle model.Handle) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.ExistsTimeout)
	defer cancel()
	return b.tmux.HasSession(ctx, handle.Session)
}

func (b *Backend) AttachCommand(handle model.Handle) string {
	return fmt.Sprintf("tmux attach-session -t %s", handle.Session)
}

func (b *Backend) Mux(handle model.Handle) backend.MuxHandle {
	return &muxHandle{tmux: b.tmux, session: handle.Session, warmup: b.warmup}
}

func (b *Backend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, backend.PingTimeout)
	defer cancel()
	if err := b.tmux.Ping(ctx); err != nil {
		return backend.ErrUnreachable
	}
	return nil
}

type muxHandle struct {
	tmux    *tmux.Tmux
	session string
	warmup  time.Duration
}

func (m *muxHandle) SendKeys(ctx context.Context, keys string) error {
	return m.tmux.SendKeysRaw(ctx, m.session, keys)
}

func (m *muxHandle) Paste(ctx context.Context, text string) error {
	return m.tmux.Paste(ctx, m.session, text, m.warmup)
}

func (m *muxHandle) CapturePane(ctx context.Context, lines int) (string, error) {
	return m.tmux.CapturePane(ctx, m.session, lines)
}

func (m *muxHandle) ListWindows(ctx context.Context) ([]string, error) {
	return m.tmux.ListWindows(ctx, m.session)
}

func (m *muxHandle) ListPanes(ctx context.Context) ([]string, error) {
	return m.tmux.ListPanes(ctx, m.session)
}
