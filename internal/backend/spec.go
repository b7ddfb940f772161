// Package backend defines the uniform Backend Adapter contract (spec.md
// §4.1) implemented once per runtime type: local-mux, remote-shell,
// container, pod. It is grounded on the teacher's internal/terminal.Backend
// interface, generalized from gastown's tmux-pane-specific operations to the
// fuller spawn/kill/list/attach/ping contract spec.md asks for.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// ErrNotSupported is returned by a Backend method not meaningful for a given
// implementation (mirrors the teacher's terminal.ErrNotSupported).
var ErrNotSupported = errors.New("operation not supported by this backend")

// Spec describes the session a caller wants spawned (spec.md §4.1).
type Spec struct {
	SessionName string
	WorkingDir  string
	Env         map[string]string
	Command     string // provider CLI command line, e.g. "claude"
	// Resource hints, applicable to container/pod backends only.
	CPU    string
	Memory string
	// Image/Namespace/Host are applicable as the runtime.Type requires.
	Image     string
	Namespace string
	Host      string
	Label     model.Label
}

// Failure modes a Spawn call can report, wrapped as apperr.BackendFailure /
// apperr.BackendUnreachable by the caller.
var (
	ErrUnreachable   = errors.New("backend unreachable")
	ErrImageMissing  = errors.New("image missing")
	ErrResourceDenied = errors.New("resource denied")
	ErrNameConflict  = errors.New("session name conflict")
)

// MuxHandle is the small, uniform API for driving a multiplexer pane within
// a target, regardless of which backend hosts it (spec.md §4.1).
type MuxHandle interface {
	SendKeys(ctx context.Context, keys string) error
	Paste(ctx context.Context, text string) error
	CapturePane(ctx context.Context, lines int) (string, error)
	ListWindows(ctx context.Context) ([]string, error)
	ListPanes(ctx context.Context) ([]string, error)
}

// Backend is the uniform interface over {local-mux, remote-shell, container,
// pod} (spec.md §4.1).
type Backend interface {
	// Type returns the runtime type this Backend implements.
	Type() model.RuntimeType

	// Spawn creates a fresh multiplexer session on the target.
	Spawn(ctx context.Context, spec Spec) (model.Handle, error)

	// Kill stops the session and releases the target. Idempotent.
	Kill(ctx context.Context, handle model.Handle) error

	// ListManaged enumerates sessions previously created by this daemon on
	// this backend, identified by the well-known label.
	ListManaged(ctx context.Context) ([]model.Handle, error)

	// Exists is a cheap liveness probe.
	Exists(ctx context.Context, handle model.Handle) (bool, error)

	// AttachCommand returns a shell-ready command a client can exec to drop
	// the user into the pane.
	AttachCommand(handle model.Handle) string

	// Mux returns the uniform multiplexer handle for operating within the
	// target.
	Mux(handle model.Handle) MuxHandle

	// Ping reports whether the backend is reachable at all.
	Ping(ctx context.Context) error
}

// Timeouts used by backend calls (spec.md §5: "short for exists/ping, long
// for spawn").
const (
	PingTimeout   = 5 * time.Second
	ExistsTimeout = 5 * time.Second
	SpawnTimeout  = 30 * time.Second
	KillTimeout   = 10 * time.Second
	ExecTimeout   = 10 * time.Second
)
