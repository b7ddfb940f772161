package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
)

// HandlerFunc executes one method call against already-decoded params.
type HandlerFunc func(ctx context.Context, raw json.RawMessage) (any, error)

// DefaultTimeout is applied to every call (spec.md §5: "RPC handlers default to 30s; long operations ... return an
// id immediately and progress via events").
const DefaultTimeout = 30 * time.Second

var validate = validator.New()

// Router holds the single dotted-name method table shared by every
// transport (spec.md §4.6).
type Router struct {
	mu       sync.RWMutex
	methods  map[string]HandlerFunc
	log      *slog.Logger
	events   *eventbus.Bus
}

// New builds an empty Router; call Register (or one of the registerXxx
// namespace builders in this package) to populate the method table.
func New(log *slog.Logger, events *eventbus.Bus) *Router {
	return &Router{methods: make(map[string]HandlerFunc), log: log, events: events}
}

// Register installs one dotted method name.
func (r *Router) Register(method string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = fn
}

// Methods returns every registered method name, for daemon.stats and tests.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.methods))
	for m := range r.methods {
		out = append(out, m)
	}
	return out
}

// Handle dispatches one Request and always returns a Response (never an
// error): transport adapters just serialize the result.
func (r *Router) Handle(ctx context.Context, req Request) Response {
	start := time.Now()

	r.mu.RLock()
	fn, ok := r.methods[req.Method]
	r.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, apperr.Newf(apperr.InvalidParams, "unknown method %q", req.Method))
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	result, err := fn(callCtx, req.Params)
	elapsed := time.Since(start)

	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			r.log.Error("rpc call failed", "method", req.Method, "correlation_id", string(req.ID),
				"elapsed_ms", elapsed.Milliseconds(), "error", err, "stack", string(debug.Stack()))
		} else {
			r.log.Warn("rpc call failed", "method", req.Method, "correlation_id", string(req.ID),
				"elapsed_ms", elapsed.Milliseconds(), "error", err)
		}
		return errorResponse(req.ID, err)
	}
	r.log.Info("rpc call", "method", req.Method, "correlation_id", string(req.ID), "elapsed_ms", elapsed.Milliseconds())
	return resultResponse(req.ID, result)
}

// decodeParams unmarshals raw into a T and runs struct-tag validation,
// returning apperr.InvalidParams (wire code -32602) on either failure
// (spec.md §4.6: "reject with -32602 on failure").
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, apperr.Wrap(apperr.InvalidParams, err, "decoding params")
		}
	}
	if err := validate.Struct(p); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); !ok {
			return p, apperr.Wrap(apperr.InvalidParams, err, "invalid params")
		}
	}
	return p, nil
}
