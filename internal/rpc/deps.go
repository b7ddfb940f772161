package rpc

import (
	"log/slog"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
)

// Deps bundles every subsystem the method table dispatches into. One Deps
// is built once at daemon boot and shared by every transport.
type Deps struct {
	Store       Store
	Scheduler   Scheduler
	Supervisor  Supervisor
	Pipelines   Pipelines
	Backends    BackendRegistry
	Reconciler  Reconciler
	Health      HealthMonitor
	Events      *eventbus.Bus
	Config      *config.Config
	Log         *slog.Logger
	Version     string
	StartedAt   int64
	ReloadFn    func() (config.Config, error)
	ShutdownFn  func()
}

// NewRouter builds a Router with every namespace registered (daemon.*,
// runtime.*, lane.*/kanban.*, task.*, agent.*, pipeline.*, team.*,
// fanout.run), per spec.md §6.
func NewRouter(d Deps) *Router {
	r := New(d.Log, d.Events)
	registerDaemon(r, d)
	registerRuntime(r, d)
	registerLane(r, d)
	registerTask(r, d)
	registerAgent(r, d)
	registerPipeline(r, d)
	registerTeam(r, d)
	registerFanout(r, d)
	return r
}
