// Package reconciler rebinds the durable agent model to still-live backend
// sessions at boot (spec.md §4.5), grounded on the teacher's
// internal/session stale-detection and identity-labelling idiom
// (internal/session/stale.go, internal/session/identity.go): ask each
// backend whether a session it created is still alive, using the same
// well-known label the supervisor stamps onto every spawned session.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// OrphanPolicy controls what Reconcile does with a listManaged session that
// carries the daemon's label but has no matching task row (spec.md §9 open
// question 2, resolved in SPEC_FULL.md §D.2).
type OrphanPolicy string

const (
	OrphanKill  OrphanPolicy = "kill"
	OrphanAdopt OrphanPolicy = "adopt"
)

// Reconciler rebinds durable Agent checkpoints to live backend sessions.
type Reconciler struct {
	store      Store
	supervisor Supervisor
	registry   Registry
	events     *eventbus.Bus
	log        *slog.Logger
	orphans    OrphanPolicy
}

// New builds a Reconciler.
func New(store Store, sup Supervisor, registry Registry, events *eventbus.Bus, orphans OrphanPolicy, log *slog.Logger) *Reconciler {
	if orphans == "" {
		orphans = OrphanKill
	}
	return &Reconciler{store: store, supervisor: sup, registry: registry, events: events, orphans: orphans, log: log}
}

// Report summarizes one Reconcile pass (spec.md §4.5: "reports counts of
// reconnected/lost/orphaned entries").
type Report struct {
	Reconnected []string
	Lost        []string
	Orphaned    []string
}

// Reconcile runs the full boot-time reconciliation: rebind every doing-task
// agent checkpoint against its backend, then sweep every registered
// runtime's listManaged sessions for orphans.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	var report Report

	doing, err := r.store.ListTasksByColumn(ctx, model.ColumnDoing)
	if err != nil {
		return report, fmt.Errorf("listing doing tasks: %w", err)
	}
	for _, t := range doing {
		reconnected, err := r.reconcileOne(ctx, t)
		if err != nil {
			r.log.Error("reconciling task", "task", t.ID, "error", err)
			continue
		}
		if reconnected {
			report.Reconnected = append(report.Reconnected, t.ID)
		} else {
			report.Lost = append(report.Lost, t.ID)
		}
	}

	orphaned, err := r.sweepOrphans(ctx)
	if err != nil {
		r.log.Error("sweeping orphans", "error", err)
	}
	report.Orphaned = orphaned

	r.log.Info("reconciliation complete",
		"reconnected", len(report.Reconnected), "lost", len(report.Lost), "orphaned", len(report.Orphaned))
	return report, nil
}

// reconcileOne handles a single doing-column task: true means the backend
// session is still alive and the supervisor loop has been resumed; false
// means it was marked lost and the task demoted back to todo.
func (r *Reconciler) reconcileOne(ctx context.Context, t model.Task) (bool, error) {
	agent, err := r.store.GetAgentCheckpoint(ctx, t.ID)
	if err != nil {
		// No checkpoint at all (e.g. crash mid-spawn, before the first
		// checkpoint write) is treated the same as a dead session.
		r.demote(ctx, t)
		return false, nil
	}

	rt, err := r.store.GetRuntime(ctx, agent.RuntimeID)
	if err != nil {
		r.markLost(ctx, t, agent)
		return false, nil
	}
	be, err := r.registry.Ensure(rt)
	if err != nil {
		r.markLost(ctx, t, agent)
		return false, nil
	}

	alive, err := be.Exists(ctx, agent.Handle)
	if err != nil || !alive {
		r.markLost(ctx, t, agent)
		return false, nil
	}

	provider := t.Provider
	if provider == "" && t.LaneID != nil {
		if lane, err := r.store.GetLane(ctx, *t.LaneID); err == nil {
			provider = lane.Provider
		}
	}
	agent.State = model.AgentWorking
	r.supervisor.Resume(agent, be, provider)
	r.events.PublishTask(eventbus.EventAgentReconnected, t.ID, agent)
	return true, nil
}

func (r *Reconciler) markLost(ctx context.Context, t model.Task, agent model.Agent) {
	agent.State = model.AgentLost
	_ = r.store.PutAgentCheckpoint(ctx, agent)
	r.demote(ctx, t)
	r.events.PublishTask(eventbus.EventAgentLost, t.ID, nil)
}

// demote moves a task whose backend session did not survive the restart
// back to todo, preserving the dependency graph (spec.md §4.5), and drops
// its now-meaningless checkpoint.
func (r *Reconciler) demote(ctx context.Context, t model.Task) {
	_ = r.store.DeleteAgentCheckpoint(ctx, t.ID)
	t.Column = model.ColumnTodo
	t.AssignedAgentID = nil
	_ = r.store.PutTask(ctx, t)
}

// sweepOrphans asks every registered runtime's backend for its managed
// sessions and reconciles each against the task table: a managed session
// whose label names a task id we don't have is either killed or adopted as
// a review-column placeholder, per r.orphans.
func (r *Reconciler) sweepOrphans(ctx context.Context) ([]string, error) {
	runtimes, err := r.store.ListRuntimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing runtimes: %w", err)
	}

	var orphaned []string
	for _, rt := range runtimes {
		be, err := r.registry.Ensure(rt)
		if err != nil {
			r.log.Warn("skipping orphan sweep, backend unavailable", "runtime", rt.ID, "error", err)
			continue
		}
		handles, err := be.ListManaged(ctx)
		if err != nil {
			r.log.Warn("listManaged failed", "runtime", rt.ID, "error", err)
			continue
		}
		for _, h := range handles {
			if h.Label.AgentID == "" {
				continue
			}
			if _, err := r.store.GetTask(ctx, h.Label.AgentID); err == nil {
				continue // still a live task, not an orphan
			}
			orphaned = append(orphaned, h.Session)
			if err := r.handleOrphan(ctx, be, h); err != nil {
				r.log.Error("handling orphan session", "session", h.Session, "error", err)
			}
		}
	}
	return orphaned, nil
}

func (r *Reconciler) handleOrphan(ctx context.Context, be interface {
	Kill(ctx context.Context, handle model.Handle) error
}, h model.Handle) error {
	switch r.orphans {
	case OrphanAdopt:
		t := model.Task{
			ID:        h.Label.AgentID,
			Title:     fmt.Sprintf("imported session %s", h.Label.SessionName),
			Column:    model.ColumnReview,
			Provider:  h.Label.Provider,
			CreatedAt: model.NowMillis(),
		}
		if t.ID == "" {
			t.ID = ids.New()
		}
		return r.store.PutTask(ctx, t)
	default:
		return be.Kill(ctx, h)
	}
}
