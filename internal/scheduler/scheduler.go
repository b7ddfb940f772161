// Package scheduler implements the kanban task-lifecycle state machine and
// dispatch algorithm (spec.md §4.3). It is grounded on the teacher's
// internal/crew package's per-rig WIP-limited work assignment (a rig caps
// how many polecats/crew it runs concurrently and dispatches from a queue
// the same shape as this lane/task model), generalized from gastown's
// fixed rig roster to an open-ended task backlog.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Scheduler owns the kanban FSM and the periodic dispatch tick.
type Scheduler struct {
	store      Store
	supervisor Supervisor
	events     *eventbus.Bus
	log        *slog.Logger
	cron       *cron.Cron
}

// New builds a Scheduler. Call Start to begin the periodic dispatch tick.
func New(store Store, sup Supervisor, events *eventbus.Bus, log *slog.Logger) *Scheduler {
	return &Scheduler{store: store, supervisor: sup, events: events, log: log}
}

// Start arms the periodic dispatch tick (spec.md §4.3: "periodic tick every
// P_sched ≈ 1 s"), via robfig/cron's `@every` spec rather than a hand-rolled
// ticker goroutine.
func (s *Scheduler) Start(tick time.Duration) {
	s.cron = cron.New()
	_, _ = s.cron.AddFunc(fmt.Sprintf("@every %s", tick.String()), func() {
		if _, err := s.Dispatch(context.Background()); err != nil {
			s.log.Error("dispatch tick failed", "error", err)
		}
	})
	s.cron.Start()
}

// Stop halts the dispatch tick.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// allowedTransitions is the exact edge set of spec.md §4.3's diagram. The
// doing-entry edge (todo -> doing) is intentionally excluded: it may only
// happen through Dispatch, never through a direct Move call.
var allowedTransitions = map[model.Column][]model.Column{
	model.ColumnBacklog: {model.ColumnTodo},
	model.ColumnDoing:   {model.ColumnReview, model.ColumnTodo}, // stop
	model.ColumnReview:  {model.ColumnDone, model.ColumnTodo},   // reject
	model.ColumnTodo:    {model.ColumnDone},                    // cancel only
}

func isAllowed(from, to model.Column) bool {
	for _, c := range allowedTransitions[from] {
		if c == to {
			return true
		}
	}
	return false
}

// Move performs an explicit task.move, validating the transition against
// spec.md §4.3's allowed edges. cancelled must be true when moving
// todo -> done (the only way a task reaches done outside normal completion).
func (s *Scheduler) Move(ctx context.Context, taskID string, to model.Column, cancelled bool) (model.Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if t.Column == to {
		return t, nil
	}
	if !isAllowed(t.Column, to) {
		return model.Task{}, apperr.Newf(apperr.Conflict, "invalid-transition: %s -> %s", t.Column, to).
			WithData(map[string]any{"from": string(t.Column), "to": string(to)})
	}
	if t.Column == model.ColumnTodo && to == model.ColumnDone && !cancelled {
		return model.Task{}, apperr.New(apperr.InvalidParams, "todo -> done requires cancelled=true")
	}

	if t.Column == model.ColumnDoing && (to == model.ColumnReview || to == model.ColumnTodo) {
		s.supervisor.Stop(taskID)
	}

	t.Column = to
	if to == model.ColumnDone {
		now := model.NowMillis()
		t.CompletedAt = &now
		t.Cancelled = cancelled
	}
	if err := s.store.PutTask(ctx, t); err != nil {
		return model.Task{}, err
	}
	s.events.PublishTask(eventbus.EventTaskMoved, taskID, map[string]string{"to": string(to)})
	return t, nil
}

// laneKey returns the lane id a task groups under for dispatch purposes,
// falling back to the unassigned synthetic bucket (spec.md §4.3).
func laneKey(t model.Task) string { return t.EffectiveLaneID() }

// DispatchReport summarizes one Dispatch pass.
type DispatchReport struct {
	Dispatched []string
}

// Dispatch runs spec.md §4.3's algorithm: build the candidate set, group by
// lane, and within each lane pop the top-priority candidate while
// activeCount(lane) < lane.wipLimit.
func (s *Scheduler) Dispatch(ctx context.Context) (DispatchReport, error) {
	todo, err := s.store.ListTasksByColumn(ctx, model.ColumnTodo)
	if err != nil {
		return DispatchReport{}, err
	}
	doing, err := s.store.ListTasksByColumn(ctx, model.ColumnDoing)
	if err != nil {
		return DispatchReport{}, err
	}
	done, err := s.store.ListTasksByColumn(ctx, model.ColumnDone)
	if err != nil {
		return DispatchReport{}, err
	}
	doneIDs := make(map[string]bool, len(done))
	for _, t := range done {
		if !t.Cancelled {
			doneIDs[t.ID] = true
		}
	}

	activeCount := make(map[string]int)
	for _, t := range doing {
		activeCount[laneKey(t)]++
	}

	lanes, err := s.store.ListLanes(ctx)
	if err != nil {
		return DispatchReport{}, err
	}
	laneByID := make(map[string]model.Lane, len(lanes))
	for _, l := range lanes {
		laneByID[l.ID] = l
	}

	candidatesByLane := make(map[string][]model.Task)
	for _, t := range todo {
		if t.Cancelled {
			continue
		}
		if !model.Effective(t.Overrides, laneByID[safeLaneID(t)].DefaultToggles, model.ToggleAutoStart) {
			continue
		}
		if !dependenciesSatisfied(t, doneIDs) {
			continue
		}
		key := laneKey(t)
		candidatesByLane[key] = append(candidatesByLane[key], t)
	}

	var report DispatchReport
	for laneID, candidates := range candidatesByLane {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Priority.Rank() != candidates[j].Priority.Rank() {
				return candidates[i].Priority.Rank() > candidates[j].Priority.Rank()
			}
			return candidates[i].CreatedAt < candidates[j].CreatedAt
		})

		wipLimit := model.WipUnlimited
		var lane model.Lane
		if laneID != model.UnassignedLaneID {
			lane = laneByID[laneID]
			wipLimit = lane.WipLimit
		}

		for _, t := range candidates {
			if wipLimit >= 0 && activeCount[laneID] >= wipLimit {
				break
			}
			if _, err := s.dispatchOne(ctx, t, lane); err != nil {
				s.log.Error("dispatch failed", "task", t.ID, "error", err)
				continue
			}
			activeCount[laneID]++
			report.Dispatched = append(report.Dispatched, t.ID)
		}
	}
	return report, nil
}

func safeLaneID(t model.Task) string {
	if t.LaneID == nil {
		return ""
	}
	return *t.LaneID
}

func dependenciesSatisfied(t model.Task, doneIDs map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if !doneIDs[dep] {
			return false
		}
	}
	return true
}

func (s *Scheduler) dispatchOne(ctx context.Context, t model.Task, lane model.Lane) (model.Agent, error) {
	t.Column = model.ColumnDoing
	now := model.NowMillis()
	t.StartedAt = &now
	if err := s.store.PutTask(ctx, t); err != nil {
		return model.Agent{}, err
	}
	s.events.PublishTask(eventbus.EventTaskMoved, t.ID, map[string]string{"to": string(model.ColumnDoing)})
	return s.supervisor.Spawn(ctx, t, lane)
}

// StartTask dispatches a todo task explicitly, for a task whose autoStart is false (spec.md
// §4.3: "remain in todo until an explicit task.start").
func (s *Scheduler) StartTask(ctx context.Context, taskID string) (model.Agent, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Agent{}, err
	}
	if t.Column != model.ColumnTodo {
		return model.Agent{}, apperr.Newf(apperr.Conflict, "task %s is not in todo", taskID)
	}
	var lane model.Lane
	if t.LaneID != nil {
		lane, err = s.store.GetLane(ctx, *t.LaneID)
		if err != nil {
			return model.Agent{}, err
		}
	}
	return s.dispatchOne(ctx, t, lane)
}
