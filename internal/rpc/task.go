package rpc

import (
	"context"
	"encoding/json"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

type taskListParams struct {
	LaneID string `json:"laneId"`
}

type taskSubmitParams struct {
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	Role        string        `json:"role"`
	LaneID      string        `json:"laneId"`
	DependsOn   []string      `json:"dependsOn"`
	Tags        []string      `json:"tags"`
	Overrides   model.Toggles `json:"overrides"`
	Workdir     string        `json:"workdir"`
	Provider    string        `json:"provider"`
	Model       string        `json:"model"`
	RuntimeID   string        `json:"runtimeId"`
}

type taskIDParams struct {
	ID string `json:"id" validate:"required"`
}

type taskUpdateParams struct {
	ID          string         `json:"id" validate:"required"`
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority"`
	Role        *string        `json:"role"`
	LaneID      *string        `json:"laneId"`
	DependsOn   *[]string      `json:"dependsOn"`
	Tags        *[]string      `json:"tags"`
	Overrides   *model.Toggles `json:"overrides"`
	Workdir     *string        `json:"workdir"`
	Provider    *string        `json:"provider"`
	Model       *string        `json:"model"`
	RuntimeID   *string        `json:"runtimeId"`
}

type taskMoveParams struct {
	ID        string `json:"id" validate:"required"`
	To        string `json:"to" validate:"required,oneof=backlog todo doing review done"`
	Cancelled bool   `json:"cancelled"`
}

func resolveTask(ctx context.Context, d Deps, idOrPrefix string) (model.Task, error) {
	id, err := d.Store.ResolveTaskID(ctx, idOrPrefix)
	if err != nil {
		return model.Task{}, err
	}
	return d.Store.GetTask(ctx, id)
}

// wouldCycle reports whether setting task id's dependsOn to deps would
// introduce a cycle in the dependsOn DAG (spec.md §8: "task.dependsOn forms
// a DAG at all times").
func wouldCycle(ctx context.Context, d Deps, id string, deps []string) (bool, error) {
	all, err := d.Store.ListTasks(ctx, "")
	if err != nil {
		return false, err
	}
	edges := make(map[string][]string, len(all))
	for _, t := range all {
		edges[t.ID] = t.DependsOn
	}
	edges[id] = deps

	visiting := map[string]bool{}
	visited := map[string]bool{}
	var dfs func(n string) bool
	dfs = func(n string) bool {
		if visiting[n] {
			return true
		}
		if visited[n] {
			return false
		}
		visiting[n] = true
		for _, dep := range edges[n] {
			if dfs(dep) {
				return true
			}
		}
		visiting[n] = false
		visited[n] = true
		return false
	}
	return dfs(id), nil
}

// submitTask builds and persists a new Task from submit params, shared by
// task.submit and the team.* quick-submit convenience methods.
func submitTask(ctx context.Context, d Deps, p taskSubmitParams) (model.Task, error) {
	id := ids.New()
	if cyc, err := wouldCycle(ctx, d, id, p.DependsOn); err != nil {
		return model.Task{}, err
	} else if cyc {
		return model.Task{}, apperr.New(apperr.Conflict, "dependsOn would introduce a cycle")
	}

	priority := model.Priority(p.Priority)
	if priority == "" {
		priority = model.PriorityMedium
	}

	var laneDefaults model.Toggles
	if p.LaneID != "" {
		lane, err := d.Store.GetLane(ctx, p.LaneID)
		if err != nil {
			return model.Task{}, err
		}
		laneDefaults = lane.DefaultToggles
	}

	t := model.Task{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		Column:      model.ColumnTodo,
		Priority:    priority,
		Role:        p.Role,
		DependsOn:   p.DependsOn,
		Tags:        p.Tags,
		Overrides:   model.StampInherited(p.Overrides, laneDefaults),
		Workdir:     p.Workdir,
		Provider:    p.Provider,
		Model:       p.Model,
		CreatedAt:   model.NowMillis(),
	}
	if p.LaneID != "" {
		t.LaneID = &p.LaneID
	}
	if p.RuntimeID != "" {
		t.RuntimeID = &p.RuntimeID
	}
	if err := d.Store.PutTask(ctx, t); err != nil {
		return model.Task{}, err
	}
	d.Events.PublishTask(eventbus.EventTaskCreated, t.ID, nil)
	return t, nil
}

func registerTask(r *Router, d Deps) {
	r.Register("task.list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskListParams](raw)
		if err != nil {
			return nil, err
		}
		return d.Store.ListTasks(ctx, p.LaneID)
	})

	r.Register("task.submit", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskSubmitParams](raw)
		if err != nil {
			return nil, err
		}
		return submitTask(ctx, d, p)
	})

	r.Register("task.get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		return resolveTask(ctx, d, p.ID)
	})

	r.Register("task.update", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskUpdateParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Priority != nil {
			t.Priority = model.Priority(*p.Priority)
		}
		if p.Role != nil {
			t.Role = *p.Role
		}
		if p.LaneID != nil {
			t.LaneID = p.LaneID
		}
		if p.DependsOn != nil {
			if cyc, err := wouldCycle(ctx, d, t.ID, *p.DependsOn); err != nil {
				return nil, err
			} else if cyc {
				return nil, apperr.New(apperr.Conflict, "dependsOn would introduce a cycle")
			}
			t.DependsOn = *p.DependsOn
		}
		if p.Tags != nil {
			t.Tags = *p.Tags
		}
		if p.Overrides != nil {
			t.Overrides = *p.Overrides
		}
		if p.Workdir != nil {
			t.Workdir = *p.Workdir
		}
		if p.Provider != nil {
			t.Provider = *p.Provider
		}
		if p.Model != nil {
			t.Model = *p.Model
		}
		if p.RuntimeID != nil {
			t.RuntimeID = p.RuntimeID
		}
		if err := d.Store.PutTask(ctx, t); err != nil {
			return nil, err
		}
		d.Events.PublishTask(eventbus.EventTaskUpdated, t.ID, nil)
		return t, nil
	})

	r.Register("task.move", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskMoveParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := d.Store.ResolveTaskID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return d.Scheduler.Move(ctx, id, model.Column(p.To), p.Cancelled)
	})

	r.Register("task.start", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := d.Store.ResolveTaskID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return d.Scheduler.StartTask(ctx, id)
	})

	r.Register("task.stop", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		d.Supervisor.Stop(t.ID)
		return t, nil
	})

	r.Register("task.cancel", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if t.Column == model.ColumnDone {
			return t, nil
		}
		if t.Column == model.ColumnDoing {
			d.Supervisor.Stop(t.ID)
			if _, err := d.Scheduler.Move(ctx, t.ID, model.ColumnTodo, false); err != nil {
				return nil, err
			}
		}
		if t.Column == model.ColumnBacklog {
			if _, err := d.Scheduler.Move(ctx, t.ID, model.ColumnTodo, false); err != nil {
				return nil, err
			}
		}
		return d.Scheduler.Move(ctx, t.ID, model.ColumnDone, true)
	})

	r.Register("task.close", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		return d.Scheduler.Move(ctx, t.ID, model.ColumnDone, false)
	})

	r.Register("task.delete", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if t.Column == model.ColumnDoing {
			d.Supervisor.Stop(t.ID)
		}
		if err := d.Store.DeleteTask(ctx, t.ID); err != nil {
			return nil, err
		}
		d.Events.PublishTask(eventbus.EventTaskDeleted, t.ID, nil)
		return struct {
			Removed string `json:"removed"`
		}{t.ID}, nil
	})

	r.Register("task.output", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		return struct {
			Output string `json:"output"`
		}{t.Output}, nil
	})

	r.Register("task.watch", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[taskIDParams](raw)
		if err != nil {
			return nil, err
		}
		t, err := resolveTask(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if t.Column == model.ColumnDone || t.Column == model.ColumnReview {
			return t, nil
		}
		events, unsubscribe := d.Events.Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return t, ctx.Err()
			case ev := <-events:
				if ev.TaskID != t.ID {
					continue
				}
				if ev.Type != eventbus.EventTaskMoved && ev.Type != eventbus.EventAgentLost {
					continue
				}
				cur, err := d.Store.GetTask(ctx, t.ID)
				if err != nil {
					return nil, err
				}
				if cur.Column == model.ColumnDone || cur.Column == model.ColumnReview {
					return cur, nil
				}
			}
		}
	})
}
