package rpc

import (
	"context"
	"encoding/json"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

func resolveLaneID(ctx context.Context, d Deps, prefix string) (string, error) {
	lanes, err := d.Store.ListLanes(ctx)
	if err != nil {
		return "", err
	}
	candidates := make([]string, len(lanes))
	for i, l := range lanes {
		candidates[i] = l.ID
	}
	return ids.Resolve(candidates, prefix)
}

type createLaneParams struct {
	Name                string         `json:"name" validate:"required"`
	WorkingDirectory    string         `json:"workingDirectory"`
	Provider            string         `json:"provider"`
	RuntimeID           string         `json:"runtimeId"`
	WipLimit            *int           `json:"wipLimit"`
	Priority            int            `json:"priority"`
	ContextInstructions string         `json:"contextInstructions"`
	DefaultToggles      model.Toggles  `json:"defaultToggles"`
}

type editLaneParams struct {
	ID                  string         `json:"id" validate:"required"`
	Name                *string        `json:"name"`
	WorkingDirectory    *string        `json:"workingDirectory"`
	Provider            *string        `json:"provider"`
	RuntimeID           *string        `json:"runtimeId"`
	WipLimit            *int           `json:"wipLimit"`
	Priority            *int           `json:"priority"`
	ContextInstructions *string        `json:"contextInstructions"`
	DefaultToggles      *model.Toggles `json:"defaultToggles"`
}

type laneIDParams struct {
	ID string `json:"id" validate:"required"`
}

// board is the result shape for lane.getBoard / kanban.getBoard: tasks
// grouped by column only, with the lane list alongside; tasks within a
// column are not grouped by lane.
type board struct {
	Lanes  []model.Lane            `json:"lanes"`
	Tasks  map[model.Column][]model.Task `json:"tasks"`
}

func registerLane(r *Router, d Deps) {
	list := func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Store.ListLanes(ctx)
	}
	r.Register("lane.lanes", list)
	r.Register("kanban.lanes", list)

	create := func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[createLaneParams](raw)
		if err != nil {
			return nil, err
		}
		if _, err := d.Store.GetLaneByName(ctx, p.Name); err == nil {
			return nil, apperr.Newf(apperr.Conflict, "lane %q already exists", p.Name)
		}
		wip := model.WipUnlimited
		if p.WipLimit != nil {
			wip = *p.WipLimit
		}
		lane := model.Lane{
			ID:                  ids.New(),
			Name:                p.Name,
			WorkingDirectory:    p.WorkingDirectory,
			Provider:            p.Provider,
			WipLimit:            wip,
			Priority:            p.Priority,
			ContextInstructions: p.ContextInstructions,
			DefaultToggles:      p.DefaultToggles,
			CreatedAt:           model.NowMillis(),
		}
		if p.RuntimeID != "" {
			lane.RuntimeID = &p.RuntimeID
		}
		if err := d.Store.PutLane(ctx, lane); err != nil {
			return nil, err
		}
		return lane, nil
	}
	r.Register("lane.createLane", create)
	r.Register("kanban.createLane", create)

	edit := func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[editLaneParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolveLaneID(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		lane, err := d.Store.GetLane(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Name != nil {
			lane.Name = *p.Name
		}
		if p.WorkingDirectory != nil {
			lane.WorkingDirectory = *p.WorkingDirectory
		}
		if p.Provider != nil {
			lane.Provider = *p.Provider
		}
		if p.RuntimeID != nil {
			lane.RuntimeID = p.RuntimeID
		}
		if p.WipLimit != nil {
			lane.WipLimit = *p.WipLimit
		}
		if p.Priority != nil {
			lane.Priority = *p.Priority
		}
		if p.ContextInstructions != nil {
			lane.ContextInstructions = *p.ContextInstructions
		}
		if p.DefaultToggles != nil {
			lane.DefaultToggles = *p.DefaultToggles
		}
		if err := d.Store.PutLane(ctx, lane); err != nil {
			return nil, err
		}
		return lane, nil
	}
	r.Register("lane.editLane", edit)
	r.Register("kanban.editLane", edit)

	del := func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[laneIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolveLaneID(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if err := d.Store.DeleteLane(ctx, id); err != nil {
			return nil, err
		}
		return struct {
			Removed string `json:"removed"`
		}{id}, nil
	}
	r.Register("lane.deleteLane", del)
	r.Register("kanban.deleteLane", del)

	getBoard := func(ctx context.Context, raw json.RawMessage) (any, error) {
		lanes, err := d.Store.ListLanes(ctx)
		if err != nil {
			return nil, err
		}
		b := board{Lanes: lanes, Tasks: make(map[model.Column][]model.Task)}
		for _, col := range []model.Column{model.ColumnBacklog, model.ColumnTodo, model.ColumnDoing, model.ColumnReview, model.ColumnDone} {
			tasks, err := d.Store.ListTasksByColumn(ctx, col)
			if err != nil {
				return nil, err
			}
			b.Tasks[col] = tasks
		}
		return b, nil
	}
	r.Register("lane.getBoard", getBoard)
	r.Register("kanban.getBoard", getBoard)
}
