package rpc

import (
	"context"
	"encoding/json"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

func resolveTeamID(ctx context.Context, d Deps, prefix string) (string, error) {
	teams, err := d.Store.ListTeams(ctx)
	if err != nil {
		return "", err
	}
	candidates := make([]string, len(teams))
	for i, tm := range teams {
		candidates[i] = tm.ID
	}
	return ids.Resolve(candidates, prefix)
}

type teamCreateParams struct {
	Name    string   `json:"name" validate:"required"`
	LaneIDs []string `json:"laneIds"`
}

type teamIDParams struct {
	ID string `json:"id" validate:"required"`
}

type teamQuickParams struct {
	TeamID      string `json:"teamId" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// teamLane picks the lane a team.quick* call submits into: the first lane
// of the team's roster. There is no load-balancing between a team's lanes
// here — that is left to the scheduler's own WIP-limited dispatch.
func teamLane(ctx context.Context, d Deps, teamID string) (string, error) {
	id, err := resolveTeamID(ctx, d, teamID)
	if err != nil {
		return "", err
	}
	team, err := d.Store.GetTeam(ctx, id)
	if err != nil {
		return "", err
	}
	if len(team.LaneIDs) == 0 {
		return "", apperr.Newf(apperr.Conflict, "team %s has no lanes", team.Name)
	}
	return team.LaneIDs[0], nil
}

func registerTeam(r *Router, d Deps) {
	r.Register("team.list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Store.ListTeams(ctx)
	})

	r.Register("team.create", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[teamCreateParams](raw)
		if err != nil {
			return nil, err
		}
		team := model.Team{ID: ids.New(), Name: p.Name, LaneIDs: p.LaneIDs, CreatedAt: model.NowMillis()}
		if err := d.Store.PutTeam(ctx, team); err != nil {
			return nil, err
		}
		return team, nil
	})

	r.Register("team.delete", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[teamIDParams](raw)
		if err != nil {
			return nil, err
		}
		id, err := resolveTeamID(ctx, d, p.ID)
		if err != nil {
			return nil, err
		}
		if err := d.Store.DeleteTeam(ctx, id); err != nil {
			return nil, err
		}
		return struct {
			Removed string `json:"removed"`
		}{id}, nil
	})

	r.Register("team.quickCode", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[teamQuickParams](raw)
		if err != nil {
			return nil, err
		}
		laneID, err := teamLane(ctx, d, p.TeamID)
		if err != nil {
			return nil, err
		}
		return submitTask(ctx, d, taskSubmitParams{
			Title:       p.Title,
			Description: p.Description,
			Role:        "coder",
			LaneID:      laneID,
			Overrides:   model.Toggles{AutoStart: model.BoolPtr(true)},
		})
	})

	r.Register("team.quickResearch", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[teamQuickParams](raw)
		if err != nil {
			return nil, err
		}
		laneID, err := teamLane(ctx, d, p.TeamID)
		if err != nil {
			return nil, err
		}
		return submitTask(ctx, d, taskSubmitParams{
			Title:       p.Title,
			Description: p.Description,
			Role:        "research",
			LaneID:      laneID,
			Overrides:   model.Toggles{AutoStart: model.BoolPtr(true)},
		})
	})
}
