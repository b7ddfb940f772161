package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// fanoutRunParams is the standalone counterpart to a pipeline fan-out stage
// (spec.md §3, §4.4): spawn count sibling tasks sharing a title/role/lane
// without needing a full PipelineDefinition.
type fanoutRunParams struct {
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description"`
	Role        string        `json:"role"`
	LaneID      string         `json:"laneId"`
	Count       int           `json:"count" validate:"required,min=1,max=64"`
	Overrides   model.Toggles `json:"overrides"`
}

type fanoutRunResult struct {
	GroupID string   `json:"groupId"`
	TaskIDs []string `json:"taskIds"`
}

func registerFanout(r *Router, d Deps) {
	r.Register("fanout.run", func(ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodeParams[fanoutRunParams](raw)
		if err != nil {
			return nil, err
		}

		groupID := ids.New()
		taskIDs := make([]string, 0, p.Count)
		for i := 0; i < p.Count; i++ {
			t, err := submitTask(ctx, d, taskSubmitParams{
				Title:       fmt.Sprintf("%s (%d/%d)", p.Title, i+1, p.Count),
				Description: p.Description,
				Role:        p.Role,
				LaneID:      p.LaneID,
				Tags:        []string{"fanout:" + groupID},
				Overrides:   p.Overrides,
			})
			if err != nil {
				return nil, apperr.Wrap(apperr.Internal, err, fmt.Sprintf("fanning out sibling %d/%d", i+1, p.Count))
			}
			taskIDs = append(taskIDs, t.ID)
		}
		return fanoutRunResult{GroupID: groupID, TaskIDs: taskIDs}, nil
	})
}
