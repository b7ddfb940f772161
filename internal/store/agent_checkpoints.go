package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// checkpointRow persists the subset of model.Agent the Reconciler needs to
// survive a daemon restart (spec.md §4.5): Handle and LastProgress are
// JSON-encoded, the rest of Agent is rebuilt in memory by the Supervisor
// once the backend session is confirmed live.
type checkpointRow struct {
	AgentID        string  `db:"agent_id"`
	TaskID         string  `db:"task_id"`
	RuntimeID      string  `db:"runtime_id"`
	Handle         string  `db:"handle"`
	State          string  `db:"state"`
	LastActivityAt model.Millis `db:"last_activity_at"`
	LastProgress   *string `db:"last_progress"`
}

func toCheckpointRow(a model.Agent) (checkpointRow, error) {
	handle, err := json.Marshal(a.Handle)
	if err != nil {
		return checkpointRow{}, fmt.Errorf("encoding agent handle: %w", err)
	}
	var progress *string
	if a.LastProgress != nil {
		b, err := json.Marshal(a.LastProgress)
		if err != nil {
			return checkpointRow{}, fmt.Errorf("encoding agent progress: %w", err)
		}
		s := string(b)
		progress = &s
	}
	return checkpointRow{
		AgentID:        a.ID,
		TaskID:         a.ID,
		RuntimeID:      a.RuntimeID,
		Handle:         string(handle),
		State:          string(a.State),
		LastActivityAt: a.LastActivityAt,
		LastProgress:   progress,
	}, nil
}

func (r checkpointRow) toModel() (model.Agent, error) {
	var handle model.Handle
	if err := json.Unmarshal([]byte(r.Handle), &handle); err != nil {
		return model.Agent{}, fmt.Errorf("decoding agent handle: %w", err)
	}
	var progress *model.Progress
	if r.LastProgress != nil {
		var p model.Progress
		if err := json.Unmarshal([]byte(*r.LastProgress), &p); err != nil {
			return model.Agent{}, fmt.Errorf("decoding agent progress: %w", err)
		}
		progress = &p
	}
	return model.Agent{
		ID:             r.AgentID,
		RuntimeID:      r.RuntimeID,
		Handle:         handle,
		State:          model.AgentState(r.State),
		LastActivityAt: r.LastActivityAt,
		LastProgress:   progress,
	}, nil
}

// PutAgentCheckpoint persists an Agent's live state so the Reconciler can
// rebind it across a restart.
func (s *Store) PutAgentCheckpoint(ctx context.Context, a model.Agent) error {
	row, err := toCheckpointRow(a)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO agent_checkpoints (agent_id, task_id, runtime_id, handle, state, last_activity_at, last_progress)
		VALUES (:agent_id, :task_id, :runtime_id, :handle, :state, :last_activity_at, :last_progress)
		ON CONFLICT(agent_id) DO UPDATE SET
			runtime_id = excluded.runtime_id, handle = excluded.handle, state = excluded.state,
			last_activity_at = excluded.last_activity_at, last_progress = excluded.last_progress`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("putting agent checkpoint %s: %w", a.ID, err)
	}
	return nil
}

// GetAgentCheckpoint fetches a single checkpoint by agent (== task) id.
func (s *Store) GetAgentCheckpoint(ctx context.Context, agentID string) (model.Agent, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM agent_checkpoints WHERE agent_id = ?`, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Agent{}, apperr.Newf(apperr.NotFound, "agent checkpoint %s not found", agentID)
	}
	if err != nil {
		return model.Agent{}, fmt.Errorf("getting agent checkpoint %s: %w", agentID, err)
	}
	return row.toModel()
}

// ListAgentCheckpoints returns every checkpointed Agent, consulted at boot
// by the Reconciler (spec.md §4.5).
func (s *Store) ListAgentCheckpoints(ctx context.Context) ([]model.Agent, error) {
	var rows []checkpointRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM agent_checkpoints`); err != nil {
		return nil, fmt.Errorf("listing agent checkpoints: %w", err)
	}
	out := make([]model.Agent, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// DeleteAgentCheckpoint removes a checkpoint, called once an Agent reaches a
// terminal state (spec.md §8: terminal agents are not reconciled).
func (s *Store) DeleteAgentCheckpoint(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_checkpoints WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("deleting agent checkpoint %s: %w", agentID, err)
	}
	return nil
}
