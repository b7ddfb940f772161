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

type pipelineDefRow struct {
	ID     string `db:"id"`
	Name   string `db:"name"`
	Stages string `db:"stages"`
}

func toPipelineDefRow(p model.PipelineDefinition) (pipelineDefRow, error) {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return pipelineDefRow{}, fmt.Errorf("encoding pipeline stages: %w", err)
	}
	return pipelineDefRow{ID: p.ID, Name: p.Name, Stages: string(stages)}, nil
}

func (r pipelineDefRow) toModel() (model.PipelineDefinition, error) {
	var stages []model.Stage
	if err := json.Unmarshal([]byte(r.Stages), &stages); err != nil {
		return model.PipelineDefinition{}, fmt.Errorf("decoding pipeline stages: %w", err)
	}
	return model.PipelineDefinition{ID: r.ID, Name: r.Name, Stages: stages}, nil
}

// PutPipelineDefinition inserts or replaces a PipelineDefinition row.
func (s *Store) PutPipelineDefinition(ctx context.Context, p model.PipelineDefinition) error {
	row, err := toPipelineDefRow(p)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO pipeline_definitions (id, name, stages)
		VALUES (:id, :name, :stages)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, stages = excluded.stages`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("putting pipeline definition %s: %w", p.ID, err)
	}
	return nil
}

// GetPipelineDefinition fetches a single PipelineDefinition by id.
func (s *Store) GetPipelineDefinition(ctx context.Context, id string) (model.PipelineDefinition, error) {
	var row pipelineDefRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM pipeline_definitions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PipelineDefinition{}, apperr.Newf(apperr.NotFound, "pipeline %s not found", id)
	}
	if err != nil {
		return model.PipelineDefinition{}, fmt.Errorf("getting pipeline %s: %w", id, err)
	}
	return row.toModel()
}

// ListPipelineDefinitions returns every PipelineDefinition row.
func (s *Store) ListPipelineDefinitions(ctx context.Context) ([]model.PipelineDefinition, error) {
	var rows []pipelineDefRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pipeline_definitions ORDER BY name`); err != nil {
		return nil, fmt.Errorf("listing pipeline definitions: %w", err)
	}
	out := make([]model.PipelineDefinition, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DeletePipelineDefinition removes a PipelineDefinition row.
func (s *Store) DeletePipelineDefinition(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting pipeline %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "pipeline %s not found", id)
	}
	return nil
}

type pipelineRunRow struct {
	ID          string  `db:"id"`
	PipelineID  string  `db:"pipeline_id"`
	Status      string  `db:"status"`
	StageStates string  `db:"stage_states"`
	StartedAt   model.Millis  `db:"started_at"`
	EndedAt     *model.Millis `db:"ended_at"`
}

func toPipelineRunRow(r model.PipelineRun) (pipelineRunRow, error) {
	states, err := json.Marshal(r.StageStates)
	if err != nil {
		return pipelineRunRow{}, fmt.Errorf("encoding stage states: %w", err)
	}
	return pipelineRunRow{
		ID:          r.ID,
		PipelineID:  r.PipelineID,
		Status:      string(r.Status),
		StageStates: string(states),
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}, nil
}

func (r pipelineRunRow) toModel() (model.PipelineRun, error) {
	states := map[string]model.StageState{}
	if r.StageStates != "" {
		if err := json.Unmarshal([]byte(r.StageStates), &states); err != nil {
			return model.PipelineRun{}, fmt.Errorf("decoding stage states: %w", err)
		}
	}
	return model.PipelineRun{
		ID:          r.ID,
		PipelineID:  r.PipelineID,
		Status:      model.RunStatus(r.Status),
		StageStates: states,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}, nil
}

// PutPipelineRun inserts or replaces a PipelineRun row.
func (s *Store) PutPipelineRun(ctx context.Context, run model.PipelineRun) error {
	row, err := toPipelineRunRow(run)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO pipeline_runs (id, pipeline_id, status, stage_states, started_at, ended_at)
		VALUES (:id, :pipeline_id, :status, :stage_states, :started_at, :ended_at)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, stage_states = excluded.stage_states, ended_at = excluded.ended_at`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("putting pipeline run %s: %w", run.ID, err)
	}
	return nil
}

// GetPipelineRun fetches a single PipelineRun by id.
func (s *Store) GetPipelineRun(ctx context.Context, id string) (model.PipelineRun, error) {
	var row pipelineRunRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM pipeline_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PipelineRun{}, apperr.Newf(apperr.NotFound, "pipeline run %s not found", id)
	}
	if err != nil {
		return model.PipelineRun{}, fmt.Errorf("getting pipeline run %s: %w", id, err)
	}
	return row.toModel()
}

// ListPipelineRuns returns every PipelineRun row, most recently started first.
func (s *Store) ListPipelineRuns(ctx context.Context) ([]model.PipelineRun, error) {
	var rows []pipelineRunRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pipeline_runs ORDER BY started_at DESC`); err != nil {
		return nil, fmt.Errorf("listing pipeline runs: %w", err)
	}
	out := make([]model.PipelineRun, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ListActivePipelineRuns returns runs in pending or running status, consulted
// by the Reconciler at boot (spec.md §4.5).
func (s *Store) ListActivePipelineRuns(ctx context.Context) ([]model.PipelineRun, error) {
	var rows []pipelineRunRow
	const q = `SELECT * FROM pipeline_runs WHERE status IN ('pending', 'running') ORDER BY started_at`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("listing active pipeline runs: %w", err)
	}
	out := make([]model.PipelineRun, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
