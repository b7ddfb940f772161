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

// laneRow is the wire shape persisted to the lanes table; model.Lane's
// DefaultToggles is JSON-encoded into a single TEXT column, the same
// denormalization used for Task.Overrides below.
type laneRow struct {
	ID                  string  `db:"id"`
	Name                string  `db:"name"`
	WorkingDirectory    string  `db:"working_directory"`
	Provider            string  `db:"provider"`
	RuntimeID           *string `db:"runtime_id"`
	WipLimit            int     `db:"wip_limit"`
	Priority            int     `db:"priority"`
	ContextInstructions string  `db:"context_instructions"`
	MemoryFileID        *string `db:"memory_file_id"`
	DefaultToggles      string  `db:"default_toggles"`
	CreatedAt           model.Millis `db:"created_at"`
}

func toLaneRow(l model.Lane) (laneRow, error) {
	toggles, err := json.Marshal(l.DefaultToggles)
	if err != nil {
		return laneRow{}, fmt.Errorf("encoding lane toggles: %w", err)
	}
	return laneRow{
		ID:                  l.ID,
		Name:                l.Name,
		WorkingDirectory:    l.WorkingDirectory,
		Provider:            l.Provider,
		RuntimeID:           l.RuntimeID,
		WipLimit:            l.WipLimit,
		Priority:            l.Priority,
		ContextInstructions: l.ContextInstructions,
		MemoryFileID:        l.MemoryFileID,
		DefaultToggles:      string(toggles),
		CreatedAt:           l.CreatedAt,
	}, nil
}

func (r laneRow) toModel() (model.Lane, error) {
	var toggles model.Toggles
	if r.DefaultToggles != "" {
		if err := json.Unmarshal([]byte(r.DefaultToggles), &toggles); err != nil {
			return model.Lane{}, fmt.Errorf("decoding lane toggles: %w", err)
		}
	}
	return model.Lane{
		ID:                  r.ID,
		Name:                r.Name,
		WorkingDirectory:    r.WorkingDirectory,
		Provider:            r.Provider,
		RuntimeID:           r.RuntimeID,
		WipLimit:            r.WipLimit,
		Priority:            r.Priority,
		ContextInstructions: r.ContextInstructions,
		MemoryFileID:        r.MemoryFileID,
		DefaultToggles:      toggles,
		CreatedAt:           r.CreatedAt,
	}, nil
}

// PutLane inserts or replaces a Lane row.
func (s *Store) PutLane(ctx context.Context, l model.Lane) error {
	row, err := toLaneRow(l)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO lanes (id, name, working_directory, provider, runtime_id, wip_limit,
			priority, context_instructions, memory_file_id, default_toggles, created_at)
		VALUES (:id, :name, :working_directory, :provider, :runtime_id, :wip_limit,
			:priority, :context_instructions, :memory_file_id, :default_toggles, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, working_directory = excluded.working_directory,
			provider = excluded.provider, runtime_id = excluded.runtime_id,
			wip_limit = excluded.wip_limit, priority = excluded.priority,
			context_instructions = excluded.context_instructions,
			memory_file_id = excluded.memory_file_id, default_toggles = excluded.default_toggles`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("putting lane %s: %w", l.ID, err)
	}
	return nil
}

// GetLane fetches a single Lane by id.
func (s *Store) GetLane(ctx context.Context, id string) (model.Lane, error) {
	var row laneRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM lanes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lane{}, apperr.Newf(apperr.NotFound, "lane %s not found", id)
	}
	if err != nil {
		return model.Lane{}, fmt.Errorf("getting lane %s: %w", id, err)
	}
	return row.toModel()
}

// GetLaneByName fetches a single Lane by its unique name.
func (s *Store) GetLaneByName(ctx context.Context, name string) (model.Lane, error) {
	var row laneRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM lanes WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lane{}, apperr.Newf(apperr.NotFound, "lane %q not found", name)
	}
	if err != nil {
		return model.Lane{}, fmt.Errorf("getting lane %q: %w", name, err)
	}
	return row.toModel()
}

// ListLanes returns every Lane row.
func (s *Store) ListLanes(ctx context.Context) ([]model.Lane, error) {
	var rows []laneRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM lanes ORDER BY priority DESC, created_at`); err != nil {
		return nil, fmt.Errorf("listing lanes: %w", err)
	}
	out := make([]model.Lane, 0, len(rows))
	for _, row := range rows {
		l, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// DeleteLane removes a Lane row.
func (s *Store) DeleteLane(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lanes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting lane %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "lane %s not found", id)
	}
	return nil
}
