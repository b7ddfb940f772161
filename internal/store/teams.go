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

// teamRow persists model.Team, with LaneIDs JSON-denormalized the same way
// Task.DependsOn/Tags are.
type teamRow struct {
	ID        string       `db:"id"`
	Name      string       `db:"name"`
	LaneIDs   string       `db:"lane_ids"`
	CreatedAt model.Millis `db:"created_at"`
}

func toTeamRow(t model.Team) (teamRow, error) {
	laneIDs, err := json.Marshal(nonNilStrings(t.LaneIDs))
	if err != nil {
		return teamRow{}, fmt.Errorf("encoding team lane ids: %w", err)
	}
	return teamRow{ID: t.ID, Name: t.Name, LaneIDs: string(laneIDs), CreatedAt: t.CreatedAt}, nil
}

func (r teamRow) toModel() (model.Team, error) {
	var laneIDs []string
	if r.LaneIDs != "" {
		if err := json.Unmarshal([]byte(r.LaneIDs), &laneIDs); err != nil {
			return model.Team{}, fmt.Errorf("decoding team lane ids: %w", err)
		}
	}
	return model.Team{ID: r.ID, Name: r.Name, LaneIDs: laneIDs, CreatedAt: r.CreatedAt}, nil
}

// PutTeam inserts or replaces a Team row.
func (s *Store) PutTeam(ctx context.Context, t model.Team) error {
	row, err := toTeamRow(t)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO teams (id, name, lane_ids, created_at)
		VALUES (:id, :name, :lane_ids, :created_at)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, lane_ids = excluded.lane_ids`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("putting team %s: %w", t.ID, err)
	}
	return nil
}

// GetTeam fetches a single Team by id.
func (s *Store) GetTeam(ctx context.Context, id string) (model.Team, error) {
	var row teamRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM teams WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Team{}, apperr.Newf(apperr.NotFound, "team %s not found", id)
	}
	if err != nil {
		return model.Team{}, fmt.Errorf("getting team %s: %w", id, err)
	}
	return row.toModel()
}

// ListTeams returns every Team row.
func (s *Store) ListTeams(ctx context.Context) ([]model.Team, error) {
	var rows []teamRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM teams ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	out := make([]model.Team, 0, len(rows))
	for _, row := range rows {
		t, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteTeam removes a Team row.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting team %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "team %s not found", id)
	}
	return nil
}
