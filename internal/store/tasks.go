package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/ids"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// taskRow is the persisted wire shape for model.Task: DependsOn, Tags and
// Overrides are denormalized into JSON TEXT columns, and "column" is quoted
// throughout since it collides with the SQL ALTER TABLE ... ADD COLUMN
// keyword in some dialects even though SQLite itself accepts it bare.
type taskRow struct {
	ID              string       `db:"id"`
	Title           string       `db:"title"`
	Description     string       `db:"description"`
	Column          model.Column `db:"column"`
	Priority        model.Priority `db:"priority"`
	Role            string       `db:"role"`
	LaneID          *string      `db:"lane_id"`
	DependsOn       string       `db:"depends_on"`
	Tags            string       `db:"tags"`
	AssignedAgentID *string      `db:"assigned_agent_id"`
	Overrides       string       `db:"overrides"`
	Workdir         string       `db:"workdir"`
	Provider        string       `db:"provider"`
	Model           string       `db:"model"`
	RuntimeID       *string      `db:"runtime_id"`
	Output          string       `db:"output"`
	Cancelled       bool         `db:"cancelled"`
	CreatedAt       model.Millis  `db:"created_at"`
	StartedAt       *model.Millis `db:"started_at"`
	CompletedAt     *model.Millis `db:"completed_at"`
}

func toTaskRow(t model.Task) (taskRow, error) {
	dependsOn, err := json.Marshal(nonNilStrings(t.DependsOn))
	if err != nil {
		return taskRow{}, fmt.Errorf("encoding dependsOn: %w", err)
	}
	tags, err := json.Marshal(nonNilStrings(t.Tags))
	if err != nil {
		return taskRow{}, fmt.Errorf("encoding tags: %w", err)
	}
	overrides, err := json.Marshal(t.Overrides)
	if err != nil {
		return taskRow{}, fmt.Errorf("encoding overrides: %w", err)
	}
	return taskRow{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Column:          t.Column,
		Priority:        t.Priority,
		Role:            t.Role,
		LaneID:          t.LaneID,
		DependsOn:       string(dependsOn),
		Tags:            string(tags),
		AssignedAgentID: t.AssignedAgentID,
		Overrides:       string(overrides),
		Workdir:         t.Workdir,
		Provider:        t.Provider,
		Model:           t.Model,
		RuntimeID:       t.RuntimeID,
		Output:          t.Output,
		Cancelled:       t.Cancelled,
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
	}, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r taskRow) toModel() (model.Task, error) {
	var dependsOn, tags []string
	var overrides model.Toggles
	if err := json.Unmarshal([]byte(r.DependsOn), &dependsOn); err != nil {
		return model.Task{}, fmt.Errorf("decoding dependsOn: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
		return model.Task{}, fmt.Errorf("decoding tags: %w", err)
	}
	if r.Overrides != "" {
		if err := json.Unmarshal([]byte(r.Overrides), &overrides); err != nil {
			return model.Task{}, fmt.Errorf("decoding overrides: %w", err)
		}
	}
	return model.Task{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Column:          r.Column,
		Priority:        r.Priority,
		Role:            r.Role,
		LaneID:          r.LaneID,
		DependsOn:       dependsOn,
		Tags:            tags,
		AssignedAgentID: r.AssignedAgentID,
		Overrides:       overrides,
		Workdir:         r.Workdir,
		Provider:        r.Provider,
		Model:           r.Model,
		RuntimeID:       r.RuntimeID,
		Output:          r.Output,
		Cancelled:       r.Cancelled,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}, nil
}

// PutTask inserts or replaces a Task row.
func (s *Store) PutTask(ctx context.Context, t model.Task) error {
	row, err := toTaskRow(t)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO tasks (id, title, description, "column", priority, role, lane_id,
			depends_on, tags, assigned_agent_id, overrides, workdir, provider, model,
			runtime_id, output, cancelled, created_at, started_at, completed_at)
		VALUES (:id, :title, :description, :column, :priority, :role, :lane_id,
			:depends_on, :tags, :assigned_agent_id, :overrides, :workdir, :provider, :model,
			:runtime_id, :output, :cancelled, :created_at, :started_at, :completed_at)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description, "column" = excluded."column",
			priority = excluded.priority, role = excluded.role, lane_id = excluded.lane_id,
			depends_on = excluded.depends_on, tags = excluded.tags,
			assigned_agent_id = excluded.assigned_agent_id, overrides = excluded.overrides,
			workdir = excluded.workdir, provider = excluded.provider, model = excluded.model,
			runtime_id = excluded.runtime_id, output = excluded.output, cancelled = excluded.cancelled,
			started_at = excluded.started_at, completed_at = excluded.completed_at`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("putting task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask fetches a single Task by id.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, apperr.Newf(apperr.NotFound, "task %s not found", id)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	return row.toModel()
}

// ListTaskIDs returns every task id, used by internal/ids.Resolve for
// id-prefix resolution.
func (s *Store) ListTaskIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM tasks`); err != nil {
		return nil, fmt.Errorf("listing task ids: %w", err)
	}
	return ids, nil
}

// ListTasks returns every Task row, optionally filtered by lane id (pass ""
// for every lane, including unassigned).
func (s *Store) ListTasks(ctx context.Context, laneID string) ([]model.Task, error) {
	var rows []taskRow
	var err error
	if laneID == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks ORDER BY created_at`)
	} else if laneID == model.UnassignedLaneID {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks WHERE lane_id IS NULL ORDER BY created_at`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks WHERE lane_id = ? ORDER BY created_at`, laneID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	out := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListTasksByColumn returns every Task row in the given column, across lanes.
func (s *Store) ListTasksByColumn(ctx context.Context, column model.Column) ([]model.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks WHERE "column" = ? ORDER BY created_at`, column); err != nil {
		return nil, fmt.Errorf("listing tasks in column %s: %w", column, err)
	}
	out := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteTask removes a Task row.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "task %s not found", id)
	}
	return nil
}

// ResolveTaskID resolves a user-supplied id or unambiguous id-prefix to a
// full task id via internal/ids.Resolve, per spec.md §6 ("id resolution").
func (s *Store) ResolveTaskID(ctx context.Context, idOrPrefix string) (string, error) {
	candidates, err := s.ListTaskIDs(ctx)
	if err != nil {
		return "", err
	}
	return ids.Resolve(candidates, idOrPrefix)
}
