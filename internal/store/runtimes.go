package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// PutRuntime inserts or replaces a Runtime row.
func (s *Store) PutRuntime(ctx context.Context, rt model.Runtime) error {
	const q = `
		INSERT INTO runtimes (id, type, host, image, namespace, reachable, created_at)
		VALUES (:id, :type, :host, :image, :namespace, :reachable, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type, host = excluded.host, image = excluded.image,
			namespace = excluded.namespace, reachable = excluded.reachable`
	if _, err := s.db.NamedExecContext(ctx, q, rt); err != nil {
		return fmt.Errorf("putting runtime %s: %w", rt.ID, err)
	}
	return nil
}

// GetRuntime fetches a single Runtime by id.
func (s *Store) GetRuntime(ctx context.Context, id string) (model.Runtime, error) {
	var rt model.Runtime
	err := s.db.GetContext(ctx, &rt, `SELECT * FROM runtimes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Runtime{}, apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	if err != nil {
		return model.Runtime{}, fmt.Errorf("getting runtime %s: %w", id, err)
	}
	return rt, nil
}

// ListRuntimes returns every Runtime row.
func (s *Store) ListRuntimes(ctx context.Context) ([]model.Runtime, error) {
	var rts []model.Runtime
	if err := s.db.SelectContext(ctx, &rts, `SELECT * FROM runtimes ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("listing runtimes: %w", err)
	}
	return rts, nil
}

// SetRuntimeReachable updates the cached reachability flag set by the Health
// Monitor's periodic probe (spec.md §4.8).
func (s *Store) SetRuntimeReachable(ctx context.Context, id string, reachable bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runtimes SET reachable = ? WHERE id = ?`, reachable, id)
	if err != nil {
		return fmt.Errorf("updating runtime reachability: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	return nil
}

// DeleteRuntime removes a Runtime row.
func (s *Store) DeleteRuntime(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runtimes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting runtime %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "runtime %s not found", id)
	}
	return nil
}
