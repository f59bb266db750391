package repo

import (
	"context"

	"runline/internal/domain"
)

// EventsAfter returns up to limit events with id greater than after,
// oldest first, optionally scoped to a project.
func (r Repo) EventsAfter(ctx context.Context, limit int, after int64, projectID string) ([]domain.Event, error) {
	query := `SELECT id, ts, type, COALESCE(project_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events WHERE id>?`
	args := []any{after}
	if projectID != "" {
		query += ` AND project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestEventID returns the newest event id, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

// TailEvents returns the newest limit events, newest first.
func (r Repo) TailEvents(ctx context.Context, limit int, projectID string) ([]domain.Event, error) {
	query := `SELECT id, ts, type, COALESCE(project_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
