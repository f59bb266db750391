package repo

import (
	"context"
	"database/sql"

	"runline/internal/domain"
)

func (r Repo) InsertAutomation(ctx context.Context, tx *sql.Tx, a domain.Automation) error {
	ts := a.CreatedAt
	if ts == "" {
		ts = now()
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO automations(id,project_id,name,enabled,current_revision_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.Name, boolInt(a.Enabled), nullablePtr(a.CurrentRevisionID), ts, ts)
	return err
}

func (r Repo) GetAutomation(ctx context.Context, id string) (domain.Automation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, project_id, name, enabled, current_revision_id, created_at, updated_at FROM automations WHERE id=?`, id)
	return scanAutomation(row)
}

func scanAutomation(row *sql.Row) (domain.Automation, error) {
	var a domain.Automation
	var enabled int
	var rev sql.NullString
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &enabled, &rev, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Automation{}, ErrNotFound
	}
	if err != nil {
		return domain.Automation{}, err
	}
	a.Enabled = enabled != 0
	if rev.Valid {
		a.CurrentRevisionID = &rev.String
	}
	return a, nil
}

func (r Repo) ListAutomations(ctx context.Context, projectID string) ([]domain.Automation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, project_id, name, enabled, current_revision_id, created_at, updated_at FROM automations WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Automation
	for rows.Next() {
		var a domain.Automation
		var enabled int
		var rev sql.NullString
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &enabled, &rev, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Enabled = enabled != 0
		if rev.Valid {
			a.CurrentRevisionID = &rev.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r Repo) SetAutomationEnabled(ctx context.Context, tx *sql.Tx, id string, enabled bool) error {
	exec := r.execer(tx)
	res, err := exec(ctx, `UPDATE automations SET enabled=?, updated_at=? WHERE id=?`, boolInt(enabled), now(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertRevision stores a revision with its function bindings and trigger
// definitions, deactivates any previous active revision, and points the
// automation at the new one. The swap is atomic within tx.
func (r Repo) InsertRevision(ctx context.Context, tx *sql.Tx, rev domain.AutomationRevision) error {
	ts := rev.CreatedAt
	if ts == "" {
		ts = now()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE automation_revisions SET active=0 WHERE automation_id=? AND active=1`, rev.AutomationID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO automation_revisions(id,automation_id,active,created_at) VALUES (?,?,1,?)`,
		rev.ID, rev.AutomationID, ts); err != nil {
		return err
	}
	for _, fn := range rev.Functions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO revision_functions(revision_id,function_id,release_id,parameters_json) VALUES (?,?,?,?)`,
			rev.ID, fn.FunctionID, fn.ReleaseID, nullablePtr(fn.ParametersJSON)); err != nil {
			return err
		}
	}
	for _, trg := range rev.Triggers {
		var modelID any
		if trg.ModelID != nil && *trg.ModelID != "" {
			modelID = *trg.ModelID
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO automation_triggers(revision_id,trigger_type,model_id) VALUES (?,?,?)`,
			rev.ID, trg.Type, modelID); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, `UPDATE automations SET current_revision_id=?, updated_at=? WHERE id=?`, rev.ID, ts, rev.AutomationID)
	return err
}

func (r Repo) GetRevision(ctx context.Context, id string) (domain.AutomationRevision, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, automation_id, active, created_at FROM automation_revisions WHERE id=?`, id)
	var rev domain.AutomationRevision
	var active int
	err := row.Scan(&rev.ID, &rev.AutomationID, &active, &rev.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.AutomationRevision{}, ErrNotFound
	}
	if err != nil {
		return domain.AutomationRevision{}, err
	}
	rev.Active = active != 0

	fnRows, err := r.DB.QueryContext(ctx, `SELECT function_id, release_id, parameters_json FROM revision_functions WHERE revision_id=?`, id)
	if err != nil {
		return domain.AutomationRevision{}, err
	}
	defer fnRows.Close()
	for fnRows.Next() {
		var fn domain.RevisionFunction
		var params sql.NullString
		if err := fnRows.Scan(&fn.FunctionID, &fn.ReleaseID, &params); err != nil {
			return domain.AutomationRevision{}, err
		}
		if params.Valid {
			fn.ParametersJSON = &params.String
		}
		rev.Functions = append(rev.Functions, fn)
	}
	if err := fnRows.Err(); err != nil {
		return domain.AutomationRevision{}, err
	}

	trgRows, err := r.DB.QueryContext(ctx, `SELECT trigger_type, model_id FROM automation_triggers WHERE revision_id=?`, id)
	if err != nil {
		return domain.AutomationRevision{}, err
	}
	defer trgRows.Close()
	for trgRows.Next() {
		var trg domain.TriggerDefinition
		var modelID sql.NullString
		if err := trgRows.Scan(&trg.Type, &modelID); err != nil {
			return domain.AutomationRevision{}, err
		}
		if modelID.Valid {
			trg.ModelID = &modelID.String
		}
		rev.Triggers = append(rev.Triggers, trg)
	}
	return rev, trgRows.Err()
}

// MatchingAutomations resolves enabled automations whose active revision
// binds a trigger of the given type to exactly this model. The model_id
// index keeps this O(matches); NULL model bindings match nothing.
func (r Repo) MatchingAutomations(ctx context.Context, projectID, triggerType, modelID string) ([]domain.Automation, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT DISTINCT a.id, a.project_id, a.name, a.enabled, a.current_revision_id, a.created_at, a.updated_at
FROM automation_triggers t
JOIN automation_revisions rev ON rev.id=t.revision_id AND rev.active=1
JOIN automations a ON a.id=rev.automation_id AND a.current_revision_id=rev.id
WHERE a.project_id=? AND a.enabled=1 AND t.trigger_type=? AND t.model_id=?
ORDER BY a.created_at`, projectID, triggerType, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Automation
	for rows.Next() {
		var a domain.Automation
		var enabled int
		var rev sql.NullString
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &enabled, &rev, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Enabled = enabled != 0
		if rev.Valid {
			a.CurrentRevisionID = &rev.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
