package repo

import (
	"context"
	"database/sql"

	"runline/internal/domain"
)

func (r Repo) InsertRun(ctx context.Context, tx *sql.Tx, run domain.AutomateRun, idempotencyKey string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO automate_runs(id,automation_id,revision_id,idempotency_key,trigger_type,version_id,model_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.AutomationID, run.RevisionID, idempotencyKey, run.TriggerType, run.VersionID, run.ModelID, string(run.Status), run.CreatedAt, run.UpdatedAt); err != nil {
		return err
	}
	for _, fr := range run.FunctionRuns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO function_runs(id,run_id,function_id,release_id,status,status_message,results_json,context_view,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			fr.ID, fr.RunID, fr.FunctionID, fr.ReleaseID, string(fr.Status), nullablePtr(fr.StatusMessage), nullablePtr(fr.ResultsJSON), nullablePtr(fr.ContextView), fr.CreatedAt, fr.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

// RunByIdempotencyKey returns the run already created for a (event,
// automation) pair, if any.
func (r Repo) RunByIdempotencyKey(ctx context.Context, key string) (domain.AutomateRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id FROM automate_runs WHERE idempotency_key=?`, key)
	var id string
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return domain.AutomateRun{}, ErrNotFound
	}
	if err != nil {
		return domain.AutomateRun{}, err
	}
	return r.GetRun(ctx, id)
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.AutomateRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, automation_id, revision_id, trigger_type, version_id, model_id, status, created_at, updated_at FROM automate_runs WHERE id=?`, id)
	var run domain.AutomateRun
	err := row.Scan(&run.ID, &run.AutomationID, &run.RevisionID, &run.TriggerType, &run.VersionID, &run.ModelID, &run.Status, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.AutomateRun{}, ErrNotFound
	}
	if err != nil {
		return domain.AutomateRun{}, err
	}
	run.FunctionRuns, err = r.ListFunctionRuns(ctx, id)
	return run, err
}

func (r Repo) ListRuns(ctx context.Context, automationID string) ([]domain.AutomateRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, automation_id, revision_id, trigger_type, version_id, model_id, status, created_at, updated_at FROM automate_runs WHERE automation_id=? ORDER BY created_at DESC`, automationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AutomateRun
	for rows.Next() {
		var run domain.AutomateRun
		if err := rows.Scan(&run.ID, &run.AutomationID, &run.RevisionID, &run.TriggerType, &run.VersionID, &run.ModelID, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r Repo) ListFunctionRuns(ctx context.Context, runID string) ([]domain.FunctionRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, run_id, function_id, release_id, status, status_message, results_json, context_view, created_at, updated_at FROM function_runs WHERE run_id=? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FunctionRun
	for rows.Next() {
		fr, err := scanFunctionRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func (r Repo) GetFunctionRun(ctx context.Context, id string) (domain.FunctionRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, run_id, function_id, release_id, status, status_message, results_json, context_view, created_at, updated_at FROM function_runs WHERE id=?`, id)
	fr, err := scanFunctionRun(row.Scan)
	if err == sql.ErrNoRows {
		return domain.FunctionRun{}, ErrNotFound
	}
	return fr, err
}

func scanFunctionRun(scan func(dest ...any) error) (domain.FunctionRun, error) {
	var fr domain.FunctionRun
	var msg, results, view sql.NullString
	if err := scan(&fr.ID, &fr.RunID, &fr.FunctionID, &fr.ReleaseID, &fr.Status, &msg, &results, &view, &fr.CreatedAt, &fr.UpdatedAt); err != nil {
		return domain.FunctionRun{}, err
	}
	if msg.Valid {
		fr.StatusMessage = &msg.String
	}
	if results.Valid {
		fr.ResultsJSON = &results.String
	}
	if view.Valid {
		fr.ContextView = &view.String
	}
	return fr, nil
}

// UpdateFunctionRun persists a status report for one function run.
func (r Repo) UpdateFunctionRun(ctx context.Context, tx *sql.Tx, fr domain.FunctionRun) error {
	_, err := tx.ExecContext(ctx, `UPDATE function_runs SET status=?, status_message=?, results_json=?, context_view=?, updated_at=? WHERE id=?`,
		string(fr.Status), nullablePtr(fr.StatusMessage), nullablePtr(fr.ResultsJSON), nullablePtr(fr.ContextView), fr.UpdatedAt, fr.ID)
	return err
}

// ListFunctionRunsTx reads all sibling function runs inside the reporting
// transaction so the aggregate is recomputed from a consistent view.
func (r Repo) ListFunctionRunsTx(ctx context.Context, tx *sql.Tx, runID string) ([]domain.FunctionRun, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, run_id, function_id, release_id, status, status_message, results_json, context_view, created_at, updated_at FROM function_runs WHERE run_id=? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FunctionRun
	for rows.Next() {
		fr, err := scanFunctionRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func (r Repo) UpdateRunStatus(ctx context.Context, tx *sql.Tx, runID string, status domain.RunStatus, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE automate_runs SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, runID)
	return err
}
