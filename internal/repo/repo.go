package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"runline/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	DB *sql.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// --- users ---

func (r Repo) UpsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.CreatedAt == "" {
		u.CreatedAt = now()
	}
	if u.ServerRole == "" {
		u.ServerRole = domain.ServerRoleUser
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO users(id,name,server_role,verified,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, server_role=excluded.server_role, verified=excluded.verified`,
		u.ID, nullable(u.Name), string(u.ServerRole), boolInt(u.Verified), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), server_role, verified, created_at FROM users WHERE id=?`, id)
	var u domain.User
	var verified int
	err := row.Scan(&u.ID, &u.Name, &u.ServerRole, &verified, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.Verified = verified != 0
	return u, nil
}

// --- workspaces ---

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, ws domain.Workspace) error {
	if ws.CreatedAt == "" {
		ws.CreatedAt = now()
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO workspaces(id,name,plan_name,plan_status,created_at) VALUES (?,?,?,?,?)`,
		ws.ID, ws.Name, string(ws.PlanName), string(ws.PlanStatus), ws.CreatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, name, plan_name, plan_status, created_at FROM workspaces WHERE id=?`, id)
	var ws domain.Workspace
	err := row.Scan(&ws.ID, &ws.Name, &ws.PlanName, &ws.PlanStatus, &ws.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Workspace{}, ErrNotFound
	}
	if err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

func (r Repo) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, plan_name, plan_status, created_at FROM workspaces ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Workspace
	for rows.Next() {
		var ws domain.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.PlanName, &ws.PlanStatus, &ws.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (r Repo) SetWorkspacePlan(ctx context.Context, tx *sql.Tx, workspaceID string, plan domain.PlanName, status domain.PlanStatus) error {
	exec := r.execer(tx)
	res, err := exec(ctx, `UPDATE workspaces SET plan_name=?, plan_status=? WHERE id=?`, string(plan), string(status), workspaceID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	ts := p.CreatedAt
	if ts == "" {
		ts = now()
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO projects(id,workspace_id,name,description,visibility,allow_public_comments,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, nullablePtr(p.WorkspaceID), p.Name, nullable(p.Description), string(p.Visibility), boolInt(p.AllowPublicComments), ts, ts)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, workspace_id, name, COALESCE(description,''), visibility, allow_public_comments, created_at, updated_at FROM projects WHERE id=?`, id)
	var p domain.Project
	var wsID sql.NullString
	var public int
	err := row.Scan(&p.ID, &wsID, &p.Name, &p.Description, &p.Visibility, &public, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	if wsID.Valid {
		p.WorkspaceID = &wsID.String
	}
	p.AllowPublicComments = public != 0
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	query := `SELECT id, workspace_id, name, COALESCE(description,''), visibility, allow_public_comments, created_at, updated_at FROM projects`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		var wsID sql.NullString
		var public int
		if err := rows.Scan(&p.ID, &wsID, &p.Name, &p.Description, &p.Visibility, &public, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if wsID.Valid {
			p.WorkspaceID = &wsID.String
		}
		p.AllowPublicComments = public != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) UpdateProjectVisibility(ctx context.Context, tx *sql.Tx, projectID string, v domain.Visibility) error {
	exec := r.execer(tx)
	res, err := exec(ctx, `UPDATE projects SET visibility=?, updated_at=? WHERE id=?`, string(v), now(), projectID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, projectID string) error {
	exec := r.execer(tx)
	res, err := exec(ctx, `DELETE FROM projects WHERE id=?`, projectID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- models and versions ---

func (r Repo) InsertModel(ctx context.Context, tx *sql.Tx, m domain.Model) error {
	if m.CreatedAt == "" {
		m.CreatedAt = now()
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO models(id,project_id,name,created_at) VALUES (?,?,?,?)`,
		m.ID, m.ProjectID, m.Name, m.CreatedAt)
	return err
}

func (r Repo) GetModel(ctx context.Context, id string) (domain.Model, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, project_id, name, created_at FROM models WHERE id=?`, id)
	var m domain.Model
	err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Model{}, ErrNotFound
	}
	if err != nil {
		return domain.Model{}, err
	}
	return m, nil
}

func (r Repo) ListModels(ctx context.Context, projectID string) ([]domain.Model, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, project_id, name, created_at FROM models WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Model
	for rows.Next() {
		var m domain.Model
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r Repo) InsertVersion(ctx context.Context, tx *sql.Tx, v domain.Version) error {
	if v.CreatedAt == "" {
		v.CreatedAt = now()
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO versions(id,model_id,author_id,message,created_at) VALUES (?,?,?,?,?)`,
		v.ID, v.ModelID, v.AuthorID, nullable(v.Message), v.CreatedAt)
	return err
}

// --- plumbing ---

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (r Repo) execer(tx *sql.Tx) execFunc {
	if tx != nil {
		return tx.ExecContext
	}
	return r.DB.ExecContext
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
