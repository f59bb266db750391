package repo

import (
	"context"
	"database/sql"

	"runline/internal/authz"
	"runline/internal/domain"
)

func (r Repo) AssignWorkspaceRole(ctx context.Context, tx *sql.Tx, workspaceID, userID string, role domain.WorkspaceRole) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO workspace_acl(workspace_id,user_id,role) VALUES (?,?,?)
ON CONFLICT(workspace_id,user_id) DO UPDATE SET role=excluded.role`, workspaceID, userID, string(role))
	return err
}

func (r Repo) RevokeWorkspaceRole(ctx context.Context, tx *sql.Tx, workspaceID, userID string) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `DELETE FROM workspace_acl WHERE workspace_id=? AND user_id=?`, workspaceID, userID)
	return err
}

func (r Repo) AssignSeat(ctx context.Context, tx *sql.Tx, workspaceID, userID string, seat domain.SeatType) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO workspace_seats(workspace_id,user_id,seat_type) VALUES (?,?,?)
ON CONFLICT(workspace_id,user_id) DO UPDATE SET seat_type=excluded.seat_type`, workspaceID, userID, string(seat))
	return err
}

func (r Repo) AssignProjectRole(ctx context.Context, tx *sql.Tx, projectID, userID string, role domain.ProjectRole) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO project_acl(project_id,user_id,role) VALUES (?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`, projectID, userID, string(role))
	return err
}

func (r Repo) RevokeProjectRole(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	exec := r.execer(tx)
	_, err := exec(ctx, `DELETE FROM project_acl WHERE project_id=? AND user_id=?`, projectID, userID)
	return err
}

// ActorSnapshot assembles the authorization view of one user: server role
// plus every workspace role, seat, and project grant they hold. The
// evaluator works on this immutable snapshot only.
func (r Repo) ActorSnapshot(ctx context.Context, userID string) (authz.Actor, error) {
	if userID == "" {
		return authz.Actor{}, nil
	}
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		if err == ErrNotFound {
			return authz.Actor{}, nil
		}
		return authz.Actor{}, err
	}
	actor := authz.Actor{
		ID:             u.ID,
		ServerRole:     u.ServerRole,
		Verified:       u.Verified,
		WorkspaceRoles: map[string]domain.WorkspaceRole{},
		ProjectRoles:   map[string]domain.ProjectRole{},
		Seats:          map[string]domain.SeatType{},
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT workspace_id, role FROM workspace_acl WHERE user_id=?`, userID)
	if err != nil {
		return authz.Actor{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var wsID string
		var role domain.WorkspaceRole
		if err := rows.Scan(&wsID, &role); err != nil {
			return authz.Actor{}, err
		}
		actor.WorkspaceRoles[wsID] = role
	}
	if err := rows.Err(); err != nil {
		return authz.Actor{}, err
	}

	seatRows, err := r.DB.QueryContext(ctx, `SELECT workspace_id, seat_type FROM workspace_seats WHERE user_id=?`, userID)
	if err != nil {
		return authz.Actor{}, err
	}
	defer seatRows.Close()
	for seatRows.Next() {
		var wsID string
		var seat domain.SeatType
		if err := seatRows.Scan(&wsID, &seat); err != nil {
			return authz.Actor{}, err
		}
		actor.Seats[wsID] = seat
	}
	if err := seatRows.Err(); err != nil {
		return authz.Actor{}, err
	}

	projRows, err := r.DB.QueryContext(ctx, `SELECT project_id, role FROM project_acl WHERE user_id=?`, userID)
	if err != nil {
		return authz.Actor{}, err
	}
	defer projRows.Close()
	for projRows.Next() {
		var projID string
		var role domain.ProjectRole
		if err := projRows.Scan(&projID, &role); err != nil {
			return authz.Actor{}, err
		}
		actor.ProjectRoles[projID] = role
	}
	return actor, projRows.Err()
}

// WorkspaceSnapshot loads the workspace state the evaluator needs,
// including current plan usage counts.
func (r Repo) WorkspaceSnapshot(ctx context.Context, workspaceID string) (*authz.WorkspaceState, error) {
	ws, err := r.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	state := &authz.WorkspaceState{
		ID:         ws.ID,
		PlanName:   ws.PlanName,
		PlanStatus: ws.PlanStatus,
	}
	row := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE workspace_id=?`, workspaceID)
	if err := row.Scan(&state.Usage.ProjectCount); err != nil {
		return nil, err
	}
	row = r.DB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM models m JOIN projects p ON p.id=m.project_id WHERE p.workspace_id=?`, workspaceID)
	if err := row.Scan(&state.Usage.ModelCount); err != nil {
		return nil, err
	}
	return state, nil
}

// ProjectSnapshot loads the project state the evaluator needs, or nil when
// the project does not exist.
func (r Repo) ProjectSnapshot(ctx context.Context, projectID string) (*authz.ProjectState, error) {
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	state := &authz.ProjectState{
		ID:                  p.ID,
		Visibility:          p.Visibility,
		AllowPublicComments: p.AllowPublicComments,
	}
	if p.WorkspaceID != nil {
		state.WorkspaceID = *p.WorkspaceID
	}
	return state, nil
}
