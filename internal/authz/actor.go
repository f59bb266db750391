package authz

import "runline/internal/domain"

// Actor is a snapshot of everything the evaluator needs to know about a
// caller. A zero Actor is an anonymous caller. Snapshots are assembled
// at the request boundary and never mutated by the evaluator.
type Actor struct {
	ID             string
	ServerRole     domain.ServerRole
	Verified       bool
	WorkspaceRoles map[string]domain.WorkspaceRole
	ProjectRoles   map[string]domain.ProjectRole
	Seats          map[string]domain.SeatType
}

// Anonymous reports whether the actor carries no identity at all.
func (a Actor) Anonymous() bool {
	return a.ID == "" || a.ServerRole == ""
}

func (a Actor) workspaceRole(workspaceID string) (domain.WorkspaceRole, bool) {
	r, ok := a.WorkspaceRoles[workspaceID]
	return r, ok
}

func (a Actor) projectRole(projectID string) (domain.ProjectRole, bool) {
	r, ok := a.ProjectRoles[projectID]
	return r, ok
}

// Seat returns the actor's seat in a workspace, defaulting to viewer for
// members without an assignment. Seat is a hard ceiling, not a grant.
func (a Actor) Seat(workspaceID string) domain.SeatType {
	if s, ok := a.Seats[workspaceID]; ok {
		return s
	}
	return domain.SeatViewer
}

// PlanUsage is the current resource consumption of a workspace plan.
type PlanUsage struct {
	ProjectCount int `json:"project_count"`
	ModelCount   int `json:"model_count"`
}

// WorkspaceState is the workspace snapshot the evaluator reads.
type WorkspaceState struct {
	ID         string
	PlanName   domain.PlanName
	PlanStatus domain.PlanStatus
	Usage      PlanUsage
}

// ProjectState is the project snapshot the evaluator reads.
type ProjectState struct {
	ID                  string
	WorkspaceID         string
	Visibility          domain.Visibility
	AllowPublicComments bool
}

// ScopeKind discriminates the resource boundary a check applies to.
type ScopeKind string

const (
	ScopeServer    ScopeKind = "server"
	ScopeWorkspace ScopeKind = "workspace"
	ScopeProject   ScopeKind = "project"
)

// Scope is the resource a capability check targets, with the snapshots
// needed to decide. A nil Project or Workspace on a scope of the matching
// kind means "no such resource".
type Scope struct {
	Kind      ScopeKind
	Workspace *WorkspaceState
	Project   *ProjectState
}

// ServerScope targets instance-level actions.
func ServerScope() Scope {
	return Scope{Kind: ScopeServer}
}

// WorkspaceScope targets a workspace. ws may be nil for unknown workspaces.
func WorkspaceScope(ws *WorkspaceState) Scope {
	return Scope{Kind: ScopeWorkspace, Workspace: ws}
}

// ProjectScope targets a project. ws is the owning workspace snapshot and
// is nil for personal projects.
func ProjectScope(p *ProjectState, ws *WorkspaceState) Scope {
	return Scope{Kind: ScopeProject, Project: p, Workspace: ws}
}
