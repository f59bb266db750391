package authz

import (
	"fmt"

	"runline/internal/domain"
)

// Check evaluates whether actor may perform action on scope. It is a pure
// function over the supplied snapshots: no I/O, no locks, safe to call
// concurrently. It always returns a Result and never panics on unknown
// enum values; the worst case is a denial.
func Check(actor Actor, scope Scope, action Action) Result {
	if actor.ServerRole == domain.ServerRoleArchived {
		return deny(CodeNotAuthorized, "archived users cannot perform any action")
	}
	switch scope.Kind {
	case ScopeServer:
		return checkServer(actor, action)
	case ScopeWorkspace:
		return checkWorkspace(actor, scope.Workspace, action)
	case ScopeProject:
		return checkProject(actor, scope.Project, scope.Workspace, action)
	}
	return deny(CodeNotAuthorized, fmt.Sprintf("unknown scope kind %q", scope.Kind))
}

func checkServer(actor Actor, action Action) Result {
	roles, ok := serverActionRoles[action]
	if !ok {
		return deny(CodeNotAuthorized, fmt.Sprintf("action %s not applicable at server scope", action))
	}
	if actor.Anonymous() {
		return deny(CodeNotAuthorized, "authentication required")
	}
	for _, r := range roles {
		if actor.ServerRole == r {
			return allow()
		}
	}
	return deny(CodeNotAuthorized, fmt.Sprintf("server role %s cannot %s", actor.ServerRole, action))
}

func checkWorkspace(actor Actor, ws *WorkspaceState, action Action) Result {
	entry, ok := workspaceCapabilities[action]
	if !ok {
		return deny(CodeNotAuthorized, fmt.Sprintf("action %s not applicable at workspace scope", action))
	}
	if ws == nil {
		return denyHidden()
	}
	role, member := actor.workspaceRole(ws.ID)
	if !member {
		// Non-members cannot tell the workspace exists.
		return denyHidden()
	}
	if actor.ServerRole == domain.ServerRoleGuest && entry.write {
		return deny(CodeNotAuthorized, "server guests have read-only access")
	}
	if workspaceRoleLevel(role) < entry.minLevel {
		return deny(CodeNotAuthorized, fmt.Sprintf("workspace role %s cannot %s", role, action))
	}
	if entry.write {
		if r := checkWorkspaceWrite(actor, ws); !r.Authorized {
			return r
		}
	}
	return allow()
}

func checkProject(actor Actor, p *ProjectState, ws *WorkspaceState, action Action) Result {
	entry, ok := projectCapabilities[action]
	if !ok {
		return deny(CodeNotAuthorized, fmt.Sprintf("action %s not applicable at project scope", action))
	}
	if p == nil {
		return denyHidden()
	}
	// Visibility expands read access regardless of role.
	if (action == ActionProjectRead || action == ActionProjectLoad) && publiclyReadable(p.Visibility) {
		return allow()
	}
	if actor.Anonymous() {
		return denyHidden()
	}
	if actor.ServerRole == domain.ServerRoleGuest && !readOnlyActions[action] {
		return deny(CodeNotAuthorized, "server guests have read-only access")
	}
	role, hasRole := EffectiveProjectRole(actor, p)
	if action == ActionProjectLeave {
		// Leaving only makes sense for an explicit grant; a derived role
		// cannot be walked away from.
		if _, explicit := actor.projectRole(p.ID); !explicit {
			return deny(CodeNotAuthorized, "no explicit project role to leave")
		}
		return allow()
	}
	if !hasRole {
		if publiclyReadable(p.Visibility) {
			return deny(CodeNotAuthorized, fmt.Sprintf("a project role is required to %s", action))
		}
		return denyHidden()
	}
	if projectRoleLevel(role) < entry.minLevel {
		return deny(CodeNotAuthorized, fmt.Sprintf("project role %s cannot %s", role, action))
	}
	if entry.write && p.WorkspaceID != "" {
		// Workspace-owned projects answer to the workspace's plan and the
		// actor's seat, no matter how strong the role is.
		if ws == nil || ws.ID != p.WorkspaceID {
			return deny(CodeNotAuthorized, "workspace snapshot unavailable")
		}
		if r := checkWorkspaceWrite(actor, ws); !r.Authorized {
			return r
		}
	}
	return allow()
}

// checkWorkspaceWrite applies the two workspace-wide write gates: the plan
// read-only fallback and the seat ceiling.
func checkWorkspaceWrite(actor Actor, ws *WorkspaceState) Result {
	if planReadOnly(ws.PlanStatus) {
		return denyWith(CodeWorkspaceReadOnly,
			fmt.Sprintf("workspace is read-only (plan status %s)", ws.PlanStatus),
			map[string]any{"plan_status": ws.PlanStatus})
	}
	if seat := actor.Seat(ws.ID); seat != domain.SeatEditor {
		return denyWith(CodeSeatInsufficient,
			fmt.Sprintf("a %s seat cannot perform write actions", seat),
			map[string]any{"seat": seat})
	}
	return allow()
}

// planReadOnly reports whether the plan status forces read-only mode.
// A scheduled cancelation keeps full access until the cycle ends.
func planReadOnly(s domain.PlanStatus) bool {
	switch s {
	case domain.PlanStatusPaymentFailed, domain.PlanStatusCanceled:
		return true
	}
	return false
}

func publiclyReadable(v domain.Visibility) bool {
	return v == domain.VisibilityPublic || v == domain.VisibilityUnlisted
}
