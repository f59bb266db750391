package authz

import "runline/internal/domain"

// projectRoleLevel orders project roles so capability requirements can be
// expressed as minimums. Zero means no access.
func projectRoleLevel(r domain.ProjectRole) int {
	switch r {
	case domain.ProjectRoleOwner:
		return 3
	case domain.ProjectRoleContributor:
		return 2
	case domain.ProjectRoleReviewer:
		return 1
	}
	return 0
}

func workspaceRoleLevel(r domain.WorkspaceRole) int {
	switch r {
	case domain.WorkspaceRoleAdmin:
		return 3
	case domain.WorkspaceRoleMember:
		return 2
	case domain.WorkspaceRoleGuest:
		return 1
	}
	return 0
}

// EffectiveProjectRole resolves the role used for project decisions. An
// explicit project grant wins. Otherwise a role is derived from the owning
// workspace: admins act as owners, members as contributors unless the
// project is private, guests as reviewers on workspace-visible or public
// projects only. Total: the worst case is ("", false), never an error.
func EffectiveProjectRole(actor Actor, p *ProjectState) (domain.ProjectRole, bool) {
	if p == nil {
		return "", false
	}
	if r, ok := actor.projectRole(p.ID); ok {
		return r, true
	}
	if p.WorkspaceID == "" {
		return "", false
	}
	wr, ok := actor.workspaceRole(p.WorkspaceID)
	if !ok {
		return "", false
	}
	switch wr {
	case domain.WorkspaceRoleAdmin:
		return domain.ProjectRoleOwner, true
	case domain.WorkspaceRoleMember:
		if p.Visibility == domain.VisibilityPrivate {
			return "", false
		}
		return domain.ProjectRoleContributor, true
	case domain.WorkspaceRoleGuest:
		switch p.Visibility {
		case domain.VisibilityWorkspace, domain.VisibilityPublic, domain.VisibilityUnlisted:
			return domain.ProjectRoleReviewer, true
		}
		return "", false
	}
	return "", false
}
