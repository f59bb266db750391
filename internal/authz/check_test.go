package authz_test

import (
	"testing"

	"runline/internal/authz"
	"runline/internal/domain"
)

func member(wsID string, role domain.WorkspaceRole, seat domain.SeatType) authz.Actor {
	return authz.Actor{
		ID:             "actor-1",
		ServerRole:     domain.ServerRoleUser,
		Verified:       true,
		WorkspaceRoles: map[string]domain.WorkspaceRole{wsID: role},
		Seats:          map[string]domain.SeatType{wsID: seat},
	}
}

func wsState(id string) *authz.WorkspaceState {
	return &authz.WorkspaceState{ID: id, PlanName: domain.PlanTeam, PlanStatus: domain.PlanStatusValid}
}

func projState(id, wsID string, vis domain.Visibility) *authz.ProjectState {
	return &authz.ProjectState{ID: id, WorkspaceID: wsID, Visibility: vis}
}

func TestCheckIsTotal(t *testing.T) {
	actors := []authz.Actor{
		{},
		{ID: "u", ServerRole: domain.ServerRoleUser},
		{ID: "g", ServerRole: domain.ServerRoleGuest},
		{ID: "a", ServerRole: domain.ServerRoleArchived},
		member("ws", domain.WorkspaceRoleAdmin, domain.SeatEditor),
	}
	scopes := []authz.Scope{
		authz.ServerScope(),
		authz.WorkspaceScope(nil),
		authz.WorkspaceScope(wsState("ws")),
		authz.ProjectScope(nil, nil),
		authz.ProjectScope(projState("p", "", domain.VisibilityPrivate), nil),
		authz.ProjectScope(projState("p", "ws", domain.VisibilityWorkspace), wsState("ws")),
		{Kind: "bogus"},
	}
	actions := []authz.Action{
		authz.ActionProjectRead, authz.ActionProjectDelete, authz.ActionWorkspaceInvite,
		authz.ActionServerCreatePersonalProject, authz.Action("madeUp"),
	}
	for _, a := range actors {
		for _, s := range scopes {
			for _, act := range actions {
				res := authz.Check(a, s, act)
				if res.Code == "" {
					t.Fatalf("check(%v,%v,%s) returned empty code", a.ID, s.Kind, act)
				}
				if !res.Authorized && res.Code == authz.CodeOK {
					t.Fatalf("denied result carries OK code for %s", act)
				}
			}
		}
	}
}

func TestWorkspaceVisibleProjectDerivedRole(t *testing.T) {
	ws := wsState("ws-1")
	p := projState("proj-1", "ws-1", domain.VisibilityWorkspace)
	b := member("ws-1", domain.WorkspaceRoleMember, domain.SeatEditor)

	if res := authz.Check(b, authz.ProjectScope(p, ws), authz.ActionProjectRead); !res.Authorized {
		t.Fatalf("member should read workspace-visible project, got %s: %s", res.Code, res.Message)
	}
	res := authz.Check(b, authz.ProjectScope(p, ws), authz.ActionProjectDelete)
	if res.Authorized {
		t.Fatalf("member must not delete")
	}
	if res.Code != authz.CodeNotAuthorized {
		t.Fatalf("expected NOT_AUTHORIZED, got %s", res.Code)
	}
}

func TestDerivedRoleMonotonic(t *testing.T) {
	ws := wsState("ws-1")
	ladder := []domain.WorkspaceRole{domain.WorkspaceRoleGuest, domain.WorkspaceRoleMember, domain.WorkspaceRoleAdmin}
	visibilities := []domain.Visibility{
		domain.VisibilityPrivate, domain.VisibilityWorkspace,
		domain.VisibilityPublic, domain.VisibilityUnlisted,
	}
	actions := []authz.Action{
		authz.ActionProjectRead, authz.ActionProjectLoad, authz.ActionProjectCreateModel,
		authz.ActionProjectUpdate, authz.ActionProjectDelete, authz.ActionProjectCreateAutomation,
	}
	for _, vis := range visibilities {
		p := projState("proj-1", "ws-1", vis)
		for _, action := range actions {
			prev := false
			for _, role := range ladder {
				a := member("ws-1", role, domain.SeatEditor)
				got := authz.Check(a, authz.ProjectScope(p, ws), action).Authorized
				if prev && !got {
					t.Fatalf("capability %s lost moving up to %s (visibility %s)", action, role, vis)
				}
				prev = got
			}
		}
	}
}

func TestViewerSeatCeiling(t *testing.T) {
	ws := wsState("ws-1")
	p := projState("proj-1", "ws-1", domain.VisibilityWorkspace)
	admin := member("ws-1", domain.WorkspaceRoleAdmin, domain.SeatViewer)
	admin.ProjectRoles = map[string]domain.ProjectRole{"proj-1": domain.ProjectRoleOwner}

	writes := []authz.Action{
		authz.ActionProjectUpdate, authz.ActionProjectDelete, authz.ActionProjectInvite,
		authz.ActionProjectCreateModel, authz.ActionProjectCreateAutomation,
		authz.ActionProjectPublish, authz.ActionProjectMoveToWorkspace,
	}
	for _, action := range writes {
		res := authz.Check(admin, authz.ProjectScope(p, ws), action)
		if res.Authorized {
			t.Fatalf("viewer seat authorized write %s", action)
		}
		if res.Code != authz.CodeSeatInsufficient {
			t.Fatalf("expected SEAT_INSUFFICIENT for %s, got %s", action, res.Code)
		}
	}
	if res := authz.Check(admin, authz.ProjectScope(p, ws), authz.ActionProjectRead); !res.Authorized {
		t.Fatalf("viewer seat should still read: %s", res.Message)
	}
}

func TestPublicVisibilityOpensRead(t *testing.T) {
	p := projState("proj-1", "", domain.VisibilityPublic)
	anon := authz.Actor{}
	if res := authz.Check(anon, authz.ProjectScope(p, nil), authz.ActionProjectRead); !res.Authorized {
		t.Fatalf("anonymous read of public project denied: %s", res.Code)
	}
	if res := authz.Check(anon, authz.ProjectScope(p, nil), authz.ActionProjectUpdate); res.Authorized {
		t.Fatalf("anonymous update of public project authorized")
	}
}

func TestPrivateProjectHiddenFromStrangers(t *testing.T) {
	p := projState("proj-1", "", domain.VisibilityPrivate)
	stranger := authz.Actor{ID: "s", ServerRole: domain.ServerRoleUser}
	res := authz.Check(stranger, authz.ProjectScope(p, nil), authz.ActionProjectRead)
	if res.Authorized {
		t.Fatalf("stranger read private project")
	}
	if res.Code != authz.CodeResourceNotFound {
		t.Fatalf("expected RESOURCE_NOT_FOUND (information hiding), got %s", res.Code)
	}
	// Same code as a genuinely missing project.
	missing := authz.Check(stranger, authz.ProjectScope(nil, nil), authz.ActionProjectRead)
	if missing.Code != res.Code {
		t.Fatalf("missing vs hidden distinguishable: %s vs %s", missing.Code, res.Code)
	}
}

func TestServerGuestCappedReadOnly(t *testing.T) {
	p := projState("proj-1", "", domain.VisibilityPrivate)
	guest := authz.Actor{
		ID:           "g",
		ServerRole:   domain.ServerRoleGuest,
		ProjectRoles: map[string]domain.ProjectRole{"proj-1": domain.ProjectRoleOwner},
	}
	if res := authz.Check(guest, authz.ProjectScope(p, nil), authz.ActionProjectRead); !res.Authorized {
		t.Fatalf("guest owner should read: %s", res.Message)
	}
	if res := authz.Check(guest, authz.ProjectScope(p, nil), authz.ActionProjectDelete); res.Authorized {
		t.Fatalf("guest server role must cap writes even for owners")
	}
}

func TestArchivedDeniedEverything(t *testing.T) {
	archived := authz.Actor{
		ID:           "a",
		ServerRole:   domain.ServerRoleArchived,
		ProjectRoles: map[string]domain.ProjectRole{"proj-1": domain.ProjectRoleOwner},
	}
	p := projState("proj-1", "", domain.VisibilityPublic)
	if res := authz.Check(archived, authz.ProjectScope(p, nil), authz.ActionProjectRead); res.Authorized {
		t.Fatalf("archived user authorized")
	}
}

func TestPersonalProjectCreation(t *testing.T) {
	user := authz.Actor{ID: "u", ServerRole: domain.ServerRoleUser}
	guest := authz.Actor{ID: "g", ServerRole: domain.ServerRoleGuest}
	if res := authz.Check(user, authz.ServerScope(), authz.ActionServerCreatePersonalProject); !res.Authorized {
		t.Fatalf("user should create personal projects: %s", res.Message)
	}
	if res := authz.Check(guest, authz.ServerScope(), authz.ActionServerCreatePersonalProject); res.Authorized {
		t.Fatalf("guest should not create personal projects")
	}
}

func TestLeaveRequiresExplicitGrant(t *testing.T) {
	ws := wsState("ws-1")
	p := projState("proj-1", "ws-1", domain.VisibilityWorkspace)
	derived := member("ws-1", domain.WorkspaceRoleMember, domain.SeatEditor)
	if res := authz.Check(derived, authz.ProjectScope(p, ws), authz.ActionProjectLeave); res.Authorized {
		t.Fatalf("derived role should not be leavable")
	}
	explicit := derived
	explicit.ProjectRoles = map[string]domain.ProjectRole{"proj-1": domain.ProjectRoleReviewer}
	if res := authz.Check(explicit, authz.ProjectScope(p, ws), authz.ActionProjectLeave); !res.Authorized {
		t.Fatalf("explicit member should leave: %s", res.Message)
	}
}
