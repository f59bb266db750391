package authz_test

import (
	"testing"

	"runline/internal/authz"
	"runline/internal/domain"
)

var freeLimits = domain.PlanLimits{MaxProjects: 1, MaxModels: 5}

func TestFreePlanProjectLimit(t *testing.T) {
	ws := &authz.WorkspaceState{
		ID:         "ws-1",
		PlanName:   domain.PlanFree,
		PlanStatus: domain.PlanStatusValid,
		Usage:      authz.PlanUsage{ProjectCount: 1},
	}
	a := member("ws-1", domain.WorkspaceRoleAdmin, domain.SeatEditor)
	res := authz.CheckSeat(a, ws, authz.ActionWorkspaceCreateProject, freeLimits)
	if res.Authorized {
		t.Fatalf("expected plan limit denial")
	}
	if res.Code != authz.CodeWorkspacePlanLimit {
		t.Fatalf("expected WORKSPACE_PLAN_LIMIT, got %s", res.Code)
	}
	if res.Payload["project_count"] != 1 {
		t.Fatalf("payload should carry usage counts, got %v", res.Payload)
	}

	ws.Usage.ProjectCount = 0
	if res := authz.CheckSeat(a, ws, authz.ActionWorkspaceCreateProject, freeLimits); !res.Authorized {
		t.Fatalf("under the limit should pass: %s", res.Message)
	}
}

func TestUnlimitedPlanNeverLimits(t *testing.T) {
	ws := &authz.WorkspaceState{
		ID:         "ws-1",
		PlanName:   domain.PlanUnlimited,
		PlanStatus: domain.PlanStatusValid,
		Usage:      authz.PlanUsage{ProjectCount: 10000, ModelCount: 10000},
	}
	a := member("ws-1", domain.WorkspaceRoleMember, domain.SeatEditor)
	unlimited := domain.PlanLimits{MaxProjects: -1, MaxModels: -1}
	if res := authz.CheckSeat(a, ws, authz.ActionWorkspaceCreateProject, unlimited); !res.Authorized {
		t.Fatalf("unlimited plan limited: %s", res.Message)
	}
	if res := authz.CheckSeat(a, ws, authz.ActionProjectCreateModel, unlimited); !res.Authorized {
		t.Fatalf("unlimited plan limited models: %s", res.Message)
	}
}

func TestViewerSeatBlocksWrites(t *testing.T) {
	ws := wsState("ws-1")
	a := member("ws-1", domain.WorkspaceRoleAdmin, domain.SeatViewer)
	res := authz.CheckSeat(a, ws, authz.ActionProjectCreateModel, freeLimits)
	if res.Authorized || res.Code != authz.CodeSeatInsufficient {
		t.Fatalf("expected SEAT_INSUFFICIENT, got %s", res.Code)
	}
	// Read-oriented actions pass on a viewer seat.
	if res := authz.CheckSeat(a, ws, authz.ActionProjectRead, freeLimits); !res.Authorized {
		t.Fatalf("viewer seat should pass reads: %s", res.Message)
	}
}

func TestPlanStatusGating(t *testing.T) {
	a := member("ws-1", domain.WorkspaceRoleAdmin, domain.SeatEditor)
	for status, wantReadOnly := range map[domain.PlanStatus]bool{
		domain.PlanStatusValid:                false,
		domain.PlanStatusTrial:                false,
		domain.PlanStatusCancelationScheduled: false,
		domain.PlanStatusPaymentFailed:        true,
		domain.PlanStatusCanceled:             true,
	} {
		ws := &authz.WorkspaceState{ID: "ws-1", PlanName: domain.PlanTeam, PlanStatus: status}
		res := authz.CheckSeat(a, ws, authz.ActionProjectCreateModel, domain.PlanLimits{MaxProjects: -1, MaxModels: -1})
		if wantReadOnly {
			if res.Authorized || res.Code != authz.CodeWorkspaceReadOnly {
				t.Fatalf("status %s: expected WORKSPACE_READ_ONLY, got %s", status, res.Code)
			}
		} else if !res.Authorized {
			t.Fatalf("status %s: expected full access, got %s", status, res.Code)
		}
	}
}

func TestUnknownWorkspaceHidden(t *testing.T) {
	a := member("ws-1", domain.WorkspaceRoleAdmin, domain.SeatEditor)
	res := authz.CheckSeat(a, nil, authz.ActionWorkspaceCreateProject, freeLimits)
	if res.Authorized || res.Code != authz.CodeResourceNotFound {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %s", res.Code)
	}
}
