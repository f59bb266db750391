package authz

import (
	"fmt"

	"runline/internal/domain"
)

// CheckSeat validates the workspace-level constraints on an action before
// any elevated capability is granted: plan status, seat type, and plan
// usage limits. Role checks are Check's job; the two compose. Like Check
// it is pure over the supplied snapshots.
func CheckSeat(actor Actor, ws *WorkspaceState, action Action, limits domain.PlanLimits) Result {
	if ws == nil {
		return denyHidden()
	}
	if actor.ServerRole == domain.ServerRoleArchived {
		return deny(CodeNotAuthorized, "archived users cannot perform any action")
	}
	if isWriteAction(action) {
		if r := checkWorkspaceWrite(actor, ws); !r.Authorized {
			return r
		}
	}
	switch action {
	case ActionWorkspaceCreateProject:
		if limitReached(ws.Usage.ProjectCount, limits.MaxProjects) {
			return denyWith(CodeWorkspacePlanLimit,
				fmt.Sprintf("plan %s allows at most %d projects", ws.PlanName, limits.MaxProjects),
				usagePayload(ws, limits))
		}
	case ActionProjectCreateModel:
		if limitReached(ws.Usage.ModelCount, limits.MaxModels) {
			return denyWith(CodeWorkspacePlanLimit,
				fmt.Sprintf("plan %s allows at most %d models", ws.PlanName, limits.MaxModels),
				usagePayload(ws, limits))
		}
	}
	return allow()
}

// isWriteAction classifies an action across both scope tables. Unknown
// actions are treated as writes so the stricter gates apply.
func isWriteAction(action Action) bool {
	if entry, ok := projectCapabilities[action]; ok {
		return entry.write
	}
	if entry, ok := workspaceCapabilities[action]; ok {
		return entry.write
	}
	return true
}

func limitReached(current, limit int) bool {
	return limit >= 0 && current >= limit
}

func usagePayload(ws *WorkspaceState, limits domain.PlanLimits) map[string]any {
	return map[string]any{
		"plan":          ws.PlanName,
		"project_count": ws.Usage.ProjectCount,
		"model_count":   ws.Usage.ModelCount,
		"max_projects":  limits.MaxProjects,
		"max_models":    limits.MaxModels,
	}
}
