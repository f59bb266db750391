package server

import (
	"runline/internal/domain"
)

// Request payloads

type DevLoginRequest struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name,omitempty"`
	ServerRole string `json:"server_role,omitempty" enum:"server:admin,server:user,server:guest,server:archived-user"`
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

type SetWorkspacePlanRequest struct {
	PlanName   string `json:"plan_name" enum:"free,team,pro,unlimited"`
	PlanStatus string `json:"plan_status" enum:"valid,trial,paymentFailed,cancelationScheduled,canceled"`
}

type AssignWorkspaceRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"workspace:admin,workspace:member,workspace:guest"`
	Seat   string `json:"seat,omitempty" enum:"editor,viewer"`
}

type CreateProjectRequest struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty" enum:"private,public,workspace,unlisted"`
}

type AssignProjectRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"project:owner,project:contributor,project:reviewer"`
}

type CreateModelRequest struct {
	Name string `json:"name"`
}

type CreateVersionRequest struct {
	Message string `json:"message,omitempty"`
}

type TriggerRequest struct {
	Type    string  `json:"type" enum:"versionCreated"`
	ModelID *string `json:"model_id,omitempty"`
}

type FunctionBindingRequest struct {
	FunctionID     string  `json:"function_id"`
	ReleaseID      string  `json:"release_id"`
	ParametersJSON *string `json:"parameters_json,omitempty"`
}

type CreateAutomationRequest struct {
	Name      string                   `json:"name"`
	Functions []FunctionBindingRequest `json:"functions,omitempty"`
	Triggers  []TriggerRequest         `json:"triggers,omitempty"`
}

type CreateRevisionRequest struct {
	Functions []FunctionBindingRequest `json:"functions"`
	Triggers  []TriggerRequest         `json:"triggers,omitempty"`
}

type SetAutomationEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type ReportStatusRequest struct {
	Status        string  `json:"status" enum:"pending,initializing,running,succeeded,failed,exception,timeout,canceled"`
	StatusMessage *string `json:"status_message,omitempty"`
	ResultsJSON   *string `json:"results_json,omitempty"`
	ContextView   *string `json:"context_view,omitempty"`
}

type CheckRequest struct {
	UserID      string `json:"user_id,omitempty"`
	Scope       string `json:"scope" enum:"server,workspace,project"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	Action      string `json:"action"`
}

// Response payloads

type TokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

type CheckResponse struct {
	Authorized bool           `json:"authorized"`
	Code       string         `json:"code"`
	Message    string         `json:"message,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type RunResponse struct {
	Run domain.AutomateRun `json:"run"`
}

func toRevisionFunctions(in []FunctionBindingRequest) []domain.RevisionFunction {
	var out []domain.RevisionFunction
	for _, fn := range in {
		out = append(out, domain.RevisionFunction{
			FunctionID:     fn.FunctionID,
			ReleaseID:      fn.ReleaseID,
			ParametersJSON: fn.ParametersJSON,
		})
	}
	return out
}

func toTriggerDefinitions(in []TriggerRequest) []domain.TriggerDefinition {
	var out []domain.TriggerDefinition
	for _, trg := range in {
		out = append(out, domain.TriggerDefinition{Type: trg.Type, ModelID: trg.ModelID})
	}
	return out
}
