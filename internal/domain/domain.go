package domain

// ServerRole is the instance-wide role of an authenticated user.
type ServerRole string

const (
	ServerRoleAdmin    ServerRole = "server:admin"
	ServerRoleUser     ServerRole = "server:user"
	ServerRoleGuest    ServerRole = "server:guest"
	ServerRoleArchived ServerRole = "server:archived-user"
)

// WorkspaceRole is an actor's role inside a workspace.
type WorkspaceRole string

const (
	WorkspaceRoleAdmin  WorkspaceRole = "workspace:admin"
	WorkspaceRoleMember WorkspaceRole = "workspace:member"
	WorkspaceRoleGuest  WorkspaceRole = "workspace:guest"
)

// ProjectRole is an actor's explicit role on a project. Legacy stream
// roles map 1:1 onto these.
type ProjectRole string

const (
	ProjectRoleOwner       ProjectRole = "project:owner"
	ProjectRoleContributor ProjectRole = "project:contributor"
	ProjectRoleReviewer    ProjectRole = "project:reviewer"
)

// SeatType caps what a workspace member can be granted, independent of role.
type SeatType string

const (
	SeatEditor SeatType = "editor"
	SeatViewer SeatType = "viewer"
)

// Visibility controls who can read a project beyond its collaborators.
type Visibility string

const (
	VisibilityPrivate   Visibility = "private"
	VisibilityPublic    Visibility = "public"
	VisibilityWorkspace Visibility = "workspace"
	VisibilityUnlisted  Visibility = "unlisted"
)

// PlanName is a workspace billing tier.
type PlanName string

const (
	PlanFree      PlanName = "free"
	PlanTeam      PlanName = "team"
	PlanPro       PlanName = "pro"
	PlanUnlimited PlanName = "unlimited"
)

// PlanStatus is the billing state of a workspace plan.
type PlanStatus string

const (
	PlanStatusValid                 PlanStatus = "valid"
	PlanStatusTrial                 PlanStatus = "trial"
	PlanStatusPaymentFailed         PlanStatus = "paymentFailed"
	PlanStatusCancelationScheduled  PlanStatus = "cancelationScheduled"
	PlanStatusCanceled              PlanStatus = "canceled"
)

// PlanLimits caps what a workspace on a given plan may hold. A negative
// limit means unlimited. Exact numbers are configuration, not code.
type PlanLimits struct {
	MaxProjects int `json:"max_projects" yaml:"max_projects"`
	MaxModels   int `json:"max_models" yaml:"max_models"`
}

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	ServerRole ServerRole `json:"server_role"`
	Verified   bool       `json:"verified"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

type Workspace struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	PlanName   PlanName   `json:"plan_name"`
	PlanStatus PlanStatus `json:"plan_status"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

type Project struct {
	ID                  string     `json:"id"`
	WorkspaceID         *string    `json:"workspace_id,omitempty"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	Visibility          Visibility `json:"visibility"`
	AllowPublicComments bool       `json:"allow_public_comments"`
	CreatedAt           string     `json:"created_at" format:"date-time"`
	UpdatedAt           string     `json:"updated_at" format:"date-time"`
}

// Model is a named stream of versions inside a project. Its content is
// opaque to this service.
type Model struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Version struct {
	ID        string `json:"id"`
	ModelID   string `json:"model_id"`
	AuthorID  string `json:"author_id"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TriggerVersionCreated is the only trigger type currently supported.
const TriggerVersionCreated = "versionCreated"

type Automation struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	Name              string  `json:"name"`
	Enabled           bool    `json:"enabled"`
	CurrentRevisionID *string `json:"current_revision_id,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

// AutomationRevision is immutable once superseded. Exactly one revision
// per automation is active at a time.
type AutomationRevision struct {
	ID           string              `json:"id"`
	AutomationID string              `json:"automation_id"`
	Active       bool                `json:"active"`
	Functions    []RevisionFunction  `json:"functions"`
	Triggers     []TriggerDefinition `json:"triggers"`
	CreatedAt    string              `json:"created_at" format:"date-time"`
}

type RevisionFunction struct {
	FunctionID     string  `json:"function_id"`
	ReleaseID      string  `json:"release_id"`
	ParametersJSON *string `json:"parameters_json,omitempty"`
}

// TriggerDefinition binds an event pattern to an automation revision.
// A nil ModelID matches no event; the binding must be explicit.
type TriggerDefinition struct {
	Type    string  `json:"type" enum:"versionCreated"`
	ModelID *string `json:"model_id,omitempty"`
}

// RunStatus is shared by function runs and the derived run aggregate.
type RunStatus string

const (
	RunPending      RunStatus = "pending"
	RunInitializing RunStatus = "initializing"
	RunRunning      RunStatus = "running"
	RunSucceeded    RunStatus = "succeeded"
	RunFailed       RunStatus = "failed"
	RunException    RunStatus = "exception"
	RunTimeout      RunStatus = "timeout"
	RunCanceled     RunStatus = "canceled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunException, RunTimeout, RunCanceled:
		return true
	}
	return false
}

type AutomateRun struct {
	ID           string        `json:"id"`
	AutomationID string        `json:"automation_id"`
	RevisionID   string        `json:"revision_id"`
	TriggerType  string        `json:"trigger_type"`
	VersionID    string        `json:"version_id"`
	ModelID      string        `json:"model_id"`
	Status       RunStatus     `json:"status"`
	FunctionRuns []FunctionRun `json:"function_runs,omitempty"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
	UpdatedAt    string        `json:"updated_at" format:"date-time"`
}

type FunctionRun struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	FunctionID    string    `json:"function_id"`
	ReleaseID     string    `json:"release_id"`
	Status        RunStatus `json:"status"`
	StatusMessage *string   `json:"status_message,omitempty"`
	ResultsJSON   *string   `json:"results_json,omitempty"`
	ContextView   *string   `json:"context_view,omitempty"`
	CreatedAt     string    `json:"created_at" format:"date-time"`
	UpdatedAt     string    `json:"updated_at" format:"date-time"`
}

// FunctionRunToken is the stored (hashed) capability presented by the
// execution sandbox when reporting status for one function run.
type FunctionRunToken struct {
	ID            string `json:"id"`
	RunID         string `json:"run_id"`
	FunctionRunID string `json:"function_run_id"`
	TokenHash     string `json:"key_hash"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
