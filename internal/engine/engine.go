package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"runline/internal/authz"
	"runline/internal/config"
	"runline/internal/domain"
	"runline/internal/events"
	"runline/internal/repo"
)

// Typed state errors surfaced to the execution sandbox.
var (
	ErrRunAlreadyTerminal = errors.New("RUN_ALREADY_TERMINAL: function run already reached a terminal status")
	ErrTokenMismatch      = errors.New("token not scoped to this run and function run")
)

// Sandbox executes function runs. The real implementation lives outside
// this service and calls back into ReportStatus with a function-run token.
type Sandbox interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// DispatchRequest carries everything the sandbox needs for one function run.
type DispatchRequest struct {
	RunID          string
	FunctionRunID  string
	FunctionID     string
	ReleaseID      string
	ParametersJSON *string
	VersionID      string
	ModelID        string
	ProjectID      string
	Token          string
}

// NopSandbox accepts every dispatch and does nothing. Used when no
// execution backend is wired, e.g. in the CLI.
type NopSandbox struct{}

func (NopSandbox) Dispatch(context.Context, DispatchRequest) error { return nil }

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Sandbox Sandbox
	Now     func() time.Time

	// mu guards runLocks; each run gets its own lock so status reports
	// for different runs never serialize against each other.
	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	return &Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Sandbox:  NopSandbox{},
		Now:      time.Now,
		runLocks: map[string]*sync.Mutex{},
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e *Engine) runLock(runID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runLocks == nil {
		e.runLocks = map[string]*sync.Mutex{}
	}
	l, ok := e.runLocks[runID]
	if !ok {
		l = &sync.Mutex{}
		e.runLocks[runID] = l
	}
	return l
}

// releaseRunLock drops the lock entry for a run whose aggregate reached a
// terminal status; later reports fail the transition check regardless.
func (e *Engine) releaseRunLock(runID string) {
	e.mu.Lock()
	delete(e.runLocks, runID)
	e.mu.Unlock()
}

// --- capability checks over stored snapshots ---

// CheckProject evaluates a project-scope action for a user against the
// current stored state. The evaluation itself is pure; this only loads
// the snapshots.
func (e *Engine) CheckProject(ctx context.Context, userID, projectID string, action authz.Action) (authz.Result, error) {
	actor, err := e.Repo.ActorSnapshot(ctx, userID)
	if err != nil {
		return authz.Result{}, err
	}
	p, err := e.Repo.ProjectSnapshot(ctx, projectID)
	if err != nil {
		return authz.Result{}, err
	}
	var ws *authz.WorkspaceState
	if p != nil && p.WorkspaceID != "" {
		ws, err = e.Repo.WorkspaceSnapshot(ctx, p.WorkspaceID)
		if err != nil {
			return authz.Result{}, err
		}
	}
	return authz.Check(actor, authz.ProjectScope(p, ws), action), nil
}

// CheckWorkspace evaluates a workspace-scope action including seat and
// plan constraints.
func (e *Engine) CheckWorkspace(ctx context.Context, userID, workspaceID string, action authz.Action) (authz.Result, error) {
	actor, err := e.Repo.ActorSnapshot(ctx, userID)
	if err != nil {
		return authz.Result{}, err
	}
	ws, err := e.Repo.WorkspaceSnapshot(ctx, workspaceID)
	if err != nil {
		return authz.Result{}, err
	}
	if res := authz.Check(actor, authz.WorkspaceScope(ws), action); !res.Authorized {
		return res, nil
	}
	limits := domain.PlanLimits{MaxProjects: -1, MaxModels: -1}
	if e.Config != nil && ws != nil {
		limits = e.Config.Limits(ws.PlanName)
	}
	return authz.CheckSeat(actor, ws, action, limits), nil
}

// CheckSeatConstraint evaluates only the seat and plan constraints for an
// action in a workspace.
func (e *Engine) CheckSeatConstraint(ctx context.Context, userID, workspaceID string, action authz.Action) (authz.Result, error) {
	actor, err := e.Repo.ActorSnapshot(ctx, userID)
	if err != nil {
		return authz.Result{}, err
	}
	ws, err := e.Repo.WorkspaceSnapshot(ctx, workspaceID)
	if err != nil {
		return authz.Result{}, err
	}
	limits := domain.PlanLimits{MaxProjects: -1, MaxModels: -1}
	if e.Config != nil && ws != nil {
		limits = e.Config.Limits(ws.PlanName)
	}
	return authz.CheckSeat(actor, ws, action, limits), nil
}

// CheckServer evaluates a server-scope action.
func (e *Engine) CheckServer(ctx context.Context, userID string, action authz.Action) (authz.Result, error) {
	actor, err := e.Repo.ActorSnapshot(ctx, userID)
	if err != nil {
		return authz.Result{}, err
	}
	return authz.Check(actor, authz.ServerScope(), action), nil
}

// --- workspace and project management ---

func (e *Engine) CreateWorkspace(ctx context.Context, name, actorID string) (domain.Workspace, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Workspace{}, errors.New("name is required")
	}
	ws := domain.Workspace{
		ID:         uuid.New().String(),
		Name:       name,
		PlanName:   domain.PlanFree,
		PlanStatus: domain.PlanStatusValid,
		CreatedAt:  e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkspace(ctx, tx, ws); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	// The creator administers the workspace and gets an editor seat.
	if err := e.Repo.AssignWorkspaceRole(ctx, tx, ws.ID, actorID, domain.WorkspaceRoleAdmin); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Repo.AssignSeat(ctx, tx, ws.ID, actorID, domain.SeatEditor); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Events.Append(ctx, tx, "workspace.created", "", "workspace", ws.ID, actorID, events.EventPayload{"name": ws.Name}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID          string
	WorkspaceID string
	Name        string
	Description string
	Visibility  domain.Visibility
	ActorID     string
}

func (e *Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.Visibility == "" {
		opts.Visibility = domain.VisibilityPrivate
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := e.nowStr()
	p := domain.Project{
		ID:          id,
		Name:        opts.Name,
		Description: opts.Description,
		Visibility:  opts.Visibility,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if opts.WorkspaceID != "" {
		p.WorkspaceID = &opts.WorkspaceID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.AssignProjectRole(ctx, tx, p.ID, opts.ActorID, domain.ProjectRoleOwner); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"name":       p.Name,
		"visibility": p.Visibility,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e *Engine) CreateModel(ctx context.Context, projectID, name, actorID string) (domain.Model, error) {
	if name == "" {
		return domain.Model{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Model{}, err
	}
	m := domain.Model{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Model{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertModel(ctx, tx, m); err != nil {
		return domain.Model{}, fmt.Errorf("insert model: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "model.created", projectID, "model", m.ID, actorID, events.EventPayload{"name": m.Name}); err != nil {
		return domain.Model{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Model{}, err
	}
	return m, nil
}

// CreateVersion records a new version and feeds the trigger pipeline.
// Automation runs spawned by it are returned alongside the version.
func (e *Engine) CreateVersion(ctx context.Context, modelID, message, actorID string) (domain.Version, []domain.AutomateRun, error) {
	m, err := e.Repo.GetModel(ctx, modelID)
	if err != nil {
		return domain.Version{}, nil, err
	}
	v := domain.Version{
		ID:        uuid.New().String(),
		ModelID:   modelID,
		AuthorID:  actorID,
		Message:   message,
		CreatedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertVersion(ctx, tx, v); err != nil {
		return domain.Version{}, nil, fmt.Errorf("insert version: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "version.created", m.ProjectID, "version", v.ID, actorID, events.EventPayload{"model_id": modelID}); err != nil {
		return domain.Version{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Version{}, nil, err
	}
	runs, err := e.HandleVersionCreated(ctx, VersionCreatedEvent{
		EventID:   v.ID,
		ProjectID: m.ProjectID,
		ModelID:   modelID,
		VersionID: v.ID,
	})
	if err != nil {
		return v, nil, err
	}
	return v, runs, nil
}

// --- automation management ---

// AutomationCreateOptions are parameters for creating an automation with
// its first revision.
type AutomationCreateOptions struct {
	ProjectID string
	Name      string
	Functions []domain.RevisionFunction
	Triggers  []domain.TriggerDefinition
	ActorID   string
}

func (e *Engine) CreateAutomation(ctx context.Context, opts AutomationCreateOptions) (domain.Automation, error) {
	if opts.Name == "" {
		return domain.Automation{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Automation{}, err
	}
	ts := e.nowStr()
	a := domain.Automation{
		ID:        uuid.New().String(),
		ProjectID: opts.ProjectID,
		Name:      opts.Name,
		Enabled:   true,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Automation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAutomation(ctx, tx, a); err != nil {
		return domain.Automation{}, fmt.Errorf("insert automation: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "automation.created", opts.ProjectID, "automation", a.ID, opts.ActorID, events.EventPayload{"name": a.Name}); err != nil {
		return domain.Automation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Automation{}, err
	}
	if len(opts.Functions) > 0 || len(opts.Triggers) > 0 {
		rev, err := e.CreateRevision(ctx, a.ID, opts.Functions, opts.Triggers, opts.ActorID)
		if err != nil {
			return domain.Automation{}, err
		}
		a.CurrentRevisionID = &rev.ID
	}
	return a, nil
}

// CreateRevision replaces the automation's current revision atomically.
// Superseded revisions stay stored but never match triggers again.
func (e *Engine) CreateRevision(ctx context.Context, automationID string, functions []domain.RevisionFunction, triggers []domain.TriggerDefinition, actorID string) (domain.AutomationRevision, error) {
	a, err := e.Repo.GetAutomation(ctx, automationID)
	if err != nil {
		return domain.AutomationRevision{}, err
	}
	if len(functions) == 0 {
		return domain.AutomationRevision{}, errors.New("at least one function binding is required")
	}
	for _, fn := range functions {
		if fn.FunctionID == "" || fn.ReleaseID == "" {
			return domain.AutomationRevision{}, errors.New("function_id and release_id required for every binding")
		}
	}
	for _, trg := range triggers {
		if err := ValidateTrigger(trg); err != nil {
			return domain.AutomationRevision{}, err
		}
	}
	rev := domain.AutomationRevision{
		ID:           uuid.New().String(),
		AutomationID: automationID,
		Active:       true,
		Functions:    functions,
		Triggers:     triggers,
		CreatedAt:    e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AutomationRevision{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRevision(ctx, tx, rev); err != nil {
		return domain.AutomationRevision{}, fmt.Errorf("insert revision: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "automation.revision.created", a.ProjectID, "automation", automationID, actorID, events.EventPayload{
		"revision_id": rev.ID,
		"functions":   len(functions),
		"triggers":    len(triggers),
	}); err != nil {
		return domain.AutomationRevision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AutomationRevision{}, err
	}
	return rev, nil
}

func (e *Engine) SetAutomationEnabled(ctx context.Context, automationID string, enabled bool, actorID string) error {
	a, err := e.Repo.GetAutomation(ctx, automationID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetAutomationEnabled(ctx, tx, automationID, enabled); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "automation.toggled", a.ProjectID, "automation", automationID, actorID, events.EventPayload{"enabled": enabled}); err != nil {
		return err
	}
	return tx.Commit()
}
