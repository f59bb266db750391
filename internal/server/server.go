package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"runline/internal/authz"
	"runline/internal/domain"
	"runline/internal/engine"
	"runline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"NOT_AUTHORIZED"`
	Message string         `json:"message" example:"insufficient role for this action"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Runline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Runline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerMe(group, cfg.Engine)
	registerWorkspaces(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerModels(group, cfg.Engine)
	registerAutomations(group, cfg.Engine)
	registerRuns(group, cfg.Engine)
	registerCheck(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// resultError converts a capability denial into its HTTP form. The hidden
// denial is indistinguishable from a genuinely missing resource.
func resultError(res authz.Result) huma.StatusError {
	status := http.StatusForbidden
	if res.Code == authz.CodeResourceNotFound {
		status = http.StatusNotFound
	}
	return newAPIError(status, res.Code, res.Message, res.Payload)
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if se, ok := err.(huma.StatusError); ok {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrTokenMismatch) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	}
	if errors.Is(err, engine.ErrRunAlreadyTerminal) {
		return newAPIError(http.StatusConflict, "run_already_terminal", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requireProject runs a project capability check for the caller and maps
// denials to HTTP errors.
func requireProject(ctx context.Context, e *engine.Engine, projectID string, action authz.Action) huma.StatusError {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	res, err := e.CheckProject(ctx, userID, projectID, action)
	if err != nil {
		return handleError(err)
	}
	if !res.Authorized {
		return resultError(res)
	}
	return nil
}

func requireWorkspace(ctx context.Context, e *engine.Engine, workspaceID string, action authz.Action) huma.StatusError {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	res, err := e.CheckWorkspace(ctx, userID, workspaceID, action)
	if err != nil {
		return handleError(err)
	}
	if !res.Authorized {
		return resultError(res)
	}
	return nil
}

func requireServerAdmin(ctx context.Context, e *engine.Engine) huma.StatusError {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return handleError(err)
	}
	if u.ServerRole != domain.ServerRoleAdmin {
		return newAPIError(http.StatusForbidden, authz.CodeNotAuthorized, "server admin required", nil)
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]struct{}{
		path.Join(basePath, "health"):         {},
		path.Join(basePath, "auth/dev/login"): {},
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if _, open := openPaths[route]; open {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Runline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDevAuth(api huma.API, e *engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "dev-login",
		Method:        http.MethodPost,
		Path:          "/auth/dev/login",
		Summary:       "Development login",
		Description:   "Upserts a user and issues a JWT. Disabled outside dev mode.",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if !auth.DevLogin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "dev login disabled", nil)
		}
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		role := domain.ServerRole(input.Body.ServerRole)
		if role == "" {
			role = domain.ServerRoleUser
		}
		if err := e.Repo.UpsertUser(ctx, nil, domain.User{
			ID:         input.Body.UserID,
			Name:       input.Body.Name,
			ServerRole: role,
			Verified:   true,
		}); err != nil {
			return nil, handleError(err)
		}
		ttl := time.Duration(auth.TokenTTLHours) * time.Hour
		token, err := IssueToken(input.Body.UserID, auth.JWTSecret, ttl)
		if err != nil {
			return nil, handleError(err)
		}
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, UserID: input.Body.UserID, ExpiresIn: int(ttl.Seconds())}}, nil
	})
}

func registerMe(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerWorkspaces(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ws, err := e.CreateWorkspace(ctx, input.Body.Name, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Get workspace",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actor, err := e.Repo.ActorSnapshot(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, ok := actor.WorkspaceRoles[input.WorkspaceID]; !ok {
			return nil, resultError(authz.Result{Code: authz.CodeResourceNotFound, Message: "resource not found or access denied"})
		}
		ws, err := e.Repo.GetWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-workspace-plan",
		Method:      http.MethodPut,
		Path:        "/workspaces/{workspace_id}/plan",
		Summary:     "Set workspace plan",
		Description: "Billing state changes come from the payment processor; only server admins apply them.",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                  `path:"workspace_id"`
		Body        SetWorkspacePlanRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		if authErr := requireServerAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.SetWorkspacePlan(ctx, nil, input.WorkspaceID,
			domain.PlanName(input.Body.PlanName), domain.PlanStatus(input.Body.PlanStatus)); err != nil {
			return nil, handleError(err)
		}
		ws, err := e.Repo.GetWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-workspace-role",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/members",
		Summary:       "Add or update workspace member",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                     `path:"workspace_id"`
		Body        AssignWorkspaceRoleRequest `json:"body"`
	}) (*struct{}, error) {
		if authErr := requireWorkspace(ctx, e, input.WorkspaceID, authz.ActionWorkspaceInvite); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.AssignWorkspaceRole(ctx, nil, input.WorkspaceID, input.Body.UserID,
			domain.WorkspaceRole(input.Body.Role)); err != nil {
			return nil, handleError(err)
		}
		seat := domain.SeatType(input.Body.Seat)
		if seat == "" {
			seat = domain.SeatViewer
		}
		if err := e.Repo.AssignSeat(ctx, nil, input.WorkspaceID, input.Body.UserID, seat); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerProjects(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.WorkspaceID != "" {
			if authErr := requireWorkspace(ctx, e, input.Body.WorkspaceID, authz.ActionWorkspaceCreateProject); authErr != nil {
				return nil, authErr
			}
		} else {
			res, err := e.CheckServer(ctx, userID, authz.ActionServerCreatePersonalProject)
			if err != nil {
				return nil, handleError(err)
			}
			if !res.Authorized {
				return nil, resultError(res)
			}
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			WorkspaceID: input.Body.WorkspaceID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Visibility:  domain.Visibility(input.Body.Visibility),
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectRead); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectDelete); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteProject(ctx, nil, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-project-role",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/roles",
		Summary:       "Grant project role",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Body      AssignProjectRoleRequest `json:"body"`
	}) (*struct{}, error) {
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectInvite); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.AssignProjectRole(ctx, nil, input.ProjectID, input.Body.UserID,
			domain.ProjectRole(input.Body.Role)); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerModels(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-model",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/models",
		Summary:       "Create model",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateModelRequest `json:"body"`
	}) (*struct {
		Body domain.Model `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectCreateModel); authErr != nil {
			return nil, authErr
		}
		// Plan limits apply to workspace projects only.
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.WorkspaceID != nil {
			res, err := e.CheckSeatConstraint(ctx, userID, *p.WorkspaceID, authz.ActionProjectCreateModel)
			if err != nil {
				return nil, handleError(err)
			}
			if !res.Authorized {
				return nil, resultError(res)
			}
		}
		m, err := e.CreateModel(ctx, input.ProjectID, input.Body.Name, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Model `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/models",
		Summary:     "List models",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Model `json:"body"`
	}, error) {
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectRead); authErr != nil {
			return nil, authErr
		}
		models, err := e.Repo.ListModels(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Model `json:"body"`
		}{Body: models}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-version",
		Method:        http.MethodPost,
		Path:          "/models/{model_id}/versions",
		Summary:       "Publish version",
		Description:   "Records a new version and fires any automations bound to the model.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ModelID string               `path:"model_id"`
		Body    CreateVersionRequest `json:"body"`
	}) (*struct {
		Body struct {
			Version domain.Version       `json:"version"`
			Runs    []domain.AutomateRun `json:"runs,omitempty"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetModel(ctx, input.ModelID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireProject(ctx, e, m.ProjectID, authz.ActionProjectPublish); authErr != nil {
			return nil, authErr
		}
		v, runs, err := e.CreateVersion(ctx, input.ModelID, input.Body.Message, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Version domain.Version       `json:"version"`
				Runs    []domain.AutomateRun `json:"runs,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Version = v
		out.Body.Runs = runs
		return out, nil
	})
}

func registerAutomations(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-automation",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/automations",
		Summary:       "Create automation",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateAutomationRequest `json:"body"`
	}) (*struct {
		Body domain.Automation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectCreateAutomation); authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAutomation(ctx, engine.AutomationCreateOptions{
			ProjectID: input.ProjectID,
			Name:      input.Body.Name,
			Functions: toRevisionFunctions(input.Body.Functions),
			Triggers:  toTriggerDefinitions(input.Body.Triggers),
			ActorID:   userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Automation `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-automations",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/automations",
		Summary:     "List automations",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Automation `json:"body"`
	}, error) {
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectRead); authErr != nil {
			return nil, authErr
		}
		out, err := e.Repo.ListAutomations(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Automation `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-revision",
		Method:        http.MethodPost,
		Path:          "/automations/{automation_id}/revisions",
		Summary:       "Create automation revision",
		Description:   "Atomically supersedes the current revision.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		AutomationID string                `path:"automation_id"`
		Body         CreateRevisionRequest `json:"body"`
	}) (*struct {
		Body domain.AutomationRevision `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAutomation(ctx, input.AutomationID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireProject(ctx, e, a.ProjectID, authz.ActionProjectCreateAutomation); authErr != nil {
			return nil, authErr
		}
		rev, err := e.CreateRevision(ctx, input.AutomationID,
			toRevisionFunctions(input.Body.Functions),
			toTriggerDefinitions(input.Body.Triggers), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AutomationRevision `json:"body"`
		}{Body: rev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-automation-enabled",
		Method:        http.MethodPut,
		Path:          "/automations/{automation_id}/enabled",
		Summary:       "Enable or disable automation",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		AutomationID string                      `path:"automation_id"`
		Body         SetAutomationEnabledRequest `json:"body"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAutomation(ctx, input.AutomationID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireProject(ctx, e, a.ProjectID, authz.ActionProjectCreateAutomation); authErr != nil {
			return nil, authErr
		}
		if err := e.SetAutomationEnabled(ctx, input.AutomationID, input.Body.Enabled, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerRuns(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/automations/{automation_id}/runs",
		Summary:     "List automation runs",
	}, func(ctx context.Context, input *struct {
		AutomationID string `path:"automation_id"`
	}) (*struct {
		Body []domain.AutomateRun `json:"body"`
	}, error) {
		a, err := e.Repo.GetAutomation(ctx, input.AutomationID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireProject(ctx, e, a.ProjectID, authz.ActionProjectRead); authErr != nil {
			return nil, authErr
		}
		out, err := e.ListRuns(ctx, input.AutomationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AutomateRun `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{run_id}",
		Summary:     "Get run",
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body domain.AutomateRun `json:"body"`
	}, error) {
		run, err := e.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetAutomation(ctx, run.AutomationID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireProject(ctx, e, a.ProjectID, authz.ActionProjectRead); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.AutomateRun `json:"body"`
		}{Body: run}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-function-run-status",
		Method:      http.MethodPost,
		Path:        "/function-runs/{function_run_id}/status",
		Summary:     "Report function run status",
		Description: "Called by the execution sandbox with its run-scoped token.",
	}, func(ctx context.Context, input *struct {
		FunctionRunID string              `path:"function_run_id"`
		Authorization string              `header:"Authorization"`
		Body          ReportStatusRequest `json:"body"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		token, ok := bearerToken(input.Authorization)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "run token required", nil)
		}
		run, err := e.ReportStatus(ctx, engine.StatusReport{
			Token:         token,
			FunctionRunID: input.FunctionRunID,
			Status:        domain.RunStatus(input.Body.Status),
			StatusMessage: input.Body.StatusMessage,
			ResultsJSON:   input.Body.ResultsJSON,
			ContextView:   input.Body.ContextView,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: RunResponse{Run: run}}, nil
	})
}

func registerCheck(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-permission",
		Method:      http.MethodPost,
		Path:        "/check",
		Summary:     "Evaluate a capability check",
		Description: "Returns the verdict without performing the action. Checking another user requires server admin.",
	}, func(ctx context.Context, input *struct {
		Body CheckRequest `json:"body"`
	}) (*struct {
		Body CheckResponse `json:"body"`
	}, error) {
		callerID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		subject := input.Body.UserID
		if subject == "" {
			subject = callerID
		}
		if subject != callerID {
			if authErr := requireServerAdmin(ctx, e); authErr != nil {
				return nil, authErr
			}
		}
		action := authz.Action(input.Body.Action)
		var res authz.Result
		var err error
		switch input.Body.Scope {
		case "server":
			res, err = e.CheckServer(ctx, subject, action)
		case "workspace":
			res, err = e.CheckWorkspace(ctx, subject, input.Body.WorkspaceID, action)
		case "project":
			res, err = e.CheckProject(ctx, subject, input.Body.ProjectID, action)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown scope", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CheckResponse `json:"body"`
		}{Body: CheckResponse{
			Authorized: res.Authorized,
			Code:       res.Code,
			Message:    res.Message,
			Payload:    res.Payload,
		}}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent project events",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if authErr := requireProject(ctx, e, input.ProjectID, authz.ActionProjectRead); authErr != nil {
			return nil, authErr
		}
		out, err := e.Repo.TailEvents(ctx, input.Limit, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: out}, nil
	})
}
