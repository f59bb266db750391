package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"runline/internal/authz"
	"runline/internal/config"
	"runline/internal/db"
	"runline/internal/domain"
	"runline/internal/engine"
	"runline/internal/migrate"
)

type recordingSandbox struct {
	reqs []engine.DispatchRequest
}

func (s *recordingSandbox) Dispatch(_ context.Context, req engine.DispatchRequest) error {
	s.reqs = append(s.reqs, req)
	return nil
}

type testServer struct {
	URL     string
	Engine  *engine.Engine
	Sandbox *recordingSandbox
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.DevLogin = true
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	sb := &recordingSandbox{}
	e.Sandbox = sb
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			DevLogin:  true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Sandbox: sb,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, userID string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": userID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok.Token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func setupProject(t *testing.T, srv *testServer, auth map[string]string) (domain.Workspace, domain.Project, domain.Model) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/workspaces", map[string]any{"name": "acme"}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace: %d %s", res.StatusCode, string(data))
	}
	var ws domain.Workspace
	_ = json.Unmarshal(data, &ws)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"workspace_id": ws.ID,
		"name":         "bridge",
		"visibility":   "private",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var p domain.Project
	_ = json.Unmarshal(data, &p)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/models", map[string]any{"name": "deck"}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create model: %d %s", res.StatusCode, string(data))
	}
	var m domain.Model
	_ = json.Unmarshal(data, &m)
	return ws, p, m
}

func TestVersionPublishRunsAutomation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := login(t, srv, "alice")
	_, p, m := setupProject(t, srv, auth)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/automations", map[string]any{
		"name":      "checks",
		"functions": []map[string]any{{"function_id": "fn-a", "release_id": "rel-1"}},
		"triggers":  []map[string]any{{"type": "versionCreated", "model_id": m.ID}},
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create automation: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/models/"+m.ID+"/versions", map[string]any{
		"message": "first",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create version: %d %s", res.StatusCode, string(data))
	}
	var created struct {
		Version domain.Version       `json:"version"`
		Runs    []domain.AutomateRun `json:"runs"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal version response: %v", err)
	}
	if len(created.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(created.Runs))
	}
	run := created.Runs[0]
	if run.Status != domain.RunPending || len(run.FunctionRuns) != 1 {
		t.Fatalf("unexpected run shape: %+v", run)
	}
	if len(srv.Sandbox.reqs) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(srv.Sandbox.reqs))
	}

	frID := run.FunctionRuns[0].ID
	token := srv.Sandbox.reqs[0].Token
	for _, status := range []string{"initializing", "running", "succeeded"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/function-runs/"+frID+"/status", map[string]any{
			"status": status,
		}, map[string]string{"Authorization": "Bearer " + token})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("report %s: %d %s", status, res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/runs/"+run.ID, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get run: %d %s", res.StatusCode, string(data))
	}
	var final domain.AutomateRun
	_ = json.Unmarshal(data, &final)
	if final.Status != domain.RunSucceeded {
		t.Fatalf("run status = %s, want succeeded", final.Status)
	}
}

func TestReportStatusRejectsForeignToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := login(t, srv, "alice")
	_, p, m := setupProject(t, srv, auth)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/automations", map[string]any{
		"name":      "checks",
		"functions": []map[string]any{{"function_id": "fn-a", "release_id": "rel-1"}},
		"triggers":  []map[string]any{{"type": "versionCreated", "model_id": m.ID}},
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create automation: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/models/"+m.ID+"/versions", map[string]any{"message": "x"}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create version: %d %s", res.StatusCode, string(data))
	}
	var created struct {
		Runs []domain.AutomateRun `json:"runs"`
	}
	_ = json.Unmarshal(data, &created)
	frID := created.Runs[0].FunctionRuns[0].ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/function-runs/"+frID+"/status", map[string]any{
		"status": "running",
	}, map[string]string{"Authorization": "Bearer frt_forged"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d %s", res.StatusCode, string(data))
	}
}

func TestHiddenProjectLooksMissing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	owner := login(t, srv, "alice")
	_, p, _ := setupProject(t, srv, owner)

	stranger := login(t, srv, "mallory")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, stranger)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for hidden project, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != authz.CodeResourceNotFound {
		t.Fatalf("expected %s, got %s", authz.CodeResourceNotFound, code)
	}
}

func TestFreePlanProjectLimitOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := login(t, srv, "alice")
	ws, _, _ := setupProject(t, srv, auth)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"workspace_id": ws.ID,
		"name":         "second",
	}, auth)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 at plan limit, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != authz.CodeWorkspacePlanLimit {
		t.Fatalf("expected %s, got %s", authz.CodeWorkspacePlanLimit, code)
	}
}

func TestCheckEndpointReportsVerdict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := login(t, srv, "alice")
	_, p, _ := setupProject(t, srv, auth)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/check", map[string]any{
		"scope":      "project",
		"project_id": p.ID,
		"action":     "canDelete",
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check: %d %s", res.StatusCode, string(data))
	}
	var verdict CheckResponse
	_ = json.Unmarshal(data, &verdict)
	if !verdict.Authorized || verdict.Code != authz.CodeOK {
		t.Fatalf("owner should pass canDelete: %+v", verdict)
	}

	other := login(t, srv, "bob")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/check", map[string]any{
		"scope":      "project",
		"project_id": p.ID,
		"action":     "canDelete",
	}, other)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &verdict)
	if verdict.Authorized || verdict.Code != authz.CodeResourceNotFound {
		t.Fatalf("stranger should see hidden denial: %+v", verdict)
	}
}

func TestRequestsWithoutCredentialsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d %s", res.StatusCode, string(data))
	}
}
