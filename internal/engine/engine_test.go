package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"runline/internal/config"
	"runline/internal/db"
	"runline/internal/domain"
	"runline/internal/engine"
	"runline/internal/migrate"
)

type captureSandbox struct {
	mu   sync.Mutex
	reqs []engine.DispatchRequest
}

func (s *captureSandbox) Dispatch(_ context.Context, req engine.DispatchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *captureSandbox) tokenFor(t *testing.T, functionRunID string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reqs {
		if r.FunctionRunID == functionRunID {
			return r.Token
		}
	}
	t.Fatalf("no dispatch captured for function run %s", functionRunID)
	return ""
}

type testEnv struct {
	Engine  *engine.Engine
	Sandbox *captureSandbox
	Ctx     context.Context

	Workspace domain.Workspace
	Project   domain.Project
	Model     domain.Model
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	sb := &captureSandbox{}
	eng.Sandbox = sb
	ctx := context.Background()

	if err := eng.Repo.UpsertUser(ctx, nil, domain.User{ID: "tester", Name: "Tester"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	ws, err := eng.CreateWorkspace(ctx, "acme", "tester")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	p, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{
		WorkspaceID: ws.ID, Name: "bridge", Visibility: domain.VisibilityWorkspace, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	m, err := eng.CreateModel(ctx, p.ID, "deck", "tester")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	return testEnv{Engine: eng, Sandbox: sb, Ctx: ctx, Workspace: ws, Project: p, Model: m}
}

func (env testEnv) createAutomation(t *testing.T, functions int, modelID string) domain.Automation {
	t.Helper()
	var fns []domain.RevisionFunction
	for i := 0; i < functions; i++ {
		fns = append(fns, domain.RevisionFunction{FunctionID: "fn-" + string(rune('a'+i)), ReleaseID: "rel-1"})
	}
	a, err := env.Engine.CreateAutomation(env.Ctx, engine.AutomationCreateOptions{
		ProjectID: env.Project.ID,
		Name:      "checks",
		Functions: fns,
		Triggers:  []domain.TriggerDefinition{{Type: domain.TriggerVersionCreated, ModelID: &modelID}},
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}
	return a
}

func TestVersionOnBoundModelSpawnsRun(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 2, env.Model.ID)

	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "first", "tester")
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Status != domain.RunPending {
		t.Fatalf("new run status = %s, want pending", run.Status)
	}
	if len(run.FunctionRuns) != 2 {
		t.Fatalf("expected 2 function runs, got %d", len(run.FunctionRuns))
	}
	for _, fr := range run.FunctionRuns {
		if fr.Status != domain.RunPending {
			t.Fatalf("function run %s status = %s, want pending", fr.ID, fr.Status)
		}
	}
	if len(env.Sandbox.reqs) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(env.Sandbox.reqs))
	}
	for _, req := range env.Sandbox.reqs {
		if req.Token == "" {
			t.Fatalf("dispatch without token")
		}
	}
}

func TestVersionOnOtherModelMatchesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 1, env.Model.ID)
	other, err := env.Engine.CreateModel(env.Ctx, env.Project.ID, "facade", "tester")
	if err != nil {
		t.Fatal(err)
	}
	_, runs, err := env.Engine.CreateVersion(env.Ctx, other.ID, "x", "tester")
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestDisabledAutomationNotTriggered(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAutomation(t, 1, env.Model.ID)
	if err := env.Engine.SetAutomationEnabled(env.Ctx, a.ID, false, "tester"); err != nil {
		t.Fatal(err)
	}
	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "x", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs for disabled automation, got %d", len(runs))
	}
}

func TestRedeliveredEventReturnsExistingRun(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAutomation(t, 1, env.Model.ID)

	evt := engine.VersionCreatedEvent{
		EventID:   "evt-1",
		ProjectID: env.Project.ID,
		ModelID:   env.Model.ID,
		VersionID: "ver-1",
	}
	first, err := env.Engine.HandleVersionCreated(env.Ctx, evt)
	if err != nil || len(first) != 1 {
		t.Fatalf("first delivery: %v (%d runs)", err, len(first))
	}
	second, err := env.Engine.HandleVersionCreated(env.Ctx, evt)
	if err != nil || len(second) != 1 {
		t.Fatalf("second delivery: %v (%d runs)", err, len(second))
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("redelivery created a new run: %s vs %s", first[0].ID, second[0].ID)
	}
	all, err := env.Engine.ListRuns(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 stored run, got %d", len(all))
	}
}

func TestConcurrentRedeliveryCreatesOneRun(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAutomation(t, 1, env.Model.ID)

	evt := engine.VersionCreatedEvent{
		EventID:   "evt-storm",
		ProjectID: env.Project.ID,
		ModelID:   env.Model.ID,
		VersionID: "ver-1",
	}
	const deliveries = 32
	ids := make(chan string, deliveries)
	errs := make(chan error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runs, err := env.Engine.HandleVersionCreated(env.Ctx, evt)
			if err != nil {
				errs <- err
				return
			}
			if len(runs) != 1 {
				errs <- fmt.Errorf("delivery produced %d runs", len(runs))
				return
			}
			ids <- runs[0].ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		t.Errorf("concurrent delivery: %v", err)
	}
	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("concurrent deliveries produced %d distinct runs", len(seen))
	}
	all, err := env.Engine.ListRuns(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 stored run, got %d", len(all))
	}
}

func TestConcurrentSiblingReportsConsistentAggregate(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 8, env.Model.ID)
	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "v", "tester")
	if err != nil || len(runs) != 1 {
		t.Fatalf("create version: %v", err)
	}
	run := runs[0]

	var wg sync.WaitGroup
	errs := make(chan error, 2*len(run.FunctionRuns))
	for _, fr := range run.FunctionRuns {
		wg.Add(1)
		go func(frID, token string) {
			defer wg.Done()
			for _, s := range []domain.RunStatus{domain.RunRunning, domain.RunSucceeded} {
				if _, err := env.Engine.ReportStatus(env.Ctx, engine.StatusReport{
					Token:         token,
					FunctionRunID: frID,
					Status:        s,
				}); err != nil {
					errs <- fmt.Errorf("report %s for %s: %w", s, frID, err)
					return
				}
			}
		}(fr.ID, env.Sandbox.tokenFor(t, fr.ID))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	got, err := env.Engine.GetRun(env.Ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunSucceeded {
		t.Fatalf("final aggregate = %s, want succeeded", got.Status)
	}
	for _, fr := range got.FunctionRuns {
		if fr.Status != domain.RunSucceeded {
			t.Fatalf("function run %s = %s, want succeeded", fr.ID, fr.Status)
		}
	}
}

func reportStatus(t *testing.T, env testEnv, frID string, status domain.RunStatus) domain.AutomateRun {
	t.Helper()
	run, err := env.Engine.ReportStatus(env.Ctx, engine.StatusReport{
		Token:         env.Sandbox.tokenFor(t, frID),
		FunctionRunID: frID,
		Status:        status,
	})
	if err != nil {
		t.Fatalf("report %s for %s: %v", status, frID, err)
	}
	return run
}

func TestTwoFunctionRunAggregateProgression(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 2, env.Model.ID)
	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "v", "tester")
	if err != nil || len(runs) != 1 {
		t.Fatalf("create version: %v", err)
	}
	fr1 := runs[0].FunctionRuns[0]
	fr2 := runs[0].FunctionRuns[1]

	run := reportStatus(t, env, fr1.ID, domain.RunInitializing)
	if run.Status != domain.RunInitializing {
		t.Fatalf("after fn1 initializing run = %s, want initializing", run.Status)
	}
	run = reportStatus(t, env, fr1.ID, domain.RunRunning)
	if run.Status != domain.RunRunning {
		t.Fatalf("after fn1 running run = %s, want running", run.Status)
	}
	run = reportStatus(t, env, fr1.ID, domain.RunSucceeded)
	if run.Status != domain.RunRunning {
		t.Fatalf("fn1 done fn2 pending run = %s, want running", run.Status)
	}
	run = reportStatus(t, env, fr2.ID, domain.RunRunning)
	if run.Status != domain.RunRunning {
		t.Fatalf("fn2 running run = %s, want running", run.Status)
	}
	run = reportStatus(t, env, fr2.ID, domain.RunFailed)
	if run.Status != domain.RunFailed {
		t.Fatalf("all terminal with one failure run = %s, want failed", run.Status)
	}
}

func TestTerminalFunctionRunImmutable(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 1, env.Model.ID)
	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "v", "tester")
	if err != nil {
		t.Fatal(err)
	}
	fr := runs[0].FunctionRuns[0]
	reportStatus(t, env, fr.ID, domain.RunSucceeded)

	_, err = env.Engine.ReportStatus(env.Ctx, engine.StatusReport{
		Token:         env.Sandbox.tokenFor(t, fr.ID),
		FunctionRunID: fr.ID,
		Status:        domain.RunRunning,
	})
	if !errors.Is(err, engine.ErrRunAlreadyTerminal) {
		t.Fatalf("expected ErrRunAlreadyTerminal, got %v", err)
	}
	got, err := env.Engine.Repo.GetFunctionRun(env.Ctx, fr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunSucceeded {
		t.Fatalf("stored status changed to %s", got.Status)
	}
}

func TestRepeatedStatusReportIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 1, env.Model.ID)
	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "v", "tester")
	if err != nil {
		t.Fatal(err)
	}
	fr := runs[0].FunctionRuns[0]
	reportStatus(t, env, fr.ID, domain.RunRunning)
	run := reportStatus(t, env, fr.ID, domain.RunRunning)
	if run.Status != domain.RunRunning {
		t.Fatalf("run status = %s after duplicate report", run.Status)
	}
}

func TestWrongTokenRejectedWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	env.createAutomation(t, 2, env.Model.ID)
	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "v", "tester")
	if err != nil {
		t.Fatal(err)
	}
	fr1 := runs[0].FunctionRuns[0]
	fr2 := runs[0].FunctionRuns[1]

	_, err = env.Engine.ReportStatus(env.Ctx, engine.StatusReport{
		Token:         env.Sandbox.tokenFor(t, fr1.ID),
		FunctionRunID: fr2.ID,
		Status:        domain.RunRunning,
	})
	if !errors.Is(err, engine.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	_, err = env.Engine.ReportStatus(env.Ctx, engine.StatusReport{
		Token:         "frt_bogus",
		FunctionRunID: fr1.ID,
		Status:        domain.RunRunning,
	})
	if !errors.Is(err, engine.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch for unknown token, got %v", err)
	}
	got, err := env.Engine.GetRun(env.Ctx, runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunPending {
		t.Fatalf("run status moved to %s on rejected reports", got.Status)
	}
	for _, fr := range got.FunctionRuns {
		if fr.Status != domain.RunPending {
			t.Fatalf("function run %s moved to %s", fr.ID, fr.Status)
		}
	}
}

func TestRevisionSwapRetargetsTriggers(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAutomation(t, 1, env.Model.ID)
	other, err := env.Engine.CreateModel(env.Ctx, env.Project.ID, "facade", "tester")
	if err != nil {
		t.Fatal(err)
	}
	rev, err := env.Engine.CreateRevision(env.Ctx, a.ID,
		[]domain.RevisionFunction{{FunctionID: "fn-b", ReleaseID: "rel-2"}},
		[]domain.TriggerDefinition{{Type: domain.TriggerVersionCreated, ModelID: &other.ID}},
		"tester")
	if err != nil {
		t.Fatalf("create revision: %v", err)
	}

	_, runs, err := env.Engine.CreateVersion(env.Ctx, env.Model.ID, "old binding", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("superseded revision still matched: %d runs", len(runs))
	}
	_, runs, err = env.Engine.CreateVersion(env.Ctx, other.ID, "new binding", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run on new binding, got %d", len(runs))
	}
	if runs[0].RevisionID != rev.ID {
		t.Fatalf("run pinned to %s, want %s", runs[0].RevisionID, rev.ID)
	}
}

func TestRevisionRejectsUnboundTrigger(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAutomation(t, 1, env.Model.ID)
	_, err := env.Engine.CreateRevision(env.Ctx, a.ID,
		[]domain.RevisionFunction{{FunctionID: "fn-a", ReleaseID: "rel-1"}},
		[]domain.TriggerDefinition{{Type: domain.TriggerVersionCreated}},
		"tester")
	if err == nil {
		t.Fatalf("expected error for trigger without model binding")
	}
}

func TestAggregateStatusDerivation(t *testing.T) {
	fr := func(s domain.RunStatus) domain.FunctionRun { return domain.FunctionRun{Status: s} }
	cases := []struct {
		name string
		runs []domain.FunctionRun
		want domain.RunStatus
	}{
		{"empty", nil, domain.RunPending},
		{"all pending", []domain.FunctionRun{fr(domain.RunPending), fr(domain.RunPending)}, domain.RunPending},
		{"one initializing", []domain.FunctionRun{fr(domain.RunInitializing), fr(domain.RunPending)}, domain.RunInitializing},
		{"one running", []domain.FunctionRun{fr(domain.RunRunning), fr(domain.RunPending)}, domain.RunRunning},
		{"one done one pending", []domain.FunctionRun{fr(domain.RunSucceeded), fr(domain.RunPending)}, domain.RunRunning},
		{"all succeeded", []domain.FunctionRun{fr(domain.RunSucceeded), fr(domain.RunSucceeded)}, domain.RunSucceeded},
		{"failed beats canceled", []domain.FunctionRun{fr(domain.RunFailed), fr(domain.RunCanceled)}, domain.RunFailed},
		{"timeout beats failed", []domain.FunctionRun{fr(domain.RunTimeout), fr(domain.RunFailed)}, domain.RunTimeout},
		{"exception beats timeout", []domain.FunctionRun{fr(domain.RunException), fr(domain.RunTimeout)}, domain.RunException},
		{"success never masks failure", []domain.FunctionRun{fr(domain.RunSucceeded), fr(domain.RunFailed)}, domain.RunFailed},
	}
	for _, tc := range cases {
		if got := engine.AggregateStatus(tc.runs); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}
