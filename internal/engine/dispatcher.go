package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"runline/internal/domain"
	"runline/internal/events"
	"runline/internal/repo"
)

// VersionCreatedEvent is the source event the dispatcher consumes.
// EventID must be stable across redeliveries of the same event.
type VersionCreatedEvent struct {
	EventID   string
	ProjectID string
	ModelID   string
	VersionID string
}

// runKeySpace namespaces idempotency keys derived from source events.
var runKeySpace = uuid.MustParse("8c0b8f3e-5a52-49a7-9a1c-2f64d2f7b7d4")

// idempotencyKey is deterministic over the event and automation so a
// redelivered event maps to the run it already produced.
func idempotencyKey(eventID, automationID string) string {
	return uuid.NewSHA1(runKeySpace, []byte(eventID+"|"+automationID)).String()
}

// HandleVersionCreated matches the event against trigger bindings and
// instantiates one run per matched automation. Redelivered events return
// the existing runs instead of creating duplicates.
func (e *Engine) HandleVersionCreated(ctx context.Context, evt VersionCreatedEvent) ([]domain.AutomateRun, error) {
	if evt.EventID == "" || evt.ModelID == "" {
		return nil, errors.New("event id and model id are required")
	}
	matches, err := e.Repo.MatchingAutomations(ctx, evt.ProjectID, domain.TriggerVersionCreated, evt.ModelID)
	if err != nil {
		return nil, err
	}
	var out []domain.AutomateRun
	for _, a := range matches {
		run, err := e.createRunForAutomation(ctx, a, evt)
		if err != nil {
			return out, fmt.Errorf("automation %s: %w", a.ID, err)
		}
		out = append(out, run)
	}
	return out, nil
}

func (e *Engine) createRunForAutomation(ctx context.Context, a domain.Automation, evt VersionCreatedEvent) (domain.AutomateRun, error) {
	key := idempotencyKey(evt.EventID, a.ID)
	if existing, err := e.Repo.RunByIdempotencyKey(ctx, key); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.AutomateRun{}, err
	}
	if a.CurrentRevisionID == nil {
		return domain.AutomateRun{}, errors.New("automation has no revision")
	}
	rev, err := e.Repo.GetRevision(ctx, *a.CurrentRevisionID)
	if err != nil {
		return domain.AutomateRun{}, err
	}

	ts := e.nowStr()
	run := domain.AutomateRun{
		ID:           uuid.New().String(),
		AutomationID: a.ID,
		RevisionID:   rev.ID,
		TriggerType:  domain.TriggerVersionCreated,
		VersionID:    evt.VersionID,
		ModelID:      evt.ModelID,
		Status:       domain.RunPending,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	for _, fn := range rev.Functions {
		run.FunctionRuns = append(run.FunctionRuns, domain.FunctionRun{
			ID:         uuid.New().String(),
			RunID:      run.ID,
			FunctionID: fn.FunctionID,
			ReleaseID:  fn.ReleaseID,
			Status:     domain.RunPending,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		})
	}

	// Mint one opaque token per function run. Only hashes are stored;
	// the plaintext goes to the sandbox and is never retrievable again.
	type minted struct {
		fr    domain.FunctionRun
		fn    domain.RevisionFunction
		token string
	}
	var tokens []minted
	for i, fr := range run.FunctionRuns {
		plain, err := newRunToken()
		if err != nil {
			return domain.AutomateRun{}, err
		}
		tokens = append(tokens, minted{fr: fr, fn: rev.Functions[i], token: plain})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AutomateRun{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRun(ctx, tx, run, key); err != nil {
		// A concurrent delivery can win the key between the pre-check and
		// this insert; the loser returns the winner's run.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			tx.Rollback()
			return e.Repo.RunByIdempotencyKey(ctx, key)
		}
		return domain.AutomateRun{}, fmt.Errorf("insert run: %w", err)
	}
	for _, m := range tokens {
		if err := e.Repo.InsertFunctionRunToken(ctx, tx, domain.FunctionRunToken{
			ID:            uuid.New().String(),
			RunID:         run.ID,
			FunctionRunID: m.fr.ID,
			TokenHash:     repo.HashToken(m.token),
			CreatedAt:     ts,
		}); err != nil {
			return domain.AutomateRun{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "run.created", evt.ProjectID, "run", run.ID, "", events.EventPayload{
		"automation_id": a.ID,
		"version_id":    evt.VersionID,
		"model_id":      evt.ModelID,
	}); err != nil {
		return domain.AutomateRun{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AutomateRun{}, err
	}

	for _, m := range tokens {
		if err := e.Sandbox.Dispatch(ctx, DispatchRequest{
			RunID:          run.ID,
			FunctionRunID:  m.fr.ID,
			FunctionID:     m.fn.FunctionID,
			ReleaseID:      m.fn.ReleaseID,
			ParametersJSON: m.fn.ParametersJSON,
			VersionID:      evt.VersionID,
			ModelID:        evt.ModelID,
			ProjectID:      evt.ProjectID,
			Token:          m.token,
		}); err != nil {
			// The run stays pending; the sandbox is expected to retry or
			// a later redelivery picks the run back up.
			return run, fmt.Errorf("dispatch function run %s: %w", m.fr.ID, err)
		}
	}
	return run, nil
}

func newRunToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "frt_" + hex.EncodeToString(buf), nil
}
