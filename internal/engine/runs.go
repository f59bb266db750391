package engine

import (
	"context"
	"errors"
	"fmt"

	"runline/internal/domain"
	"runline/internal/events"
	"runline/internal/repo"
)

// StatusReport is what the sandbox sends back for one function run.
type StatusReport struct {
	Token         string
	FunctionRunID string
	Status        domain.RunStatus
	StatusMessage *string
	ResultsJSON   *string
	ContextView   *string
}

// ReportStatus applies a sandbox status report. The token must be scoped
// to exactly the reported function run; mismatches are rejected before
// anything is read. Reports repeating the current status are no-ops.
// Invalid transitions leave the stored state untouched.
func (e *Engine) ReportStatus(ctx context.Context, rep StatusReport) (domain.AutomateRun, error) {
	tok, err := e.Repo.GetFunctionRunTokenByHash(ctx, repo.HashToken(rep.Token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.AutomateRun{}, ErrTokenMismatch
		}
		return domain.AutomateRun{}, err
	}
	if tok.FunctionRunID != rep.FunctionRunID {
		return domain.AutomateRun{}, ErrTokenMismatch
	}

	lock := e.runLock(tok.RunID)
	lock.Lock()
	defer lock.Unlock()

	fr, err := e.Repo.GetFunctionRun(ctx, rep.FunctionRunID)
	if err != nil {
		return domain.AutomateRun{}, err
	}
	if fr.Status == rep.Status {
		return e.Repo.GetRun(ctx, tok.RunID)
	}
	if err := ensureStatusTransition(fr.Status, rep.Status); err != nil {
		return domain.AutomateRun{}, err
	}

	ts := e.nowStr()
	fr.Status = rep.Status
	fr.UpdatedAt = ts
	if rep.StatusMessage != nil {
		fr.StatusMessage = rep.StatusMessage
	}
	if rep.ResultsJSON != nil {
		fr.ResultsJSON = rep.ResultsJSON
	}
	if rep.ContextView != nil {
		fr.ContextView = rep.ContextView
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AutomateRun{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateFunctionRun(ctx, tx, fr); err != nil {
		return domain.AutomateRun{}, fmt.Errorf("update function run: %w", err)
	}
	siblings, err := e.Repo.ListFunctionRunsTx(ctx, tx, tok.RunID)
	if err != nil {
		return domain.AutomateRun{}, err
	}
	agg := AggregateStatus(siblings)
	if err := e.Repo.UpdateRunStatus(ctx, tx, tok.RunID, agg, ts); err != nil {
		return domain.AutomateRun{}, fmt.Errorf("update run status: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "run.function.status", "", "function_run", fr.ID, "", events.EventPayload{
		"run_id":     tok.RunID,
		"status":     fr.Status,
		"run_status": agg,
	}); err != nil {
		return domain.AutomateRun{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AutomateRun{}, err
	}
	if agg.Terminal() {
		e.releaseRunLock(tok.RunID)
	}
	return e.Repo.GetRun(ctx, tok.RunID)
}

// GetRun returns a run with its function runs.
func (e *Engine) GetRun(ctx context.Context, runID string) (domain.AutomateRun, error) {
	return e.Repo.GetRun(ctx, runID)
}

// ListRuns returns the runs of an automation, newest last.
func (e *Engine) ListRuns(ctx context.Context, automationID string) ([]domain.AutomateRun, error) {
	return e.Repo.ListRuns(ctx, automationID)
}
