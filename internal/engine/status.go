package engine

import (
	"fmt"

	"runline/internal/domain"
)

// statusRank orders non-terminal statuses by progress so transitions can
// only move forward.
func statusRank(s domain.RunStatus) int {
	switch s {
	case domain.RunPending:
		return 1
	case domain.RunInitializing:
		return 2
	case domain.RunRunning:
		return 3
	}
	if s.Terminal() {
		return 4
	}
	return 0
}

// terminalSeverity orders non-success terminal statuses for the aggregate
// tie-break: exception > timeout > failed > canceled.
func terminalSeverity(s domain.RunStatus) int {
	switch s {
	case domain.RunException:
		return 4
	case domain.RunTimeout:
		return 3
	case domain.RunFailed:
		return 2
	case domain.RunCanceled:
		return 1
	}
	return 0
}

// ensureStatusTransition validates a function run status change. Identical
// statuses are handled by the caller as no-ops before this point.
func ensureStatusTransition(old, next domain.RunStatus) error {
	if statusRank(next) == 0 {
		return fmt.Errorf("unknown run status %q", next)
	}
	if old.Terminal() {
		return ErrRunAlreadyTerminal
	}
	if statusRank(next) <= statusRank(old) {
		return fmt.Errorf("invalid run status transition %s -> %s", old, next)
	}
	return nil
}

// AggregateStatus derives a run's status from its function runs. It is a
// pure function: recomputing with the same inputs yields the same result.
func AggregateStatus(runs []domain.FunctionRun) domain.RunStatus {
	if len(runs) == 0 {
		return domain.RunPending
	}
	allPending := true
	allTerminal := true
	anyRunning := false
	anyTerminal := false
	worst := domain.RunStatus("")
	for _, fr := range runs {
		s := fr.Status
		if s != domain.RunPending {
			allPending = false
		}
		if s.Terminal() {
			anyTerminal = true
			if s != domain.RunSucceeded && terminalSeverity(s) > terminalSeverity(worst) {
				worst = s
			}
		} else {
			allTerminal = false
			if s == domain.RunRunning {
				anyRunning = true
			}
		}
	}
	if allTerminal {
		if worst == "" {
			return domain.RunSucceeded
		}
		return worst
	}
	if allPending {
		return domain.RunPending
	}
	if anyRunning || anyTerminal {
		return domain.RunRunning
	}
	return domain.RunInitializing
}
