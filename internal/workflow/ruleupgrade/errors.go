package ruleupgrade

import "fmt"

// ErrorKind is the closed set of fatal failure tags for the rule-upgrade
// pipeline (spec.md §7: worker_failed/persistence_failed are grading-only
// non-fatal kinds; every rule-upgrade failure this package raises is
// terminal for the run).
type ErrorKind string

const (
	ErrMiningFailed      ErrorKind = "mining_failed"
	ErrPatchGenFailed    ErrorKind = "patch_generation_failed"
	ErrRegressionFailed  ErrorKind = "regression_test_failed"
	ErrDeployFailed      ErrorKind = "deploy_failed"
	ErrApprovalTimeout   ErrorKind = "interrupt_timeout"
	ErrRollbackFailed    ErrorKind = "rollback_failed"
)

// StageError wraps an underlying error with the stage it occurred in.
type StageError struct {
	Kind    ErrorKind
	Stage   string
	Message string
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func newStageError(kind ErrorKind, stage string, err error) StageError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StageError{Kind: kind, Stage: stage, Message: msg}
}
