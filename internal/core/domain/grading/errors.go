package grading

import "fmt"

// ErrorKind is the closed set of semantic error tags named in spec.md §7.
// These are tags, not exception classes — callers branch on Kind, never on
// a Go error type hierarchy.
type ErrorKind string

const (
	ErrInputInvalid          ErrorKind = "input_invalid"
	ErrRubricParseFailed     ErrorKind = "rubric_parse_failed"
	ErrRubricScoreMismatch   ErrorKind = "rubric_score_mismatch"
	ErrWorkerFailed          ErrorKind = "worker_failed"
	ErrLogicReviewParseFailed ErrorKind = "logic_review_parse_failed"
	ErrPersistenceFailed     ErrorKind = "persistence_failed"
	ErrInterruptTimeout      ErrorKind = "interrupt_timeout"
)

// Fatal reports whether this error kind fails the whole workflow, per the
// propagation table in spec.md §7.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrInputInvalid, ErrRubricParseFailed, ErrRubricScoreMismatch, ErrInterruptTimeout:
		return true
	default:
		return false
	}
}

// WorkflowError is a recorded entry in state.Errors (reducer=append). It
// carries enough context to both drive routing decisions and to render a
// workflow_error progress event.
type WorkflowError struct {
	Kind    ErrorKind `json:"kind"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

func (e WorkflowError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

// NewWorkflowError constructs a WorkflowError from any error, wrapping its
// message.
func NewWorkflowError(kind ErrorKind, stage string, err error) WorkflowError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return WorkflowError{Kind: kind, Stage: stage, Message: msg}
}
