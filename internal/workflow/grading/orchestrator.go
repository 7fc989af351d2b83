// Package grading implements the stage graph for the batched grading
// pipeline: intake, preprocessing and boundary resolution, rubric parsing
// and self-review, the grading fan-out, logic review, human review, and
// export. The orchestrator owns state mutation; every stage is a function
// from state to state plus error.
package grading

import (
	"context"
	"log/slog"
	"time"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/retry"
)

// Orchestrator runs the grading stage graph over a shared collaborator set.
type Orchestrator struct {
	Scoring       grading.ScoringService
	Preprocessor  grading.ImagePreprocessor
	Sink          grading.ProgressSink
	Checkpointer  grading.Checkpointer
	FileStorage   grading.FileStorage
	GradingRepo   grading.GradingHistoryRepository
	ResultRepo    grading.StudentGradingResultRepository
	PageImageRepo grading.GradingPageImageRepository
	Export        grading.ExportWriter
	Notifier      grading.ClassSystemNotifier
	Logger        *slog.Logger
}

// stagePercentage is the monotonic progress value reported when entering
// each named stage.
var stagePercentage = map[string]float64{
	"intake":             5,
	"preprocess":         15,
	"rubric_parse":       30,
	"rubric_self_review": 35,
	"rubric_review":      40,
	"grade_batch":        70,
	"logic_review":       85,
	"review":             90,
	"export":             100,
}

// Run drives a freshly-created state from intake through to the first
// suspension point (a pending interrupt) or to completion. Callers must
// check state.PendingInterrupt on return: non-nil means the caller owes a
// ResumeRubricReview or ResumeResultsReview call before the batch can
// finish.
func (o *Orchestrator) Run(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	state, err := o.advance(ctx, state, "intake")
	if err != nil {
		return state, err
	}
	if state, err = o.runIntake(ctx, state); err != nil {
		return o.fail(ctx, state, err)
	}

	if state, err = o.advance(ctx, state, "preprocess"); err != nil {
		return state, err
	}
	if state, err = o.runPreprocess(ctx, state); err != nil {
		return o.fail(ctx, state, err)
	}

	if state, err = o.advance(ctx, state, "rubric_parse"); err != nil {
		return state, err
	}
	if state, err = o.runRubricParse(ctx, state); err != nil {
		return o.fail(ctx, state, err)
	}

	if state, err = o.advance(ctx, state, "rubric_self_review"); err != nil {
		return state, err
	}
	if state, err = o.runRubricSelfReview(ctx, state); err != nil {
		return o.fail(ctx, state, err)
	}

	if needsRubricReview(state) {
		req := buildRubricReviewInterrupt(state)
		state.PendingInterrupt = &req
		o.checkpoint(ctx, state)
		return state, nil
	}

	return o.continueAfterRubricStage(ctx, state)
}

// ResumeRubricReview applies a human response to the rubric_review
// interrupt and continues the pipeline.
func (o *Orchestrator) ResumeRubricReview(ctx context.Context, state *grading.BatchGradingState, resp grading.InterruptResponse) (*grading.BatchGradingState, error) {
	state.LastResponse = &resp
	state.PendingInterrupt = nil

	state, err := o.applyRubricReviewResponse(ctx, state, resp)
	if err != nil {
		return o.fail(ctx, state, err)
	}
	return o.continueAfterRubricStage(ctx, state)
}

func (o *Orchestrator) continueAfterRubricStage(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	state, err := o.advance(ctx, state, "grade_batch")
	if err != nil {
		return state, err
	}
	if state, err = o.runGradeBatch(ctx, state); err != nil {
		return o.fail(ctx, state, err)
	}

	if state, err = o.advance(ctx, state, "logic_review"); err != nil {
		return state, err
	}
	if state, err = o.runLogicReview(ctx, state); err != nil {
		return o.fail(ctx, state, err)
	}

	if state, err = o.advance(ctx, state, "review"); err != nil {
		return state, err
	}
	summary := o.computeReviewSummary(state)
	state.ReviewSummary = &summary

	if needsResultsReview(state) {
		req := buildResultsReviewInterrupt(state)
		state.PendingInterrupt = &req
		o.checkpoint(ctx, state)
		return state, nil
	}

	return o.continueAfterReviewStage(ctx, state)
}

// ResumeResultsReview applies a human response to the results_review
// interrupt and runs export.
func (o *Orchestrator) ResumeResultsReview(ctx context.Context, state *grading.BatchGradingState, resp grading.InterruptResponse) (*grading.BatchGradingState, error) {
	state.LastResponse = &resp
	state.PendingInterrupt = nil

	state, err := o.applyResultsReviewResponse(ctx, state, resp)
	if err != nil {
		return o.fail(ctx, state, err)
	}
	return o.continueAfterReviewStage(ctx, state)
}

func (o *Orchestrator) continueAfterReviewStage(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	state, err := o.advance(ctx, state, "export")
	if err != nil {
		return state, err
	}
	state = o.runExport(ctx, state)
	o.checkpoint(ctx, state)
	return state, nil
}

// advance moves the state to the named stage, honoring the monotonic
// percentage invariant, checkpoints it, and emits a best-effort progress
// event (spec.md §4.1).
func (o *Orchestrator) advance(ctx context.Context, state *grading.BatchGradingState, stage string) (*grading.BatchGradingState, error) {
	*state = state.AdvanceStage(stage, stagePercentage[stage], time.Now())
	o.checkpoint(ctx, state)
	pct := state.Percentage
	grading.BestEffortPublish(o.Sink, state.BatchID, grading.ProgressEvent{
		Type:     grading.ProgressAgentUpdate,
		BatchID:  state.BatchID,
		NodeID:   stage,
		Status:   "running",
		Progress: &pct,
	})
	return state, ctx.Err()
}

func (o *Orchestrator) checkpoint(ctx context.Context, state *grading.BatchGradingState) {
	if o.Checkpointer == nil {
		return
	}
	if err := o.Checkpointer.Save(ctx, *state); err != nil && o.Logger != nil {
		o.Logger.Warn("checkpoint save failed", "batch_id", state.BatchID, "error", err)
	}
}

// fail records a fatal stage error on the state, emits a terminal
// workflow_error event, persists the last valid state, and returns it
// alongside the error (spec.md §4.1 "Failure semantics").
func (o *Orchestrator) fail(ctx context.Context, state *grading.BatchGradingState, err error) (*grading.BatchGradingState, error) {
	we := toWorkflowError(state.CurrentStage, err)
	*state = state.AppendError(we)
	o.checkpoint(ctx, state)
	grading.BestEffortPublish(o.Sink, state.BatchID, grading.ProgressEvent{
		Type:    grading.ProgressWorkflowError,
		BatchID: state.BatchID,
		Stage:   we.Stage,
		Error:   we.Message,
	})
	return state, we
}

func toWorkflowError(stage string, err error) grading.WorkflowError {
	if we, ok := err.(grading.WorkflowError); ok {
		return we
	}
	return grading.NewWorkflowError(grading.ErrWorkerFailed, stage, err)
}

// withRetry runs fn under the given policy, logging attempts.
func (o *Orchestrator) withRetry(ctx context.Context, policy retry.Policy, stage string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if o.Logger != nil {
				o.Logger.Warn("stage call failed, may retry", "stage", stage, "policy", policy.Name, "error", err)
			}
			return err
		}
		return nil
	})
}
