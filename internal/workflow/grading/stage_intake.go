package grading

import (
	"context"
	"fmt"

	"brokle/internal/core/domain/grading"
)

// runIntake validates the caller-supplied inputs. Missing answer images is
// the only hard requirement; everything else is optional (spec.md §4.1,
// error kind input_invalid is fatal at intake).
func (o *Orchestrator) runIntake(_ context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	if len(state.Inputs.AnswerImages) == 0 {
		return state, grading.NewWorkflowError(grading.ErrInputInvalid, "intake", fmt.Errorf("no answer images supplied"))
	}
	if state.Inputs.RubricText == "" && len(state.Inputs.RubricImages) == 0 {
		return state, grading.NewWorkflowError(grading.ErrInputInvalid, "intake", fmt.Errorf("no rubric text or rubric images supplied"))
	}
	return state, nil
}
