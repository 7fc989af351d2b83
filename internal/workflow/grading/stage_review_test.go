package grading

import (
	"context"
	"testing"

	"brokle/internal/core/domain/grading"
)

func TestBetterQuestionResult_HigherConfidenceCanLowerScore(t *testing.T) {
	existing := grading.QuestionResult{QuestionID: "1", Score: 9, Confidence: 0.5}
	revised := grading.QuestionResult{QuestionID: "1", Score: 6, Confidence: 0.95}

	got := betterQuestionResult(existing, revised)
	if got.Score != 6 {
		t.Fatalf("expected the higher-confidence revised result to win even with a lower score, got %+v", got)
	}
}

func TestBetterQuestionResult_TieBreaksOnFeedbackLength(t *testing.T) {
	existing := grading.QuestionResult{QuestionID: "1", Score: 8, Confidence: 0.8, Feedback: "ok"}
	revised := grading.QuestionResult{QuestionID: "1", Score: 8, Confidence: 0.8, Feedback: "a more detailed explanation"}

	got := betterQuestionResult(existing, revised)
	if got.Feedback != revised.Feedback {
		t.Fatalf("expected longer feedback to win the tie, got %+v", got)
	}
}

func TestApplyResultsReviewResponse_UpdateOverridesScore(t *testing.T) {
	state := grading.NewBatchGradingState(grading.Inputs{}, grading.DefaultGradingConfig())
	state.StudentResults = []grading.StudentResult{
		{StudentKey: "Alice", QuestionDetails: []grading.QuestionResult{{QuestionID: "1", Score: 5, MaxScore: 10}}},
	}
	newScore := 9.0
	resp := grading.InterruptResponse{
		Action: grading.ActionUpdate,
		StudentOverrides: []grading.StudentOverride{
			{StudentKey: "Alice", Questions: []grading.QuestionOverride{{QuestionID: "1", Score: &newScore}}},
		},
	}
	o := &Orchestrator{}
	out, err := o.applyResultsReviewResponse(context.Background(), state, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StudentResults[0].QuestionDetails[0].Score != 9 {
		t.Fatalf("expected override to apply, got %v", out.StudentResults[0].QuestionDetails[0].Score)
	}
	if out.StudentResults[0].TotalScore != 9 {
		t.Fatalf("expected totals recomputed after override, got %v", out.StudentResults[0].TotalScore)
	}
}

func TestApplyResultsReviewResponse_ApproveIsNoOp(t *testing.T) {
	state := grading.NewBatchGradingState(grading.Inputs{}, grading.DefaultGradingConfig())
	state.StudentResults = []grading.StudentResult{
		{StudentKey: "Alice", TotalScore: 5, QuestionDetails: []grading.QuestionResult{{QuestionID: "1", Score: 5, MaxScore: 10}}},
	}
	o := &Orchestrator{}
	out, err := o.applyResultsReviewResponse(context.Background(), state, grading.InterruptResponse{Action: grading.ActionApprove})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StudentResults[0].TotalScore != 5 {
		t.Fatalf("expected approve to leave results untouched, got %v", out.StudentResults[0].TotalScore)
	}
}
