package grading

import (
	"context"
	"errors"
	"testing"

	"brokle/internal/core/domain/grading"
)

func studentRaw(key string, score float64) grading.RawStudentGradingResult {
	return grading.RawStudentGradingResult{
		"total_score": score,
		"max_score":   10.0,
		"confession":  map[string]any{"confidence": 0.95},
		"question_details": []any{
			map[string]any{
				"question_id": "1",
				"score":       score,
				"max_score":   10.0,
				"confidence":  0.9,
				"scoring_point_results": []any{
					map[string]any{"point_id": "1.1", "awarded": score, "max_points": 10.0, "rubric_reference": "r", "evidence": "e"},
				},
			},
		},
	}
}

func TestRunGradeBatch_FanOutProducesOneResultPerStudent(t *testing.T) {
	state := grading.NewBatchGradingState(grading.Inputs{
		AnswerImages: testImages(3),
		StudentMapping: []grading.StudentMappingEntry{
			{StudentKey: "Alice", Pages: []int{0}},
			{StudentKey: "Bob", Pages: []int{1}},
			{StudentKey: "Carol", Pages: []int{2}},
		},
	}, grading.DefaultGradingConfig())
	state.ProcessedImages = testImages(3)
	state.StudentBoundaries = ResolveBoundaries(state.Inputs, 3)

	fake := &fakeScoringService{
		perStudent: map[string]grading.RawStudentGradingResult{
			"Alice": studentRaw("Alice", 8),
			"Bob":   studentRaw("Bob", 6),
			"Carol": studentRaw("Carol", 10),
		},
	}
	o := &Orchestrator{Scoring: fake}

	out, err := o.runGradeBatch(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.GradingResults) != 3 {
		t.Fatalf("expected exactly 3 worker outcomes, got %d", len(out.GradingResults))
	}
	if len(out.StudentResults) != 3 {
		t.Fatalf("expected exactly 3 student results regardless of completion order, got %d", len(out.StudentResults))
	}
	for _, r := range out.GradingResults {
		if !r.Succeeded {
			t.Fatalf("expected every unit to succeed, got %+v", r)
		}
	}
}

func TestRunGradeBatch_WorkerExhaustsRetriesProducesFailedPageResult(t *testing.T) {
	state := grading.NewBatchGradingState(grading.Inputs{AnswerImages: testImages(1)}, grading.DefaultGradingConfig())
	state.Config.MaxRetries = 1
	state.ProcessedImages = testImages(1)
	state.StudentBoundaries = ResolveBoundaries(grading.Inputs{}, 1)

	fake := &fakeScoringService{
		perStudentErr: map[string]error{"Student 1": errors.New("service unavailable")},
	}
	o := &Orchestrator{Scoring: fake}

	out, err := o.runGradeBatch(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.GradingResults) != 1 || out.GradingResults[0].Succeeded {
		t.Fatalf("expected one failed outcome, got %+v", out.GradingResults)
	}
	if out.GradingResults[0].Result.PageResults[0].Status != "failed" {
		t.Fatalf("expected failed page result, got %+v", out.GradingResults[0].Result)
	}
}

func TestReduceStudentResults_DedupLastWriteWinsAndIdempotent(t *testing.T) {
	first := []grading.GradeUnitOutcome{
		{Result: &grading.StudentResult{StudentKey: "Alice", TotalScore: 5}},
	}
	reduced := reduceStudentResults(nil, first)
	second := []grading.GradeUnitOutcome{
		{Result: &grading.StudentResult{StudentKey: "Alice", TotalScore: 9}},
	}
	reduced = reduceStudentResults(reduced, second)
	if len(reduced) != 1 || reduced[0].TotalScore != 9 {
		t.Fatalf("expected last-write-wins dedup, got %+v", reduced)
	}

	idempotent := reduceStudentResults(reduced, nil)
	if len(idempotent) != 1 || idempotent[0].TotalScore != 9 {
		t.Fatalf("expected idempotent reduce on empty outcomes, got %+v", idempotent)
	}
}
