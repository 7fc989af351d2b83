package grading

import (
	"context"
	"testing"

	"brokle/internal/core/domain/grading"
)

type fakeExportWriter struct {
	written map[string][]byte
}

func (f *fakeExportWriter) WriteArtifact(_ context.Context, batchID, name string, content []byte) (string, error) {
	if f.written == nil {
		f.written = make(map[string][]byte)
	}
	f.written[name] = content
	return "memory://" + batchID + "/" + name, nil
}

func testInputs() grading.Inputs {
	return grading.Inputs{
		AnswerImages: testImages(2),
		RubricImages: testImages(1),
		StudentMapping: []grading.StudentMappingEntry{
			{StudentKey: "Alice", Pages: []int{0}},
			{StudentKey: "Bob", Pages: []int{1}},
		},
	}
}

func confidentRubricRaw() grading.RawRubricResponse {
	return grading.RawRubricResponse{
		"total_questions": 1.0,
		"total_score":      10.0,
		"confession":       map[string]any{"confidence": 0.95},
		"questions": []any{
			map[string]any{
				"question_id": "1",
				"max_score":   10.0,
				"scoring_points": []any{
					map[string]any{"point_id": "1.1", "score": 10.0},
				},
			},
		},
	}
}

func TestOrchestratorRun_CompletesWithoutInterruptsWhenConfidenceIsHigh(t *testing.T) {
	cfg := grading.DefaultGradingConfig()
	state := grading.NewBatchGradingState(testInputs(), cfg)

	fake := &fakeScoringService{
		rubric: confidentRubricRaw(),
		perStudent: map[string]grading.RawStudentGradingResult{
			"Alice": studentRaw("Alice", 10),
			"Bob":   studentRaw("Bob", 7),
		},
	}
	export := &fakeExportWriter{}
	o := &Orchestrator{
		Scoring:      fake,
		Sink:         grading.NoopProgressSink{},
		Checkpointer: grading.NewMemoryCheckpointer(),
		Export:       export,
	}

	out, err := o.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PendingInterrupt != nil {
		t.Fatalf("expected no interrupt with high rubric confidence, got %+v", out.PendingInterrupt)
	}
	if out.CurrentStage != "export" {
		t.Fatalf("expected pipeline to reach export, got stage %q", out.CurrentStage)
	}
	if out.ExportData == nil || len(out.ExportData.Students) != 2 {
		t.Fatalf("expected export payload with 2 students, got %+v", out.ExportData)
	}
}

func lowConfidenceRubricRaw() grading.RawRubricResponse {
	return grading.RawRubricResponse{
		"total_questions": 1.0,
		"total_score":      10.0,
		"confession":       map[string]any{"confidence": 0.4, "risks": []any{"handwriting illegible"}},
		"questions": []any{
			map[string]any{
				"question_id": "1",
				"max_score":   10.0,
				"scoring_points": []any{
					map[string]any{"point_id": "1.1", "score": 10.0},
				},
			},
		},
	}
}

func TestOrchestratorRun_SuspendsForRubricReviewWhenConfidenceIsLow(t *testing.T) {
	cfg := grading.DefaultGradingConfig()
	state := grading.NewBatchGradingState(testInputs(), cfg)

	fake := &fakeScoringService{
		rubric: lowConfidenceRubricRaw(),
		perStudent: map[string]grading.RawStudentGradingResult{
			"Alice": studentRaw("Alice", 10),
			"Bob":   studentRaw("Bob", 7),
		},
	}
	o := &Orchestrator{
		Scoring:      fake,
		Sink:         grading.NoopProgressSink{},
		Checkpointer: grading.NewMemoryCheckpointer(),
		Export:       &fakeExportWriter{},
	}

	out, err := o.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PendingInterrupt == nil || out.PendingInterrupt.Type != grading.InterruptRubricReview {
		t.Fatalf("expected a rubric_review interrupt, got %+v", out.PendingInterrupt)
	}

	resumed, err := o.ResumeRubricReview(context.Background(), out, grading.InterruptResponse{Action: grading.ActionApprove})
	if err != nil {
		t.Fatalf("unexpected error on resume: %v", err)
	}
	if resumed.CurrentStage != "export" && resumed.PendingInterrupt == nil {
		t.Fatalf("expected resume to continue the pipeline, got stage %q interrupt %+v", resumed.CurrentStage, resumed.PendingInterrupt)
	}
}

func TestOrchestratorRun_FatalIntakeErrorRecordsWorkflowError(t *testing.T) {
	state := grading.NewBatchGradingState(grading.Inputs{}, grading.DefaultGradingConfig())
	o := &Orchestrator{Sink: grading.NoopProgressSink{}}

	_, err := o.Run(context.Background(), state)
	if err == nil {
		t.Fatalf("expected an error for empty inputs")
	}
	we, ok := err.(grading.WorkflowError)
	if !ok || we.Kind != grading.ErrInputInvalid {
		t.Fatalf("expected ErrInputInvalid workflow error, got %v", err)
	}
}
