package grading

import (
	"context"

	"brokle/internal/core/domain/grading"
)

// fakeScoringService is a deterministic stand-in for the external vision
// service, configured per test with canned replies keyed by student_key.
type fakeScoringService struct {
	rubric        grading.RawRubricResponse
	rubricErr     error
	perStudent    map[string]grading.RawStudentGradingResult
	perStudentErr map[string]error
	analyzeReply  string
	analyzeErr    error
	singleResult  grading.RawQuestionResult
}

func (f *fakeScoringService) ParseRubric(_ context.Context, _ []grading.ImageRef, _ grading.StreamCallback) (grading.RawRubricResponse, error) {
	return f.rubric, f.rubricErr
}

func (f *fakeScoringService) ReviseRubricQuestions(_ context.Context, _ []grading.ImageRef, _ []grading.RubricQuestionSelector, _ string) ([]grading.RawQuestionJSON, error) {
	return nil, nil
}

func (f *fakeScoringService) GradeStudent(_ context.Context, _ []grading.ImageRef, studentKey string, _ *grading.ParsedRubric, _ []int, _ grading.StreamCallback) (grading.RawStudentGradingResult, error) {
	if err, ok := f.perStudentErr[studentKey]; ok {
		return nil, err
	}
	return f.perStudent[studentKey], nil
}

func (f *fakeScoringService) GradeSingleQuestion(_ context.Context, _ grading.ImageRef, _ string, _ int, _ string) (grading.RawQuestionResult, error) {
	return f.singleResult, nil
}

func (f *fakeScoringService) AnalyzeWithVision(_ context.Context, _ []grading.ImageRef, _ string, _ grading.StreamCallback) (string, error) {
	return f.analyzeReply, f.analyzeErr
}

func testImages(n int) []grading.ImageRef {
	out := make([]grading.ImageRef, n)
	for i := range out {
		out[i] = grading.ImageRef{FileID: "img", PageIndex: i}
	}
	return out
}
