package grading

import "context"

// ScoringService is the external vision/LLM backend the core consumes
// (spec.md §6 "Scoring service interface"). It is explicitly out of scope
// for this repo's implementation — the core depends only on this interface.
// See internal/infrastructure/scoring for a concrete adapter.
type ScoringService interface {
	// ParseRubric invokes the service once (or in service-provided batches)
	// against the rubric images and returns the raw JSON body described in
	// spec.md §4.3.
	ParseRubric(ctx context.Context, images []ImageRef, stream StreamCallback) (RawRubricResponse, error)

	// ReviseRubricQuestions asks the service to re-parse a targeted subset of
	// rubric questions, used by the rubric_review "reparse" response.
	ReviseRubricQuestions(ctx context.Context, images []ImageRef, selected []RubricQuestionSelector, notes string) ([]RawQuestionJSON, error)

	// GradeStudent calls the service once with all of one student's images
	// plus the structured rubric and returns the raw StudentGradingResult
	// JSON described in spec.md §6.
	GradeStudent(ctx context.Context, images []ImageRef, studentKey string, rubric *ParsedRubric, pageIndices []int, stream StreamCallback) (RawStudentGradingResult, error)

	// GradeSingleQuestion re-grades one (page, question) pair, used by the
	// review stage's "regrade" response.
	GradeSingleQuestion(ctx context.Context, image ImageRef, questionID string, pageIndex int, reviewerNotes string) (RawQuestionResult, error)

	// AnalyzeWithVision is a generic vision+prompt call used by rubric
	// self-review and logic review.
	AnalyzeWithVision(ctx context.Context, images []ImageRef, prompt string, stream StreamCallback) (string, error)
}

// RawRubricResponse is the unparsed JSON body returned by ParseRubric, kept
// as a generic map so the rubric_parse stage controls its own decoding and
// defaulting (spec.md §4.3's normalization rules operate on this shape).
type RawRubricResponse = map[string]any

// RawQuestionJSON is one question object as returned by ReviseRubricQuestions.
type RawQuestionJSON = map[string]any

// RawStudentGradingResult is the unparsed per-student grading JSON
// (spec.md §6): {status, total_score, max_score, confidence,
// overall_feedback, question_details[]}.
type RawStudentGradingResult = map[string]any

// RawQuestionResult is the unparsed single-question regrade JSON.
type RawQuestionResult = map[string]any

// ClassSystemNotifier is the optional, best-effort push-to-class-system
// webhook collaborator (SPEC_FULL.md §C.4). Its failures must never fail
// the workflow, mirroring the ProgressSink contract.
type ClassSystemNotifier interface {
	NotifyExportComplete(ctx context.Context, batchID string, payload *ExportPayload) error
}
