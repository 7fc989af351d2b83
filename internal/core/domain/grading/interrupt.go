package grading

// InterruptType is a closed set of suspension-point kinds the grading
// pipeline can raise.
type InterruptType string

const (
	InterruptRubricReview    InterruptType = "rubric_review_required"
	InterruptResultsReview   InterruptType = "results_review_required"
)

// InterruptRequest is the envelope a stage raises to suspend the workflow
// and wait for an external response (spec.md §3, §9 "Human-in-the-loop").
type InterruptRequest struct {
	Type    InterruptType `json:"type"`
	BatchID string        `json:"batch_id"`
	Payload map[string]any `json:"payload"`
}

// InterruptAction is the closed set of response actions (spec.md §3, §4.6).
type InterruptAction string

const (
	ActionApprove InterruptAction = "approve"
	ActionUpdate  InterruptAction = "update"
	ActionReparse InterruptAction = "reparse"
	ActionRegrade InterruptAction = "regrade"
	ActionSkip    InterruptAction = "skip"
)

// QuestionOverride overrides one question's score/feedback during a
// results-review "update" response.
type QuestionOverride struct {
	QuestionID string   `json:"question_id"`
	Score      *float64 `json:"score,omitempty"`
	Feedback   *string  `json:"feedback,omitempty"`
}

// StudentOverride is one student's block of question overrides, keyed by
// student for the "update" response action.
type StudentOverride struct {
	StudentKey string             `json:"student_key"`
	Questions  []QuestionOverride `json:"questions"`
}

// RegradeItem identifies one (student, question[, pages]) unit to re-grade
// via a single-question call (spec.md §4.6).
type RegradeItem struct {
	StudentKey  string `json:"student_key"`
	QuestionID  string `json:"question_id"`
	PageIndices []int  `json:"page_indices,omitempty"`
}

// RubricQuestionSelector identifies a rubric question targeted by a
// "reparse" response during rubric_review.
type RubricQuestionSelector struct {
	QuestionID string `json:"question_id"`
	Notes      string `json:"notes,omitempty"`
}

// RubricFieldUpdate overrides one field of a rubric question during an
// "update" response at rubric_review.
type RubricFieldUpdate struct {
	QuestionID string `json:"question_id"`
	Field      string `json:"field"` // "max_score" | "scoring_points" | "standard_answer"
	Value      any    `json:"value"`
}

// InterruptResponse is the resume payload supplied by the external caller
// (human reviewer or automation) after an InterruptRequest. Only one of the
// Action-specific fields is populated per the closed action set.
type InterruptResponse struct {
	Action InterruptAction `json:"action"`

	// rubric_review responses
	RubricUpdates  []RubricFieldUpdate      `json:"rubric_updates,omitempty"`
	ReparseTargets []RubricQuestionSelector `json:"reparse_targets,omitempty"`

	// results_review responses
	StudentOverrides []StudentOverride `json:"student_overrides,omitempty"`
	RegradeItems     []RegradeItem     `json:"regrade_items,omitempty"`
}
