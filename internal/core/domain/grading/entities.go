// Package grading holds the domain entities and collaborator interfaces for
// the batched grading pipeline: the root workflow state, the rubric and
// student-result shapes it carries, and the external services (scoring,
// storage, notification) the workflow consumes but does not implement.
package grading

import (
	"time"

	"brokle/pkg/ulid"
)

// ImageRef points at a page image. Core code never holds raw bytes in state
// longer than one stage; everything beyond preprocess references images by
// FileID against blob storage.
type ImageRef struct {
	FileID      string `json:"file_id"`
	PageIndex   int    `json:"page_index"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"file_url,omitempty"`
}

// RosterEntry is an optional class roster used for opportunistic student
// matching in the boundary resolver (see SPEC_FULL.md §C.2).
type RosterEntry struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
}

// StudentMappingEntry is a caller-supplied explicit page assignment for one
// student, either as an explicit page list or a start/end range.
type StudentMappingEntry struct {
	StudentKey  string `json:"student_key"`
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	Pages       []int  `json:"pages,omitempty"`
	StartPage   *int   `json:"start_page,omitempty"`
	EndPage     *int   `json:"end_page,omitempty"`
}

// Inputs is the caller-supplied input bundle for one batch. It is immutable
// after intake.
type Inputs struct {
	AnswerImages        []ImageRef             `json:"answer_images"`
	RubricImages        []ImageRef             `json:"rubric_images,omitempty"`
	RubricText          string                 `json:"rubric_text,omitempty"`
	StudentMapping      []StudentMappingEntry  `json:"student_mapping,omitempty"`
	ManualBoundaries    []int                  `json:"manual_boundaries,omitempty"`
	Roster              []RosterEntry         `json:"roster,omitempty"`
	ExpectedTotalScore  *float64               `json:"expected_total_score,omitempty"`
	GradingMode         GradingMode            `json:"grading_mode,omitempty"`
}

// GradingMode is a closed set of grading modes.
type GradingMode string

const (
	GradingModeStandard      GradingMode = "standard"
	GradingModeAuto          GradingMode = "auto"
	GradingModeAssistTeacher GradingMode = "assist_teacher"
	GradingModeAssistStudent GradingMode = "assist_student"
)

// IsAssist reports whether this mode is one of the "assist" family, which
// finalizes scores to zero and keeps only narrative feedback (§4.4).
func (m GradingMode) IsAssist() bool {
	return m == GradingModeAssistTeacher || m == GradingModeAssistStudent
}

// Timestamps records when the batch entered each stage, keyed by stage name,
// plus the overall created/completed markers.
type Timestamps struct {
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Stages      map[string]time.Time `json:"stages,omitempty"`
}

// MarkStage records entry into a stage without mutating the caller's map.
func (t Timestamps) MarkStage(stage string, at time.Time) Timestamps {
	stages := make(map[string]time.Time, len(t.Stages)+1)
	for k, v := range t.Stages {
		stages[k] = v
	}
	stages[stage] = at
	t.Stages = stages
	return t
}

// BatchGradingState is the root, append-structured state threaded through the
// grading pipeline (spec.md §3). Every stage receives a value copy and
// returns the new value; the orchestrator alone persists it. Fields that are
// produced by parallel fan-out declare their reducer in the comment next to
// them; everything else is last_write_wins.
type BatchGradingState struct {
	BatchID      string      `json:"batch_id"` // immutable once set
	Inputs       Inputs      `json:"inputs"`
	Timestamps   Timestamps  `json:"timestamps"`
	CurrentStage string      `json:"current_stage"`
	Percentage   float64     `json:"percentage"` // monotonically non-decreasing

	Config GradingConfig `json:"config"`

	ProcessedImages   []ImageRef        `json:"processed_images,omitempty"`
	StudentBoundaries []StudentBoundary `json:"student_boundaries,omitempty"`

	ParsedRubric     *ParsedRubric     `json:"parsed_rubric,omitempty"`
	RubricSelfReview *SelfReviewResult `json:"rubric_self_review,omitempty"`
	RubricContext    string            `json:"rubric_context,omitempty"` // derived, never accepted as input

	// StudentResults: reducer=append + dedup-by-student_key (last write wins on duplicates)
	StudentResults []StudentResult `json:"student_results,omitempty"`
	// GradingResults: reducer=append, no dedup (raw per-unit audit trail)
	GradingResults []GradeUnitOutcome `json:"grading_results,omitempty"`

	LogicReviewResults []LogicReviewResult `json:"logic_review_results,omitempty"`
	ReviewSummary       *ReviewSummary      `json:"review_summary,omitempty"`
	ClassReport          *ClassReport        `json:"class_report,omitempty"`
	ExportData           *ExportPayload      `json:"export_data,omitempty"`

	// Errors: reducer=append
	Errors []WorkflowError `json:"errors,omitempty"`

	PendingInterrupt *InterruptRequest  `json:"pending_interrupt,omitempty"`
	LastResponse     *InterruptResponse `json:"last_response,omitempty"`
}

// NewBatchGradingState seeds a fresh root state at intake.
func NewBatchGradingState(inputs Inputs, cfg GradingConfig) *BatchGradingState {
	now := time.Now()
	return &BatchGradingState{
		BatchID:      ulid.New().String(),
		Inputs:       inputs,
		Timestamps:   Timestamps{CreatedAt: now, Stages: map[string]time.Time{}},
		CurrentStage: "intake",
		Percentage:   0,
		Config:       cfg,
	}
}

// AdvanceStage returns a copy of the state advanced to the given stage and
// percentage, enforcing the monotonic-percentage invariant (§8.6).
func (s BatchGradingState) AdvanceStage(stage string, percentage float64, now time.Time) BatchGradingState {
	if percentage < s.Percentage {
		percentage = s.Percentage
	}
	s.CurrentStage = stage
	s.Percentage = percentage
	s.Timestamps = s.Timestamps.MarkStage(stage, now)
	return s
}

// AppendError returns a copy of the state with an error appended (reducer=append).
func (s BatchGradingState) AppendError(e WorkflowError) BatchGradingState {
	s.Errors = append(append([]WorkflowError{}, s.Errors...), e)
	return s
}
