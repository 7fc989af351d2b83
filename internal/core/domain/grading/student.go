package grading

// StudentBoundary is a contiguous page range owned by one student within a
// batch (spec.md §3, GLOSSARY "Boundary").
type StudentBoundary struct {
	StudentKey         string `json:"student_key"`
	Pages              []int  `json:"pages"`
	StartPage          int    `json:"start_page"`
	EndPage            int    `json:"end_page"`
	StudentID          string `json:"student_id,omitempty"`
	StudentName        string `json:"student_name,omitempty"`
	NeedsConfirmation bool   `json:"needs_confirmation,omitempty"`
}

// ScoringPointResult is the outcome for one rubric point after the worker's
// deterministic finalization pass (spec.md §3, §4.4).
type ScoringPointResult struct {
	PointID         string  `json:"point_id"`
	Decision        string  `json:"decision,omitempty"`
	Awarded         float64 `json:"awarded"`
	MaxPoints       float64 `json:"max_points"`
	Evidence        string  `json:"evidence,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	RubricReference string  `json:"rubric_reference,omitempty"`
}

// ReviewCorrection records one adjustment the finalizer or logic-review made
// to a scoring point, with the pre-image preserved for audit.
type ReviewCorrection struct {
	PointID        string  `json:"point_id,omitempty"`
	Reason         string  `json:"reason"`
	BeforeAwarded  float64 `json:"before_awarded,omitempty"`
	AfterAwarded   float64 `json:"after_awarded,omitempty"`
	Source         string  `json:"source"` // "finalize" | "logic_review" | "human_review"
}

// AuditFlag is a closed set of finalization/review audit markers.
type AuditFlag string

const (
	AuditMissingScoringPoints   AuditFlag = "missing_scoring_points"
	AuditMissingEvidence        AuditFlag = "missing_evidence"
	AuditScoreAdjusted          AuditFlag = "score_adjusted"
	AuditMissingRubricReference AuditFlag = "missing_rubric_reference"
	AuditMissingPointID         AuditFlag = "missing_point_id"
)

// QuestionResult is the per-question scoring outcome for one student
// (spec.md §3).
type QuestionResult struct {
	QuestionID           string                `json:"question_id"`
	Score                float64               `json:"score"`
	MaxScore             float64               `json:"max_score"`
	Confidence           float64               `json:"confidence"`
	ScoringPointResults  []ScoringPointResult  `json:"scoring_point_results"`
	Feedback             string                `json:"feedback,omitempty"`
	AuditFlags           []AuditFlag           `json:"audit_flags,omitempty"`
	ReviewCorrections    []ReviewCorrection    `json:"review_corrections,omitempty"`
	PageIndices          []int                 `json:"page_indices,omitempty"`

	// Logic-review annotations, merged in place by §4.5.
	LogicReviewed         bool    `json:"logic_reviewed,omitempty"`
	ConfidenceReason       string  `json:"confidence_reason,omitempty"`
	SelfCritique           string  `json:"self_critique,omitempty"`
	SelfCritiqueConfidence *float64 `json:"self_critique_confidence,omitempty"`
	ReviewSummary          string  `json:"review_summary,omitempty"`
	HonestyNote            string  `json:"honesty_note,omitempty"`
}

// hasFlag reports whether a flag is already set, to keep AddFlag idempotent.
func (q *QuestionResult) hasFlag(f AuditFlag) bool {
	for _, existing := range q.AuditFlags {
		if existing == f {
			return true
		}
	}
	return false
}

// AddFlag appends an audit flag if not already present.
func (q *QuestionResult) AddFlag(f AuditFlag) {
	if !q.hasFlag(f) {
		q.AuditFlags = append(q.AuditFlags, f)
	}
}

// PageGradeResult is a page-level grading outcome, used in page-batch mode
// (no student boundaries supplied) and for per-page confidence/failure
// tracking.
type PageGradeResult struct {
	PageIndex  int     `json:"page_index"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"` // "ok" | "failed"
	Message    string  `json:"message,omitempty"`
}

// StudentResult is the aggregated output for one student (spec.md §3).
type StudentResult struct {
	StudentKey     string            `json:"student_key"`
	StudentID      string            `json:"student_id,omitempty"`
	StudentName    string            `json:"student_name,omitempty"`
	TotalScore     float64           `json:"total_score"`
	MaxTotalScore  float64           `json:"max_total_score"`
	QuestionDetails []QuestionResult `json:"question_details"`
	PageResults     []PageGradeResult `json:"page_results,omitempty"`
	Confession      Confession        `json:"confession,omitempty"`
	SelfAudit       *SelfAudit        `json:"self_audit,omitempty"`
	LogicReview     *LogicReviewResult `json:"logic_review,omitempty"`
	StudentSummary  string            `json:"student_summary,omitempty"`

	RetryCount int `json:"retry_count,omitempty"`
}

// RecomputeTotals recomputes TotalScore/MaxTotalScore from QuestionDetails,
// or from PageResults when there are no question details (page-batch mode).
// This backs invariant 4 of spec.md §8 and the "review with empty override"
// round-trip law.
func (s *StudentResult) RecomputeTotals() {
	if len(s.QuestionDetails) > 0 {
		var score, max float64
		for _, q := range s.QuestionDetails {
			score += q.Score
			max += q.MaxScore
		}
		s.TotalScore = score
		s.MaxTotalScore = max
		return
	}
	if len(s.PageResults) > 0 {
		var score, max float64
		for _, p := range s.PageResults {
			score += p.Score
			max += p.MaxScore
		}
		s.TotalScore = score
		s.MaxTotalScore = max
	}
}

// GradeUnitOutcome is the raw per-fan-out-unit result appended (no dedup) to
// grading_results, preserved as an audit trail distinct from the deduplicated
// student_results (spec.md §5).
type GradeUnitOutcome struct {
	StudentKey string          `json:"student_key"`
	BatchIndex int             `json:"batch_index"`
	Succeeded  bool            `json:"succeeded"`
	Retried    bool            `json:"retried"`
	Error      string          `json:"error,omitempty"`
	Result     *StudentResult  `json:"result,omitempty"`
}

// SelfAudit is the logic-review pass's self-reported compliance summary
// (spec.md §4.5).
type SelfAudit struct {
	Summary                    string   `json:"summary"`
	Confidence                 float64  `json:"confidence"`
	Issues                     []string `json:"issues,omitempty"`
	ComplianceAnalysis         []string `json:"compliance_analysis,omitempty"`
	UncertaintiesAndConflicts  []string `json:"uncertainties_and_conflicts,omitempty"`
	OverallComplianceGrade     string   `json:"overall_compliance_grade,omitempty"`
	HonestyNote                string   `json:"honesty_note,omitempty"`
}

// LogicReviewResult is the per-student second-pass audit object (spec.md §4.5).
type LogicReviewResult struct {
	StudentKey      string                  `json:"student_key"`
	QuestionReviews []QuestionReviewOutcome `json:"question_reviews"`
	SelfAudit       SelfAudit               `json:"self_audit"`
}

// QuestionReviewOutcome is one question's logic-review reply, before merge.
type QuestionReviewOutcome struct {
	QuestionID             string             `json:"question_id"`
	Confidence             float64            `json:"confidence"`
	ConfidenceReason       string             `json:"confidence_reason,omitempty"`
	SelfCritique           string             `json:"self_critique,omitempty"`
	SelfCritiqueConfidence *float64           `json:"self_critique_confidence,omitempty"`
	ReviewSummary          string             `json:"review_summary,omitempty"`
	ReviewCorrections      []LogicCorrection  `json:"review_corrections,omitempty"`
	HonestyNote            string             `json:"honesty_note,omitempty"`
}

// LogicCorrection is one bounded correction proposed by logic review.
type LogicCorrection struct {
	PointID        string  `json:"point_id"`
	CorrectAwarded float64 `json:"correct_awarded"`
	CorrectDecision string `json:"correct_decision,omitempty"`
	ReviewReason   string  `json:"review_reason,omitempty"`
}

// ReviewQueueItemType is a closed set of human-adjudication item kinds.
type ReviewQueueItemType string

const (
	ReviewQueueBoundary   ReviewQueueItemType = "boundary"
	ReviewQueueConfession ReviewQueueItemType = "confession"
	ReviewQueueQuestion   ReviewQueueItemType = "question"
)

// ReviewQueueItem is one unit surfaced for human adjudication.
type ReviewQueueItem struct {
	Type        ReviewQueueItemType `json:"type"`
	StudentKey  string              `json:"student_key,omitempty"`
	QuestionID  string              `json:"question_id,omitempty"`
	PageIndices []int               `json:"page_indices,omitempty"`
	Reason      string              `json:"reason"`
}

// ReviewSummary is the review stage's aggregated confidence accounting
// (spec.md §4.6).
type ReviewSummary struct {
	BoundariesNeedConfirmation int               `json:"boundaries_need_confirmation"`
	LowConfidenceResults       []PageGradeResult `json:"low_confidence_results,omitempty"`
	ReviewQueue                []ReviewQueueItem `json:"review_queue,omitempty"`
}

// ClassReport is the class-level analysis computed at export (SPEC_FULL.md §C.3).
type ClassReport struct {
	StudentCount      int                `json:"student_count"`
	MeanScore         float64            `json:"mean_score"`
	MedianScore       float64            `json:"median_score"`
	StdDevScore       float64            `json:"std_dev_score"`
	HistogramBuckets  []HistogramBucket  `json:"histogram_buckets"`
	PerQuestionAverage map[string]float64 `json:"per_question_average"`
}

// HistogramBucket is one score-range bucket of the class report.
type HistogramBucket struct {
	RangeLow  float64 `json:"range_low"`
	RangeHigh float64 `json:"range_high"`
	Count     int     `json:"count"`
}

// ExportPayload is the final persisted/artifact-written structure
// (spec.md §4.7).
type ExportPayload struct {
	BatchID      string          `json:"batch_id"`
	Students     []StudentResult `json:"students"`
	ClassReport  *ClassReport    `json:"class_report,omitempty"`
	Failures     []GradeUnitOutcome `json:"failures,omitempty"`
	GeneratedAt  string          `json:"generated_at"`
	Persisted    bool            `json:"persisted"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
}
