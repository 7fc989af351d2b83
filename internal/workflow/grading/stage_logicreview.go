package grading

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/retry"
)

// logicReviewReply is the JSON shape described in spec.md §4.5.
type logicReviewReply struct {
	StudentKey      string                    `json:"student_key"`
	QuestionReviews []questionReviewReply     `json:"question_reviews"`
	SelfAudit       selfAuditReply            `json:"self_audit"`
}

type questionReviewReply struct {
	QuestionID             string                  `json:"question_id"`
	Confidence              float64                `json:"confidence"`
	ConfidenceReason        string                 `json:"confidence_reason"`
	SelfCritique            string                 `json:"self_critique"`
	SelfCritiqueConfidence  *float64               `json:"self_critique_confidence"`
	ReviewSummary           string                 `json:"review_summary"`
	ReviewCorrections       []logicCorrectionReply `json:"review_corrections"`
	HonestyNote             string                 `json:"honesty_note"`
}

type logicCorrectionReply struct {
	PointID        string  `json:"point_id"`
	CorrectAwarded float64 `json:"correct_awarded"`
	CorrectDecision string `json:"correct_decision"`
	ReviewReason   string  `json:"review_reason"`
}

type selfAuditReply struct {
	Summary                   string   `json:"summary"`
	Confidence                float64  `json:"confidence"`
	Issues                    []string `json:"issues"`
	ComplianceAnalysis        []string `json:"compliance_analysis"`
	UncertaintiesAndConflicts []string `json:"uncertainties_and_conflicts"`
	OverallComplianceGrade    string   `json:"overall_compliance_grade"`
	HonestyNote               string   `json:"honesty_note"`
}

// runLogicReview runs the per-student second pass over the batch's
// structured results, up to logic_review_max_workers in parallel
// (spec.md §4.5).
func (o *Orchestrator) runLogicReview(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	limit := state.Config.LogicReviewMaxWorkers
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))

	results := make([]*grading.LogicReviewResult, len(state.StudentResults))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, student := range state.StudentResults {
		i, student := i, student
		if len(student.QuestionDetails) == 0 {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			review, err := o.reviewOneStudent(ctx, state, student)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				if o.Logger != nil {
					o.Logger.Warn("logic review failed for student, keeping pre-review values", "student_key", student.StudentKey, "error", err)
				}
				return
			}
			results[i] = review
		}()
	}
	wg.Wait()

	for i, review := range results {
		if review == nil {
			continue
		}
		state.StudentResults[i] = mergeLogicReview(state.StudentResults[i], *review)
		state.LogicReviewResults = append(state.LogicReviewResults, *review)
	}
	return state, nil
}

func (o *Orchestrator) reviewOneStudent(ctx context.Context, state *grading.BatchGradingState, student grading.StudentResult) (*grading.LogicReviewResult, error) {
	if o.Scoring == nil {
		return nil, nil
	}
	prompt := logicReviewPrompt(student, state.ParsedRubric, state.Config.LogicReviewMaxQuestions)

	var reply string
	err := o.withRetry(ctx, retry.LLMAPI, "logic_review", func(ctx context.Context) error {
		var callErr error
		reply, callErr = o.Scoring.AnalyzeWithVision(ctx, nil, prompt, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var parsed logicReviewReply
	if err := decodeOrExtract(reply, &parsed); err != nil {
		return nil, grading.NewWorkflowError(grading.ErrLogicReviewParseFailed, "logic_review", err)
	}

	review := grading.LogicReviewResult{
		StudentKey: student.StudentKey,
		SelfAudit: grading.SelfAudit{
			Summary:                   parsed.SelfAudit.Summary,
			Confidence:                parsed.SelfAudit.Confidence,
			Issues:                    parsed.SelfAudit.Issues,
			ComplianceAnalysis:        parsed.SelfAudit.ComplianceAnalysis,
			UncertaintiesAndConflicts: parsed.SelfAudit.UncertaintiesAndConflicts,
			OverallComplianceGrade:    parsed.SelfAudit.OverallComplianceGrade,
			HonestyNote:               parsed.SelfAudit.HonestyNote,
		},
	}
	for _, qr := range parsed.QuestionReviews {
		var corrections []grading.LogicCorrection
		for _, c := range qr.ReviewCorrections {
			corrections = append(corrections, grading.LogicCorrection{
				PointID:         c.PointID,
				CorrectAwarded:  c.CorrectAwarded,
				CorrectDecision: c.CorrectDecision,
				ReviewReason:    c.ReviewReason,
			})
		}
		review.QuestionReviews = append(review.QuestionReviews, grading.QuestionReviewOutcome{
			QuestionID:             qr.QuestionID,
			Confidence:             qr.Confidence,
			ConfidenceReason:       qr.ConfidenceReason,
			SelfCritique:           qr.SelfCritique,
			SelfCritiqueConfidence: qr.SelfCritiqueConfidence,
			ReviewSummary:          qr.ReviewSummary,
			ReviewCorrections:      corrections,
			HonestyNote:            qr.HonestyNote,
		})
	}
	return &review, nil
}

// mergeLogicReview applies the per-question merge rules of spec.md §4.5: an
// empty corrections array changes nothing except confidence (the round-trip
// law in spec.md §8).
func mergeLogicReview(student grading.StudentResult, review grading.LogicReviewResult) grading.StudentResult {
	byID := make(map[string]int, len(student.QuestionDetails))
	for i, q := range student.QuestionDetails {
		byID[grading.NormalizeQuestionID(q.QuestionID)] = i
	}

	for _, qr := range review.QuestionReviews {
		idx, ok := byID[grading.NormalizeQuestionID(qr.QuestionID)]
		if !ok {
			continue
		}
		q := student.QuestionDetails[idx]
		if qr.Confidence > 0 {
			q.Confidence = qr.Confidence
		}
		if qr.ConfidenceReason != "" {
			q.ConfidenceReason = qr.ConfidenceReason
		}
		if qr.SelfCritique != "" {
			q.SelfCritique = qr.SelfCritique
		}
		if qr.SelfCritiqueConfidence != nil {
			q.SelfCritiqueConfidence = qr.SelfCritiqueConfidence
		}
		if qr.ReviewSummary != "" {
			q.ReviewSummary = qr.ReviewSummary
		}
		if qr.HonestyNote != "" {
			q.HonestyNote = qr.HonestyNote
		}

		pointIdx := make(map[string]int, len(q.ScoringPointResults))
		for i, p := range q.ScoringPointResults {
			pointIdx[p.PointID] = i
		}
		var delta float64
		for _, c := range qr.ReviewCorrections {
			pi, ok := pointIdx[c.PointID]
			if !ok {
				continue
			}
			before := q.ScoringPointResults[pi].Awarded
			after := clampFloat(c.CorrectAwarded, 0, q.ScoringPointResults[pi].MaxPoints)
			q.ScoringPointResults[pi].Awarded = after
			if c.CorrectDecision != "" {
				q.ScoringPointResults[pi].Decision = c.CorrectDecision
			}
			delta += after - before
			q.ReviewCorrections = append(q.ReviewCorrections, grading.ReviewCorrection{
				PointID:       c.PointID,
				Reason:        c.ReviewReason,
				BeforeAwarded: before,
				AfterAwarded:  after,
				Source:        "logic_review",
			})
		}
		if delta != 0 {
			q.Score = clampFloat(q.Score+delta, 0, q.MaxScore)
		}
		q.LogicReviewed = true
		student.QuestionDetails[idx] = q
	}

	student.LogicReview = &review
	student.RecomputeTotals()
	return student
}

func logicReviewPrompt(student grading.StudentResult, rubric *grading.ParsedRubric, maxQuestions int) string {
	context := ""
	if rubric != nil {
		context = rubric.RubricContext
	}
	questions := student.QuestionDetails
	if maxQuestions > 0 && len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	return fmt.Sprintf(
		"Audit this grading for %s against the rubric below. Only correct clear, "+
			"rubric-grounded errors; never sympathy-grade; lower confidence to [0.3,0.5] "+
			"with an honesty_note when uncertain. This review must not reference any "+
			"prior run.\n\nRubric:\n%s\n\nQuestions reviewed: %d",
		student.StudentKey, context, len(questions))
}
