package grading

import (
	"context"
	"fmt"

	"brokle/internal/core/domain/grading"
)

// computeReviewSummary computes the confidence-accounting summary consumed by
// needsResultsReview and the adjudication UI (spec.md §4.6). It never
// suspends by itself; the router decides whether to interrupt.
func (o *Orchestrator) computeReviewSummary(state *grading.BatchGradingState) grading.ReviewSummary {
	summary := grading.ReviewSummary{}
	seen := make(map[string]bool)

	for _, b := range state.StudentBoundaries {
		if b.NeedsConfirmation {
			summary.BoundariesNeedConfirmation++
			key := "boundary:" + b.StudentKey
			if !seen[key] {
				seen[key] = true
				summary.ReviewQueue = append(summary.ReviewQueue, grading.ReviewQueueItem{
					Type:       grading.ReviewQueueBoundary,
					StudentKey: b.StudentKey,
					Reason:     "page boundary could not be confirmed automatically",
				})
			}
		}
	}

	for _, s := range state.StudentResults {
		for _, p := range s.PageResults {
			if p.Confidence < state.Config.ReviewThreshold {
				summary.LowConfidenceResults = append(summary.LowConfidenceResults, p)
			}
		}
		if s.Confession.NeedsSelfReview() {
			key := "confession:" + s.StudentKey
			if !seen[key] {
				seen[key] = true
				summary.ReviewQueue = append(summary.ReviewQueue, grading.ReviewQueueItem{
					Type:       grading.ReviewQueueConfession,
					StudentKey: s.StudentKey,
					Reason:     "student-level confession flagged risk or low confidence",
				})
			}
		}
		for _, q := range s.QuestionDetails {
			if q.Confidence >= state.Config.ReviewThreshold {
				continue
			}
			key := "question:" + s.StudentKey + ":" + q.QuestionID
			if seen[key] {
				continue
			}
			seen[key] = true
			summary.ReviewQueue = append(summary.ReviewQueue, grading.ReviewQueueItem{
				Type:        grading.ReviewQueueQuestion,
				StudentKey:  s.StudentKey,
				QuestionID:  q.QuestionID,
				PageIndices: q.PageIndices,
				Reason:      fmt.Sprintf("confidence %.2f below threshold", q.Confidence),
			})
			if state.Config.ReviewQueueMaxItems > 0 && len(summary.ReviewQueue) >= state.Config.ReviewQueueMaxItems {
				return summary
			}
		}
	}
	return summary
}

// needsResultsReview is the review-stage interrupt gate of spec.md §4.6.
func needsResultsReview(state *grading.BatchGradingState) bool {
	summary := state.ReviewSummary
	return state.Config.EnableReview && !state.Config.GradingMode.IsAssist() && summary != nil && len(summary.ReviewQueue) > 0
}

func buildResultsReviewInterrupt(state *grading.BatchGradingState) grading.InterruptRequest {
	return grading.InterruptRequest{
		Type:    grading.InterruptResultsReview,
		BatchID: state.BatchID,
		Payload: map[string]any{
			"review_summary":  state.ReviewSummary,
			"student_results": state.StudentResults,
		},
	}
}

// applyResultsReviewResponse applies the closed set of §4.6 response
// actions and recomputes totals after any override.
func (o *Orchestrator) applyResultsReviewResponse(ctx context.Context, state *grading.BatchGradingState, resp grading.InterruptResponse) (*grading.BatchGradingState, error) {
	switch resp.Action {
	case grading.ActionApprove, grading.ActionSkip:
		return state, nil
	case grading.ActionUpdate:
		applyStudentOverrides(state, resp.StudentOverrides)
		return state, nil
	case grading.ActionRegrade:
		return o.applyRegradeItems(ctx, state, resp.RegradeItems)
	default:
		return state, nil
	}
}

func applyStudentOverrides(state *grading.BatchGradingState, overrides []grading.StudentOverride) {
	if len(overrides) == 0 {
		return
	}
	byKey := make(map[string]int, len(state.StudentResults))
	for i, s := range state.StudentResults {
		byKey[s.StudentKey] = i
	}
	for _, o := range overrides {
		idx, ok := byKey[o.StudentKey]
		if !ok {
			continue
		}
		student := state.StudentResults[idx]
		qIdx := make(map[string]int, len(student.QuestionDetails))
		for i, q := range student.QuestionDetails {
			qIdx[grading.NormalizeQuestionID(q.QuestionID)] = i
		}
		for _, qo := range o.Questions {
			i, ok := qIdx[grading.NormalizeQuestionID(qo.QuestionID)]
			if !ok {
				continue
			}
			if qo.Score != nil {
				student.QuestionDetails[i].Score = *qo.Score
			}
			if qo.Feedback != nil {
				student.QuestionDetails[i].Feedback = *qo.Feedback
			}
		}
		student.RecomputeTotals()
		state.StudentResults[idx] = student
	}
}

// applyRegradeItems re-grades each identified (student, question[, pages])
// unit and keeps the best of the old and new result by
// (confidence, score, feedback length), per spec.md §4.6 scenario 6.
func (o *Orchestrator) applyRegradeItems(ctx context.Context, state *grading.BatchGradingState, items []grading.RegradeItem) (*grading.BatchGradingState, error) {
	if len(items) == 0 || o.Scoring == nil {
		return state, nil
	}
	byKey := make(map[string]int, len(state.StudentResults))
	for i, s := range state.StudentResults {
		byKey[s.StudentKey] = i
	}
	byPage := make(map[int]grading.ImageRef, len(state.ProcessedImages))
	for _, img := range state.ProcessedImages {
		byPage[img.PageIndex] = img
	}

	for _, item := range items {
		sIdx, ok := byKey[item.StudentKey]
		if !ok {
			continue
		}
		student := state.StudentResults[sIdx]
		qIdx := -1
		for i, q := range student.QuestionDetails {
			if grading.NormalizeQuestionID(q.QuestionID) == grading.NormalizeQuestionID(item.QuestionID) {
				qIdx = i
				break
			}
		}
		if qIdx == -1 {
			continue
		}
		existing := student.QuestionDetails[qIdx]

		pageIdx := item.PageIndices
		if len(pageIdx) == 0 {
			pageIdx = existing.PageIndices
		}
		var image grading.ImageRef
		if len(pageIdx) > 0 {
			image = byPage[pageIdx[0]]
		}

		raw, err := o.Scoring.GradeSingleQuestion(ctx, image, item.QuestionID, firstOr(pageIdx, 0), "")
		if err != nil {
			if o.Logger != nil {
				o.Logger.Warn("regrade call failed, keeping existing result", "student_key", item.StudentKey, "question_id", item.QuestionID, "error", err)
			}
			continue
		}
		revised := questionResultFromMap(raw)
		revised.QuestionID = existing.QuestionID
		revised.MaxScore = existing.MaxScore

		student.QuestionDetails[qIdx] = betterQuestionResult(existing, revised)
		student.RecomputeTotals()
		state.StudentResults[sIdx] = student
	}
	return state, nil
}

func firstOr(vals []int, fallback int) int {
	if len(vals) == 0 {
		return fallback
	}
	return vals[0]
}

// betterQuestionResult picks the better of the existing and revised
// QuestionResult by the tuple (confidence, score, feedback length), per
// spec.md §4.6 and §9's open question on whether regrade may decrease a
// score: it may, when the revised confidence is higher.
func betterQuestionResult(existing, revised grading.QuestionResult) grading.QuestionResult {
	if tupleLess(existing, revised) {
		return revised
	}
	return existing
}

// tupleLess reports whether a is strictly worse than b by
// (confidence, score, feedback length).
func tupleLess(a, b grading.QuestionResult) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return len(a.Feedback) < len(b.Feedback)
}
