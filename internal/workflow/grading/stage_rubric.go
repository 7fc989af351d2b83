package grading

import (
	"context"
	"fmt"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/retry"
)

// runRubricParse invokes the scoring service once against the rubric
// images, normalizes the reply, and enforces the expected-total guard
// (spec.md §4.3).
func (o *Orchestrator) runRubricParse(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	images := state.Inputs.RubricImages
	if len(images) == 0 {
		images = state.ProcessedImages
	}

	var raw grading.RawRubricResponse
	callCtx, cancel := context.WithTimeout(ctx, state.Config.RubricParseTimeout)
	defer cancel()

	streamCB := o.streamCallback(state.BatchID, "rubric_parse")
	err := o.withRetry(callCtx, retry.LLMAPI, "rubric_parse", func(ctx context.Context) error {
		var callErr error
		raw, callErr = o.Scoring.ParseRubric(ctx, images, streamCB)
		return callErr
	})
	if err != nil {
		return state, grading.NewWorkflowError(grading.ErrRubricParseFailed, "rubric_parse", err)
	}

	parsed := rawToParsedRubric(raw).Normalize()
	state.ParsedRubric = &parsed
	state.RubricContext = parsed.RubricContext

	if err := o.checkExpectedTotal(state, parsed); err != nil {
		return state, err
	}

	pct := state.Percentage
	grading.BestEffortPublish(o.Sink, state.BatchID, grading.ProgressEvent{
		Type:           grading.ProgressRubricParsed,
		BatchID:        state.BatchID,
		TotalQuestions: parsed.TotalQuestions,
		TotalScore:     parsed.TotalScore,
		Progress:       &pct,
	})
	return state, nil
}

func (o *Orchestrator) checkExpectedTotal(state *grading.BatchGradingState, parsed grading.ParsedRubric) error {
	expected := state.Inputs.ExpectedTotalScore
	if expected == nil || parsed.TotalScore <= 0 || parsed.TotalScore >= *expected {
		return nil
	}
	grading.BestEffortPublish(o.Sink, state.BatchID, grading.ProgressEvent{
		Type:               grading.ProgressRubricScoreMismatch,
		BatchID:            state.BatchID,
		ExpectedTotalScore: *expected,
		ParsedTotalScore:   parsed.TotalScore,
		Message:            "parsed rubric total is below the caller-supplied expected total",
	})
	return grading.NewWorkflowError(grading.ErrRubricScoreMismatch, "rubric_parse",
		fmt.Errorf("parsed total %.2f below expected %.2f", parsed.TotalScore, *expected))
}

// runRubricSelfReview re-invokes the scoring service against the rubric
// images plus the confession digest when the parser flagged risk
// (spec.md §4.3). Absent images or an unconfigured service short-circuits
// and preserves the input, per the boundary behavior in spec.md §8.
func (o *Orchestrator) runRubricSelfReview(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	if state.ParsedRubric == nil || !state.ParsedRubric.Confession.NeedsSelfReview() {
		return state, nil
	}
	images := state.Inputs.RubricImages
	if len(images) == 0 || o.Scoring == nil {
		return state, nil
	}

	prompt := selfReviewPrompt(*state.ParsedRubric)
	streamCB := o.streamCallback(state.BatchID, "rubric_self_review")

	var reply string
	err := o.withRetry(ctx, retry.LLMAPI, "rubric_self_review", func(ctx context.Context) error {
		var callErr error
		reply, callErr = o.Scoring.AnalyzeWithVision(ctx, images, prompt, streamCB)
		return callErr
	})
	if err != nil {
		// Self-review failures are not fatal: keep the pre-review rubric.
		if o.Logger != nil {
			o.Logger.Warn("rubric self-review call failed, preserving input", "batch_id", state.BatchID, "error", err)
		}
		return state, nil
	}

	var parsedReply selfReviewReply
	if err := decodeOrExtract(reply, &parsedReply); err != nil {
		if o.Logger != nil {
			o.Logger.Warn("rubric self-review reply unparsable, preserving input", "batch_id", state.BatchID, "error", err)
		}
		return state, nil
	}

	before := state.ParsedRubric.Confession.Confidence
	revised := applySelfReviewCorrections(*state.ParsedRubric, parsedReply)
	revised.Confession.Confidence = parsedReply.UpdatedConfidence
	revised = revised.Normalize()
	state.ParsedRubric = &revised
	state.RubricContext = revised.RubricContext

	review := grading.SelfReviewResult{
		ChangesMade:      parsedReply.Changes,
		ConfidenceBefore: before,
		ConfidenceAfter:  parsedReply.UpdatedConfidence,
		RevisedQuestions: revisedQuestionIDs(parsedReply),
	}
	state.RubricSelfReview = &review

	grading.BestEffortPublish(o.Sink, state.BatchID, grading.ProgressEvent{
		Type:             grading.ProgressRubricSelfReviewed,
		BatchID:          state.BatchID,
		ChangesMade:      review.ChangesMade,
		ConfidenceBefore: review.ConfidenceBefore,
		ConfidenceAfter:  review.ConfidenceAfter,
	})
	return state, nil
}

// selfReviewReply is the JSON shape described in spec.md §4.3.
type selfReviewReply struct {
	HasChanges        bool                    `json:"has_changes"`
	Changes           []string                `json:"changes"`
	UpdatedConfidence float64                 `json:"updated_confidence"`
	Corrections       []selfReviewCorrection `json:"corrections"`
}

type selfReviewCorrection struct {
	QuestionID string `json:"question_id"`
	Field      string `json:"field"`
	OldValue   any    `json:"old_value"`
	NewValue   any    `json:"new_value"`
	Reason     string `json:"reason"`
}

func revisedQuestionIDs(reply selfReviewReply) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range reply.Corrections {
		if !seen[c.QuestionID] {
			seen[c.QuestionID] = true
			out = append(out, c.QuestionID)
		}
	}
	return out
}

// applySelfReviewCorrections applies each correction by field, per spec.md
// §4.3: max_score is coerced to a number (total re-summed by Normalize),
// standard_answer is a string replace, scoring_points is a wholesale list
// replace.
func applySelfReviewCorrections(rubric grading.ParsedRubric, reply selfReviewReply) grading.ParsedRubric {
	byID := make(map[string]int, len(rubric.Questions))
	for i, q := range rubric.Questions {
		byID[grading.NormalizeQuestionID(q.QuestionID)] = i
	}

	questions := append([]grading.QuestionRubric{}, rubric.Questions...)
	for _, c := range reply.Corrections {
		idx, ok := byID[grading.NormalizeQuestionID(c.QuestionID)]
		if !ok {
			continue
		}
		q := questions[idx]
		switch c.Field {
		case "max_score":
			if f, ok := toFloat(c.NewValue); ok {
				q.MaxScore = f
			}
		case "standard_answer":
			if s, ok := c.NewValue.(string); ok {
				q.StandardAnswer = s
			}
		case "scoring_points":
			if points, ok := toScoringPoints(c.NewValue); ok {
				q.ScoringPoints = points
			}
		}
		questions[idx] = q
	}
	rubric.Questions = questions
	return rubric
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toScoringPoints(v any) ([]grading.ScoringPoint, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]grading.ScoringPoint, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, grading.ScoringPoint{
			PointID:     stringField(m, "point_id"),
			Description: stringField(m, "description"),
			Score:       floatField(m, "score"),
			IsRequired:  boolField(m, "is_required"),
		})
	}
	return out, true
}

func selfReviewPrompt(rubric grading.ParsedRubric) string {
	return fmt.Sprintf(
		"Review your previous rubric parse for correctness. Reported confidence was %.2f and "+
			"flagged risks/uncertainties: %v / %v. Reply with JSON "+
			"{has_changes, changes[], updated_confidence, corrections[]}.",
		rubric.Confession.Confidence, rubric.Confession.Risks, rubric.Confession.Uncertainties)
}

func (o *Orchestrator) streamCallback(batchID, phase string) grading.StreamCallback {
	return func(kind, chunk string) {
		grading.BestEffortPublish(o.Sink, batchID, grading.ProgressEvent{
			Type:       grading.ProgressLLMStreamChunk,
			BatchID:    batchID,
			StreamType: phase + ":" + kind,
			Chunk:      chunk,
		})
	}
}
