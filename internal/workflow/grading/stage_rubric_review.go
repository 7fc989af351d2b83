package grading

import (
	"context"

	"brokle/internal/core/domain/grading"
)

// needsRubricReview is the should_review_rubric router (spec.md §4.1): the
// grading pipeline offers a human checkpoint after self-review only when
// review is enabled, the mode is not an assist mode, and the (possibly
// self-reviewed) rubric confession still reports NeedsSelfReview.
func needsRubricReview(state *grading.BatchGradingState) bool {
	if state.ParsedRubric == nil {
		return false
	}
	if !state.Config.EnableReview || state.Config.GradingMode.IsAssist() {
		return false
	}
	return state.ParsedRubric.Confession.NeedsSelfReview()
}

func buildRubricReviewInterrupt(state *grading.BatchGradingState) grading.InterruptRequest {
	return grading.InterruptRequest{
		Type:    grading.InterruptRubricReview,
		BatchID: state.BatchID,
		Payload: map[string]any{
			"parsed_rubric":  state.ParsedRubric,
			"self_review":    state.RubricSelfReview,
			"rubric_context": state.RubricContext,
		},
	}
}

// applyRubricReviewResponse applies an approve/update/reparse/skip response
// to the rubric (spec.md §4.1, §4.3).
func (o *Orchestrator) applyRubricReviewResponse(ctx context.Context, state *grading.BatchGradingState, resp grading.InterruptResponse) (*grading.BatchGradingState, error) {
	switch resp.Action {
	case grading.ActionApprove, grading.ActionSkip:
		return state, nil
	case grading.ActionUpdate:
		return o.applyRubricFieldUpdates(state, resp.RubricUpdates), nil
	case grading.ActionReparse:
		return o.reparseRubricQuestions(ctx, state, resp.ReparseTargets)
	default:
		return state, nil
	}
}

func (o *Orchestrator) applyRubricFieldUpdates(state *grading.BatchGradingState, updates []grading.RubricFieldUpdate) *grading.BatchGradingState {
	if state.ParsedRubric == nil || len(updates) == 0 {
		return state
	}
	rubric := *state.ParsedRubric
	byID := make(map[string]int, len(rubric.Questions))
	for i, q := range rubric.Questions {
		byID[grading.NormalizeQuestionID(q.QuestionID)] = i
	}
	questions := append([]grading.QuestionRubric{}, rubric.Questions...)
	for _, u := range updates {
		idx, ok := byID[grading.NormalizeQuestionID(u.QuestionID)]
		if !ok {
			continue
		}
		q := questions[idx]
		switch u.Field {
		case "max_score":
			if f, ok := toFloat(u.Value); ok {
				q.MaxScore = f
			}
		case "standard_answer":
			if s, ok := u.Value.(string); ok {
				q.StandardAnswer = s
			}
		case "scoring_points":
			if points, ok := toScoringPoints(u.Value); ok {
				q.ScoringPoints = points
			}
		}
		questions[idx] = q
	}
	rubric.Questions = questions
	rubric = rubric.Normalize()
	state.ParsedRubric = &rubric
	state.RubricContext = rubric.RubricContext
	return state
}

func (o *Orchestrator) reparseRubricQuestions(ctx context.Context, state *grading.BatchGradingState, targets []grading.RubricQuestionSelector) (*grading.BatchGradingState, error) {
	if state.ParsedRubric == nil || len(targets) == 0 || o.Scoring == nil {
		return state, nil
	}
	images := state.Inputs.RubricImages
	if len(images) == 0 {
		return state, nil
	}
	notes := ""
	for _, t := range targets {
		if t.Notes != "" {
			notes += t.Notes + "\n"
		}
	}
	revisedJSON, err := o.Scoring.ReviseRubricQuestions(ctx, images, targets, notes)
	if err != nil {
		return state, grading.NewWorkflowError(grading.ErrRubricParseFailed, "rubric_review", err)
	}

	rubric := *state.ParsedRubric
	byID := make(map[string]int, len(rubric.Questions))
	for i, q := range rubric.Questions {
		byID[grading.NormalizeQuestionID(q.QuestionID)] = i
	}
	questions := append([]grading.QuestionRubric{}, rubric.Questions...)
	for _, raw := range revisedJSON {
		revised := questionRubricFromMap(raw)
		idx, ok := byID[grading.NormalizeQuestionID(revised.QuestionID)]
		if !ok {
			questions = append(questions, revised)
			continue
		}
		questions[idx] = revised
	}
	rubric.Questions = questions
	rubric = rubric.Normalize()
	state.ParsedRubric = &rubric
	state.RubricContext = rubric.RubricContext
	return state, nil
}
