package grading

import (
	"testing"

	"brokle/internal/core/domain/grading"
)

func baseStudent() grading.StudentResult {
	return grading.StudentResult{
		StudentKey: "Alice",
		TotalScore: 8,
		MaxTotalScore: 10,
		QuestionDetails: []grading.QuestionResult{
			{
				QuestionID: "1",
				Score:      8,
				MaxScore:   10,
				Confidence: 0.9,
				ScoringPointResults: []grading.ScoringPointResult{
					{PointID: "1.1", Awarded: 8, MaxPoints: 10},
				},
			},
		},
	}
}

func TestMergeLogicReview_EmptyCorrectionsRoundTrip(t *testing.T) {
	student := baseStudent()
	review := grading.LogicReviewResult{
		StudentKey: "Alice",
		QuestionReviews: []grading.QuestionReviewOutcome{
			{QuestionID: "1", Confidence: 0.95},
		},
	}
	merged := mergeLogicReview(student, review)

	if merged.QuestionDetails[0].Score != 8 {
		t.Fatalf("expected score unchanged with no corrections, got %v", merged.QuestionDetails[0].Score)
	}
	if merged.QuestionDetails[0].Confidence != 0.95 {
		t.Fatalf("expected confidence replaced, got %v", merged.QuestionDetails[0].Confidence)
	}
	if !merged.QuestionDetails[0].LogicReviewed {
		t.Fatalf("expected question marked logic_reviewed")
	}
}

func TestMergeLogicReview_AppliesCorrection(t *testing.T) {
	student := baseStudent()
	review := grading.LogicReviewResult{
		StudentKey: "Alice",
		QuestionReviews: []grading.QuestionReviewOutcome{
			{
				QuestionID: "1",
				Confidence: 0.4,
				ReviewCorrections: []grading.LogicCorrection{
					{PointID: "1.1", CorrectAwarded: 6, ReviewReason: "over-credited a wrong derivation"},
				},
			},
		},
	}
	merged := mergeLogicReview(student, review)

	if merged.QuestionDetails[0].ScoringPointResults[0].Awarded != 6 {
		t.Fatalf("expected corrected award 6, got %v", merged.QuestionDetails[0].ScoringPointResults[0].Awarded)
	}
	if merged.QuestionDetails[0].Score != 6 {
		t.Fatalf("expected question score to reflect the -2 delta, got %v", merged.QuestionDetails[0].Score)
	}
	if merged.TotalScore != 6 {
		t.Fatalf("expected totals recomputed, got %v", merged.TotalScore)
	}
	if len(merged.QuestionDetails[0].ReviewCorrections) != 1 {
		t.Fatalf("expected one recorded review correction, got %d", len(merged.QuestionDetails[0].ReviewCorrections))
	}
}

func TestMergeLogicReview_UnknownQuestionIDIgnored(t *testing.T) {
	student := baseStudent()
	review := grading.LogicReviewResult{
		StudentKey: "Alice",
		QuestionReviews: []grading.QuestionReviewOutcome{
			{QuestionID: "99", Confidence: 0.1},
		},
	}
	merged := mergeLogicReview(student, review)
	if merged.QuestionDetails[0].Score != 8 || merged.QuestionDetails[0].Confidence != 0.9 {
		t.Fatalf("expected unrelated question untouched, got %+v", merged.QuestionDetails[0])
	}
}
