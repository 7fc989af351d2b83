package grading

import (
	"testing"

	"brokle/internal/core/domain/grading"
)

func rubricQuestion() grading.QuestionRubric {
	return grading.QuestionRubric{
		QuestionID: "1",
		MaxScore:   10,
		ScoringPoints: []grading.ScoringPoint{
			{PointID: "1.1", Score: 5},
			{PointID: "1.2", Score: 5, ExpectedValue: "勾股定理"},
		},
	}
}

func TestFinalizeQuestion_FillsMissingScoringPoint(t *testing.T) {
	q := grading.QuestionResult{
		QuestionID: "1",
		Score:      5,
		MaxScore:   10,
		ScoringPointResults: []grading.ScoringPointResult{
			{PointID: "1.1", Awarded: 5, MaxPoints: 5, RubricReference: "r"},
		},
	}
	out := finalizeQuestion(q, rubricQuestion())

	if len(out.ScoringPointResults) != 2 {
		t.Fatalf("expected missing point to be synthesized, got %d points", len(out.ScoringPointResults))
	}
	if out.Score != 5 {
		t.Fatalf("expected reconciled score 5, got %v", out.Score)
	}
	if !hasFlag(out, grading.AuditMissingScoringPoints) {
		t.Fatalf("expected AuditMissingScoringPoints flag")
	}
}

func TestFinalizeQuestion_ClampsOutOfBoundsAward(t *testing.T) {
	q := grading.QuestionResult{
		QuestionID: "1",
		Score:      12,
		MaxScore:   10,
		ScoringPointResults: []grading.ScoringPointResult{
			{PointID: "1.1", Awarded: 8, MaxPoints: 5, RubricReference: "r"},
			{PointID: "1.2", Awarded: 5, MaxPoints: 5, RubricReference: "r"},
		},
	}
	out := finalizeQuestion(q, rubricQuestion())

	if out.ScoringPointResults[0].Awarded != 5 {
		t.Fatalf("expected clamp to max_points 5, got %v", out.ScoringPointResults[0].Awarded)
	}
	if out.Score != 10 {
		t.Fatalf("expected score clamped to sum 10, got %v", out.Score)
	}
	if !hasFlag(out, grading.AuditScoreAdjusted) {
		t.Fatalf("expected AuditScoreAdjusted since reported score disagreed with sum")
	}
}

func TestFinalizeQuestion_RepairsPlaceholderEvidence(t *testing.T) {
	q := grading.QuestionResult{
		QuestionID: "1",
		Score:      10,
		MaxScore:   10,
		ScoringPointResults: []grading.ScoringPointResult{
			{PointID: "1.1", Awarded: 5, MaxPoints: 5, Evidence: "学生写对了", RubricReference: "r"},
			{PointID: "1.2", Awarded: 5, MaxPoints: 5, Evidence: "未找到", RubricReference: "r"},
		},
	}
	out := finalizeQuestion(q, rubricQuestion())

	if out.ScoringPointResults[1].Evidence != evidencePrefix+"勾股定理" {
		t.Fatalf("expected repaired evidence from expected_value, got %q", out.ScoringPointResults[1].Evidence)
	}
	if !hasFlag(out, grading.AuditMissingEvidence) {
		t.Fatalf("expected AuditMissingEvidence flag")
	}
}

func TestFinalizeQuestion_ConfidenceEssayScaledDown(t *testing.T) {
	essayRubric := grading.QuestionRubric{QuestionID: "2", MaxScore: 10}
	holistic := grading.QuestionResult{
		QuestionID: "2",
		Score:      8,
		MaxScore:   10,
		ScoringPointResults: []grading.ScoringPointResult{
			{PointID: "2.1", Awarded: 8, MaxPoints: 10, RubricReference: "r", Evidence: "a"},
		},
	}
	structured := grading.QuestionRubric{
		QuestionID:    "2",
		MaxScore:      10,
		ScoringPoints: []grading.ScoringPoint{{PointID: "2.1", Score: 10}},
	}

	essayOut := finalizeQuestion(holistic, essayRubric)
	structuredOut := finalizeQuestion(holistic, structured)

	if essayOut.Confidence >= structuredOut.Confidence {
		t.Fatalf("expected essay heuristic to scale confidence below the structured case: essay=%v structured=%v", essayOut.Confidence, structuredOut.Confidence)
	}
}

func TestFinalizeStudentResult_AssistModeZeroesScores(t *testing.T) {
	registry := grading.NewRubricRegistry(&grading.ParsedRubric{Questions: []grading.QuestionRubric{rubricQuestion()}})
	result := grading.StudentResult{
		StudentKey: "学生1",
		QuestionDetails: []grading.QuestionResult{
			{QuestionID: "1", Score: 8, MaxScore: 10, ScoringPointResults: []grading.ScoringPointResult{{PointID: "1.1", Awarded: 5}}},
		},
	}
	out := FinalizeStudentResult(result, registry, grading.GradingModeAssistTeacher)
	if out.TotalScore != 0 || out.MaxTotalScore != 0 {
		t.Fatalf("expected assist mode to zero totals, got score=%v max=%v", out.TotalScore, out.MaxTotalScore)
	}
	if out.QuestionDetails[0].ScoringPointResults != nil {
		t.Fatalf("expected assist mode to clear scoring point results")
	}
}

func TestFinalizeStudentResult_Idempotent(t *testing.T) {
	registry := grading.NewRubricRegistry(&grading.ParsedRubric{Questions: []grading.QuestionRubric{rubricQuestion()}})
	result := grading.StudentResult{
		StudentKey: "学生1",
		QuestionDetails: []grading.QuestionResult{
			{QuestionID: "1", Score: 10, MaxScore: 10, ScoringPointResults: []grading.ScoringPointResult{
				{PointID: "1.1", Awarded: 5, MaxPoints: 5, RubricReference: "r", Evidence: "a"},
				{PointID: "1.2", Awarded: 5, MaxPoints: 5, RubricReference: "r", Evidence: "b"},
			}},
		},
	}
	once := FinalizeStudentResult(result, registry, grading.GradingModeStandard)
	twice := FinalizeStudentResult(once, registry, grading.GradingModeStandard)

	if once.TotalScore != twice.TotalScore || once.QuestionDetails[0].Confidence != twice.QuestionDetails[0].Confidence {
		t.Fatalf("expected finalize to be idempotent, got once=%+v twice=%+v", once, twice)
	}
}
