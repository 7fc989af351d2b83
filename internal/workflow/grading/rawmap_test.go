package grading

import "testing"

func TestRawToParsedRubric_KeyAliases(t *testing.T) {
	raw := map[string]any{
		"total_questions": 1.0,
		"total_score":     10.0,
		"questions": []any{
			map[string]any{
				"id": "1", // alias for question_id
				"criteria": []any{ // alias for scoring_points
					map[string]any{"point_id": "1.1", "score": 10.0},
				},
			},
		},
	}
	parsed := rawToParsedRubric(raw)
	if len(parsed.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(parsed.Questions))
	}
	q := parsed.Questions[0]
	if q.QuestionID != "1" {
		t.Fatalf("expected id alias to populate QuestionID, got %q", q.QuestionID)
	}
	if len(q.ScoringPoints) != 1 || q.ScoringPoints[0].PointID != "1.1" {
		t.Fatalf("expected criteria alias to populate ScoringPoints, got %+v", q.ScoringPoints)
	}
}

func TestParsedRubric_NormalizeIsIdempotent(t *testing.T) {
	raw := map[string]any{
		"questions": []any{
			map[string]any{
				"question_id": "第1题",
				"criteria": []any{
					map[string]any{"score": 5.0},
					map[string]any{"score": 5.0},
				},
			},
		},
	}
	once := rawToParsedRubric(raw).Normalize()
	twice := once.Normalize()

	if once.Questions[0].QuestionID != "1" {
		t.Fatalf("expected question id prefix to be stripped, got %q", once.Questions[0].QuestionID)
	}
	if once.Questions[0].MaxScore != 10 {
		t.Fatalf("expected max_score defaulted from scoring point sum, got %v", once.Questions[0].MaxScore)
	}
	if once.TotalScore != twice.TotalScore || once.RubricContext != twice.RubricContext {
		t.Fatalf("expected Normalize to be idempotent")
	}
	for i := range once.Questions[0].ScoringPoints {
		if once.Questions[0].ScoringPoints[i].PointID != twice.Questions[0].ScoringPoints[i].PointID {
			t.Fatalf("expected synthesized point_id to be stable across re-normalization")
		}
	}
}
