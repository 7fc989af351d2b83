package grading

import "brokle/internal/core/domain/grading"

// rawToParsedRubric decodes the generic JSON map returned by ParseRubric
// into a ParsedRubric, tolerating the "id"|"question_id" and
// "criteria"|"scoring_points" key aliases named in spec.md §4.3. Normalize
// is applied by the caller, not here, so this stays a pure field mapping.
func rawToParsedRubric(raw grading.RawRubricResponse) grading.ParsedRubric {
	out := grading.ParsedRubric{
		TotalQuestions: intField(raw, "total_questions"),
		TotalScore:     floatField(raw, "total_score"),
		RubricFormat:   stringField(raw, "rubric_format"),
		GeneralNotes:   stringField(raw, "general_notes"),
	}
	if c, ok := raw["confession"].(map[string]any); ok {
		out.Confession = confessionFromMap(c)
	}
	if rawQuestions, ok := raw["questions"].([]any); ok {
		for _, rq := range rawQuestions {
			qm, ok := rq.(map[string]any)
			if !ok {
				continue
			}
			out.Questions = append(out.Questions, questionRubricFromMap(qm))
		}
	}
	return out
}

func questionRubricFromMap(m map[string]any) grading.QuestionRubric {
	id := stringField(m, "question_id")
	if id == "" {
		id = stringField(m, "id")
	}
	q := grading.QuestionRubric{
		QuestionID:     id,
		MaxScore:       floatField(m, "max_score"),
		QuestionText:   stringField(m, "question_text"),
		StandardAnswer: stringField(m, "standard_answer"),
		GradingNotes:   stringField(m, "grading_notes"),
		SourcePages:    intSliceField(m, "source_pages"),
	}
	points := m["scoring_points"]
	if points == nil {
		points = m["criteria"]
	}
	if list, ok := points.([]any); ok {
		for _, item := range list {
			pm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q.ScoringPoints = append(q.ScoringPoints, grading.ScoringPoint{
				PointID:       stringField(pm, "point_id"),
				Description:   stringField(pm, "description"),
				Score:         floatField(pm, "score"),
				IsRequired:    boolField(pm, "is_required"),
				Keywords:      stringSliceField(pm, "keywords"),
				ExpectedValue: stringField(pm, "expected_value"),
			})
		}
	}
	if list, ok := m["deduction_rules"].([]any); ok {
		for _, item := range list {
			dm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q.DeductionRules = append(q.DeductionRules, grading.DeductionRule{
				RuleID:      stringField(dm, "rule_id"),
				Description: stringField(dm, "description"),
				Deduction:   floatField(dm, "deduction"),
				Conditions:  stringField(dm, "conditions"),
			})
		}
	}
	if list, ok := m["alternative_solutions"].([]any); ok {
		for _, item := range list {
			am, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q.AlternativeSolutions = append(q.AlternativeSolutions, grading.AlternativeSolution{
				Description:    stringField(am, "description"),
				ScoringCriteria: stringField(am, "scoring_criteria"),
				Note:           stringField(am, "note"),
			})
		}
	}
	if c, ok := m["confession"].(map[string]any); ok {
		q.Confession = grading.Confession{
			Risk:       stringField(c, "risk"),
			Uncertainty: stringField(c, "uncertainty"),
		}
	}
	return q
}

func confessionFromMap(m map[string]any) grading.Confession {
	return grading.Confession{
		Risks:         stringSliceField(m, "risks"),
		Uncertainties: stringSliceField(m, "uncertainties"),
		BlindSpots:    stringSliceField(m, "blindSpots"),
		NeedsReview:   stringSliceField(m, "needsReview"),
		Confidence:    floatField(m, "confidence"),
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intField(m map[string]any, key string) int {
	return int(floatField(m, key))
}

func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intSliceField(m map[string]any, key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := toFloat(v); ok {
			out = append(out, int(f))
		}
	}
	return out
}
