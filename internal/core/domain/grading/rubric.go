package grading

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Confession is the LLM's self-reported risk/uncertainty digest, either
// rubric-wide or per-question (spec.md §3, §4.3).
type Confession struct {
	Risks         []string `json:"risks,omitempty"`
	Uncertainties []string `json:"uncertainties,omitempty"`
	BlindSpots    []string `json:"blind_spots,omitempty"`
	NeedsReview   []string `json:"needs_review,omitempty"`
	Confidence    float64  `json:"confidence"`

	// Per-question confession fields (a question's Confession reuses this
	// type but only ever populates Risk/Uncertainty).
	Risk        string `json:"risk,omitempty"`
	Uncertainty string `json:"uncertainty,omitempty"`
}

// NeedsSelfReview reports whether this confession should trigger
// rubric_self_review, per the trigger rule in §4.3.
func (c Confession) NeedsSelfReview() bool {
	return len(c.NeedsReview) > 0 || len(c.Risks) > 0 || len(c.Uncertainties) > 0 || c.Confidence < 0.9
}

// ScoringPoint is one clause of a question's rubric.
type ScoringPoint struct {
	PointID       string   `json:"point_id"`
	Description   string   `json:"description"`
	Score         float64  `json:"score"`
	IsRequired    bool     `json:"is_required"`
	Keywords      []string `json:"keywords,omitempty"`
	ExpectedValue string   `json:"expected_value,omitempty"`
}

// DeductionRule is a penalty clause attached to a question.
type DeductionRule struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Deduction   float64 `json:"deduction"`
	Conditions  string `json:"conditions,omitempty"`
}

// AlternativeSolution records an accepted alternate approach to a question.
type AlternativeSolution struct {
	Description      string `json:"description"`
	ScoringCriteria   string `json:"scoring_criteria,omitempty"`
	Note              string `json:"note,omitempty"`
}

// QuestionRubric is one exam question's scoring schema.
type QuestionRubric struct {
	QuestionID           string                `json:"question_id"`
	MaxScore             float64               `json:"max_score"`
	QuestionText         string                `json:"question_text,omitempty"`
	StandardAnswer       string                `json:"standard_answer,omitempty"`
	ScoringPoints        []ScoringPoint        `json:"scoring_points"`
	DeductionRules       []DeductionRule       `json:"deduction_rules,omitempty"`
	AlternativeSolutions []AlternativeSolution `json:"alternative_solutions,omitempty"`
	Confession           Confession            `json:"confession,omitempty"`
	SourcePages          []int                 `json:"source_pages,omitempty"`
	GradingNotes         string                `json:"grading_notes,omitempty"`
}

// ParsedRubric is the structured rubric produced by rubric_parse (spec.md §3, §4.3).
type ParsedRubric struct {
	TotalQuestions          int              `json:"total_questions"`
	TotalScore              float64          `json:"total_score"`
	RubricFormat            string           `json:"rubric_format,omitempty"`
	GeneralNotes            string           `json:"general_notes,omitempty"`
	Confession              Confession       `json:"confession"`
	Questions               []QuestionRubric `json:"questions"`
	RubricContext           string           `json:"rubric_context,omitempty"` // derived view, cached
	OverallParseConfidence float64          `json:"overall_parse_confidence"`
}

var qidPrefixPattern = regexp.MustCompile(`^(第|题目|Q|q)+`)

// NormalizeQuestionID strips the leading localized-or-English question
// prefixes ("第", "题目", "Q") so the same logical question ID from different
// LLM phrasings collapses to one key.
func NormalizeQuestionID(raw string) string {
	id := strings.TrimSpace(raw)
	id = qidPrefixPattern.ReplaceAllString(id, "")
	id = strings.TrimSpace(id)
	id = strings.TrimSuffix(id, "题")
	id = strings.TrimSuffix(id, "号")
	if id == "" {
		return raw
	}
	return id
}

// scoringPointsSum sums the declared score of a question's scoring points.
func scoringPointsSum(points []ScoringPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Score
	}
	return sum
}

// questionsMaxSum sums the max_score of every question.
func questionsMaxSum(questions []QuestionRubric) float64 {
	var sum float64
	for _, q := range questions {
		sum += q.MaxScore
	}
	return sum
}

// Normalize applies the rubric-parse normalization rules of spec.md §4.3:
// synthesizing missing point_id/rule_id, defaulting max_score and
// total_score, normalizing question IDs, and regenerating the derived
// rubric_context. It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func (r ParsedRubric) Normalize() ParsedRubric {
	out := r
	out.Questions = make([]QuestionRubric, len(r.Questions))

	for i, q := range r.Questions {
		nq := q
		nq.QuestionID = NormalizeQuestionID(q.QuestionID)

		nq.ScoringPoints = make([]ScoringPoint, len(q.ScoringPoints))
		copy(nq.ScoringPoints, q.ScoringPoints)
		for j := range nq.ScoringPoints {
			if strings.TrimSpace(nq.ScoringPoints[j].PointID) == "" {
				nq.ScoringPoints[j].PointID = fmt.Sprintf("%s.%d", nq.QuestionID, j+1)
			}
		}

		nq.DeductionRules = make([]DeductionRule, len(q.DeductionRules))
		copy(nq.DeductionRules, q.DeductionRules)
		for j := range nq.DeductionRules {
			if strings.TrimSpace(nq.DeductionRules[j].RuleID) == "" {
				nq.DeductionRules[j].RuleID = fmt.Sprintf("%s.d%d", nq.QuestionID, j+1)
			}
		}

		if nq.MaxScore <= 0 {
			nq.MaxScore = scoringPointsSum(nq.ScoringPoints)
		}

		out.Questions[i] = nq
	}

	if out.TotalScore <= 0 {
		out.TotalScore = questionsMaxSum(out.Questions)
	}
	out.TotalQuestions = len(out.Questions)
	out.RubricContext = BuildRubricContext(out)
	return out
}

// TotalScoreWithinTolerance checks invariant 5 of spec.md §8: total_score
// must equal the sum of question max scores within ±1.0.
func (r ParsedRubric) TotalScoreWithinTolerance() bool {
	return math.Abs(r.TotalScore-questionsMaxSum(r.Questions)) <= 1.0
}

// BuildRubricContext deterministically renders a flat, human-readable view
// of the rubric: a header followed by one block per question. This is a
// pure function of Questions/TotalScore/GeneralNotes — it must never be accepted as
// caller input, and must be rebuilt after any override (§4.3, §9).
func BuildRubricContext(r ParsedRubric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rubric: %d questions, %.2f total points\n", len(r.Questions), r.TotalScore)
	if r.GeneralNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", r.GeneralNotes)
	}
	for _, q := range r.Questions {
		fmt.Fprintf(&b, "\n[Q%s] (%.2f pts)\n", q.QuestionID, q.MaxScore)
		if q.QuestionText != "" {
			fmt.Fprintf(&b, "  Question: %s\n", q.QuestionText)
		}
		if q.StandardAnswer != "" {
			fmt.Fprintf(&b, "  Standard answer: %s\n", q.StandardAnswer)
		}
		for _, p := range q.ScoringPoints {
			req := ""
			if p.IsRequired {
				req = " (required)"
			}
			fmt.Fprintf(&b, "  - [%s]%s %.2f pts: %s\n", p.PointID, req, p.Score, p.Description)
		}
		for _, d := range q.DeductionRules {
			fmt.Fprintf(&b, "  - deduction [%s] -%.2f: %s\n", d.RuleID, d.Deduction, d.Description)
		}
		for _, alt := range q.AlternativeSolutions {
			fmt.Fprintf(&b, "  - alternative: %s\n", alt.Description)
		}
	}
	return b.String()
}

// SelfReviewResult is the rubric_self_review stage's output: the vision
// model's second pass over its own rubric_parse output, plus whatever it
// changed (spec.md §4.3, §6 "rubric_self_reviewed").
type SelfReviewResult struct {
	ChangesMade      []string `json:"changes_made,omitempty"`
	ConfidenceBefore float64  `json:"confidence_before"`
	ConfidenceAfter  float64  `json:"confidence_after"`
	RevisedQuestions []string `json:"revised_questions,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// RubricRegistry is a per-worker lookup from normalized question_id to that
// question's rubric entry, reconstructed fresh by every grading worker from
// the parsed rubric it was handed (§4.4, GLOSSARY "Rubric registry").
type RubricRegistry struct {
	byID map[string]QuestionRubric
}

// NewRubricRegistry deep-copies the given rubric's questions into a fresh
// registry keyed by normalized question ID.
func NewRubricRegistry(rubric *ParsedRubric) *RubricRegistry {
	reg := &RubricRegistry{byID: make(map[string]QuestionRubric)}
	if rubric == nil {
		return reg
	}
	for _, q := range rubric.Questions {
		cp := q
		cp.ScoringPoints = append([]ScoringPoint{}, q.ScoringPoints...)
		for j := range cp.ScoringPoints {
			cp.ScoringPoints[j].Keywords = append([]string(nil), q.ScoringPoints[j].Keywords...)
		}
		cp.DeductionRules = append([]DeductionRule(nil), q.DeductionRules...)
		cp.AlternativeSolutions = append([]AlternativeSolution(nil), q.AlternativeSolutions...)
		cp.SourcePages = append([]int(nil), q.SourcePages...)
		cp.Confession.Risks = append([]string(nil), q.Confession.Risks...)
		cp.Confession.Uncertainties = append([]string(nil), q.Confession.Uncertainties...)
		cp.Confession.BlindSpots = append([]string(nil), q.Confession.BlindSpots...)
		cp.Confession.NeedsReview = append([]string(nil), q.Confession.NeedsReview...)
		reg.byID[NormalizeQuestionID(q.QuestionID)] = cp
	}
	return reg
}

// Lookup returns the rubric entry for a question ID, normalizing the key.
func (r *RubricRegistry) Lookup(questionID string) (QuestionRubric, bool) {
	q, ok := r.byID[NormalizeQuestionID(questionID)]
	return q, ok
}

// All returns every question in the registry, in map-iteration order; callers
// that need determinism should sort by QuestionID themselves.
func (r *RubricRegistry) All() []QuestionRubric {
	out := make([]QuestionRubric, 0, len(r.byID))
	for _, q := range r.byID {
		out = append(out, q)
	}
	return out
}
