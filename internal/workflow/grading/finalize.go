package grading

import (
	"math"
	"strings"

	"brokle/internal/core/domain/grading"
)

// placeholderEvidence is the set of tokens the vision model emits when it
// could not locate supporting text (spec.md §3, §4.4).
var placeholderEvidence = map[string]bool{
	"":       true,
	"未找到":  true,
	"未识别":  true,
}

const (
	scoreAgreementTolerance = 0.25
	placeholderEvidenceText = "【原文引用】未找到"
	evidencePrefix          = "【原文引用】"
)

// FinalizeStudentResult runs the deterministic post-LLM normalization pass
// over every question in result, independently, per spec.md §4.4. It is
// idempotent: finalizing an already-finalized result changes nothing.
func FinalizeStudentResult(result grading.StudentResult, registry *grading.RubricRegistry, mode grading.GradingMode) grading.StudentResult {
	if mode.IsAssist() {
		for i := range result.QuestionDetails {
			result.QuestionDetails[i] = assistFinalize(result.QuestionDetails[i])
		}
		result.RecomputeTotals()
		return result
	}

	for i, q := range result.QuestionDetails {
		rubricQ, _ := registry.Lookup(q.QuestionID)
		result.QuestionDetails[i] = finalizeQuestion(q, rubricQ)
	}
	result.RecomputeTotals()
	return result
}

func assistFinalize(q grading.QuestionResult) grading.QuestionResult {
	q.Score = 0
	q.MaxScore = 0
	q.ScoringPointResults = nil
	q.AuditFlags = nil
	q.ReviewCorrections = nil
	return q
}

// finalizeQuestion applies the cross-reference, clamp, evidence-repair,
// score-reconciliation, and confidence-computation pipeline of spec.md
// §4.4, in order.
func finalizeQuestion(q grading.QuestionResult, rubricQ grading.QuestionRubric) grading.QuestionResult {
	q = crossReferenceScoringPoints(q, rubricQ)
	q = clampScoringPoints(q)
	q = repairEvidence(q, rubricQ)
	q = reconcileScore(q)
	if q.MaxScore > 0 {
		q.Score = clampFloat(q.Score, 0, q.MaxScore)
	}
	q.Confidence = computeConfidence(q, rubricQ)
	return q
}

// crossReferenceScoringPoints fills in any rubric scoring point the service
// omitted from its reply, with awarded=0 and an audit trail.
func crossReferenceScoringPoints(q grading.QuestionResult, rubricQ grading.QuestionRubric) grading.QuestionResult {
	if len(rubricQ.ScoringPoints) == 0 {
		return q
	}
	present := make(map[string]bool, len(q.ScoringPointResults))
	for _, r := range q.ScoringPointResults {
		if r.PointID == "" {
			q.AddFlag(grading.AuditMissingPointID)
			continue
		}
		present[r.PointID] = true
	}
	for _, point := range rubricQ.ScoringPoints {
		if present[point.PointID] {
			continue
		}
		q.ScoringPointResults = append(q.ScoringPointResults, grading.ScoringPointResult{
			PointID:   point.PointID,
			Awarded:   0,
			MaxPoints: point.Score,
			Evidence:  placeholderEvidenceText,
		})
		q.ReviewCorrections = append(q.ReviewCorrections, grading.ReviewCorrection{
			PointID: point.PointID,
			Reason:  "Missing scoring point; added with 0 score.",
			Source:  "finalize",
		})
		q.AddFlag(grading.AuditMissingScoringPoints)
	}
	return q
}

func clampScoringPoints(q grading.QuestionResult) grading.QuestionResult {
	for i, r := range q.ScoringPointResults {
		clamped := clampFloat(r.Awarded, 0, r.MaxPoints)
		if clamped != r.Awarded {
			q.ReviewCorrections = append(q.ReviewCorrections, grading.ReviewCorrection{
				PointID:       r.PointID,
				Reason:        "Awarded score out of bounds; clamped to [0, max_points].",
				BeforeAwarded: r.Awarded,
				AfterAwarded:  clamped,
				Source:        "finalize",
			})
			q.ScoringPointResults[i].Awarded = clamped
		}
		if r.RubricReference == "" {
			q.AddFlag(grading.AuditMissingRubricReference)
		}
	}
	return q
}

// repairEvidence replaces placeholder evidence tokens with the best
// available snippet from the rubric question's own text, per spec.md §4.4
// scenario 3.
func repairEvidence(q grading.QuestionResult, rubricQ grading.QuestionRubric) grading.QuestionResult {
	missing := 0
	for i, r := range q.ScoringPointResults {
		if !placeholderEvidence[strings.TrimSpace(r.Evidence)] {
			continue
		}
		missing++
		snippet := answerSnippet(r.PointID, rubricQ)
		if snippet == "" {
			q.ScoringPointResults[i].Evidence = placeholderEvidenceText
		} else {
			q.ScoringPointResults[i].Evidence = evidencePrefix + snippet
		}
	}
	if missing > 0 {
		q.AddFlag(grading.AuditMissingEvidence)
	}
	return q
}

// answerSnippet returns the best deterministic stand-in for OCR'd answer
// text available to the core: the matching scoring point's expected_value,
// falling back to the question's standard answer.
func answerSnippet(pointID string, rubricQ grading.QuestionRubric) string {
	for _, p := range rubricQ.ScoringPoints {
		if p.PointID == pointID && p.ExpectedValue != "" {
			return p.ExpectedValue
		}
	}
	return rubricQ.StandardAnswer
}

// reconcileScore recomputes score from the scoring-point awards and
// overrides the service-reported value when they disagree beyond
// tolerance (spec.md §4.4, invariant 1).
func reconcileScore(q grading.QuestionResult) grading.QuestionResult {
	var sum float64
	for _, r := range q.ScoringPointResults {
		sum += r.Awarded
	}
	if len(q.ScoringPointResults) == 0 {
		return q
	}
	if absFloat(q.Score-sum) > scoreAgreementTolerance {
		q.ReviewCorrections = append(q.ReviewCorrections, grading.ReviewCorrection{
			Reason:        "Reported score disagreed with scoring-point sum beyond tolerance.",
			BeforeAwarded: q.Score,
			AfterAwarded:  sum,
			Source:        "finalize",
		})
		q.AddFlag(grading.AuditScoreAdjusted)
	}
	q.Score = sum
	return q
}

const (
	essayBaseScale        = 0.85
	alternativeUsedScale  = 0.9
	minRubricRefScale     = 0.6
	rubricRefScaleSpread  = 0.4
	confidenceCoverageW   = 0.5
	confidenceEvidenceW   = 0.2
	confidenceConsistency = 0.1
	confidenceBaseline    = 0.2
)

// computeConfidence implements the four-factor product described in
// spec.md §4.4. The LLM's self-reported confidence is discarded entirely,
// per the "confidence accounting is a computation" design note.
func computeConfidence(q grading.QuestionResult, rubricQ grading.QuestionRubric) float64 {
	expected := len(rubricQ.ScoringPoints)
	if expected == 0 {
		expected = len(q.ScoringPointResults)
	}
	if expected == 0 {
		return 0
	}

	present := len(q.ScoringPointResults)
	coverage := clampFloat(float64(present)/float64(expected), 0, 1)

	missingEvidence := 0
	withRef := 0
	for _, r := range q.ScoringPointResults {
		if placeholderEvidence[strings.TrimSpace(r.Evidence)] {
			missingEvidence++
		}
		if r.RubricReference != "" {
			withRef++
		}
	}
	evidenceOK := clampFloat(float64(expected-missingEvidence)/float64(expected), 0, 1)

	consistency := 1.0
	if hasFlag(q, grading.AuditScoreAdjusted) {
		consistency = 0.6
	}

	base := confidenceBaseline + confidenceCoverageW*coverage + confidenceEvidenceW*evidenceOK + confidenceConsistency*consistency

	if len(rubricQ.ScoringPoints) == 0 {
		base *= essayBaseScale
	}
	if len(rubricQ.AlternativeSolutions) > 0 && strings.Contains(strings.ToLower(q.Feedback), "alternative") {
		base *= alternativeUsedScale
	}
	if withRef < len(q.ScoringPointResults) {
		refCoverage := 0.0
		if len(q.ScoringPointResults) > 0 {
			refCoverage = float64(withRef) / float64(len(q.ScoringPointResults))
		}
		base *= minRubricRefScale + rubricRefScaleSpread*refCoverage
	}

	return clampFloat(base, 0, 1)
}

func hasFlag(q grading.QuestionResult, f grading.AuditFlag) bool {
	for _, existing := range q.AuditFlags {
		if existing == f {
			return true
		}
	}
	return false
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func absFloat(v float64) float64 {
	return math.Abs(v)
}
