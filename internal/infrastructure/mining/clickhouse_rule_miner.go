// Package mining adapts the analytics store into the rule-upgrade
// pipeline's RuleMiner collaborator (spec.md §4.8 "mine_rules"): scan
// recorded grading corrections over a time window and surface the
// question/description patterns that recur often enough to be worth a
// rule candidate.
package mining

import (
	"context"
	"fmt"
	"time"

	"brokle/internal/core/domain/ruleupgrade"
	"brokle/internal/infrastructure/database"
)

// minSampleSize is the smallest number of observed corrections a pattern
// needs before it is reported at all; below this a high hit-rate is just
// noise from a handful of students.
const minSampleSize = 5

// ClickHouseRuleMiner implements ruleupgrade.RuleMiner over the
// question_corrections analytics table: one row per logic-review or
// human-review correction, keyed by the question and a short pattern
// description. Nothing in this module writes that table.
type ClickHouseRuleMiner struct {
	db *database.ClickHouseDB
}

func NewClickHouseRuleMiner(db *database.ClickHouseDB) *ClickHouseRuleMiner {
	return &ClickHouseRuleMiner{db: db}
}

// MineRules aggregates correction rate per (question_id, description) over
// the window and reports one MinedRule per pattern that cleared
// minSampleSize, confidence = corrections / observations.
func (m *ClickHouseRuleMiner) MineRules(ctx context.Context, windowStart, windowEnd time.Time) ([]ruleupgrade.MinedRule, error) {
	query := `
		SELECT
			question_id,
			pattern_description,
			count() AS observations,
			countIf(corrected) AS corrections
		FROM question_corrections
		WHERE observed_at >= ? AND observed_at < ?
		GROUP BY question_id, pattern_description
		HAVING observations >= ?
		ORDER BY corrections / observations DESC
	`
	rows, err := m.db.Conn.Query(ctx, query, windowStart, windowEnd, minSampleSize)
	if err != nil {
		return nil, fmt.Errorf("query question_corrections: %w", err)
	}
	defer rows.Close()

	var mined []ruleupgrade.MinedRule
	for rows.Next() {
		var (
			questionID  string
			description string
			observations uint64
			corrections  uint64
		)
		if err := rows.Scan(&questionID, &description, &observations, &corrections); err != nil {
			return nil, fmt.Errorf("scan question_corrections row: %w", err)
		}
		confidence := float64(corrections) / float64(observations)
		mined = append(mined, ruleupgrade.MinedRule{
			RuleID:      fmt.Sprintf("%s:%s", questionID, hashDescription(description)),
			QuestionID:  questionID,
			Description: description,
			Confidence:  confidence,
			SampleSize:  int(observations),
			MinedAt:     time.Now(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question_corrections rows: %w", err)
	}
	return mined, nil
}

// hashDescription derives a short stable suffix for RuleID without pulling
// in a hashing dependency beyond the standard library — collisions only
// matter within one question_id's pattern set, which is small.
func hashDescription(description string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(description); i++ {
		h ^= uint32(description[i])
		h *= 16777619
	}
	return fmt.Sprintf("%08x", h)
}
