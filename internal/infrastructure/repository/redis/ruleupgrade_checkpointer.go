package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"brokle/internal/core/domain/ruleupgrade"
	"brokle/internal/infrastructure/database"
)

// ruleUpgradeCheckpointTTL mirrors the grading checkpointer's retention
// window; a deployed-and-monitored upgrade is expected to resolve (or be
// rolled back) well inside a week.
const ruleUpgradeCheckpointTTL = 7 * 24 * time.Hour

// RuleUpgradeCheckpointer implements ruleupgrade.Checkpointer on Redis, so
// a rule-upgrade run started by one process (e.g. a scheduled miner job)
// can be resumed past its approval_interrupt by another.
type RuleUpgradeCheckpointer struct {
	redis *database.RedisDB
}

func NewRuleUpgradeCheckpointer(db *database.RedisDB) *RuleUpgradeCheckpointer {
	return &RuleUpgradeCheckpointer{redis: db}
}

func ruleUpgradeCheckpointKey(upgradeID string) string {
	return fmt.Sprintf("ruleupgrade:checkpoint:%s", upgradeID)
}

func (c *RuleUpgradeCheckpointer) Save(ctx context.Context, state ruleupgrade.RuleUpgradeState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal rule-upgrade checkpoint: %w", err)
	}
	return c.redis.Set(ctx, ruleUpgradeCheckpointKey(state.UpgradeID), body, ruleUpgradeCheckpointTTL)
}

func (c *RuleUpgradeCheckpointer) Load(ctx context.Context, upgradeID string) (*ruleupgrade.RuleUpgradeState, error) {
	raw, err := c.redis.Get(ctx, ruleUpgradeCheckpointKey(upgradeID))
	if err != nil {
		return nil, fmt.Errorf("load rule-upgrade checkpoint for %s: %w", upgradeID, err)
	}
	var state ruleupgrade.RuleUpgradeState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshal rule-upgrade checkpoint for %s: %w", upgradeID, err)
	}
	return &state, nil
}
