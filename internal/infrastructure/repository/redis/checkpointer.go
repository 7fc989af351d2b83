package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"brokle/internal/core/domain/grading"
	"brokle/internal/infrastructure/database"
)

// checkpointTTL bounds how long a finished or abandoned batch's state
// lingers in Redis; active batches are re-saved at every stage transition
// (internal/workflow/grading.Orchestrator.advance), which refreshes it.
const checkpointTTL = 7 * 24 * time.Hour

// Checkpointer implements grading.Checkpointer on top of Redis, so the
// HTTP trigger surface and the worker fleet — separate processes — see
// the same batch state. Grounded on database.RedisDB's existing
// Set/Get string-value helpers.
type Checkpointer struct {
	redis *database.RedisDB
}

func NewCheckpointer(db *database.RedisDB) *Checkpointer {
	return &Checkpointer{redis: db}
}

func checkpointKey(batchID string) string {
	return fmt.Sprintf("grading:checkpoint:%s", batchID)
}

func (c *Checkpointer) Save(ctx context.Context, state grading.BatchGradingState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint state: %w", err)
	}
	return c.redis.Set(ctx, checkpointKey(state.BatchID), body, checkpointTTL)
}

func (c *Checkpointer) Load(ctx context.Context, batchID string) (*grading.BatchGradingState, error) {
	raw, err := c.redis.Get(ctx, checkpointKey(batchID))
	if err != nil {
		return nil, fmt.Errorf("load checkpoint state for %s: %w", batchID, err)
	}
	var state grading.BatchGradingState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint state for %s: %w", batchID, err)
	}
	return &state, nil
}
