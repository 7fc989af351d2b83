package ruleupgrade

import (
	"context"
	"time"
)

// RuleMiner mines candidate grading-rule observations from historical
// grading results over a time window (spec.md §4.8). Backed by
// infrastructure/mining.ClickHouseRuleMiner.
type RuleMiner interface {
	MineRules(ctx context.Context, windowStart, windowEnd time.Time) ([]MinedRule, error)
}

// PatchGenerator turns approved rule candidates into concrete patches.
// Backed by infrastructure/mining.AnthropicPatchGenerator.
type PatchGenerator interface {
	GeneratePatches(ctx context.Context, candidates []RuleCandidate) ([]GeneratedPatch, error)
}

// RegressionRunner runs the regression suite against a set of patches. The
// suite itself (a held-out scored answer set re-graded under the patched
// rubric) lives in whatever system owns the grading fixtures; NoopRegressionRunner
// stands in until that harness exists.
type RegressionRunner interface {
	RunRegression(ctx context.Context, patches []GeneratedPatch) ([]RegressionTestResult, error)
}

// Deployer ships approved patches to the target environment and reports the
// resulting version identifier. Backed by
// infrastructure/ruleupgrade.S3Deployer, which writes the patch set as a
// versioned rubric overlay object in blob storage.
type Deployer interface {
	Deploy(ctx context.Context, patches []GeneratedPatch) (version string, err error)
	Rollback(ctx context.Context, toVersion string) error
}

// Monitor observes a freshly deployed version for regressions. Backed by
// whatever post-deploy analytics system watches live grading traffic;
// infrastructure/ruleupgrade.NoopMonitor stands in until that system exists.
type Monitor interface {
	Observe(ctx context.Context, version string) (MonitorSummary, error)
}

// LockManager is the optional distributed-lock collaborator used by
// deploy coordination (spec.md §5): acquire by (resource_id, token) with a
// TTL; release by the same pair. Contention returns acquired=false without
// waiting beyond the caller-supplied timeout.
type LockManager interface {
	Acquire(ctx context.Context, resourceID, token string, ttl time.Duration) (acquired bool, err error)
	Release(ctx context.Context, resourceID, token string) error
}
