// Package ruleupgrade implements the rule-upgrade control loop's stage
// graph: mine_rules, generate_patches, regression_test, the optional
// approval_interrupt suspension, deploy, monitor, and the external-signal
// rollback branch (spec.md §4.8). It shares the grading pipeline's shape
// (hand-coded sequential stages, checkpoint-on-every-transition, suspend by
// setting a pending-interrupt field) but is its own state machine over its
// own domain types.
package ruleupgrade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"brokle/internal/core/domain/ruleupgrade"
	"brokle/pkg/retry"
)

// approvalTimeout is the maximum time an approval_interrupt may stay
// pending before a resume is treated as a fatal interrupt_timeout
// (spec.md §7: ">24h in the rule-upgrade approval case is a terminal
// failure").
const approvalTimeout = 24 * time.Hour

// deployLockTTL bounds how long the deploy-coordination lock (spec.md §5)
// is held; deploy calls are expected to finish well inside this window.
const deployLockTTL = 5 * time.Minute

// Orchestrator runs the rule-upgrade stage graph over a shared
// collaborator set.
type Orchestrator struct {
	Miner        ruleupgrade.RuleMiner
	PatchGen     ruleupgrade.PatchGenerator
	Regression   ruleupgrade.RegressionRunner
	Deployer     ruleupgrade.Deployer
	Monitor      ruleupgrade.Monitor
	Checkpointer ruleupgrade.Checkpointer
	// Lock is optional; when nil, deploy coordination is skipped (a
	// single-replica deployment has no contention to guard against).
	Lock   ruleupgrade.LockManager
	Logger *slog.Logger
}

// Run drives a freshly-seeded state from mine_rules through to its first
// suspension point (PendingApproval set) or a terminal stage. Terminal
// stages are reported via state.CurrentStage, not necessarily via a
// returned error: "no_patches" and "regression_failed" are expected
// outcomes, not faults.
func (o *Orchestrator) Run(ctx context.Context, state *ruleupgrade.RuleUpgradeState) (*ruleupgrade.RuleUpgradeState, error) {
	state, err := o.advance(ctx, state, "mine_rules")
	if err != nil {
		return state, err
	}

	mined, err := withRetryResult(ctx, o, retry.Default, "mine_rules", func(ctx context.Context) ([]ruleupgrade.MinedRule, error) {
		return o.Miner.MineRules(ctx, state.TimeWindowStart, state.TimeWindowEnd)
	})
	if err != nil {
		return o.fail(ctx, state, newStageError(ErrMiningFailed, "mine_rules", err))
	}
	state.MinedRules = append(state.MinedRules, mined...)
	state.RuleCandidates = ruleupgrade.FilterCandidates(mined)

	if len(state.RuleCandidates) == 0 {
		state.CurrentStage = "no_patches"
		state.TerminationReason = "no rule candidates cleared the confidence threshold"
		o.checkpoint(ctx, state)
		return state, nil
	}

	return o.continueAfterMining(ctx, state)
}

func (o *Orchestrator) continueAfterMining(ctx context.Context, state *ruleupgrade.RuleUpgradeState) (*ruleupgrade.RuleUpgradeState, error) {
	state, err := o.advance(ctx, state, "generate_patches")
	if err != nil {
		return state, err
	}
	patches, err := withRetryResult(ctx, o, retry.Default, "generate_patches", func(ctx context.Context) ([]ruleupgrade.GeneratedPatch, error) {
		return o.PatchGen.GeneratePatches(ctx, state.RuleCandidates)
	})
	if err != nil {
		return o.fail(ctx, state, newStageError(ErrPatchGenFailed, "generate_patches", err))
	}
	state.GeneratedPatches = append(state.GeneratedPatches, patches...)

	state, err = o.advance(ctx, state, "regression_test")
	if err != nil {
		return state, err
	}
	results, err := withRetryResult(ctx, o, retry.Default, "regression_test", func(ctx context.Context) ([]ruleupgrade.RegressionTestResult, error) {
		return o.Regression.RunRegression(ctx, state.GeneratedPatches)
	})
	if err != nil {
		return o.fail(ctx, state, newStageError(ErrRegressionFailed, "regression_test", err))
	}
	state.TestResults = append(state.TestResults, results...)
	state.RegressionDetected = ruleupgrade.AnyRegression(results)

	if state.RegressionDetected {
		state.CurrentStage = "regression_failed"
		state.TerminationReason = "regression detected in at least one generated patch"
		o.checkpoint(ctx, state)
		return state, nil
	}

	if state.RequireApproval {
		req := ruleupgrade.ApprovalRequest{
			UpgradeID:   state.UpgradeID,
			Patches:     state.GeneratedPatches,
			TestResults: state.TestResults,
			RaisedAt:    time.Now(),
		}
		state.PendingApproval = &req
		state.CurrentStage = "approval_interrupt"
		o.checkpoint(ctx, state)
		return state, nil
	}

	return o.continueAfterApproval(ctx, state)
}

// ResumeApproval applies a human decision to a pending approval_interrupt.
// A response arriving more than approvalTimeout after the request was
// raised is treated as a fatal interrupt_timeout regardless of its
// Approved value (spec.md §7).
func (o *Orchestrator) ResumeApproval(ctx context.Context, state *ruleupgrade.RuleUpgradeState, resp ruleupgrade.ApprovalResponse) (*ruleupgrade.RuleUpgradeState, error) {
	if state.PendingApproval == nil {
		return state, fmt.Errorf("upgrade %s has no pending approval", state.UpgradeID)
	}
	if time.Since(state.PendingApproval.RaisedAt) > approvalTimeout {
		state.PendingApproval = nil
		return o.fail(ctx, state, newStageError(ErrApprovalTimeout, "approval_interrupt", nil))
	}

	state.PendingApproval = nil
	if !resp.Approved {
		state.CurrentStage = "approval_denied"
		state.TerminationReason = resp.Reason
		if state.TerminationReason == "" {
			state.TerminationReason = "approval denied"
		}
		o.checkpoint(ctx, state)
		return state, nil
	}

	return o.continueAfterApproval(ctx, state)
}

func (o *Orchestrator) continueAfterApproval(ctx context.Context, state *ruleupgrade.RuleUpgradeState) (*ruleupgrade.RuleUpgradeState, error) {
	state, err := o.advance(ctx, state, "deploy")
	if err != nil {
		return state, err
	}

	token := state.UpgradeID
	if o.Lock != nil {
		acquired, err := o.Lock.Acquire(ctx, "ruleupgrade:deploy", token, deployLockTTL)
		if err != nil {
			return o.fail(ctx, state, newStageError(ErrDeployFailed, "deploy", err))
		}
		if !acquired {
			return o.fail(ctx, state, newStageError(ErrDeployFailed, "deploy", fmt.Errorf("deploy lock held by another upgrade")))
		}
		defer o.Lock.Release(ctx, "ruleupgrade:deploy", token)
	}

	version, err := withRetryResult(ctx, o, retry.FastFail, "deploy", func(ctx context.Context) (string, error) {
		return o.Deployer.Deploy(ctx, state.GeneratedPatches)
	})
	if err != nil {
		return o.fail(ctx, state, newStageError(ErrDeployFailed, "deploy", err))
	}
	state.PreviousVersion = state.DeployedVersion
	state.DeployedVersion = version
	state.DeploymentStatus = ruleupgrade.DeploymentDeployed

	state, err = o.advance(ctx, state, "monitor")
	if err != nil {
		return state, err
	}
	summary, err := o.Monitor.Observe(ctx, version)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("monitor observation failed, proceeding without a health summary", "upgrade_id", state.UpgradeID, "version", version, "error", err)
		}
	} else {
		state.MonitorSummary = &summary
	}

	state.CurrentStage = "completed"
	o.checkpoint(ctx, state)
	return state, nil
}

// Rollback restores the previously deployed version on an external
// rollback signal. It is reachable from any post-deploy state, not just
// "completed" — a rollback signal can arrive while monitoring is still
// in progress (spec.md §4.8: "reachable only by an external rollback
// signal").
func (o *Orchestrator) Rollback(ctx context.Context, state *ruleupgrade.RuleUpgradeState, signal ruleupgrade.RollbackSignal) (*ruleupgrade.RuleUpgradeState, error) {
	if state.DeploymentStatus != ruleupgrade.DeploymentDeployed {
		return state, fmt.Errorf("upgrade %s is not in a deployed state (status=%s)", state.UpgradeID, state.DeploymentStatus)
	}

	if err := o.Deployer.Rollback(ctx, state.PreviousVersion); err != nil {
		return o.fail(ctx, state, newStageError(ErrRollbackFailed, "rollback", err))
	}

	state.DeployedVersion = state.PreviousVersion
	state.DeploymentStatus = ruleupgrade.DeploymentRolledBack
	state.CurrentStage = "rollback"
	state.TerminationReason = signal.Reason
	o.checkpoint(ctx, state)
	return state, nil
}

func (o *Orchestrator) advance(ctx context.Context, state *ruleupgrade.RuleUpgradeState, stage string) (*ruleupgrade.RuleUpgradeState, error) {
	state.CurrentStage = stage
	o.checkpoint(ctx, state)
	return state, ctx.Err()
}

func (o *Orchestrator) checkpoint(ctx context.Context, state *ruleupgrade.RuleUpgradeState) {
	if o.Checkpointer == nil {
		return
	}
	if err := o.Checkpointer.Save(ctx, *state); err != nil && o.Logger != nil {
		o.Logger.Warn("checkpoint save failed", "upgrade_id", state.UpgradeID, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, state *ruleupgrade.RuleUpgradeState, err StageError) (*ruleupgrade.RuleUpgradeState, error) {
	state.CurrentStage = err.Stage + "_failed"
	state.TerminationReason = err.Error()
	o.checkpoint(ctx, state)
	return state, err
}

// withRetryResult runs fn under the given policy, logging attempts, and
// returns its decoded result. A free function rather than a method since
// Go methods cannot carry their own type parameters.
func withRetryResult[T any](ctx context.Context, o *Orchestrator, policy retry.Policy, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		r, err := fn(ctx)
		if err != nil {
			if o.Logger != nil {
				o.Logger.Warn("stage call failed, may retry", "stage", stage, "policy", policy.Name, "error", err)
			}
			return err
		}
		result = r
		return nil
	})
	return result, err
}
