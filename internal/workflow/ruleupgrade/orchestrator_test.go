package ruleupgrade

import (
	"context"
	"testing"
	"time"

	"brokle/internal/core/domain/ruleupgrade"
)

type fakeMiner struct {
	mined []ruleupgrade.MinedRule
	err   error
}

func (f *fakeMiner) MineRules(_ context.Context, _, _ time.Time) ([]ruleupgrade.MinedRule, error) {
	return f.mined, f.err
}

type fakePatchGen struct {
	err error
}

func (f *fakePatchGen) GeneratePatches(_ context.Context, candidates []ruleupgrade.RuleCandidate) ([]ruleupgrade.GeneratedPatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	patches := make([]ruleupgrade.GeneratedPatch, len(candidates))
	for i, c := range candidates {
		patches[i] = ruleupgrade.GeneratedPatch{PatchID: "patch-" + c.RuleID, RuleID: c.RuleID, Description: c.Description, Diff: "+ " + c.Description}
	}
	return patches, nil
}

type fakeRegression struct {
	regression bool
	err        error
}

func (f *fakeRegression) RunRegression(_ context.Context, patches []ruleupgrade.GeneratedPatch) ([]ruleupgrade.RegressionTestResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := make([]ruleupgrade.RegressionTestResult, len(patches))
	for i, p := range patches {
		results[i] = ruleupgrade.RegressionTestResult{PatchID: p.PatchID, Regression: f.regression, PassRate: 1.0}
	}
	return results, nil
}

type fakeDeployer struct {
	version    string
	deployErr  error
	rollbackErr error
}

func (f *fakeDeployer) Deploy(_ context.Context, _ []ruleupgrade.GeneratedPatch) (string, error) {
	if f.deployErr != nil {
		return "", f.deployErr
	}
	return f.version, nil
}

func (f *fakeDeployer) Rollback(_ context.Context, _ string) error {
	return f.rollbackErr
}

type fakeMonitor struct {
	summary ruleupgrade.MonitorSummary
	err     error
}

func (f *fakeMonitor) Observe(_ context.Context, _ string) (ruleupgrade.MonitorSummary, error) {
	return f.summary, f.err
}

func candidateRule(ruleID string, confidence float64) ruleupgrade.MinedRule {
	return ruleupgrade.MinedRule{
		RuleID:      ruleID,
		QuestionID:  "q1",
		Description: "students consistently miss the units clause",
		Confidence:  confidence,
		SampleSize:  10,
		MinedAt:     time.Now(),
	}
}

func newState(requireApproval bool) *ruleupgrade.RuleUpgradeState {
	now := time.Now()
	return ruleupgrade.NewRuleUpgradeState("upgrade-1", now.Add(-7*24*time.Hour), now, requireApproval)
}

func TestRun_NoCandidatesTerminatesWithoutPatchGeneration(t *testing.T) {
	o := &Orchestrator{
		Miner:        &fakeMiner{mined: []ruleupgrade.MinedRule{candidateRule("r1", 0.5)}},
		PatchGen:     &fakePatchGen{err: context.DeadlineExceeded}, // would fail loudly if ever called
		Checkpointer: ruleupgrade.NewMemoryCheckpointer(),
	}

	out, err := o.Run(context.Background(), newState(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CurrentStage != "no_patches" {
		t.Fatalf("expected stage no_patches, got %q", out.CurrentStage)
	}
	if out.TerminationReason == "" {
		t.Fatal("expected a termination reason to be recorded")
	}
	if len(out.GeneratedPatches) != 0 {
		t.Fatalf("expected no patches generated, got %d", len(out.GeneratedPatches))
	}
}

func TestRun_RegressionDetectedTerminatesBeforeApproval(t *testing.T) {
	o := &Orchestrator{
		Miner:        &fakeMiner{mined: []ruleupgrade.MinedRule{candidateRule("r1", 0.9)}},
		PatchGen:     &fakePatchGen{},
		Regression:   &fakeRegression{regression: true},
		Checkpointer: ruleupgrade.NewMemoryCheckpointer(),
	}

	out, err := o.Run(context.Background(), newState(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CurrentStage != "regression_failed" {
		t.Fatalf("expected stage regression_failed, got %q", out.CurrentStage)
	}
	if out.PendingApproval != nil {
		t.Fatalf("expected no approval interrupt after a regression, got %+v", out.PendingApproval)
	}
}

func TestRun_SuspendsForApprovalThenDeploysOnApprove(t *testing.T) {
	o := &Orchestrator{
		Miner:        &fakeMiner{mined: []ruleupgrade.MinedRule{candidateRule("r1", 0.9)}},
		PatchGen:     &fakePatchGen{},
		Regression:   &fakeRegression{regression: false},
		Deployer:     &fakeDeployer{version: "v2"},
		Monitor:      &fakeMonitor{summary: ruleupgrade.MonitorSummary{Healthy: true}},
		Checkpointer: ruleupgrade.NewMemoryCheckpointer(),
	}

	out, err := o.Run(context.Background(), newState(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CurrentStage != "approval_interrupt" {
		t.Fatalf("expected suspension at approval_interrupt, got %q", out.CurrentStage)
	}
	if out.PendingApproval == nil {
		t.Fatal("expected a pending approval request")
	}

	out, err = o.ResumeApproval(context.Background(), out, ruleupgrade.ApprovalResponse{Approved: true})
	if err != nil {
		t.Fatalf("unexpected error resuming approval: %v", err)
	}
	if out.CurrentStage != "completed" {
		t.Fatalf("expected stage completed, got %q", out.CurrentStage)
	}
	if out.DeployedVersion != "v2" {
		t.Fatalf("expected deployed version v2, got %q", out.DeployedVersion)
	}
	if out.MonitorSummary == nil || !out.MonitorSummary.Healthy {
		t.Fatalf("expected a healthy monitor summary, got %+v", out.MonitorSummary)
	}
}

func TestRun_ApprovalDeniedTerminatesWithoutDeploy(t *testing.T) {
	o := &Orchestrator{
		Miner:        &fakeMiner{mined: []ruleupgrade.MinedRule{candidateRule("r1", 0.9)}},
		PatchGen:     &fakePatchGen{},
		Regression:   &fakeRegression{regression: false},
		Deployer:     &fakeDeployer{deployErr: context.DeadlineExceeded}, // would fail loudly if ever called
		Checkpointer: ruleupgrade.NewMemoryCheckpointer(),
	}

	out, err := o.Run(context.Background(), newState(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err = o.ResumeApproval(context.Background(), out, ruleupgrade.ApprovalResponse{Approved: false, Reason: "rubric clause too broad"})
	if err != nil {
		t.Fatalf("unexpected error resuming approval: %v", err)
	}
	if out.CurrentStage != "approval_denied" {
		t.Fatalf("expected stage approval_denied, got %q", out.CurrentStage)
	}
	if out.TerminationReason != "rubric clause too broad" {
		t.Fatalf("expected termination reason to carry the denial reason, got %q", out.TerminationReason)
	}
}

func TestResumeApproval_StaleRequestIsFatal(t *testing.T) {
	o := &Orchestrator{Checkpointer: ruleupgrade.NewMemoryCheckpointer()}
	state := newState(true)
	state.PendingApproval = &ruleupgrade.ApprovalRequest{
		UpgradeID: state.UpgradeID,
		RaisedAt:  time.Now().Add(-25 * time.Hour),
	}

	out, err := o.ResumeApproval(context.Background(), state, ruleupgrade.ApprovalResponse{Approved: true})
	if err == nil {
		t.Fatal("expected a fatal error for a stale approval response")
	}
	stageErr, ok := err.(StageError)
	if !ok {
		t.Fatalf("expected a StageError, got %T", err)
	}
	if stageErr.Kind != ErrApprovalTimeout {
		t.Fatalf("expected kind %q, got %q", ErrApprovalTimeout, stageErr.Kind)
	}
	if out.PendingApproval != nil {
		t.Fatal("expected pending approval to be cleared even on timeout")
	}
}

func TestRun_SkipsApprovalWhenNotRequired(t *testing.T) {
	o := &Orchestrator{
		Miner:        &fakeMiner{mined: []ruleupgrade.MinedRule{candidateRule("r1", 0.9)}},
		PatchGen:     &fakePatchGen{},
		Regression:   &fakeRegression{regression: false},
		Deployer:     &fakeDeployer{version: "v3"},
		Monitor:      &fakeMonitor{summary: ruleupgrade.MonitorSummary{Healthy: true}},
		Checkpointer: ruleupgrade.NewMemoryCheckpointer(),
	}

	out, err := o.Run(context.Background(), newState(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CurrentStage != "completed" {
		t.Fatalf("expected stage completed without a suspension, got %q", out.CurrentStage)
	}
	if out.PendingApproval != nil {
		t.Fatal("expected no approval interrupt when RequireApproval is false")
	}
}

func TestRun_MonitorFailureDoesNotFailTheWorkflow(t *testing.T) {
	o := &Orchestrator{
		Miner:        &fakeMiner{mined: []ruleupgrade.MinedRule{candidateRule("r1", 0.9)}},
		PatchGen:     &fakePatchGen{},
		Regression:   &fakeRegression{regression: false},
		Deployer:     &fakeDeployer{version: "v4"},
		Monitor:      &fakeMonitor{err: context.DeadlineExceeded},
		Checkpointer: ruleupgrade.NewMemoryCheckpointer(),
	}

	out, err := o.Run(context.Background(), newState(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CurrentStage != "completed" {
		t.Fatalf("expected stage completed despite monitor failure, got %q", out.CurrentStage)
	}
	if out.MonitorSummary != nil {
		t.Fatalf("expected no monitor summary when Observe fails, got %+v", out.MonitorSummary)
	}
}

func TestRollback_RestoresPreviousVersion(t *testing.T) {
	deployer := &fakeDeployer{}
	o := &Orchestrator{Deployer: deployer, Checkpointer: ruleupgrade.NewMemoryCheckpointer()}
	state := newState(false)
	state.PreviousVersion = "v1"
	state.DeployedVersion = "v2"
	state.DeploymentStatus = ruleupgrade.DeploymentDeployed

	out, err := o.Rollback(context.Background(), state, ruleupgrade.RollbackSignal{UpgradeID: state.UpgradeID, Reason: "elevated error rate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CurrentStage != "rollback" {
		t.Fatalf("expected stage rollback, got %q", out.CurrentStage)
	}
	if out.DeployedVersion != "v1" {
		t.Fatalf("expected deployed version restored to v1, got %q", out.DeployedVersion)
	}
	if out.DeploymentStatus != ruleupgrade.DeploymentRolledBack {
		t.Fatalf("expected status rolled_back, got %q", out.DeploymentStatus)
	}
	if out.TerminationReason != "elevated error rate" {
		t.Fatalf("expected termination reason to carry the rollback signal reason, got %q", out.TerminationReason)
	}
}

func TestRollback_RejectsNonDeployedState(t *testing.T) {
	o := &Orchestrator{Checkpointer: ruleupgrade.NewMemoryCheckpointer()}
	state := newState(false)

	if _, err := o.Rollback(context.Background(), state, ruleupgrade.RollbackSignal{UpgradeID: state.UpgradeID}); err == nil {
		t.Fatal("expected an error rolling back a state that was never deployed")
	}
}
