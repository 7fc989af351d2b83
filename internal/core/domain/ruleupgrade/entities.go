// Package ruleupgrade holds the domain entities and collaborator interfaces
// for the rule-upgrade control loop: mine → patch → regression → approve →
// deploy → monitor, with an external-signal-triggered rollback branch.
package ruleupgrade

import "time"

// MinedRule is one candidate grading-rule observation surfaced by the miner
// over a time window (spec.md §3, §4.8).
type MinedRule struct {
	RuleID      string    `json:"rule_id"`
	QuestionID  string    `json:"question_id,omitempty"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	SampleSize  int       `json:"sample_size"`
	MinedAt     time.Time `json:"mined_at"`
}

// PassesCandidateThreshold reports whether this rule clears the
// confidence > 0.8 candidate filter (spec.md §3).
func (r MinedRule) PassesCandidateThreshold() bool {
	return r.Confidence > 0.8
}

// RuleCandidate is a mined rule that cleared the candidate threshold and is
// eligible for patch generation.
type RuleCandidate struct {
	RuleID      string  `json:"rule_id"`
	QuestionID  string  `json:"question_id,omitempty"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// FilterCandidates keeps only the rules whose confidence clears the
// candidate threshold, in input order.
func FilterCandidates(mined []MinedRule) []RuleCandidate {
	out := make([]RuleCandidate, 0, len(mined))
	for _, r := range mined {
		if !r.PassesCandidateThreshold() {
			continue
		}
		out = append(out, RuleCandidate{
			RuleID:      r.RuleID,
			QuestionID:  r.QuestionID,
			Description: r.Description,
			Confidence:  r.Confidence,
		})
	}
	return out
}

// GeneratedPatch is one proposed code/prompt change produced from a rule
// candidate (spec.md §4.8).
type GeneratedPatch struct {
	PatchID     string `json:"patch_id"`
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Diff        string `json:"diff"`
}

// RegressionTestResult is one patch's regression-suite outcome.
type RegressionTestResult struct {
	PatchID     string  `json:"patch_id"`
	Regression  bool    `json:"regression"`
	PassRate    float64 `json:"pass_rate"`
	FailedCases []string `json:"failed_cases,omitempty"`
}

// AnyRegression reports whether any result flagged a regression, which sets
// RuleUpgradeState.RegressionDetected (spec.md §4.8).
func AnyRegression(results []RegressionTestResult) bool {
	for _, r := range results {
		if r.Regression {
			return true
		}
	}
	return false
}

// DeploymentStatus is the closed set of deployment lifecycle states.
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentDeployed   DeploymentStatus = "deployed"
	DeploymentRolledBack DeploymentStatus = "rolled_back"
	DeploymentTerminated DeploymentStatus = "terminated"
)

// RuleUpgradeState is the root state threaded through the rule-upgrade
// pipeline (spec.md §3).
type RuleUpgradeState struct {
	UpgradeID string `json:"upgrade_id"`

	TimeWindowStart time.Time `json:"time_window_start"`
	TimeWindowEnd   time.Time `json:"time_window_end"`

	CurrentStage string `json:"current_stage"`

	// RequireApproval gates the approval_interrupt branch (spec.md §4.8):
	// when false, a regression-free patch set deploys without a human
	// suspension point.
	RequireApproval bool `json:"require_approval"`

	MinedRules       []MinedRule             `json:"mined_rules,omitempty"`       // reducer=append
	RuleCandidates   []RuleCandidate         `json:"rule_candidates,omitempty"`   // reducer=last_write_wins (recomputed whole)
	GeneratedPatches []GeneratedPatch        `json:"generated_patches,omitempty"` // reducer=append
	TestResults      []RegressionTestResult  `json:"test_results,omitempty"`      // reducer=append

	RegressionDetected bool `json:"regression_detected"`

	PendingApproval *ApprovalRequest `json:"pending_approval,omitempty"`

	DeployedVersion    string           `json:"deployed_version,omitempty"`
	PreviousVersion    string           `json:"previous_version,omitempty"`
	DeploymentStatus   DeploymentStatus `json:"deployment_status,omitempty"`

	MonitorSummary *MonitorSummary `json:"monitor_summary,omitempty"`

	// TerminationReason is set whenever the run stops at a non-"completed"
	// terminal stage (no candidates, regression detected, approval denied,
	// a fatal stage error, or a rollback signal) so a caller inspecting a
	// terminal state can tell why it stopped.
	TerminationReason string `json:"termination_reason,omitempty"`
}

// NewRuleUpgradeState seeds a fresh run over the given mining window.
func NewRuleUpgradeState(upgradeID string, windowStart, windowEnd time.Time, requireApproval bool) *RuleUpgradeState {
	return &RuleUpgradeState{
		UpgradeID:       upgradeID,
		TimeWindowStart: windowStart,
		TimeWindowEnd:   windowEnd,
		CurrentStage:    "mine_rules",
		RequireApproval: requireApproval,
	}
}

// ApprovalRequest is the interrupt payload raised by approval_interrupt,
// carrying the patches and test results awaiting a human decision
// (spec.md §4.8).
type ApprovalRequest struct {
	UpgradeID   string                 `json:"upgrade_id"`
	Patches     []GeneratedPatch       `json:"patches"`
	TestResults []RegressionTestResult `json:"test_results"`
	RaisedAt    time.Time              `json:"raised_at"`
}

// ApprovalResponse is the resume payload for an ApprovalRequest.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// MonitorSummary is the post-deploy health snapshot collected by monitor.
type MonitorSummary struct {
	Healthy       bool      `json:"healthy"`
	ObservedSince time.Time `json:"observed_since"`
	Notes         string    `json:"notes,omitempty"`
}

// RollbackSignal is the external trigger that moves a deployed upgrade to
// the terminal rollback branch (spec.md §4.8).
type RollbackSignal struct {
	UpgradeID string `json:"upgrade_id"`
	Reason    string `json:"reason,omitempty"`
}
