package ruleupgrade

import "context"

// NoopRegressionRunner passes every patch through with no detected
// regression. Used until a real regression harness (replaying held-out
// scored answers under the patched rubric) is wired; swap in a concrete
// RegressionRunner once that harness exists.
type NoopRegressionRunner struct{}

func (NoopRegressionRunner) RunRegression(_ context.Context, patches []GeneratedPatch) ([]RegressionTestResult, error) {
	results := make([]RegressionTestResult, len(patches))
	for i, p := range patches {
		results[i] = RegressionTestResult{PatchID: p.PatchID, Regression: false, PassRate: 1.0}
	}
	return results, nil
}
