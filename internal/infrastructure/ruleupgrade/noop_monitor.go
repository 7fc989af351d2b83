package ruleupgrade

import (
	"context"
	"time"

	"brokle/internal/core/domain/ruleupgrade"
)

// NoopMonitor reports a deployed version healthy without inspecting live
// traffic. Observe failures are already non-fatal to the pipeline (a
// monitor stage terminates normally either way); this stands in until a
// real post-deploy analytics backend is wired.
type NoopMonitor struct{}

func NewNoopMonitor() *NoopMonitor {
	return &NoopMonitor{}
}

func (NoopMonitor) Observe(_ context.Context, _ string) (ruleupgrade.MonitorSummary, error) {
	return ruleupgrade.MonitorSummary{Healthy: true, ObservedSince: time.Now()}, nil
}
