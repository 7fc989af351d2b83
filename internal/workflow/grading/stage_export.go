package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/retry"
)

// runExport builds the export payload, persists it when a database adapter
// is configured, and always writes a JSON artifact on failure or when no
// database is configured (spec.md §4.7). Export never raises.
func (o *Orchestrator) runExport(ctx context.Context, state *grading.BatchGradingState) *grading.BatchGradingState {
	failures := failedOutcomes(state.GradingResults)
	report := ComputeClassReport(state.StudentResults)
	state.ClassReport = report

	payload := &grading.ExportPayload{
		BatchID:     state.BatchID,
		Students:    state.StudentResults,
		ClassReport: report,
		Failures:    failures,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	persisted := o.persistResults(ctx, state, payload)
	payload.Persisted = persisted

	if !persisted || len(failures) > 0 || len(state.Errors) > 0 {
		if path, err := o.writeArtifact(ctx, state, payload); err != nil {
			*state = state.AppendError(grading.NewWorkflowError(grading.ErrPersistenceFailed, "export", err))
		} else {
			payload.ArtifactPath = path
		}
	}

	if len(state.Errors) > 0 {
		_, _ = o.writeErrorLog(ctx, state)
	}

	state.ExportData = payload
	now := time.Now()
	state.Timestamps.CompletedAt = &now

	if o.Notifier != nil {
		_ = o.Notifier.NotifyExportComplete(ctx, state.BatchID, payload)
	}

	return state
}

func failedOutcomes(outcomes []grading.GradeUnitOutcome) []grading.GradeUnitOutcome {
	var out []grading.GradeUnitOutcome
	for _, o := range outcomes {
		if !o.Succeeded {
			out = append(out, o)
		}
	}
	return out
}

// persistResults upserts the grading history, student results, and
// page-image index rows, per the persistent-store interface in spec.md §6.
// A persistence failure is recorded on state and never propagated.
func (o *Orchestrator) persistResults(ctx context.Context, state *grading.BatchGradingState, payload *grading.ExportPayload) bool {
	if o.GradingRepo == nil {
		return false
	}

	rubricJSON, _ := json.Marshal(state.ParsedRubric)
	resultJSON, _ := json.Marshal(payload)

	history := grading.GradingHistory{
		BatchID:       state.BatchID,
		Status:        state.CurrentStage,
		CreatedAt:     state.Timestamps.CreatedAt,
		CompletedAt:   state.Timestamps.CompletedAt,
		TotalStudents: len(state.StudentResults),
		AverageScore:  averageScore(state.StudentResults),
		RubricData:    string(rubricJSON),
		CurrentStage:  state.CurrentStage,
		ResultData:    string(resultJSON),
	}

	var historyID string
	err := o.withRetry(ctx, retry.Persistence, "export", func(ctx context.Context) error {
		var upsertErr error
		historyID, upsertErr = o.GradingRepo.Upsert(ctx, history)
		return upsertErr
	})
	if err != nil {
		state.Errors = append(state.Errors, grading.NewWorkflowError(grading.ErrPersistenceFailed, "export", err))
		return false
	}

	if o.ResultRepo != nil {
		rows := make([]grading.StudentGradingResultRow, 0, len(state.StudentResults))
		for _, s := range state.StudentResults {
			confJSON, _ := json.Marshal(s.Confession)
			resJSON, _ := json.Marshal(s)
			rows = append(rows, grading.StudentGradingResultRow{
				GradingHistoryID: historyID,
				StudentKey:       s.StudentKey,
				Score:            s.TotalScore,
				MaxScore:         s.MaxTotalScore,
				StudentID:        s.StudentID,
				Summary:          s.StudentSummary,
				Confession:       string(confJSON),
				ResultData:       string(resJSON),
				ImportedAt:       time.Now(),
			})
		}
		if err := o.ResultRepo.SaveAll(ctx, historyID, rows); err != nil {
			state.Errors = append(state.Errors, grading.NewWorkflowError(grading.ErrPersistenceFailed, "export", err))
			return false
		}
	}

	if o.PageImageRepo != nil {
		var rows []grading.GradingPageImage
		for _, img := range state.ProcessedImages {
			rows = append(rows, grading.GradingPageImage{
				GradingHistoryID: historyID,
				PageIndex:        img.PageIndex,
				FileID:           img.FileID,
				FileURL:          img.URL,
				ContentType:      img.ContentType,
				CreatedAt:        time.Now(),
			})
		}
		if err := o.PageImageRepo.SaveAll(ctx, historyID, rows); err != nil {
			state.Errors = append(state.Errors, grading.NewWorkflowError(grading.ErrPersistenceFailed, "export", err))
			return false
		}
	}

	return true
}

func averageScore(students []grading.StudentResult) float64 {
	if len(students) == 0 {
		return 0
	}
	var sum float64
	for _, s := range students {
		sum += s.TotalScore
	}
	return sum / float64(len(students))
}

func (o *Orchestrator) writeArtifact(ctx context.Context, state *grading.BatchGradingState, payload *grading.ExportPayload) (string, error) {
	if o.Export == nil {
		return "", fmt.Errorf("no export writer configured")
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%d.json", state.BatchID, time.Now().UnixNano())
	return o.Export.WriteArtifact(ctx, state.BatchID, name, body)
}

func (o *Orchestrator) writeErrorLog(ctx context.Context, state *grading.BatchGradingState) (string, error) {
	if o.Export == nil {
		return "", fmt.Errorf("no export writer configured")
	}
	body, err := json.MarshalIndent(state.Errors, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-errors-%d.json", state.BatchID, time.Now().UnixNano())
	return o.Export.WriteArtifact(ctx, state.BatchID, name, body)
}
