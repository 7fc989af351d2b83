package grading

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"brokle/internal/core/domain/grading"
	"brokle/pkg/retry"
)

// gradeUnit is one disjoint slice of work dispatched to a grade_batch
// worker: either a student boundary or, in the no-boundary fallback, a
// fixed-size page slice (spec.md §4.4).
type gradeUnit struct {
	index      int
	studentKey string
	pages      []int
	images     []grading.ImageRef
	studentID  string
	studentName string
	needsConfirmation bool
}

// runGradeBatch computes the fan-out work list, dispatches one worker per
// unit under a concurrency ceiling, and reduces the results (spec.md §4.4,
// §5).
func (o *Orchestrator) runGradeBatch(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	units, err := o.planGradeUnits(ctx, state)
	if err != nil {
		return state, err
	}
	if len(units) == 0 {
		// Bounded recovery exhausted: proceed with an empty result set so
		// the pipeline can still produce a confession and error log.
		state = state.AppendError(grading.NewWorkflowError(grading.ErrWorkerFailed, "grade_batch",
			errNoImagesForFanout))
		return state, nil
	}

	outcomes := o.runUnitsConcurrently(ctx, state, units)

	state.GradingResults = append(append([]grading.GradeUnitOutcome{}, state.GradingResults...), outcomes...)
	state.StudentResults = reduceStudentResults(state.StudentResults, outcomes)
	return state, nil
}

var errNoImagesForFanout = errors.New("no images available for fan-out after bounded recovery")

// planGradeUnits computes the work list per the router rules of spec.md
// §4.4, including the bounded image-recovery fallback.
func (o *Orchestrator) planGradeUnits(ctx context.Context, state *grading.BatchGradingState) ([]gradeUnit, error) {
	images := state.ProcessedImages
	if len(images) == 0 {
		images = state.Inputs.AnswerImages
	}
	if len(images) == 0 && o.FileStorage != nil {
		refs, err := o.FileStorage.ListBatchFiles(ctx, state.BatchID)
		if err == nil {
			for _, r := range refs {
				images = append(images, grading.ImageRef{FileID: r.FileID, PageIndex: r.PageIndex, ContentType: r.ContentType, URL: r.URL})
			}
		}
	}
	if len(images) == 0 {
		return nil, nil
	}

	byPage := make(map[int]grading.ImageRef, len(images))
	for _, img := range images {
		byPage[img.PageIndex] = img
	}

	if len(state.StudentBoundaries) > 0 {
		units := make([]gradeUnit, 0, len(state.StudentBoundaries))
		for i, b := range state.StudentBoundaries {
			units = append(units, gradeUnit{
				index:             i,
				studentKey:        b.StudentKey,
				pages:             b.Pages,
				images:            imagesForPages(byPage, b.Pages),
				studentID:         b.StudentID,
				studentName:       b.StudentName,
				needsConfirmation: b.NeedsConfirmation,
			})
		}
		return units, nil
	}

	batchSize := state.Config.EffectiveBatchSize(len(images))
	sortedPages := make([]int, 0, len(images))
	for p := range byPage {
		sortedPages = append(sortedPages, p)
	}
	sort.Ints(sortedPages)

	var units []gradeUnit
	for i := 0; i < len(sortedPages); i += batchSize {
		end := i + batchSize
		if end > len(sortedPages) {
			end = len(sortedPages)
		}
		slice := sortedPages[i:end]
		units = append(units, gradeUnit{
			index:      len(units),
			studentKey: studentKeyForIndex(len(units)),
			pages:      slice,
			images:     imagesForPages(byPage, slice),
		})
	}
	return units, nil
}

func imagesForPages(byPage map[int]grading.ImageRef, pages []int) []grading.ImageRef {
	out := make([]grading.ImageRef, 0, len(pages))
	for _, p := range pages {
		if img, ok := byPage[p]; ok {
			out = append(out, img)
		}
	}
	return out
}

// runUnitsConcurrently dispatches every unit under a semaphore ceiling of
// max_concurrent_workers, retrying a unit in place (not the whole stage) up
// to max_retries times (spec.md §4.4 "Concurrency contract").
func (o *Orchestrator) runUnitsConcurrently(ctx context.Context, state *grading.BatchGradingState, units []gradeUnit) []grading.GradeUnitOutcome {
	limit := state.Config.MaxConcurrentWorkers
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))

	outcomes := make([]grading.GradeUnitOutcome, len(units))
	var wg sync.WaitGroup
	for i, unit := range units {
		i, unit := i, unit
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = grading.GradeUnitOutcome{StudentKey: unit.studentKey, BatchIndex: unit.index, Succeeded: false, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = o.runUnitWithRetry(ctx, state, unit)
		}()
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) runUnitWithRetry(ctx context.Context, state *grading.BatchGradingState, unit gradeUnit) grading.GradeUnitOutcome {
	maxRetries := state.Config.MaxRetries
	registry := grading.NewRubricRegistry(state.ParsedRubric)

	var last grading.GradeUnitOutcome
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := o.gradeOneUnit(ctx, state, unit, registry)
		if err == nil {
			result.RetryCount = attempt
			return grading.GradeUnitOutcome{StudentKey: unit.studentKey, BatchIndex: unit.index, Succeeded: true, Retried: attempt > 0, Result: &result}
		}
		last = grading.GradeUnitOutcome{StudentKey: unit.studentKey, BatchIndex: unit.index, Succeeded: false, Retried: attempt > 0, Error: err.Error()}
		if o.Logger != nil {
			o.Logger.Warn("grade_batch worker failed", "student_key", unit.studentKey, "attempt", attempt, "error", err)
		}
	}
	last.Result = failedResult(unit)
	return last
}

// failedResult builds one "failed" page result per assigned page, per
// spec.md §4.4's worker failure contract.
func failedResult(unit gradeUnit) *grading.StudentResult {
	pages := make([]grading.PageGradeResult, len(unit.pages))
	for i, p := range unit.pages {
		pages[i] = grading.PageGradeResult{PageIndex: p, Status: "failed", Message: "worker exhausted retries"}
	}
	return &grading.StudentResult{
		StudentKey:  unit.studentKey,
		StudentID:   unit.studentID,
		StudentName: unit.studentName,
		PageResults: pages,
	}
}

func (o *Orchestrator) gradeOneUnit(ctx context.Context, state *grading.BatchGradingState, unit gradeUnit, registry *grading.RubricRegistry) (grading.StudentResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, state.Config.GradingLLMTimeout)
	defer cancel()

	streamCB := o.streamCallback(state.BatchID, "grade_batch:"+unit.studentKey)

	var raw grading.RawStudentGradingResult
	err := o.withRetry(callCtx, retry.LLMAPI, "grade_batch", func(ctx context.Context) error {
		var callErr error
		raw, callErr = o.Scoring.GradeStudent(ctx, unit.images, unit.studentKey, state.ParsedRubric, unit.pages, streamCB)
		return callErr
	})
	if err != nil {
		return grading.StudentResult{}, err
	}

	result := studentResultFromRaw(raw, unit.studentKey, unit.studentID, unit.studentName)
	finalized := FinalizeStudentResult(result, registry, state.Config.GradingMode)
	return finalized, nil
}

func studentResultFromRaw(raw grading.RawStudentGradingResult, studentKey, studentID, studentName string) grading.StudentResult {
	result := grading.StudentResult{
		StudentKey:  studentKey,
		StudentID:   studentID,
		StudentName: studentName,
		TotalScore:  floatField(raw, "total_score"),
		MaxTotalScore: floatField(raw, "max_score"),
	}
	if list, ok := raw["question_details"].([]any); ok {
		for _, item := range list {
			qm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			result.QuestionDetails = append(result.QuestionDetails, questionResultFromMap(qm))
		}
	}
	if c, ok := raw["confession"].(map[string]any); ok {
		result.Confession = confessionFromMap(c)
	}
	result.StudentSummary = stringField(raw, "overall_feedback")
	return result
}

func questionResultFromMap(m map[string]any) grading.QuestionResult {
	q := grading.QuestionResult{
		QuestionID: stringField(m, "question_id"),
		Score:      floatField(m, "score"),
		MaxScore:   floatField(m, "max_score"),
		Confidence: floatField(m, "confidence"),
		Feedback:   stringField(m, "feedback"),
		PageIndices: intSliceField(m, "page_indices"),
	}
	if list, ok := m["scoring_point_results"].([]any); ok {
		for _, item := range list {
			pm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q.ScoringPointResults = append(q.ScoringPointResults, grading.ScoringPointResult{
				PointID:         stringField(pm, "point_id"),
				Decision:        stringField(pm, "decision"),
				Awarded:         floatField(pm, "awarded"),
				MaxPoints:       floatField(pm, "max_points"),
				Evidence:        stringField(pm, "evidence"),
				Reason:          stringField(pm, "reason"),
				RubricReference: stringField(pm, "rubric_reference"),
			})
		}
	}
	return q
}

// reduceStudentResults applies the append+dedup-by-student_key reducer of
// spec.md §5: last write wins for duplicate student keys, and the
// operation is idempotent on an already-deduplicated slice (invariant 7).
func reduceStudentResults(existing []grading.StudentResult, outcomes []grading.GradeUnitOutcome) []grading.StudentResult {
	byKey := make(map[string]int, len(existing))
	out := append([]grading.StudentResult{}, existing...)
	for i, r := range out {
		byKey[r.StudentKey] = i
	}
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		if idx, ok := byKey[o.Result.StudentKey]; ok {
			out[idx] = *o.Result
			continue
		}
		byKey[o.Result.StudentKey] = len(out)
		out = append(out, *o.Result)
	}
	return out
}
