// Package dispatch gives the HTTP trigger surface and the worker fleet a
// typed job contract over the generic redis.StreamDispatcher, so starting
// or resuming a batch is a publish on one side and a decode-and-run on the
// other, regardless of which process the orchestrator actually executes
// in (spec.md §3 "Lifecycles" treats a batch run as resumable from any
// checkpoint, not tied to one process).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"brokle/internal/core/domain/grading"
	"brokle/internal/infrastructure/repository/redis"
)

// BatchJobKind is a closed set of trigger actions a worker can perform on
// a batch.
type BatchJobKind string

const (
	BatchJobStart               BatchJobKind = "start"
	BatchJobResumeRubricReview  BatchJobKind = "resume_rubric_review"
	BatchJobResumeResultsReview BatchJobKind = "resume_results_review"
)

// BatchJob is the decoded payload carried inside a redis.GradeUnitJob's
// opaque Payload bytes.
type BatchJob struct {
	Kind     BatchJobKind               `json:"kind"`
	BatchID  string                     `json:"batch_id"`
	Inputs   *grading.Inputs            `json:"inputs,omitempty"`
	Config   *grading.GradingConfig     `json:"config,omitempty"`
	Response *grading.InterruptResponse `json:"response,omitempty"`
}

// Queue publishes and consumes BatchJobs over a shared Redis stream.
type Queue struct {
	dispatcher *redis.StreamDispatcher
}

func NewQueue(dispatcher *redis.StreamDispatcher) *Queue {
	return &Queue{dispatcher: dispatcher}
}

func (q *Queue) PublishStart(ctx context.Context, batchID string, inputs grading.Inputs, cfg grading.GradingConfig) error {
	return q.publish(ctx, BatchJob{Kind: BatchJobStart, BatchID: batchID, Inputs: &inputs, Config: &cfg})
}

func (q *Queue) PublishResume(ctx context.Context, batchID string, kind BatchJobKind, resp grading.InterruptResponse) error {
	return q.publish(ctx, BatchJob{Kind: kind, BatchID: batchID, Response: &resp})
}

func (q *Queue) publish(ctx context.Context, job BatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal batch job: %w", err)
	}
	return q.dispatcher.Publish(ctx, redis.GradeUnitJob{
		BatchID:    job.BatchID,
		StudentKey: string(job.Kind),
		Payload:    body,
	})
}

// Consume drains up to count pending jobs, decoding each one's payload.
// Malformed payloads are dropped with the same best-effort handling the
// underlying dispatcher uses for malformed stream entries.
func (q *Queue) Consume(ctx context.Context, consumerID string, count int64, block time.Duration) ([]BatchJob, error) {
	raw, err := q.dispatcher.Consume(ctx, consumerID, count, block)
	if err != nil {
		return nil, err
	}
	jobs := make([]BatchJob, 0, len(raw))
	for _, r := range raw {
		var job BatchJob
		if err := json.Unmarshal(r.Payload, &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// EnsureGroup creates the underlying consumer group if it doesn't exist.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	return q.dispatcher.EnsureGroup(ctx)
}
