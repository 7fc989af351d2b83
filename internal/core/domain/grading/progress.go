package grading

// ProgressEventType is a closed set of broadcast event shapes (spec.md §6).
type ProgressEventType string

const (
	ProgressAgentUpdate        ProgressEventType = "agent_update"
	ProgressLLMStreamChunk     ProgressEventType = "llm_stream_chunk"
	ProgressRubricParsed       ProgressEventType = "rubric_parsed"
	ProgressRubricSelfReviewed ProgressEventType = "rubric_self_reviewed"
	ProgressRubricScoreMismatch ProgressEventType = "rubric_score_mismatch"
	ProgressWorkflowError      ProgressEventType = "workflow_error"
)

// ProgressEvent is broadcast to clients via a best-effort sink that must
// never fail the workflow (spec.md §3, §6, §9).
type ProgressEvent struct {
	Type       ProgressEventType `json:"type"`
	BatchID    string            `json:"batch_id"`
	NodeID     string            `json:"nodeId,omitempty"`
	AgentID    string            `json:"agentId,omitempty"`
	ParentNodeID string          `json:"parentNodeId,omitempty"`
	StreamType string            `json:"streamType,omitempty"`
	Chunk      string            `json:"chunk,omitempty"`
	Progress   *float64          `json:"progress,omitempty"`
	Status     string            `json:"status,omitempty"`
	Message    string            `json:"message,omitempty"`

	// rubric_parsed payload
	TotalQuestions int `json:"totalQuestions,omitempty"`
	TotalScore     float64 `json:"totalScore,omitempty"`

	// rubric_self_reviewed payload
	ChangesMade       []string `json:"changes_made,omitempty"`
	ConfidenceBefore  float64  `json:"confidence_before,omitempty"`
	ConfidenceAfter   float64  `json:"confidence_after,omitempty"`

	// rubric_score_mismatch payload
	ExpectedTotalScore float64 `json:"expected_total_score,omitempty"`
	ParsedTotalScore   float64 `json:"parsed_total_score,omitempty"`

	// workflow_error payload
	Error string `json:"error,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// ProgressSink is the best-effort broadcast collaborator consumed by every
// stage. Implementations MUST NOT block the caller and their errors MUST be
// swallowed by the caller (never propagated into the workflow) — see §9
// "Progress sink is best-effort".
type ProgressSink interface {
	Publish(batchID string, event ProgressEvent) error
}

// StreamCallback forwards LLM streaming chunks unchanged to the progress
// sink. kind is "output", "thinking", or a "<phase>:<type>" compound form
// (spec.md §6 "Streaming").
type StreamCallback func(kind string, chunk string)

// NoopProgressSink discards every event; used in tests and when
// disable_progress_broadcast is set.
type NoopProgressSink struct{}

func (NoopProgressSink) Publish(string, ProgressEvent) error { return nil }

// BestEffortPublish calls sink.Publish and swallows any error, logging is
// left to the caller via the returned bool (true = succeeded).
func BestEffortPublish(sink ProgressSink, batchID string, event ProgressEvent) bool {
	if sink == nil {
		return true
	}
	return sink.Publish(batchID, event) == nil
}
