package grading

import "time"

// TrimCaps holds per-field character caps applied to LLM-sourced text before
// it is persisted or broadcast, so callers can tune payload sizes
// (spec.md §6 "Output trimming knobs").
type TrimCaps struct {
	Feedback int
	Evidence int
	Reason   int
	Summary  int
	Note     int
}

// DefaultTrimCaps mirrors the `{90, 100, 120, 160, 200}` range named in
// spec.md §6.
func DefaultTrimCaps() TrimCaps {
	return TrimCaps{
		Feedback: 160,
		Evidence: 120,
		Reason:   100,
		Summary:  200,
		Note:     90,
	}
}

// GradingConfig holds every run-start-supplied option recognized by the
// grading pipeline (spec.md §6 "Configuration"). There are no process-wide
// statics beyond these defaults.
type GradingConfig struct {
	BatchSize             int
	MaxConcurrentWorkers  int
	MaxRetries            int
	RetryDelay            time.Duration

	RubricParseTimeout    time.Duration
	GradingLLMTimeout     time.Duration
	LogicReviewMaxWorkers int
	LogicReviewMaxQuestions int // 0 = all
	LogicReviewConfidenceThreshold float64
	ReviewThreshold       float64
	ReviewQueueMaxItems   int

	Trim TrimCaps

	EnableReview               bool
	GradingMode                GradingMode
	DisableProgressBroadcast   bool
	ExportDir                  string
}

// DefaultGradingConfig returns the documented defaults from spec.md §6.
func DefaultGradingConfig() GradingConfig {
	return GradingConfig{
		BatchSize:            1000,
		MaxConcurrentWorkers: 5,
		MaxRetries:           2,
		RetryDelay:           1 * time.Second,

		RubricParseTimeout:             600 * time.Second,
		GradingLLMTimeout:              120 * time.Second,
		LogicReviewMaxWorkers:          3,
		LogicReviewMaxQuestions:        0,
		LogicReviewConfidenceThreshold: 0.7,
		ReviewThreshold:                0.7,
		ReviewQueueMaxItems:            200,

		Trim: DefaultTrimCaps(),

		EnableReview:             true,
		GradingMode:              GradingModeStandard,
		DisableProgressBroadcast: false,
		ExportDir:                "./export",
	}
}

// EffectiveBatchSize applies the "batch_size=0 means one batch of all pages"
// boundary rule (spec.md §8).
func (c GradingConfig) EffectiveBatchSize(totalPages int) int {
	if c.BatchSize <= 0 {
		if totalPages <= 0 {
			return 1
		}
		return totalPages
	}
	return c.BatchSize
}
