package grading

import (
	"context"
	"time"
)

// GradingHistory mirrors the persistent store row named in spec.md §6.
// Upserted by batch_id (reuses the existing id when present).
type GradingHistory struct {
	ID            string
	BatchID       string
	TeacherID     string
	Status        string
	ClassIDs      []string
	CreatedAt     time.Time
	CompletedAt   *time.Time
	TotalStudents int
	AverageScore  float64
	RubricData    string // JSON
	CurrentStage  string
	ResultData    string // JSON
}

// StudentGradingResultRow mirrors the per-student persisted row.
type StudentGradingResultRow struct {
	ID               string
	GradingHistoryID string
	StudentKey       string
	Score            float64
	MaxScore         float64
	ClassID          string
	StudentID        string
	Summary          string
	Confession       string // JSON
	ResultData       string // JSON
	ImportedAt       time.Time
}

// GradingPageImage mirrors the page-image index row. Image bytes are never
// stored here, only the FileID reference (spec.md §6).
type GradingPageImage struct {
	ID               string
	GradingHistoryID string
	StudentKey       string
	PageIndex        int
	FileID           string
	FileURL          string
	ContentType      string
	CreatedAt        time.Time
}

// GradingHistoryRepository persists the root GradingHistory row.
type GradingHistoryRepository interface {
	Upsert(ctx context.Context, h GradingHistory) (id string, err error)
}

// StudentGradingResultRepository persists per-student result rows.
type StudentGradingResultRepository interface {
	SaveAll(ctx context.Context, gradingHistoryID string, rows []StudentGradingResultRow) error
}

// GradingPageImageRepository persists the page-image index.
type GradingPageImageRepository interface {
	SaveAll(ctx context.Context, gradingHistoryID string, rows []GradingPageImage) error
}

// FileRef is one stored-file reference as returned by FileStorage.ListBatchFiles.
type FileRef struct {
	FileID      string
	StudentKey  string
	PageIndex   int
	ContentType string
	URL         string
}

// FileStorage is the blob storage collaborator for page images and export
// artifacts (spec.md §6 "FileStorage.list_batch_files").
type FileStorage interface {
	Upload(ctx context.Context, key string, content []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	// ListBatchFiles returns the file references stored for a batch, used to
	// rebuild the page-image index during export and as the bounded-recovery
	// fallback when fan-out finds no images in state (spec.md §4.4).
	ListBatchFiles(ctx context.Context, batchID string) ([]FileRef, error)
}

// ExportWriter persists the export artifact (JSON file) and error log.
type ExportWriter interface {
	WriteArtifact(ctx context.Context, batchID string, name string, content []byte) (path string, err error)
}
