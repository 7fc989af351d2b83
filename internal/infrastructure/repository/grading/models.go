// Package grading adapts the teacher's gorm repository idiom
// (repository-per-aggregate, upsert-by-business-key via ON CONFLICT) to the
// persistence collaborators declared in internal/core/domain/grading.
package grading

import (
	"time"

	"gorm.io/datatypes"
)

// gradingHistoryModel is the gorm row for the root batch record. ClassIDs is
// stored as a JSON array so it survives round-trips without a join table,
// matching the teacher's own use of gorm.io/datatypes for denormalized
// metadata columns.
type gradingHistoryModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	BatchID       string `gorm:"column:batch_id;uniqueIndex"`
	TeacherID     string `gorm:"column:teacher_id;index"`
	Status        string `gorm:"column:status"`
	ClassIDs      datatypes.JSON `gorm:"column:class_ids"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
	TotalStudents int        `gorm:"column:total_students"`
	AverageScore  float64    `gorm:"column:average_score"`
	RubricData    string     `gorm:"column:rubric_data"`
	CurrentStage  string     `gorm:"column:current_stage"`
	ResultData    string     `gorm:"column:result_data"`
}

func (gradingHistoryModel) TableName() string { return "grading_histories" }

type studentGradingResultModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	GradingHistoryID string    `gorm:"column:grading_history_id;index"`
	StudentKey       string    `gorm:"column:student_key;index"`
	Score            float64   `gorm:"column:score"`
	MaxScore         float64   `gorm:"column:max_score"`
	ClassID          string    `gorm:"column:class_id"`
	StudentID        string    `gorm:"column:student_id"`
	Summary          string    `gorm:"column:summary"`
	Confession       string    `gorm:"column:confession"`
	ResultData       string    `gorm:"column:result_data"`
	ImportedAt       time.Time `gorm:"column:imported_at"`
}

func (studentGradingResultModel) TableName() string { return "student_grading_results" }

type gradingPageImageModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	GradingHistoryID string    `gorm:"column:grading_history_id;index"`
	StudentKey       string    `gorm:"column:student_key;index"`
	PageIndex        int       `gorm:"column:page_index"`
	FileID           string    `gorm:"column:file_id"`
	FileURL          string    `gorm:"column:file_url"`
	ContentType      string    `gorm:"column:content_type"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (gradingPageImageModel) TableName() string { return "grading_page_images" }
