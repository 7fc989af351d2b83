package grading

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brokle/internal/core/domain/grading"
	"brokle/internal/infrastructure/shared"
	"brokle/pkg/ulid"
)

// HistoryRepository implements grading.GradingHistoryRepository over
// Postgres/gorm, grounded on the teacher's upsert-by-business-key pattern
// (e.g. evaluation.DatasetRepository.Update plus a Create fallback), folded
// into a single ON CONFLICT upsert since BatchID, not ID, is the caller's
// stable key (spec.md §6: "upserted by batch_id").
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

func (r *HistoryRepository) Upsert(ctx context.Context, h grading.GradingHistory) (string, error) {
	if h.ID == "" {
		h.ID = ulid.New().String()
	}

	classIDs, err := json.Marshal(h.ClassIDs)
	if err != nil {
		return "", err
	}

	row := gradingHistoryModel{
		ID:            h.ID,
		BatchID:       h.BatchID,
		TeacherID:     h.TeacherID,
		Status:        h.Status,
		ClassIDs:      datatypes.JSON(classIDs),
		CreatedAt:     h.CreatedAt,
		CompletedAt:   h.CompletedAt,
		TotalStudents: h.TotalStudents,
		AverageScore:  h.AverageScore,
		RubricData:    h.RubricData,
		CurrentStage:  h.CurrentStage,
		ResultData:    h.ResultData,
	}

	result := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "batch_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"teacher_id", "status", "class_ids", "completed_at",
				"total_students", "average_score", "rubric_data",
				"current_stage", "result_data",
			}),
		}).
		Create(&row)
	if result.Error != nil {
		return "", result.Error
	}

	// On conflict gorm doesn't refill row.ID with the pre-existing row; look
	// it back up by batch_id so callers always get the stable persisted ID.
	var persisted gradingHistoryModel
	if err := r.getDB(ctx).WithContext(ctx).
		Select("id").
		Where("batch_id = ?", h.BatchID).
		First(&persisted).Error; err != nil {
		return "", err
	}
	return persisted.ID, nil
}
