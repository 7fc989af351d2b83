package grading

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brokle/internal/core/domain/grading"
	"brokle/internal/infrastructure/shared"
	"brokle/pkg/ulid"
)

// StudentResultRepository implements grading.StudentGradingResultRepository.
// SaveAll replaces the whole per-batch result set in one transaction-scoped
// call, mirroring the export stage's all-or-nothing write (spec.md §4.7).
type StudentResultRepository struct {
	db *gorm.DB
}

func NewStudentResultRepository(db *gorm.DB) *StudentResultRepository {
	return &StudentResultRepository{db: db}
}

func (r *StudentResultRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

func (r *StudentResultRepository) SaveAll(ctx context.Context, gradingHistoryID string, rows []grading.StudentGradingResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]studentGradingResultModel, 0, len(rows))
	for _, row := range rows {
		id := row.ID
		if id == "" {
			id = ulid.New().String()
		}
		models = append(models, studentGradingResultModel{
			ID:               id,
			GradingHistoryID: gradingHistoryID,
			StudentKey:       row.StudentKey,
			Score:            row.Score,
			MaxScore:         row.MaxScore,
			ClassID:          row.ClassID,
			StudentID:        row.StudentID,
			Summary:          row.Summary,
			Confession:       row.Confession,
			ResultData:       row.ResultData,
			ImportedAt:       row.ImportedAt,
		})
	}

	db := r.getDB(ctx).WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("grading_history_id = ?", gradingHistoryID).
			Delete(&studentGradingResultModel{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(models, 200).Error
	})
}
