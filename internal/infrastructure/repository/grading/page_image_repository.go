package grading

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brokle/internal/core/domain/grading"
	"brokle/internal/infrastructure/shared"
	"brokle/pkg/ulid"
)

// PageImageRepository implements grading.GradingPageImageRepository. Image
// bytes never pass through here, only the FileID/URL index (spec.md §6).
type PageImageRepository struct {
	db *gorm.DB
}

func NewPageImageRepository(db *gorm.DB) *PageImageRepository {
	return &PageImageRepository{db: db}
}

func (r *PageImageRepository) getDB(ctx context.Context) *gorm.DB {
	return shared.GetDB(ctx, r.db)
}

func (r *PageImageRepository) SaveAll(ctx context.Context, gradingHistoryID string, rows []grading.GradingPageImage) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]gradingPageImageModel, 0, len(rows))
	for _, row := range rows {
		id := row.ID
		if id == "" {
			id = ulid.New().String()
		}
		models = append(models, gradingPageImageModel{
			ID:               id,
			GradingHistoryID: gradingHistoryID,
			StudentKey:       row.StudentKey,
			PageIndex:        row.PageIndex,
			FileID:           row.FileID,
			FileURL:          row.FileURL,
			ContentType:      row.ContentType,
			CreatedAt:        row.CreatedAt,
		})
	}

	db := r.getDB(ctx).WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("grading_history_id = ?", gradingHistoryID).
			Delete(&gradingPageImageModel{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(models, 200).Error
	})
}
