package grading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"brokle/internal/core/domain/grading"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&gradingHistoryModel{},
		&studentGradingResultModel{},
		&gradingPageImageModel{},
	))
	return db
}

func TestHistoryRepository_UpsertByBatchID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	h := grading.GradingHistory{
		BatchID:       "batch-1",
		TeacherID:     "teacher-1",
		Status:        "running",
		ClassIDs:      []string{"class-a"},
		CreatedAt:     time.Now(),
		TotalStudents: 2,
		CurrentStage:  "intake",
	}

	id1, err := repo.Upsert(ctx, h)
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	h.Status = "completed"
	h.CurrentStage = "export"
	id2, err := repo.Upsert(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "upsert by batch_id should reuse the existing row's id")

	var count int64
	require.NoError(t, db.Model(&gradingHistoryModel{}).Where("batch_id = ?", "batch-1").Count(&count).Error)
	assert.Equal(t, int64(1), count, "upsert must not create a duplicate row")
}

func TestStudentResultRepository_SaveAllReplacesPriorRows(t *testing.T) {
	db := setupTestDB(t)
	historyRepo := NewHistoryRepository(db)
	resultRepo := NewStudentResultRepository(db)
	ctx := context.Background()

	historyID, err := historyRepo.Upsert(ctx, grading.GradingHistory{BatchID: "batch-2", CreatedAt: time.Now()})
	require.NoError(t, err)

	first := []grading.StudentGradingResultRow{
		{StudentKey: "alice", Score: 8, MaxScore: 10, ImportedAt: time.Now()},
		{StudentKey: "bob", Score: 6, MaxScore: 10, ImportedAt: time.Now()},
	}
	require.NoError(t, resultRepo.SaveAll(ctx, historyID, first))

	second := []grading.StudentGradingResultRow{
		{StudentKey: "alice", Score: 9, MaxScore: 10, ImportedAt: time.Now()},
	}
	require.NoError(t, resultRepo.SaveAll(ctx, historyID, second))

	var rows []studentGradingResultModel
	require.NoError(t, db.Where("grading_history_id = ?", historyID).Find(&rows).Error)
	require.Len(t, rows, 1, "second SaveAll should replace, not append to, the prior set")
	assert.Equal(t, "alice", rows[0].StudentKey)
	assert.Equal(t, float64(9), rows[0].Score)
}

func TestPageImageRepository_SaveAllReplacesPriorRows(t *testing.T) {
	db := setupTestDB(t)
	historyRepo := NewHistoryRepository(db)
	imageRepo := NewPageImageRepository(db)
	ctx := context.Background()

	historyID, err := historyRepo.Upsert(ctx, grading.GradingHistory{BatchID: "batch-3", CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, imageRepo.SaveAll(ctx, historyID, []grading.GradingPageImage{
		{StudentKey: "alice", PageIndex: 0, FileID: "f1", CreatedAt: time.Now()},
		{StudentKey: "alice", PageIndex: 1, FileID: "f2", CreatedAt: time.Now()},
	}))
	require.NoError(t, imageRepo.SaveAll(ctx, historyID, []grading.GradingPageImage{
		{StudentKey: "alice", PageIndex: 0, FileID: "f1", CreatedAt: time.Now()},
	}))

	var rows []gradingPageImageModel
	require.NoError(t, db.Where("grading_history_id = ?", historyID).Find(&rows).Error)
	assert.Len(t, rows, 1)
}
