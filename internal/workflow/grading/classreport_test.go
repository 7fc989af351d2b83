package grading

import (
	"testing"

	"brokle/internal/core/domain/grading"
)

func TestComputeClassReport_EmptyReturnsNil(t *testing.T) {
	if ComputeClassReport(nil) != nil {
		t.Fatalf("expected nil report for no students")
	}
}

func TestComputeClassReport_MeanMedianPerQuestion(t *testing.T) {
	students := []grading.StudentResult{
		{StudentKey: "A", TotalScore: 6, MaxTotalScore: 10, QuestionDetails: []grading.QuestionResult{{QuestionID: "1", Score: 6, MaxScore: 10}}},
		{StudentKey: "B", TotalScore: 8, MaxTotalScore: 10, QuestionDetails: []grading.QuestionResult{{QuestionID: "1", Score: 8, MaxScore: 10}}},
		{StudentKey: "C", TotalScore: 10, MaxTotalScore: 10, QuestionDetails: []grading.QuestionResult{{QuestionID: "1", Score: 10, MaxScore: 10}}},
	}
	report := ComputeClassReport(students)
	if report.StudentCount != 3 {
		t.Fatalf("expected student count 3, got %d", report.StudentCount)
	}
	if report.MeanScore != 8 {
		t.Fatalf("expected mean 8, got %v", report.MeanScore)
	}
	if report.MedianScore != 8 {
		t.Fatalf("expected median 8, got %v", report.MedianScore)
	}
	if report.PerQuestionAverage["1"] != 8 {
		t.Fatalf("expected per-question average 8, got %v", report.PerQuestionAverage["1"])
	}
	var total int
	for _, b := range report.HistogramBuckets {
		total += b.Count
	}
	if total != 3 {
		t.Fatalf("expected histogram to account for every student, got %d", total)
	}
}
