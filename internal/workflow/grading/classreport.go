package grading

import (
	"math"
	"sort"

	"brokle/internal/core/domain/grading"
)

const classReportHistogramBuckets = 5

// ComputeClassReport builds the mean/median/stddev/histogram/per-question
// analysis over a batch's final student results (SPEC_FULL.md §C.3,
// grounded on the original's class-level analysis pass dropped by the
// distillation).
func ComputeClassReport(students []grading.StudentResult) *grading.ClassReport {
	if len(students) == 0 {
		return nil
	}

	scores := make([]float64, len(students))
	maxScore := 0.0
	for i, s := range students {
		scores[i] = s.TotalScore
		if s.MaxTotalScore > maxScore {
			maxScore = s.MaxTotalScore
		}
	}

	report := &grading.ClassReport{
		StudentCount:       len(students),
		MeanScore:          mean(scores),
		MedianScore:        median(scores),
		StdDevScore:        stdDev(scores),
		PerQuestionAverage: perQuestionAverage(students),
		HistogramBuckets:   histogram(scores, maxScore, classReportHistogramBuckets),
	}
	return report
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64{}, vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func stdDev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := mean(vals)
	var sumSq float64
	for _, v := range vals {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}

func perQuestionAverage(students []grading.StudentResult) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range students {
		for _, q := range s.QuestionDetails {
			id := grading.NormalizeQuestionID(q.QuestionID)
			sums[id] += q.Score
			counts[id]++
		}
	}
	out := make(map[string]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out
}

func histogram(scores []float64, maxScore float64, buckets int) []grading.HistogramBucket {
	if maxScore <= 0 {
		maxScore = 100
	}
	width := maxScore / float64(buckets)
	out := make([]grading.HistogramBucket, buckets)
	for i := range out {
		out[i] = grading.HistogramBucket{
			RangeLow:  float64(i) * width,
			RangeHigh: float64(i+1) * width,
		}
	}
	for _, score := range scores {
		idx := int(score / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[idx].Count++
	}
	return out
}
