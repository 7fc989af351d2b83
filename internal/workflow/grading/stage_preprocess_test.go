package grading

import (
	"testing"

	"brokle/internal/core/domain/grading"
)

func TestResolveBoundaries_StudentMapping(t *testing.T) {
	inputs := grading.Inputs{
		StudentMapping: []grading.StudentMappingEntry{
			{StudentKey: "Alice", Pages: []int{0, 1}},
			{StudentKey: "Bob", Pages: []int{2, 3}},
		},
	}
	bounds := ResolveBoundaries(inputs, 4)
	if len(bounds) != 2 {
		t.Fatalf("expected 2 boundaries, got %d", len(bounds))
	}
	if bounds[0].StudentKey != "Alice" || bounds[1].StudentKey != "Bob" {
		t.Fatalf("unexpected boundary order: %+v", bounds)
	}
}

func TestResolveBoundaries_ManualBoundariesFillGaps(t *testing.T) {
	inputs := grading.Inputs{ManualBoundaries: []int{0, 3, 5}}
	bounds := ResolveBoundaries(inputs, 7)
	if len(bounds) != 3 {
		t.Fatalf("expected 3 boundaries, got %d", len(bounds))
	}
	if bounds[0].StartPage != 0 || bounds[0].EndPage != 2 {
		t.Fatalf("expected first boundary to span [0,2], got %+v", bounds[0])
	}
	if bounds[2].StartPage != 5 || bounds[2].EndPage != 6 {
		t.Fatalf("expected last boundary to span to the final page, got %+v", bounds[2])
	}
}

func TestResolveBoundaries_DefaultSingleBoundary(t *testing.T) {
	bounds := ResolveBoundaries(grading.Inputs{}, 3)
	if len(bounds) != 1 {
		t.Fatalf("expected a single default boundary, got %d", len(bounds))
	}
	if len(bounds[0].Pages) != 3 {
		t.Fatalf("expected default boundary to cover all pages, got %+v", bounds[0].Pages)
	}
}

func TestResolveBoundaries_RosterMatchesByName(t *testing.T) {
	inputs := grading.Inputs{
		StudentMapping: []grading.StudentMappingEntry{{StudentKey: "alice", Pages: []int{0}}},
		Roster:         []grading.RosterEntry{{StudentID: "S1", StudentName: "Alice"}},
	}
	bounds := ResolveBoundaries(inputs, 1)
	if bounds[0].StudentID != "S1" {
		t.Fatalf("expected roster match to attach student_id, got %+v", bounds[0])
	}
}

func TestSanitizePages_ClipsDedupsSorts(t *testing.T) {
	got := sanitizePages([]int{3, -1, 0, 3, 10, 1}, 4)
	want := []int{0, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
