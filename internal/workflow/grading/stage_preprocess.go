package grading

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"brokle/internal/core/domain/grading"
)

// runPreprocess re-encodes every answer image (falling back to the
// original on a per-image failure) and resolves student boundaries
// (spec.md §4.2).
func (o *Orchestrator) runPreprocess(ctx context.Context, state *grading.BatchGradingState) (*grading.BatchGradingState, error) {
	processed := make([]grading.ImageRef, len(state.Inputs.AnswerImages))
	pre := o.Preprocessor
	if pre == nil {
		pre = grading.PassthroughPreprocessor{}
	}
	for i, img := range state.Inputs.AnswerImages {
		norm, err := pre.Normalize(ctx, img)
		if err != nil {
			if o.Logger != nil {
				o.Logger.Warn("image preprocess failed, using original", "page_index", img.PageIndex, "error", err)
			}
			norm = img
		}
		processed[i] = norm
	}
	state.ProcessedImages = processed
	state.StudentBoundaries = ResolveBoundaries(state.Inputs, len(processed))
	return state, nil
}

// ResolveBoundaries implements the priority-ordered boundary resolution
// rules of spec.md §4.2: explicit student_mapping, else manual_boundaries
// with gap-filling, else one boundary covering every page. It also applies
// the opportunistic roster match (SPEC_FULL.md §C.2) when a roster was
// supplied and a boundary has no student_id/student_name yet.
func ResolveBoundaries(inputs grading.Inputs, totalPages int) []grading.StudentBoundary {
	var boundaries []grading.StudentBoundary

	switch {
	case len(inputs.StudentMapping) > 0:
		boundaries = boundariesFromMapping(inputs.StudentMapping, totalPages)
	case len(inputs.ManualBoundaries) > 0:
		boundaries = boundariesFromStarts(inputs.ManualBoundaries, totalPages)
	}

	if len(boundaries) == 0 {
		boundaries = []grading.StudentBoundary{defaultBoundary(totalPages)}
	}

	if len(inputs.Roster) > 0 {
		matchRoster(boundaries, inputs.Roster)
	}

	return boundaries
}

func defaultBoundary(totalPages int) grading.StudentBoundary {
	pages := sanitizePages(allPages(totalPages), totalPages)
	start, end := 0, 0
	if len(pages) > 0 {
		start, end = pages[0], pages[len(pages)-1]
	}
	return grading.StudentBoundary{
		StudentKey: "Student 1",
		Pages:      pages,
		StartPage:  start,
		EndPage:    end,
	}
}

func allPages(totalPages int) []int {
	pages := make([]int, totalPages)
	for i := range pages {
		pages[i] = i
	}
	return pages
}

func boundariesFromMapping(mapping []grading.StudentMappingEntry, totalPages int) []grading.StudentBoundary {
	out := make([]grading.StudentBoundary, 0, len(mapping))
	for _, m := range mapping {
		var pages []int
		switch {
		case len(m.Pages) > 0:
			pages = append(pages, m.Pages...)
		case m.StartPage != nil && m.EndPage != nil:
			for p := *m.StartPage; p <= *m.EndPage; p++ {
				pages = append(pages, p)
			}
		}
		pages = sanitizePages(pages, totalPages)
		if len(pages) == 0 {
			continue
		}
		out = append(out, grading.StudentBoundary{
			StudentKey:  m.StudentKey,
			Pages:       pages,
			StartPage:   pages[0],
			EndPage:     pages[len(pages)-1],
			StudentID:   m.StudentID,
			StudentName: m.StudentName,
		})
	}
	return out
}

// boundariesFromStarts fills gaps between sorted start-page markers: start i
// ranges to start[i+1]-1, the last ranges to the final page.
func boundariesFromStarts(starts []int, totalPages int) []grading.StudentBoundary {
	sorted := append([]int{}, starts...)
	sort.Ints(sorted)

	out := make([]grading.StudentBoundary, 0, len(sorted))
	for i, start := range sorted {
		end := totalPages - 1
		if i+1 < len(sorted) {
			end = sorted[i+1] - 1
		}
		var pages []int
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		pages = sanitizePages(pages, totalPages)
		if len(pages) == 0 {
			continue
		}
		out = append(out, grading.StudentBoundary{
			StudentKey: studentKeyForIndex(i),
			Pages:      pages,
			StartPage:  pages[0],
			EndPage:    pages[len(pages)-1],
		})
	}
	return out
}

func studentKeyForIndex(i int) string {
	return "学生" + strconv.Itoa(i+1)
}

// sanitizePages coerces, clips to [0,totalPages), de-duplicates and sorts
// (spec.md §4.2 "All page indices are sanitized").
func sanitizePages(pages []int, totalPages int) []int {
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 0 || (totalPages > 0 && p >= totalPages) {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// matchRoster opportunistically attaches student_id/student_name to
// boundaries missing one, matching a normalized student_key against a
// roster entry's normalized name (SPEC_FULL.md §C.2).
func matchRoster(boundaries []grading.StudentBoundary, roster []grading.RosterEntry) {
	for i := range boundaries {
		b := &boundaries[i]
		if b.StudentID != "" {
			continue
		}
		key := normalizeName(b.StudentKey)
		for _, r := range roster {
			if normalizeName(r.StudentName) == key || normalizeName(r.StudentID) == key {
				b.StudentID = r.StudentID
				b.StudentName = r.StudentName
				break
			}
		}
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
