package detection

import "sort"

// IoU returns the intersection-over-union of two pixel boxes. Boxes with no
// positive union score 0.
func IoU(a, b BoundingBox) float32 {
	ix1 := max(a.X, b.X)
	iy1 := max(a.Y, b.Y)
	ix2 := min(a.X+a.Width, b.X+b.Width)
	iy2 := min(a.Y+a.Height, b.Y+b.Height)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := float64(interW) * float64(interH)
	union := float64(a.Width)*float64(a.Height) + float64(b.Width)*float64(b.Height) - inter
	if union <= 0 {
		return 0
	}
	return float32(inter / union)
}

// Suppress runs greedy, class-agnostic non-max suppression.
//
// Candidates are ordered by descending confidence with a stable sort, so equal
// confidences keep their input order. The highest remaining candidate is kept
// and every remaining candidate overlapping it by more than iouThreshold is
// dropped. The result is in selection order. The input slice is not modified.
func Suppress(candidates []Scored, iouThreshold float32) []Scored {
	n := len(candidates)
	if n == 0 {
		return []Scored{}
	}

	sorted := make([]Scored, n)
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Scored, 0, n)
	used := make([]bool, n)
	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		anchor := sorted[i]
		kept = append(kept, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if IoU(anchor.Box, sorted[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}
