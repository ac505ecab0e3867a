package isoforest

import (
	"math"
	"sort"
)

// Offset returns the 100*contamination percentile of scores using linear
// interpolation between closest ranks.
func Offset(scores []float64, contamination float64) float64 {
	if len(scores) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	pos := contamination * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Label marks rows scoring strictly below the contamination offset.
//
// When exact ties at the offset leave fewer than round(contamination*n) rows
// labeled, tied rows are filled in by descending priority. Rows whose
// priority equals that of the first tied row left out stay unlabeled, so
// identical rows always share a label. A nil priority disables filling.
func Label(scores []float64, contamination float64, priority []float64) []bool {
	labels := make([]bool, len(scores))
	if len(scores) < 2 {
		return labels
	}
	offset := Offset(scores, contamination)

	below := 0
	var tied []int
	for i, s := range scores {
		switch {
		case s < offset:
			labels[i] = true
			below++
		case s == offset:
			tied = append(tied, i)
		}
	}

	want := int(math.Round(contamination * float64(len(scores))))
	if below >= want || len(tied) == 0 || len(priority) != len(scores) {
		return labels
	}

	sort.SliceStable(tied, func(a, b int) bool {
		return priority[tied[a]] > priority[tied[b]]
	})
	need := min(want-below, len(tied))
	if need == len(tied) {
		for _, i := range tied {
			labels[i] = true
		}
		return labels
	}
	cut := priority[tied[need]]
	for _, i := range tied[:need] {
		if priority[i] > cut {
			labels[i] = true
		}
	}
	return labels
}
