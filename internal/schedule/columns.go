package schedule

import (
	"cmp"
	"slices"

	"weekgrid/internal/model"
)

// AssignColumns lays out one day's deduplicated blocks. It returns a new
// slice sorted by start time (ties keep input order) in which every block
// has Column and ClusterWidth set; the argument is not modified.
//
// Columns are assigned first-fit: each block takes the lowest column not
// used by an already placed block it overlaps. ClusterWidth is one more than
// the highest column among the blocks that overlap it directly (itself
// included); overlap chains are not followed transitively.
func AssignColumns(blocks []model.TimeBlock) []model.TimeBlock {
	out := slices.Clone(blocks)
	slices.SortStableFunc(out, func(a, b model.TimeBlock) int {
		return cmp.Compare(a.StartMinutes, b.StartMinutes)
	})

	used := make(map[int]bool)
	for i := range out {
		clear(used)
		for j := 0; j < i; j++ {
			if out[j].Overlaps(out[i]) {
				used[out[j].Column] = true
			}
		}
		col := 0
		for used[col] {
			col++
		}
		out[i].Column = col
	}

	for i := range out {
		widest := out[i].Column
		for j := range out {
			if j != i && out[j].Overlaps(out[i]) && out[j].Column > widest {
				widest = out[j].Column
			}
		}
		out[i].ClusterWidth = widest + 1
	}
	return out
}
