package schedule

import "weekgrid/internal/model"

// Position computes the geometry of a block whose Column and ClusterWidth
// are already assigned.
//
// Vertical values are fractions of the visible window: the top is the start
// offset from the window start, the height is the duration as a pure length.
// Both are clamped to [0, 1]. Horizontal values are pixels inside the day
// column:
//
//	width = (ColumnWidth - 2*Padding - Gap*(clusterWidth-1)) / clusterWidth
//	left  = Padding + column*(width + Gap)
//
// A width that would go negative in a very narrow column is reported as 0.
func Position(b model.TimeBlock, opts Options) model.Geometry {
	opts = opts.normalized()
	w := opts.Window()

	cluster := b.ClusterWidth
	if cluster < 1 {
		cluster = 1
	}
	n := float64(cluster)

	width := (opts.ColumnWidth - 2*opts.Padding - opts.Gap*(n-1)) / n
	if width < 0 {
		width = 0
	}

	return model.Geometry{
		TopFraction:    w.ToFraction(w.Offset(b.StartMinutes)),
		HeightFraction: w.ToFraction(b.DurationMinutes),
		Left:           opts.Padding + float64(b.Column)*(width+opts.Gap),
		Width:          width,
	}
}
