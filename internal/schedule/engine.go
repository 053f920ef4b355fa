// Package schedule turns a student's weekly meetings into a conflict-free
// grid layout: per-day column assignment for overlapping meetings plus
// fractional/pixel geometry inside a fixed visible window.
//
// The package is pure: Build holds no state between calls and may be run
// concurrently on independent inputs.
package schedule

import (
	"cmp"
	"slices"

	"weekgrid/internal/model"
)

// DropReason says why a record was excluded without being an error.
type DropReason string

const (
	DropUnknownWeekday DropReason = "unknown_weekday"
	DropExcludedKind   DropReason = "excluded_kind"
)

// Drop describes a record filtered out of the layout.
type Drop struct {
	Record int        `json:"record"`
	Reason DropReason `json:"reason"`
	Value  string     `json:"value"`
}

// Stats summarizes one Build run.
type Stats struct {
	Input      int `json:"input"`
	Placed     int `json:"placed"`
	Duplicates int `json:"duplicates"`
	Dropped    int `json:"dropped"`
	Invalid    int `json:"invalid"`
	// MaxColumns is the widest cluster on any day.
	MaxColumns int `json:"max_columns"`
}

// Layout is the result of a Build: every canonical weekday key is present
// in Days, each list ordered by start time and then column.
type Layout struct {
	Window  Window                                    `json:"window"`
	Days    map[model.Weekday][]model.PositionedBlock `json:"days"`
	Errors  []*ParseError                             `json:"-"`
	Dropped []Drop                                    `json:"dropped"`
	Stats   Stats                                     `json:"stats"`
}

// Build runs the whole pipeline over meetings. Records that fail to parse
// are reported in Layout.Errors and records outside the classifier's domain
// in Layout.Dropped; neither stops the remaining records from being laid out.
func Build(meetings []model.RawMeeting, opts Options) Layout {
	opts = opts.normalized()

	byDay, errs, drops := classifyAll(meetings, opts)

	layout := Layout{
		Window:  opts.Window(),
		Days:    make(map[model.Weekday][]model.PositionedBlock, len(model.Weekdays)),
		Errors:  errs,
		Dropped: drops,
		Stats: Stats{
			Input:   len(meetings),
			Dropped: len(drops),
			Invalid: len(errs),
		},
	}

	for _, day := range model.Weekdays {
		unique, dups := Dedup(byDay[day])
		layout.Stats.Duplicates += dups

		assigned := AssignColumns(unique)
		slices.SortStableFunc(assigned, func(a, b model.TimeBlock) int {
			if c := cmp.Compare(a.StartMinutes, b.StartMinutes); c != 0 {
				return c
			}
			return cmp.Compare(a.Column, b.Column)
		})

		positioned := make([]model.PositionedBlock, 0, len(assigned))
		for _, b := range assigned {
			positioned = append(positioned, model.PositionedBlock{
				TimeBlock: b,
				Geometry:  Position(b, opts),
			})
			if b.ClusterWidth > layout.Stats.MaxColumns {
				layout.Stats.MaxColumns = b.ClusterWidth
			}
		}
		layout.Days[day] = positioned
		layout.Stats.Placed += len(positioned)
	}

	return layout
}

// Blocks classifies meetings and returns the deduplicated blocks of every
// day in input order, without column assignment.
func Blocks(meetings []model.RawMeeting, opts Options) (map[model.Weekday][]model.TimeBlock, []*ParseError, []Drop) {
	opts = opts.normalized()
	byDay, errs, drops := classifyAll(meetings, opts)
	for day, blocks := range byDay {
		byDay[day], _ = Dedup(blocks)
	}
	return byDay, errs, drops
}

func classifyAll(meetings []model.RawMeeting, opts Options) (map[model.Weekday][]model.TimeBlock, []*ParseError, []Drop) {
	byDay := make(map[model.Weekday][]model.TimeBlock, len(model.Weekdays))
	var (
		errs  []*ParseError
		drops []Drop
	)
	for i, m := range meetings {
		b, drop, err := NewBlock(i, m, opts)
		switch {
		case err != nil:
			errs = append(errs, err)
		case drop != nil:
			drops = append(drops, *drop)
		default:
			byDay[b.Day] = append(byDay[b.Day], b)
		}
	}
	return byDay, errs, drops
}

// NewBlock classifies a single record. Exactly one of the results is
// meaningful: a block, a drop, or a parse error.
func NewBlock(record int, m model.RawMeeting, opts Options) (model.TimeBlock, *Drop, *ParseError) {
	opts = opts.normalized()

	if ex, ok := excludedKind(m.KindHint, opts); ok {
		return model.TimeBlock{}, &Drop{Record: record, Reason: DropExcludedKind, Value: ex}, nil
	}

	day, ok := ClassifyDay(m.DayOfWeek)
	if !ok {
		return model.TimeBlock{}, &Drop{Record: record, Reason: DropUnknownWeekday, Value: m.DayOfWeek}, nil
	}

	identity := recordIdentity(m)
	annotate := func(err error) *ParseError {
		pe := err.(*ParseError)
		pe.Record = record
		pe.Identity = identity
		return pe
	}

	start, err := ParseClock("start_time", m.StartTime)
	if err != nil {
		return model.TimeBlock{}, nil, annotate(err)
	}
	end, err := ParseClock("end_time", m.EndTime)
	if err != nil {
		return model.TimeBlock{}, nil, annotate(err)
	}

	duration := end - start
	kind, err := ClassifyKind(m.KindHint, duration, opts)
	if err != nil {
		pe := annotate(err)
		pe.Value = m.StartTime + "-" + m.EndTime
		return model.TimeBlock{}, nil, pe
	}

	return model.TimeBlock{
		Day:             day,
		StartMinutes:    start,
		DurationMinutes: duration,
		Kind:            kind,
		IdentityKey:     IdentityKey(m.IdentityHint, m.GroupKey, day, start, duration, kind),
		Record:          record,
		Labels:          m.Labels,
	}, nil, nil
}

// recordIdentity is a human-readable handle for diagnostics.
func recordIdentity(m model.RawMeeting) string {
	switch {
	case m.IdentityHint != "":
		return m.IdentityHint
	case m.GroupKey != "":
		return m.GroupKey
	default:
		return m.Labels.Title
	}
}
