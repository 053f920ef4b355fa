package schedule

import (
	"cmp"
	"slices"

	"weekgrid/internal/model"
)

// Conflict is a pair of same-day meetings whose intervals overlap: one from
// the student's existing schedule, one from a course they want to add.
type Conflict struct {
	Day       model.Weekday   `json:"day"`
	Existing  model.TimeBlock `json:"existing"`
	Candidate model.TimeBlock `json:"candidate"`
	// OverlapMinutes is the length of the shared interval.
	OverlapMinutes int `json:"overlap_minutes"`
}

// ConflictReport is the outcome of CheckConflicts. Record indexes in the
// error and drop lists refer to their own input slice.
type ConflictReport struct {
	Conflicts       []Conflict    `json:"conflicts"`
	ExistingErrors  []*ParseError `json:"-"`
	CandidateErrors []*ParseError `json:"-"`
	ExistingDrops   []Drop        `json:"existing_dropped"`
	CandidateDrops  []Drop        `json:"candidate_dropped"`
}

// HasConflict reports whether any pair overlaps.
func (r ConflictReport) HasConflict() bool {
	return len(r.Conflicts) > 0
}

// CheckConflicts classifies both sets with the same rules as Build and
// returns every overlapping (existing, candidate) pair, ordered by day, then
// existing start, then candidate start.
func CheckConflicts(existing, candidate []model.RawMeeting, opts Options) ConflictReport {
	exBlocks, exErrs, exDrops := Blocks(existing, opts)
	caBlocks, caErrs, caDrops := Blocks(candidate, opts)

	report := ConflictReport{
		Conflicts:       []Conflict{},
		ExistingErrors:  exErrs,
		CandidateErrors: caErrs,
		ExistingDrops:   exDrops,
		CandidateDrops:  caDrops,
	}

	for _, day := range model.Weekdays {
		for _, ex := range exBlocks[day] {
			for _, ca := range caBlocks[day] {
				if !ex.Overlaps(ca) {
					continue
				}
				report.Conflicts = append(report.Conflicts, Conflict{
					Day:            day,
					Existing:       ex,
					Candidate:      ca,
					OverlapMinutes: min(ex.EndMinutes(), ca.EndMinutes()) - max(ex.StartMinutes, ca.StartMinutes),
				})
			}
		}
	}

	dayIndex := make(map[model.Weekday]int, len(model.Weekdays))
	for i, d := range model.Weekdays {
		dayIndex[d] = i
	}
	slices.SortStableFunc(report.Conflicts, func(a, b Conflict) int {
		if c := cmp.Compare(dayIndex[a.Day], dayIndex[b.Day]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Existing.StartMinutes, b.Existing.StartMinutes); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate.StartMinutes, b.Candidate.StartMinutes)
	})
	return report
}
