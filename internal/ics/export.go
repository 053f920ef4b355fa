package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"weekgrid/internal/model"
	"weekgrid/internal/schedule"
)

// uidSpace namespaces exported UIDs so re-exporting the same layout yields
// the same UIDs and calendar clients update events in place.
var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("weekgrid:schedule"))

// ExportOptions controls Export.
type ExportOptions struct {
	Name string
	// Weeks limits the recurrence; 0 repeats forever.
	Weeks int
	// CompanionTag is written as the category of companion sessions so the
	// export reads back with the same kinds; empty means the engine default.
	CompanionTag string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export writes every placed block of layout as a weekly recurring VEVENT
// starting in the week beginning at weekStart.
func Export(layout schedule.Layout, weekStart time.Time, opts ExportOptions) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//weekgrid//schedule//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	companion := opts.CompanionTag
	if companion == "" {
		companion = schedule.DefaultCompanionTag
	}

	rule := "FREQ=WEEKLY"
	if opts.Weeks > 0 {
		rule = fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", opts.Weeks)
	}

	for _, day := range model.Weekdays {
		date := dateOf(weekStart, day)
		for _, b := range layout.Days[day] {
			start := date.Add(time.Duration(b.StartMinutes) * time.Minute)
			end := start.Add(time.Duration(b.DurationMinutes) * time.Minute)

			ev := cal.AddEvent(eventUID(b.TimeBlock))
			ev.SetDtStampTime(now)
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			ev.AddProperty(ical.ComponentPropertyRrule, rule)
			category := string(b.Kind)
			if b.Kind == model.KindCompanion {
				category = companion
			}
			ev.SetProperty(ical.ComponentPropertyCategories, category)
			if b.Labels.Title != "" {
				ev.SetSummary(b.Labels.Title)
			}
			if b.Labels.Location != "" {
				ev.SetLocation(b.Labels.Location)
			}
			if desc := description(b.Labels); desc != "" {
				ev.SetDescription(desc)
			}
		}
	}
	return cal.Serialize()
}

// dateOf returns midnight of day within the week starting at weekStart.
func dateOf(weekStart time.Time, day model.Weekday) time.Time {
	offset := (int(day.Time()) - int(weekStart.Weekday()) + 7) % 7
	return time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day()+offset, 0, 0, 0, 0, weekStart.Location())
}

func eventUID(b model.TimeBlock) string {
	return uuid.NewSHA1(uidSpace, []byte(string(b.Day)+"|"+b.IdentityKey)).String() + "@weekgrid"
}

func description(l model.Labels) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{l.Subtitle, l.Secondary} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
