package ics

import (
	"context"
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "weekgrid/internal/log"
	"weekgrid/internal/model"
)

// WeekStart returns midnight, in loc, of the week that contains t. first is
// the weekday a week begins on (time.Monday or time.Sunday).
func WeekStart(t time.Time, first time.Weekday, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	back := (int(t.Weekday()) - int(first) + 7) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-back, 0, 0, 0, 0, loc)
}

// WeekMeetings expands events into the meetings that take place during the
// seven days starting at weekStart, as wall-clock times in loc. All-day
// entries are skipped; the engine decides everything else (including
// meetings whose end falls on the next day, which it reports as invalid).
func WeekMeetings(events []ParsedEvent, weekStart time.Time, loc *time.Location) []model.RawMeeting {
	if loc == nil {
		loc = time.Local
	}
	weekEnd := weekStart.AddDate(0, 0, 7)

	out := make([]model.RawMeeting, 0, len(events))
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		starts, err := occurrences(ev, weekStart, weekEnd)
		if err != nil {
			appLog.Warn("recurrence skipped", "id", ev.Source.ID, "uid", ev.UID, "rrule", ev.RawRRule, "err", err.Error())
			continue
		}
		dur := ev.End.Sub(ev.Start)
		for _, s := range starts {
			out = append(out, toMeeting(ev, s.In(loc), s.Add(dur).In(loc)))
		}
	}
	return out
}

// occurrences returns the start times of ev inside [from, to).
func occurrences(ev ParsedEvent, from, to time.Time) ([]time.Time, error) {
	if ev.RawRRule == "" {
		if ev.Start.Before(from) || !ev.Start.Before(to) {
			return nil, nil
		}
		return []time.Time{ev.Start}, nil
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		return nil, err
	}
	if ev.Start.IsZero() {
		return nil, errors.New("recurring event without DTSTART")
	}
	r.DTStart(ev.Start)

	var out []time.Time
	for _, t := range r.Between(from, to, true) {
		if t.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func toMeeting(ev ParsedEvent, start, end time.Time) model.RawMeeting {
	endClock := end.Format("15:04")
	if !sameDay(start, end) {
		// Keep the record; the engine rejects it as an interval error.
		endClock = "00:00"
	}
	return model.RawMeeting{
		DayOfWeek:    start.Weekday().String(),
		StartTime:    start.Format("15:04"),
		EndTime:      endClock,
		KindHint:     ev.Category,
		IdentityHint: ev.UID,
		GroupKey:     ev.Source.ID,
		Labels: model.Labels{
			Title:     ev.Summary,
			Subtitle:  ev.Source.Name,
			Location:  ev.Location,
			Secondary: ev.Description,
		},
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FeedMeetings fetches, parses and expands every source for one week. Feed
// failures are logged and leave that feed out.
func FeedMeetings(ctx context.Context, f *Fetcher, sources []Source, weekStart time.Time, loc *time.Location) ([]model.RawMeeting, []error) {
	results, errs := f.FetchAll(ctx, sources)

	var meetings []model.RawMeeting
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("feed parse failed", err, "id", res.Source.ID)
			errs = append(errs, err)
			continue
		}
		week := WeekMeetings(events, weekStart, loc)
		appLog.Info("feed expanded", "id", res.Source.ID, "events", len(events), "meetings", len(week), "from_cache", res.FromCache)
		meetings = append(meetings, week...)
	}
	return meetings, errs
}
