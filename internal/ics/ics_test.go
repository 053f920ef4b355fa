package ics

import (
	"strings"
	"testing"
	"time"

	"weekgrid/internal/model"
)

func icsDoc(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func vevent(props ...string) []string {
	out := append([]string{"BEGIN:VEVENT", "DTSTAMP:20260101T000000Z"}, props...)
	return append(out, "END:VEVENT")
}

var timetable = func() []byte {
	var lines []string
	lines = append(lines, vevent(
		"UID:cs101-lec",
		"SUMMARY:CS101 Programming",
		"LOCATION:Hall A",
		"CATEGORIES:LECTURE",
		"DTSTART:20260105T090000Z",
		"DTEND:20260105T103000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=MO,WE",
	)...)
	lines = append(lines, vevent(
		"UID:cs101-tut",
		"SUMMARY:CS101 Tutorial",
		"CATEGORIES:TUTORIAL,LAB",
		"DTSTART:20260114T140000Z",
		"DTEND:20260114T145000Z",
	)...)
	lines = append(lines, vevent(
		"UID:orientation",
		"SUMMARY:Orientation day",
		"DTSTART;VALUE=DATE:20260113",
		"DTEND;VALUE=DATE:20260114",
	)...)
	lines = append(lines, vevent(
		"UID:ma201-old",
		"SUMMARY:MA201 (last term)",
		"DTSTART:20250901T100000Z",
		"DTEND:20250901T110000Z",
		"RRULE:FREQ=WEEKLY;UNTIL=20251215T000000Z",
	)...)
	lines = append(lines, vevent(
		"SUMMARY:no uid",
		"DTSTART:20260112T080000Z",
		"DTEND:20260112T090000Z",
	)...)
	return icsDoc(lines...)
}()

var feed = Source{ID: "cs", Name: "Computer Science", URL: "https://registrar.example.edu/cs.ics?token=secret"}

func TestParseICS(t *testing.T) {
	t.Parallel()
	events, err := ParseICS(feed, timetable)
	if err != nil {
		t.Fatalf("ParseICS() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("ParseICS() returned %d events, want 4 (the UID-less one is skipped)", len(events))
	}

	lec := events[0]
	if lec.UID != "cs101-lec" || lec.Category != "LECTURE" || lec.Location != "Hall A" || lec.RawRRule == "" {
		t.Errorf("lecture = %+v", lec)
	}
	if lec.End.Sub(lec.Start) != 90*time.Minute {
		t.Errorf("lecture duration = %v, want 90m", lec.End.Sub(lec.Start))
	}
	if events[1].Category != "TUTORIAL" {
		t.Errorf("tutorial Category = %q, want first CATEGORIES value", events[1].Category)
	}
	if !events[2].AllDay {
		t.Errorf("orientation should be all-day")
	}
}

func TestParseICSErrors(t *testing.T) {
	t.Parallel()
	if _, err := ParseICS(feed, nil); err == nil {
		t.Error("ParseICS(nil) error = nil, want error")
	}
}

func TestWeekStart(t *testing.T) {
	t.Parallel()
	wed := time.Date(2026, 1, 14, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		first time.Weekday
		want  time.Time
	}{
		{time.Monday, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)},
		{time.Sunday, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := WeekStart(wed, tt.first, time.UTC); !got.Equal(tt.want) {
			t.Errorf("WeekStart(%v, %v) = %v, want %v", wed, tt.first, got, tt.want)
		}
	}
	mon := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(mon, time.Monday, time.UTC); !got.Equal(mon) {
		t.Errorf("WeekStart(monday) = %v, want itself", got)
	}
}

func TestWeekMeetings(t *testing.T) {
	t.Parallel()
	events, err := ParseICS(feed, timetable)
	if err != nil {
		t.Fatalf("ParseICS() error = %v", err)
	}

	week := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	got := WeekMeetings(events, week, time.UTC)

	want := []model.RawMeeting{
		{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:30", KindHint: "LECTURE", IdentityHint: "cs101-lec", GroupKey: "cs",
			Labels: model.Labels{Title: "CS101 Programming", Subtitle: "Computer Science", Location: "Hall A"}},
		{DayOfWeek: "Wednesday", StartTime: "09:00", EndTime: "10:30", KindHint: "LECTURE", IdentityHint: "cs101-lec", GroupKey: "cs",
			Labels: model.Labels{Title: "CS101 Programming", Subtitle: "Computer Science", Location: "Hall A"}},
		{DayOfWeek: "Wednesday", StartTime: "14:00", EndTime: "14:50", KindHint: "TUTORIAL", IdentityHint: "cs101-tut", GroupKey: "cs",
			Labels: model.Labels{Title: "CS101 Tutorial", Subtitle: "Computer Science"}},
	}
	if len(got) != len(want) {
		t.Fatalf("WeekMeetings() returned %d meetings, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("meeting %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if empty := WeekMeetings(events, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), time.UTC); len(empty) != 0 {
		t.Errorf("WeekMeetings(june) = %+v, want none", empty)
	}
}

func TestWeekMeetingsDisplayLocation(t *testing.T) {
	t.Parallel()
	tokyo := time.FixedZone("JST", 9*60*60)
	ev := ParsedEvent{
		Source: feed, UID: "late",
		Start: time.Date(2026, 1, 12, 0, 30, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 12, 1, 30, 0, 0, time.UTC),
	}
	got := WeekMeetings([]ParsedEvent{ev}, WeekStart(ev.Start, time.Monday, tokyo), tokyo)
	if len(got) != 1 || got[0].DayOfWeek != "Monday" || got[0].StartTime != "09:30" || got[0].EndTime != "10:30" {
		t.Errorf("WeekMeetings() = %+v", got)
	}
}

func TestWeekMeetingsPastMidnight(t *testing.T) {
	t.Parallel()
	ev := ParsedEvent{
		Source: feed, UID: "overnight",
		Start: time.Date(2026, 1, 13, 23, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 14, 1, 0, 0, 0, time.UTC),
	}
	got := WeekMeetings([]ParsedEvent{ev}, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), time.UTC)
	if len(got) != 1 || got[0].EndTime != "00:00" {
		t.Errorf("WeekMeetings() = %+v, want one meeting ending 00:00", got)
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"https://registrar.example.edu/cs.ics?token=secret": "https://registrar.example.edu/...(redacted)",
		"not a url": "(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
