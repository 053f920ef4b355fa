package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"weekgrid/internal/config"
	"weekgrid/internal/ics"
	"weekgrid/internal/model"
)

// Wednesday 14 January 2026, 12:00 UTC.
var fixedNow = time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)

const feedBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:cs101-lec\r\nDTSTAMP:20260101T000000Z\r\nSUMMARY:CS101\r\nCATEGORIES:LECTURE\r\n" +
	"DTSTART:20260105T090000Z\r\nDTEND:20260105T103000Z\r\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:cs101-tut\r\nDTSTAMP:20260101T000000Z\r\nSUMMARY:CS101 Tutorial\r\n" +
	"DTSTART:20260105T100000Z\r\nDTEND:20260105T105000Z\r\nRRULE:FREQ=WEEKLY;BYDAY=MO\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:midterm\r\nDTSTAMP:20260101T000000Z\r\nSUMMARY:CS101 Midterm\r\nCATEGORIES:EXAM\r\n" +
	"DTSTART:20260116T090000Z\r\nDTEND:20260116T110000Z\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type testEnv struct {
	srv       *Server
	handler   http.Handler
	feedHits  *atomic.Int32
	feedClose func()
}

func newTestEnv(t *testing.T, withFeed bool, auth *config.BasicAuthConfig) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BasicAuth = auth
	cfg.CacheDir = t.TempDir()

	env := &testEnv{feedHits: &atomic.Int32{}, feedClose: func() {}}
	if withFeed {
		feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			env.feedHits.Add(1)
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = w.Write([]byte(feedBody))
		}))
		env.feedClose = feed.Close
		cfg.Feeds = []config.FeedConfig{{ID: "cs", Name: "Computer Science", URL: feed.URL + "/cs.ics"}}
	}
	t.Cleanup(env.feedClose)

	env.srv = NewServer(cfg, ics.NewFetcher(cfg.CacheDir))
	env.srv.now = func() time.Time { return fixedNow }
	env.handler = env.srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, &config.BasicAuthConfig{Username: "u", Password: "p"})
	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, &config.BasicAuthConfig{Username: "admin", Password: "s3cret"})

	rec := env.do(t, http.MethodPost, "/api/layout", "[]")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/layout", strings.NewReader("[]"))
	req.SetBasicAuth("admin", "s3cret")
	ok := httptest.NewRecorder()
	env.handler.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200: %s", ok.Code, ok.Body.String())
	}
}

func TestPostLayout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, nil)
	body := `[
		{"dayOfWeek": "MONDAY", "startTime": "09:00", "endTime": "10:30", "id": "X"},
		{"day_of_week": "monday", "start_time": "10:00", "end_time": "10:50", "id": "Y"},
		{"dayOfWeek": "MONDAY", "startTime": "11:00", "endTime": "12:30", "id": "Z"},
		{"dayOfWeek": "mon", "startTime": "09:00", "endTime": "10:00"},
		{"dayOfWeek": "TUESDAY", "startTime": "10:00", "endTime": "09:30", "id": "bad"},
		{"dayOfWeek": "FRIDAY", "startTime": "09:00", "endTime": "11:00", "type": "MIDTERM_EXAM"}
	]`
	rec := env.do(t, http.MethodPost, "/api/layout", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/layout = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[layoutResponse](t, rec)

	if resp.Today != model.Wednesday {
		t.Errorf("Today = %q, want WEDNESDAY", resp.Today)
	}
	if resp.Window.Start != "08:00" || resp.Window.End != "21:00" {
		t.Errorf("Window = %+v", resp.Window)
	}
	if len(resp.Days) != 7 {
		t.Errorf("Days has %d keys, want 7", len(resp.Days))
	}

	mon := resp.Days[model.Monday]
	if len(mon) != 3 {
		t.Fatalf("Monday has %d blocks, want 3", len(mon))
	}
	type cw struct{ col, width int }
	want := map[string]cw{"id:X": {0, 2}, "id:Y": {1, 2}, "id:Z": {0, 1}}
	for _, b := range mon {
		if got := (cw{b.Column, b.ClusterWidth}); got != want[b.IdentityKey] {
			t.Errorf("%s = %+v, want %+v", b.IdentityKey, got, want[b.IdentityKey])
		}
	}

	if len(resp.Errors) != 1 || resp.Errors[0].Kind != "INVALID_INTERVAL" || resp.Errors[0].Record != 4 {
		t.Errorf("Errors = %+v", resp.Errors)
	}
	if len(resp.Dropped) != 2 {
		t.Errorf("Dropped = %+v, want unknown weekday and excluded kind", resp.Dropped)
	}
	if resp.Stats.Placed != 3 || resp.Stats.MaxColumns != 2 {
		t.Errorf("Stats = %+v", resp.Stats)
	}

	again := decode[layoutResponse](t, env.do(t, http.MethodPost, "/api/layout", body))
	if !again.Cached {
		t.Error("identical roster was not served from the layout cache")
	}
}

func TestPostLayoutReportsSkippedItems(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, nil)
	body := `[
		{"id": "s1", "dayOfWeek": "MONDAY", "startTime": "09:00", "endTime": "10:20", "course": {"code": "CSC3100"}},
		"stray"
	]`
	rec := env.do(t, http.MethodPost, "/api/layout", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/layout = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[layoutResponse](t, rec)

	mon := resp.Days[model.Monday]
	if len(mon) != 1 || mon[0].IdentityKey != "id:s1" || mon[0].Labels.Title != "CSC3100" {
		t.Errorf("Monday = %+v, want the s1 slot titled CSC3100", mon)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Path != "$[1]" {
		t.Errorf("Skipped = %+v, want the stray string at $[1]", resp.Skipped)
	}
}

func TestPostLayoutBadBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, nil)
	for _, body := range []string{"", `{"unrelated": true}`, `[{"day": ]`} {
		if rec := env.do(t, http.MethodPost, "/api/layout", body); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %q = %d, want 400", body, rec.Code)
		}
	}
}

func TestConflicts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, nil)
	body := `{
		"existing": [{"dayOfWeek": "MONDAY", "startTime": "09:00", "endTime": "10:30", "courseCode": "CS101"}],
		"candidate": {"course": {"course_code": "PH110", "time_slots": [
			{"day_of_week": "MONDAY", "start_time": "10:00", "end_time": "11:20"},
			{"day_of_week": "THURSDAY", "start_time": "10:00", "end_time": "11:20"}
		]}}
	}`
	rec := env.do(t, http.MethodPost, "/api/conflicts", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/conflicts = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[conflictsResponse](t, rec)
	if !resp.HasConflict || len(resp.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v", resp)
	}
	c := resp.Conflicts[0]
	if c.Day != model.Monday || c.OverlapMinutes != 30 || c.Existing.Labels.Title != "CS101" || c.Candidate.Labels.Title != "PH110" {
		t.Errorf("conflict = %+v", c)
	}

	if rec := env.do(t, http.MethodPost, "/api/conflicts", `{"existing": []}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing candidate = %d, want 400", rec.Code)
	}
}

func TestFeedLayout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true, nil)

	rec := env.do(t, http.MethodGet, "/api/layout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/layout = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[layoutResponse](t, rec)
	if resp.Week != "2026-01-12" {
		t.Errorf("Week = %q, want 2026-01-12", resp.Week)
	}
	mon := resp.Days[model.Monday]
	if len(mon) != 2 || mon[0].IdentityKey != "id:cs101-lec" || mon[1].Kind != model.KindCompanion || mon[1].Column != 1 {
		t.Errorf("Monday = %+v", mon)
	}
	if len(resp.Days[model.Wednesday]) != 1 {
		t.Errorf("Wednesday has %d blocks, want 1", len(resp.Days[model.Wednesday]))
	}
	if len(resp.Days[model.Friday]) != 0 || len(resp.Dropped) != 1 || resp.Dropped[0].Reason != "excluded_kind" {
		t.Errorf("exam was not excluded: friday=%+v dropped=%+v", resp.Days[model.Friday], resp.Dropped)
	}

	// Within the snapshot TTL the feed is not fetched again.
	env.do(t, http.MethodGet, "/api/layout?week=2026-01-14", "")
	if hits := env.feedHits.Load(); hits != 1 {
		t.Errorf("feed hits = %d, want 1", hits)
	}

	if rec := env.do(t, http.MethodGet, "/api/layout?week=next-tuesday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad week = %d, want 400", rec.Code)
	}
}

func TestFeedLayoutWithoutFeeds(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false, nil)
	if rec := env.do(t, http.MethodGet, "/api/layout", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/layout without feeds = %d, want 404", rec.Code)
	}
	page := env.do(t, http.MethodGet, "/schedule", "")
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), `data-ready="true"`) {
		t.Errorf("GET /schedule without feeds = %d", page.Code)
	}
}

func TestExport(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true, nil)
	rec := env.do(t, http.MethodGet, "/api/schedule.ics?week=2026-01-12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/schedule.ics = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	events, err := ics.ParseICS(ics.Source{ID: "export"}, rec.Body.Bytes())
	if err != nil {
		t.Fatalf("export does not parse: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("export has %d events, want 3 (mon lecture, mon tutorial, wed lecture)", len(events))
	}
}

func TestSchedulePage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true, nil)
	rec := env.do(t, http.MethodGet, "/schedule", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /schedule = %d: %s", rec.Code, rec.Body.String())
	}
	html := rec.Body.String()
	for _, want := range []string{
		`data-ready="true"`,
		`class="day today" data-day="WEDNESDAY"`,
		`CS101 Tutorial`,
		`09:00-10:30`,
		`left:92.0px;width:84.0px`,
		`.lane { position: relative; overflow: hidden; }`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, "Midterm") {
		t.Error("page shows an excluded exam")
	}
}

func TestSetConfigPurgesCaches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true, nil)
	env.do(t, http.MethodGet, "/api/layout", "")

	cfg := *env.srv.Config()
	cfg.Layout.ColumnWidth = 300
	env.srv.SetConfig(&cfg)

	resp := decode[layoutResponse](t, env.do(t, http.MethodGet, "/api/layout", ""))
	if resp.Cached {
		t.Error("layout served from cache after config change")
	}
	if hits := env.feedHits.Load(); hits != 2 {
		t.Errorf("feed hits = %d, want 2 after SetConfig", hits)
	}
	if w := resp.Days[model.Wednesday][0].Geometry.Width; w != 300-2*4 {
		t.Errorf("Wednesday width = %v, want %v", w, 300-2*4)
	}
}
