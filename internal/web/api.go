package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"weekgrid/internal/ics"
	appLog "weekgrid/internal/log"
	"weekgrid/internal/model"
	"weekgrid/internal/roster"
	"weekgrid/internal/schedule"
)

const maxBodyBytes = 1 << 20

type windowDTO struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Length int    `json:"length"`
}

type errorDTO struct {
	Kind     schedule.ErrorKind `json:"kind"`
	Record   int                `json:"record"`
	Identity string             `json:"identity,omitempty"`
	Field    string             `json:"field,omitempty"`
	Value    string             `json:"value"`
	Message  string             `json:"message"`
}

type layoutResponse struct {
	Week    string                                    `json:"week,omitempty"`
	Today   model.Weekday                             `json:"today"`
	Window  windowDTO                                 `json:"window"`
	Days    map[model.Weekday][]model.PositionedBlock `json:"days"`
	Errors  []errorDTO                                `json:"errors"`
	Dropped []schedule.Drop                           `json:"dropped"`
	Stats   schedule.Stats                            `json:"stats"`
	Skipped []roster.Skip                             `json:"skipped,omitempty"`
	Cached  bool                                      `json:"cached"`
}

type conflictsRequest struct {
	Existing  json.RawMessage `json:"existing"`
	Candidate json.RawMessage `json:"candidate"`
}

type conflictsResponse struct {
	HasConflict     bool                `json:"has_conflict"`
	Conflicts       []schedule.Conflict `json:"conflicts"`
	ExistingErrors  []errorDTO          `json:"existing_errors"`
	CandidateErrors []errorDTO          `json:"candidate_errors"`
	ExistingDrops   []schedule.Drop     `json:"existing_dropped"`
	CandidateDrops  []schedule.Drop     `json:"candidate_dropped"`
	ExistingSkips   []roster.Skip       `json:"existing_skipped"`
	CandidateSkips  []roster.Skip       `json:"candidate_skipped"`
}

// handlePostLayout lays out a roster document posted as JSON or YAML.
//
// POST /api/layout
func (s *Server) handlePostLayout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	meetings, skipped, err := roster.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logSkipped("roster", skipped)

	layout, cached := s.cache.Build(meetings, s.Config().LayoutOptions())
	if !cached {
		logLayout("roster layout built", layout, "skipped", len(skipped))
	}
	resp := s.layoutDTO(layout, time.Time{}, cached)
	resp.Skipped = skipped
	writeJSON(w, http.StatusOK, resp)
}

// handleFeedLayout lays out the configured ICS feeds for one week.
//
// GET /api/layout?week=YYYY-MM-DD (default: the current week)
func (s *Server) handleFeedLayout(w http.ResponseWriter, r *http.Request) {
	week, err := s.weekParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	layout, cached, err := s.FeedLayout(r.Context(), week)
	if err != nil {
		s.writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.layoutDTO(layout, week, cached))
}

// handleConflicts checks a candidate course against an existing schedule.
//
// POST /api/conflicts {"existing": <roster>, "candidate": <roster>}
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"existing\": ..., \"candidate\": ...}")
		return
	}
	if len(req.Existing) == 0 || len(req.Candidate) == 0 {
		writeError(w, http.StatusBadRequest, "both existing and candidate are required")
		return
	}
	existing, existingSkips, err := roster.Decode(req.Existing)
	if err != nil {
		writeError(w, http.StatusBadRequest, "existing: "+err.Error())
		return
	}
	candidate, candidateSkips, err := roster.Decode(req.Candidate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "candidate: "+err.Error())
		return
	}
	logSkipped("existing", existingSkips)
	logSkipped("candidate", candidateSkips)

	report := schedule.CheckConflicts(existing, candidate, s.Config().LayoutOptions())
	appLog.Info("conflict check", "existing", len(existing), "candidate", len(candidate), "conflicts", len(report.Conflicts))
	writeJSON(w, http.StatusOK, conflictsResponse{
		HasConflict:     report.HasConflict(),
		Conflicts:       report.Conflicts,
		ExistingErrors:  errorDTOs(report.ExistingErrors),
		CandidateErrors: errorDTOs(report.CandidateErrors),
		ExistingDrops:   nonNil(report.ExistingDrops),
		CandidateDrops:  nonNil(report.CandidateDrops),
		ExistingSkips:   nonNil(existingSkips),
		CandidateSkips:  nonNil(candidateSkips),
	})
}

// handleExport serves the feed layout as a weekly recurring calendar.
//
// GET /api/schedule.ics?week=YYYY-MM-DD
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	week, err := s.weekParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	layout, _, err := s.FeedLayout(r.Context(), week)
	if err != nil {
		s.writeFeedError(w, err)
		return
	}
	cfg := s.Config()
	body := ics.Export(layout, week, ics.ExportOptions{
		Name:         "weekgrid",
		CompanionTag: cfg.Layout.CompanionTag,
		Now:          s.now(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
	_, _ = io.WriteString(w, body)
}

// weekParam resolves ?week= to the start of its week in the display zone.
func (s *Server) weekParam(r *http.Request) (time.Time, error) {
	cfg := s.Config()
	loc := cfg.Location()
	t := s.now()
	if v := r.URL.Query().Get("week"); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("week must be YYYY-MM-DD, got %q", v)
		}
		t = parsed
	}
	return ics.WeekStart(t, cfg.FirstWeekday(), loc), nil
}

func (s *Server) writeFeedError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoFeeds) {
		writeError(w, http.StatusNotFound, "no feeds configured")
		return
	}
	appLog.Error("feed layout failed", err)
	writeError(w, http.StatusBadGateway, "all feeds failed")
}

func (s *Server) today() model.Weekday {
	return model.FromTime(s.now().In(s.Config().Location()).Weekday())
}

func (s *Server) layoutDTO(l schedule.Layout, week time.Time, cached bool) layoutResponse {
	resp := layoutResponse{
		Today: s.today(),
		Window: windowDTO{
			Start:  schedule.FormatClock(l.Window.Start),
			End:    schedule.FormatClock(l.Window.End()),
			Length: l.Window.Length,
		},
		Days:    l.Days,
		Errors:  errorDTOs(l.Errors),
		Dropped: nonNil(l.Dropped),
		Stats:   l.Stats,
		Cached:  cached,
	}
	if !week.IsZero() {
		resp.Week = week.Format(time.DateOnly)
	}
	return resp
}

func logSkipped(doc string, skipped []roster.Skip) {
	for _, sk := range skipped {
		appLog.Warn("roster item skipped", "doc", doc, "path", sk.Path, "reason", sk.Reason)
	}
}

func errorDTOs(errs []*schedule.ParseError) []errorDTO {
	out := make([]errorDTO, 0, len(errs))
	for _, e := range errs {
		out = append(out, errorDTO{
			Kind:     e.Kind,
			Record:   e.Record,
			Identity: e.Identity,
			Field:    e.Field,
			Value:    e.Value,
			Message:  e.Error(),
		})
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
