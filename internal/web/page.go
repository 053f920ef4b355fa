package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	appLog "weekgrid/internal/log"
	"weekgrid/internal/model"
	"weekgrid/internal/schedule"
)

//go:embed templates/schedule.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("schedule.html").Funcs(template.FuncMap{
	"blockStyle": blockStyle,
	"clock":      schedule.FormatClock,
	"dayName":    dayName,
}).ParseFS(templateFS, "templates/schedule.html"))

// hourHeight is the pixel height of one visible hour on the page.
const hourHeight = 48

type hourLine struct {
	Label string
	Top   float64
}

type pageDay struct {
	Key    model.Weekday
	Date   string
	Today  bool
	Blocks []model.PositionedBlock
}

type pageData struct {
	Week        string
	Days        []pageDay
	Hours       []hourLine
	Height      int
	ColumnWidth float64
	Stats       schedule.Stats
	Problems    int
}

// handleSchedulePage renders the feed layout as a static grid. The root
// element carries data-ready="true" for the screenshot capture to wait on.
//
// GET /schedule?week=YYYY-MM-DD
func (s *Server) handleSchedulePage(w http.ResponseWriter, r *http.Request) {
	week, err := s.weekParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	layout, _, err := s.FeedLayout(r.Context(), week)
	if err != nil && !errors.Is(err, errNoFeeds) {
		appLog.Error("schedule page: feed layout failed", err)
		http.Error(w, "feeds unavailable", http.StatusBadGateway)
		return
	}
	if err != nil {
		// An empty grid is still a useful page.
		layout = schedule.Build(nil, s.Config().LayoutOptions())
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, s.pageData(layout, week)); err != nil {
		appLog.Error("schedule page: render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) pageData(l schedule.Layout, week time.Time) pageData {
	cfg := s.Config()
	today := s.now().In(cfg.Location())

	data := pageData{
		Week:        week.Format(time.DateOnly),
		Height:      l.Window.Length * hourHeight / 60,
		ColumnWidth: cfg.Layout.ColumnWidth,
		Stats:       l.Stats,
		Problems:    len(l.Errors) + len(l.Dropped),
	}

	for i := range 7 {
		date := week.AddDate(0, 0, i)
		key := model.FromTime(date.Weekday())
		data.Days = append(data.Days, pageDay{
			Key:    key,
			Date:   date.Format("01/02"),
			Today:  sameDate(date, today),
			Blocks: l.Days[key],
		})
	}

	for m := l.Window.Start - l.Window.Start%60; m <= l.Window.End(); m += 60 {
		if m < l.Window.Start {
			continue
		}
		data.Hours = append(data.Hours, hourLine{
			Label: schedule.FormatClock(m),
			Top:   l.Window.ToFraction(l.Window.Offset(m)) * 100,
		})
	}
	return data
}

func blockStyle(g model.Geometry) template.CSS {
	return template.CSS(fmt.Sprintf("top:%.4f%%;height:%.4f%%;left:%.1fpx;width:%.1fpx",
		g.TopFraction*100, g.HeightFraction*100, g.Left, g.Width))
}

func dayName(d model.Weekday) string {
	s := string(d)
	if s == "" {
		return s
	}
	return s[:1] + strings.ToLower(s[1:])
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
