// Package web serves computed week layouts as JSON, ICS and an HTML grid.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"weekgrid/internal/config"
	"weekgrid/internal/ics"
	"weekgrid/internal/layoutcache"
	appLog "weekgrid/internal/log"
	"weekgrid/internal/model"
	"weekgrid/internal/schedule"
)

// feedTTL bounds how long fetched feed meetings are reused between
// requests; the cron refresh drops them early.
const feedTTL = 30 * time.Second

type feedSnapshot struct {
	meetings  []model.RawMeeting
	updatedAt time.Time
}

// Server holds the live config, the layout memo and the per-week feed
// snapshots behind the HTTP handlers.
type Server struct {
	mux     *http.ServeMux
	fetcher *ics.Fetcher
	cache   *layoutcache.Cache

	mu  sync.RWMutex
	cfg *config.Config

	feedMu sync.Mutex
	feeds  map[string]feedSnapshot

	// now is swapped in tests.
	now func() time.Time
}

// NewServer constructs a Server. fetcher may be nil when no feeds are used.
func NewServer(cfg *config.Config, fetcher *ics.Fetcher) *Server {
	if fetcher == nil {
		fetcher = ics.NewFetcher(cfg.CacheDir)
	}
	s := &Server{
		mux:     http.NewServeMux(),
		fetcher: fetcher,
		cache:   layoutcache.New(0),
		cfg:     cfg,
		feeds:   make(map[string]feedSnapshot),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/layout", s.handlePostLayout)
	s.mux.HandleFunc("GET /api/layout", s.handleFeedLayout)
	s.mux.HandleFunc("POST /api/conflicts", s.handleConflicts)
	s.mux.HandleFunc("GET /api/schedule.ics", s.handleExport)
	s.mux.HandleFunc("GET /schedule", s.handleSchedulePage)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

// Handler returns the routes wrapped in basic auth when it is configured.
func (s *Server) Handler() http.Handler {
	return s.basicAuth(s.mux)
}

// Config returns the config currently in effect.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig swaps in a reloaded config. Cached layouts and feed snapshots
// are dropped since options or feeds may have changed.
func (s *Server) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	if old != nil && old.Listen != cfg.Listen {
		appLog.Warn("listen address change needs a restart", "running", old.Listen, "configured", cfg.Listen)
	}
	s.cache.Purge()
	s.dropFeeds()
}

// Refresh re-fetches the feeds for the week containing now and returns the
// resulting layout.
func (s *Server) Refresh(ctx context.Context) (schedule.Layout, error) {
	s.dropFeeds()
	cfg := s.Config()
	week := ics.WeekStart(s.now(), cfg.FirstWeekday(), cfg.Location())
	layout, _, err := s.FeedLayout(ctx, week)
	return layout, err
}

// FeedLayout lays out the configured feeds for the week starting at week.
// The bool reports whether the layout came from the memo.
func (s *Server) FeedLayout(ctx context.Context, week time.Time) (schedule.Layout, bool, error) {
	cfg := s.Config()
	meetings, err := s.feedMeetings(ctx, cfg, week)
	if err != nil {
		return schedule.Layout{}, false, err
	}
	layout, cached := s.cache.Build(meetings, cfg.LayoutOptions())
	if !cached {
		logLayout("feed layout built", layout, "week", week.Format(time.DateOnly))
	}
	return layout, cached, nil
}

var errNoFeeds = errors.New("web: no feeds configured")

func (s *Server) feedMeetings(ctx context.Context, cfg *config.Config, week time.Time) ([]model.RawMeeting, error) {
	sources := cfg.Sources()
	if len(sources) == 0 {
		return nil, errNoFeeds
	}

	key := week.Format(time.DateOnly)
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if snap, ok := s.feeds[key]; ok && s.now().Sub(snap.updatedAt) < feedTTL {
		return snap.meetings, nil
	}

	meetings, errs := ics.FeedMeetings(ctx, s.fetcher, sources, week, cfg.Location())
	if len(errs) == len(sources) {
		return nil, errors.Join(errs...)
	}
	s.feeds[key] = feedSnapshot{meetings: meetings, updatedAt: s.now()}
	return meetings, nil
}

func (s *Server) dropFeeds() {
	s.feedMu.Lock()
	clear(s.feeds)
	s.feedMu.Unlock()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.Config()
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := s.Config().BasicAuth
		if auth == nil || auth.Username == "" || auth.Password == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, auth.Username) || !secureCompare(p, auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekgrid", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.Config().Capture.Output)
}

func logLayout(msg string, l schedule.Layout, kv ...any) {
	kv = append(kv,
		"input", l.Stats.Input,
		"placed", l.Stats.Placed,
		"duplicates", l.Stats.Duplicates,
		"dropped", l.Stats.Dropped,
		"invalid", l.Stats.Invalid,
		"max_columns", l.Stats.MaxColumns,
	)
	appLog.Info(msg, kv...)
	for _, e := range l.Errors {
		appLog.Warn("record rejected", "record", e.Record, "id", e.Identity, "kind", string(e.Kind), "field", e.Field, "value", e.Value)
	}
	for _, d := range l.Dropped {
		appLog.Debug("record dropped", "record", d.Record, "reason", string(d.Reason), "value", d.Value)
	}
}
