package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"weekgrid/internal/capture"
	"weekgrid/internal/config"
	"weekgrid/internal/ics"
	appLog "weekgrid/internal/log"
	"weekgrid/internal/roster"
	"weekgrid/internal/schedule"
	"weekgrid/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	week       string
	rosterPath string
	icsOut     string
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("weekgrid starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"feeds", len(conf.Feeds),
		"window_start", conf.Layout.WindowStart,
		"window_length", conf.Layout.WindowLength,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fetcher := ics.NewFetcher(conf.CacheDir)
	srv := web.NewServer(conf, fetcher)

	if flags.once {
		if err := runOnce(ctx, srv, flags); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	r := newRefresher(srv)
	if err := r.schedule(conf); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	r.cron.Start()
	defer r.cron.Stop()

	go func() {
		err := config.Watch(ctx, flags.configPath, func(c *config.Config) {
			if flags.listen != "" {
				c.Listen = flags.listen
			}
			if !flags.debug {
				appLog.SetLevel(appLog.ParseLevel(c.LogLevel))
			}
			srv.SetConfig(c)
			if err := r.schedule(c); err != nil {
				appLog.Error("refresh schedule not updated", err, "refresh", c.RefreshCron)
			}
			go r.run(ctx)
		})
		if err != nil {
			appLog.Error("config watch unavailable", err, "config_path", flags.configPath)
		}
	}()

	// First refresh once the listener is likely up, so capture can reach it.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			r.run(ctx)
		}
	}()

	if err := srv.Run(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
	appLog.Info("weekgrid exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig
	flag.StringVar(&cfg.configPath, "config", config.DefaultPath, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print one week layout as JSON and exit")
	flag.StringVar(&cfg.week, "week", "", "Week to lay out in -once mode, YYYY-MM-DD (default: current week)")
	flag.StringVar(&cfg.rosterPath, "roster", "", "Lay out a JSON/YAML roster file instead of the configured feeds (-once)")
	flag.StringVar(&cfg.icsOut, "ics-out", "", "Also write the layout as an ICS calendar to this path (-once)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return cfg
}

// runOnce builds a single layout, prints it to stdout and optionally
// exports it as ICS.
func runOnce(ctx context.Context, srv *web.Server, flags flagConfig) error {
	conf := srv.Config()
	loc := conf.Location()

	at := time.Now()
	if flags.week != "" {
		t, err := time.ParseInLocation(time.DateOnly, flags.week, loc)
		if err != nil {
			return fmt.Errorf("-week: %w", err)
		}
		at = t
	}
	week := ics.WeekStart(at, conf.FirstWeekday(), loc)

	var layout schedule.Layout
	if flags.rosterPath != "" {
		data, err := os.ReadFile(flags.rosterPath)
		if err != nil {
			return err
		}
		meetings, skipped, err := roster.Decode(data)
		if err != nil {
			return err
		}
		for _, sk := range skipped {
			appLog.Warn("roster item skipped", "path", sk.Path, "reason", sk.Reason)
		}
		layout = schedule.Build(meetings, conf.LayoutOptions())
	} else {
		var err error
		layout, _, err = srv.FeedLayout(ctx, week)
		if err != nil {
			return err
		}
	}

	for _, e := range layout.Errors {
		appLog.Warn("record rejected", "err", e.Error())
	}
	appLog.Info("layout built",
		"week", week.Format(time.DateOnly),
		"placed", layout.Stats.Placed,
		"dropped", layout.Stats.Dropped,
		"invalid", layout.Stats.Invalid,
		"max_columns", layout.Stats.MaxColumns,
	)

	out, err := json.MarshalIndent(struct {
		Week string `json:"week"`
		schedule.Layout
	}{Week: week.Format(time.DateOnly), Layout: layout}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if flags.icsOut != "" {
		body := ics.Export(layout, week, ics.ExportOptions{Name: "weekgrid", CompanionTag: conf.Layout.CompanionTag})
		if err := os.WriteFile(flags.icsOut, []byte(body), 0o644); err != nil {
			return fmt.Errorf("-ics-out: %w", err)
		}
		appLog.Info("ics written", "path", flags.icsOut)
	}
	return nil
}

// refresher re-fetches the feeds on the configured cron schedule and
// refreshes the preview capture.
type refresher struct {
	srv  *web.Server
	cron *cron.Cron

	mu      sync.Mutex
	entry   cron.EntryID
	spec    string
	running sync.Mutex
}

func newRefresher(srv *web.Server) *refresher {
	return &refresher{
		srv:  srv,
		cron: cron.New(cron.WithLocation(srv.Config().Location())),
	}
}

// schedule (re)registers the refresh job when the cron spec changed.
func (r *refresher) schedule(conf *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conf.RefreshCron == r.spec && r.entry != 0 {
		return nil
	}
	id, err := r.cron.AddFunc(conf.RefreshCron, func() { r.run(context.Background()) })
	if err != nil {
		return err
	}
	if r.entry != 0 {
		r.cron.Remove(r.entry)
	}
	r.entry, r.spec = id, conf.RefreshCron
	appLog.Info("refresh scheduled", "refresh", conf.RefreshCron)
	return nil
}

func (r *refresher) run(ctx context.Context) {
	if !r.running.TryLock() {
		appLog.Debug("refresh already running, skipped")
		return
	}
	defer r.running.Unlock()

	start := time.Now()
	layout, err := r.srv.Refresh(ctx)
	if err != nil {
		appLog.Warn("refresh failed", "err", err.Error())
		return
	}
	appLog.Info("refresh done", "placed", layout.Stats.Placed, "elapsed", time.Since(start).String())

	conf := r.srv.Config()
	if !conf.Capture.Enabled {
		return
	}
	opts := capture.Options{
		URL:        "http://" + loopback(conf.Listen) + "/schedule",
		OutputPath: conf.Capture.Output,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
	}
	if conf.BasicAuth != nil {
		opts.Username, opts.Password = conf.BasicAuth.Username, conf.BasicAuth.Password
	}
	if err := capture.SchedulePNG(ctx, opts); err != nil {
		appLog.Error("preview capture failed", err)
		return
	}
	appLog.Info("preview captured", "path", conf.Capture.Output)
}

// loopback rewrites a wildcard listen address to one a local browser can
// dial.
func loopback(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
