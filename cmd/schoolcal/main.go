package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"schoolcal/internal/capture"
	"schoolcal/internal/config"
	"schoolcal/internal/ics"
	"schoolcal/internal/layout"
	appLog "schoolcal/internal/log"
	"schoolcal/internal/metrics"
	"schoolcal/internal/store"
	"schoolcal/internal/web"
)

var version = "0.1.0-dev"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	view       string
	date       string
	snapshot   bool
}

func main() {
	flags := parseFlags()
	if err := flags.validate(); err != nil {
		appLog.Error("invalid flags", err)
		os.Exit(2)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("schoolcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"feeds", len(conf.Feeds),
		"once", flags.once,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(reg, "")

	loc := conf.Location()
	sources := make([]ics.Source, 0, len(conf.Feeds))
	for _, f := range conf.Feeds {
		sources = append(sources, ics.Source{ID: f.SourceID(), URL: f.URL})
	}

	st := store.New(ics.NewFetcher(conf.CacheDir), sources, loc, collector)
	engine := layout.New(layout.WithMetrics(collector))
	srv := web.NewServer(conf, st, engine,
		web.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
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

	if flags.once {
		if err := st.Refresh(ctx); err != nil {
			appLog.Error("feed refresh failed", err)
			os.Exit(1)
		}
		if err := srv.WriteLayout(os.Stdout, flags.view, flags.date); err != nil {
			appLog.Error("layout failed", err, "view", flags.view, "date", flags.date)
			os.Exit(1)
		}
		return
	}

	// Bind before the first refresh so its snapshot can reach /calendar.
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		appLog.Error("listen failed", err, "listen", conf.Listen)
		os.Exit(1)
	}
	host := dialHost(ln.Addr())

	refresh := func() {
		if err := st.Refresh(ctx); err != nil {
			appLog.Error("feed refresh failed", err)
			return
		}
		if flags.snapshot {
			takeSnapshot(ctx, conf, host, flags.view)
		}
	}

	sched := cron.New(cron.WithLocation(loc))
	if _, err := sched.AddFunc(conf.RefreshCron, refresh); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	go refresh()

	if err := srv.Serve(ctx, ln); err != nil {
		appLog.Error("http server failed", err)
		cancel()
		return
	}
	appLog.Info("schoolcal exiting")
}

// dialHost turns a listener address into one a local client can dial;
// wildcard binds are reached over loopback.
func dialHost(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	ip := tcp.IP
	if ip == nil || ip.IsUnspecified() {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port))
}

func takeSnapshot(ctx context.Context, conf *config.Config, host, view string) {
	u := url.URL{
		Scheme:   "http",
		Host:     host,
		Path:     "/calendar",
		RawQuery: url.Values{"view": {view}}.Encode(),
	}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" {
		u.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
	}

	if err := capture.Snapshot(ctx, capture.Options{URL: u.String(), OutputPath: conf.PreviewPath}); err != nil {
		appLog.Error("snapshot failed", err, "path", conf.PreviewPath)
		return
	}
	appLog.Info("snapshot written", "path", conf.PreviewPath)
}

// validate rejects flag combinations that can never succeed.
func (f flagConfig) validate() error {
	switch f.view {
	case "day", "week", "month":
	default:
		return fmt.Errorf("unknown view %q", f.view)
	}
	if f.snapshot && f.once {
		return errors.New("-snapshot needs the server; it cannot be combined with -once")
	}
	if f.snapshot && !web.SupportsCalendarView(f.view) {
		return fmt.Errorf("-snapshot supports day and week views, not %q", f.view)
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schoolcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh feeds, print one layout as JSON and exit")
	flag.StringVar(&cfg.view, "view", "week", "View for -once and -snapshot: day, week or month")
	flag.StringVar(&cfg.date, "date", "", "Date (YYYY-MM-DD) for -once; defaults to today")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture /calendar to preview_path after each refresh")

	flag.Parse()

	return cfg
}
