package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/lyftr/internal/api"
	"github.com/mattjoyce/lyftr/internal/config"
	"github.com/mattjoyce/lyftr/internal/events"
	"github.com/mattjoyce/lyftr/internal/ingest"
	"github.com/mattjoyce/lyftr/internal/lock"
	"github.com/mattjoyce/lyftr/internal/log"
	"github.com/mattjoyce/lyftr/internal/metrics"
	"github.com/mattjoyce/lyftr/internal/query"
	"github.com/mattjoyce/lyftr/internal/storage"
	"github.com/mattjoyce/lyftr/internal/store"
	"github.com/mattjoyce/lyftr/internal/tui/watch"
)

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: lyftr system <action>")
	fmt.Fprintln(w, "Actions: start, status, watch")
}

func runStart(args []string) int {
	if hasHelpFlag(args) {
		fmt.Println("Usage: lyftr system start [--config PATH]")
		fmt.Println("Start the ingestion service in the foreground.")
		return 0
	}

	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("lyftr starting", "version", version, "config", cfg.SourceFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("lyftr failed", "error", err)
		return 1
	}

	logger.Info("lyftr stopped")
	return 0
}

// serve wires storage, ingestion, queries and the HTTP API, and blocks until
// ctx is cancelled or the server fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if lockPath := cfg.Database.LockPath(); lockPath != "" {
		pidLock, err := lock.AcquirePIDLock(lockPath)
		if err != nil {
			return fmt.Errorf("acquire PID lock (another instance may be running): %w", err)
		}
		defer func() { _ = pidLock.Release() }()
		logger.Info("acquired PID lock", "path", lockPath)
	}

	dbPath := cfg.Database.Path()
	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open database %q: %w", dbPath, err)
	}
	st := store.New(db, store.WithOpTimeout(cfg.Database.OpTimeout))
	defer func() { _ = st.Close() }()
	logger.Info("database opened", "path", dbPath)

	if cfg.Webhook.Secret == "" {
		logger.Warn("WEBHOOK_SECRET is not set; webhooks will be rejected and readiness will fail")
	}

	m := metrics.New()
	hub := events.NewHub(cfg.Events.Buffer)
	pipeline := ingest.New(cfg.Webhook.Secret, st,
		ingest.WithRecorder(ingest.Recorders{m, hub}),
		ingest.WithLogger(log.WithComponent("ingest")),
	)

	srv := api.New(api.Config{
		Listen:           cfg.HTTP.Listen,
		ServiceName:      cfg.Service.Name,
		SignatureHeader:  cfg.Webhook.SignatureHeader,
		MaxBodySize:      cfg.Webhook.MaxBodyBytes,
		SecretConfigured: cfg.Webhook.Secret != "",
		ReadTimeout:      cfg.HTTP.ReadTimeout,
		WriteTimeout:     cfg.HTTP.WriteTimeout,
		ShutdownTimeout:  cfg.HTTP.ShutdownTimeout,
		ReadinessTimeout: cfg.HTTP.ReadinessTimeout,
	}, api.Deps{
		Ingester: pipeline,
		Messages: query.NewService(st),
		Stats:    query.NewStats(st, cfg.Stats.TopSenders),
		Store:    st,
		Events:   hub,
		Metrics:  m,
	}, log.WithComponent("api"))

	return srv.Start(ctx)
}

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []statusCheck `json:"checks"`
}

func printSystemStatusHelp() {
	fmt.Println("Usage: lyftr system status [--config PATH] [--json]")
	fmt.Println("Check configuration, database reachability, webhook secret and PID lock state.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := collectStatus(context.Background(), *configPath)

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, c := range report.Checks {
			state := "OK"
			if !c.OK {
				state = "FAIL"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, state, c.Detail)
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}

func collectStatus(ctx context.Context, configPath string) statusReport {
	cfg, err := config.Load(configPath)
	if err != nil {
		return statusReport{Checks: []statusCheck{
			{Name: "config_load", Detail: err.Error()},
			{Name: "database", Detail: "skipped: config not loaded"},
			{Name: "webhook_secret", Detail: "skipped: config not loaded"},
			{Name: "pid_lock", Detail: "skipped: config not loaded"},
		}}
	}

	source := cfg.SourceFile
	if source == "" {
		source = "defaults and environment"
	}
	checks := []statusCheck{
		{Name: "config_load", OK: true, Detail: source},
		databaseCheck(ctx, cfg),
		secretCheck(cfg),
		pidLockCheck(cfg),
	}

	report := statusReport{Healthy: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			report.Healthy = false
		}
	}
	return report
}

func databaseCheck(ctx context.Context, cfg *config.Config) statusCheck {
	path := cfg.Database.Path()
	c := statusCheck{Name: "database"}
	if _, err := os.Stat(path); err != nil {
		c.Detail = fmt.Sprintf("%s: %v", path, err)
		return c
	}
	fsInfo, err := storage.InspectFilesystem(path)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if fsInfo.Network() {
		c.Detail = fmt.Sprintf("%s: on network filesystem %s; SQLite needs local disk", path, fsInfo.Type)
		return c
	}

	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	st := store.New(db, store.WithOpTimeout(cfg.Database.OpTimeout))
	defer func() { _ = st.Close() }()

	agg, err := st.Aggregate(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%s on %s (%d messages, %d senders)", path, fsInfo.Type, agg.TotalMessages, agg.DistinctSenders)
	return c
}

func secretCheck(cfg *config.Config) statusCheck {
	if cfg.Webhook.Secret == "" {
		return statusCheck{Name: "webhook_secret", Detail: "WEBHOOK_SECRET is not set"}
	}
	return statusCheck{Name: "webhook_secret", OK: true, Detail: "configured"}
}

// pidLockCheck probes the lock without keeping it. A held lock is healthy:
// it means the service is running.
func pidLockCheck(cfg *config.Config) statusCheck {
	c := statusCheck{Name: "pid_lock", OK: true}
	lockPath := cfg.Database.LockPath()
	if lockPath == "" {
		c.Detail = "disabled"
		return c
	}

	l, err := lock.AcquirePIDLock(lockPath)
	var locked *lock.LockedError
	switch {
	case errors.As(err, &locked):
		c.Detail = fmt.Sprintf("held by pid %d (service running)", locked.PID)
	case err != nil:
		c.OK = false
		c.Detail = err.Error()
	default:
		_ = l.Release()
		c.Detail = fmt.Sprintf("free (%s)", lockPath)
	}
	return c
}

func runWatch(args []string) int {
	if hasHelpFlag(args) {
		printWatchHelp()
		return 0
	}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("url", envOr("LYFTR_URL", "http://localhost:8000"), "lyftr base URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func printWatchHelp() {
	fmt.Println("Usage: lyftr system watch [--url URL]")
	fmt.Println()
	fmt.Println("Live ingestion dashboard: readiness, store stats and the webhook event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --url URL        Service base URL (default: $LYFTR_URL or http://localhost:8000)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓              Scroll events")
	fmt.Println("  PgUp/PgDn        Scroll senders")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
