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
	"path/filepath"
	"text/tabwriter"
	"time"

	"previa/internal/adapters/memscreen"
	redisadapter "previa/internal/adapters/redis"
	"previa/internal/adapters/screening"
	"previa/internal/config"
	"previa/internal/domain"
	"previa/internal/logging"
	"previa/internal/ports"
	"previa/internal/services/aggregator"
	"previa/internal/services/alertbrowser"
	"previa/internal/workers/scanrunner"
	"previa/internal/workers/scansession"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "scan":
		scanCmd(os.Args[2:])
	case "watch":
		watchCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `screenctl - supplier compliance screening

Usage:
  screenctl scan  --file <entities.csv> [--view alerts|rows|json] [--severity HIGH] [--article "Art. 69-B"]
                  [--query text] [--status text] [--expr 'rank >= 3'] [--order newest|oldest]
                  [--screening-url http://host:8000/api] [--config ./previa.yaml]
  screenctl watch [--redis redis://localhost:6379/0] [--config ./previa.yaml]
`)
}

func scanCmd(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	file := fs.String("file", "", "Entity file (.csv, .xlsx, .xls)")
	view := fs.String("view", "alerts", "Output: alerts, rows or json")
	severity := fs.String("severity", "", "Only alerts of this severity")
	article := fs.String("article", "", "Only alerts under this article")
	query := fs.String("query", "", "RFC or name substring")
	status := fs.String("status", "", "Status substring")
	expr := fs.String("expr", "", "CEL filter over alert fields")
	order := fs.String("order", "newest", "newest or oldest")
	screeningURL := fs.String("screening-url", "", "Remote screening service; local simulator when empty")
	timeout := fs.Duration("timeout", 5*time.Minute, "Give up after this long")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan:", err)
		os.Exit(2)
	}
	logging.Init(cfg.Logging.Format, cfg.Logging.Level)

	// precedence: flags > config > defaults
	if *screeningURL == "" {
		*screeningURL = cfg.Screening.URL
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "scan: --file is required")
		os.Exit(2)
	}
	filter := alertbrowser.Filter{Query: *query, Status: *status, Expr: *expr, Article: domain.Article(*article)}
	if *severity != "" {
		sev, ok := domain.ParseSeverity(*severity)
		if !ok {
			fmt.Fprintln(os.Stderr, "scan: unknown --severity", *severity)
			os.Exit(2)
		}
		filter.Severity = sev
	}
	pred, err := filter.Compile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan:", err)
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		slog.Error("read file", "err", err)
		os.Exit(1)
	}
	upload := ports.Upload{Filename: filepath.Base(*file), Data: data}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var backend ports.ScreeningService
	if *screeningURL != "" {
		client, err := screening.New(*screeningURL, cfg.Screening.Timeout)
		if err != nil {
			slog.Error("screening client", "err", err)
			os.Exit(1)
		}
		backend = client
	} else {
		store := memscreen.New()
		processor := scanrunner.ScreeningProcessor{Repo: store, Screen: memscreen.Lookup}
		scanrunner.Run(ctx, store, processor, 1, 100*time.Millisecond, slog.Default())
		backend = store
	}

	res, err := screen(ctx, backend, upload, cfg.Screening.PollInterval)
	if err != nil {
		slog.Error("scan failed", "file", upload.Filename, "err", err)
		os.Exit(1)
	}

	out := os.Stdout
	switch *view {
	case "rows":
		err = writeRows(out, res.Rows)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	default:
		err = writeAlerts(out, alertbrowser.Apply(res.Alerts, pred, alertbrowser.ParseOrder(*order)))
	}
	if err != nil {
		slog.Error("write output", "err", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Screened %d entities: %d flagged, %d clear\n", res.Total, res.Flagged, res.Clear)
}

// loadConfig tolerates a missing database; the CLI never uses one.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && !errors.Is(err, config.ErrNoDatabase) {
		return cfg, err
	}
	return cfg, nil
}

// screen runs one session to its end and aggregates its records.
func screen(ctx context.Context, svc ports.ScreeningService, file ports.Upload, interval time.Duration) (aggregator.Result, error) {
	sess, err := scansession.Start(ctx, svc, file, scansession.Options{
		Interval: interval,
		OnUpdate: func(s scansession.Snapshot) {
			slog.Debug("scan progress", "scan_id", s.ID, "state", s.State, "progress", s.Progress)
		},
	})
	if err != nil {
		return aggregator.Result{}, err
	}
	if err := sess.Wait(ctx); err != nil {
		sess.Cancel()
		return aggregator.Result{}, err
	}
	snap := sess.Snapshot()
	if snap.State != domain.StateCompleted {
		if err := sess.Err(); err != nil {
			return aggregator.Result{}, err
		}
		return aggregator.Result{}, fmt.Errorf("scan %s ended %s", snap.ID, snap.State)
	}
	return aggregator.Aggregate(sess.Records()), nil
}

func writeAlerts(w io.Writer, alerts []domain.Alert) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tARTICLE\tRFC\tNAME\tSTATUS\tNOTICE")
	for _, a := range alerts {
		notice := ""
		if a.Notice != nil {
			notice = a.Notice.Number
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.Severity, a.Article, a.RFC, a.Name, a.Status, notice)
	}
	return tw.Flush()
}

func writeRows(w io.Writer, rows []domain.TableRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RFC\tNAME\tSCORE\tSEVERITY\t69-B\t69\t69-BIS\t49-BIS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n", r.RFC, r.Name, r.RiskScore, r.Severity, r.Art69B, r.Art69, r.Art69Bis, r.Art49Bis)
	}
	return tw.Flush()
}

func watchCmd(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	redisURL := fs.String("redis", "", "Redis URL carrying completion events")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "watch:", err)
		os.Exit(2)
	}
	logger := logging.Init(cfg.Logging.Format, cfg.Logging.Level)
	if *redisURL == "" {
		*redisURL = cfg.RedisURL
	}
	if *redisURL == "" {
		fmt.Fprintln(os.Stderr, "watch: --redis (or REDIS_URL) is required")
		os.Exit(2)
	}

	pub, err := redisadapter.NewPublisher(redisadapter.Options{URL: *redisURL})
	if err != nil {
		slog.Error("redis connect", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	events, err := pub.Subscribe(ctx, logger)
	if err != nil {
		slog.Error("subscribe", "err", err)
		os.Exit(1)
	}
	for ev := range events {
		fmt.Printf("%s  %s  %s  total=%d flagged=%d critical=%d\n",
			ev.CompletedAt.Format(time.RFC3339), ev.SessionID, ev.Filename, ev.Total, ev.Flagged, ev.Counts[domain.SeverityCritical])
	}
}
