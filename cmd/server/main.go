package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "previa/internal/adapters/http"
	"previa/internal/adapters/memscreen"
	pg "previa/internal/adapters/postgres"
	redisadapter "previa/internal/adapters/redis"
	"previa/internal/adapters/screening"
	"previa/internal/config"
	"previa/internal/logging"
	"previa/internal/ports"
	chatsvc "previa/internal/services/chat"
	scansvc "previa/internal/services/scanner"
	"previa/internal/services/watchlists"
	scanworker "previa/internal/workers/scanrunner"
)

func main() {
	configPath := flag.String("config", os.Getenv("PREVIA_CONFIG"), "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, cfgErr := config.Load(configPath)
	logger := logging.Init(cfg.Logging.Format, cfg.Logging.Level)
	if cfgErr != nil {
		if !errors.Is(cfgErr, config.ErrNoDatabase) {
			return cfgErr
		}
		logger.Warn("running without database; watchlist routes disabled", "err", cfgErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *pg.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if cfg.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
	}

	// Screening backend: remote service, or the local one backed by Postgres
	// or memory and processed by the scan workers.
	var backend ports.ScreeningService
	if cfg.Screening.URL != "" {
		client, err := screening.New(cfg.Screening.URL, cfg.Screening.Timeout)
		if err != nil {
			return err
		}
		backend = client
		logger.Info("using remote screening service", "url", cfg.Screening.URL)
	} else {
		var jobs ports.JobRepository
		if db != nil {
			jobs, backend = db, db
		} else {
			store := memscreen.New()
			jobs, backend = store, store
		}
		processor := scanworker.ScreeningProcessor{Repo: jobs, Screen: memscreen.Lookup, Delay: cfg.ScreenDelay}
		scanworker.Run(ctx, jobs, processor, cfg.ScanWorkers, 500*time.Millisecond, logger)
		logger.Info("scan workers started", "workers", cfg.ScanWorkers, "persistent", db != nil)
	}

	var publisher ports.CompletionPublisher
	if cfg.RedisURL != "" {
		pub, err := redisadapter.NewPublisher(redisadapter.Options{URL: cfg.RedisURL})
		if err != nil {
			return err
		}
		defer pub.Close()
		publisher = pub
	}

	scanner := scansvc.New(backend, scansvc.Options{
		Interval:  cfg.Screening.PollInterval,
		Logger:    logger,
		Publisher: publisher,
	})
	defer scanner.Close()
	chat := chatsvc.New(backend, chatsvc.PanelOptions{Interval: cfg.Screening.PollInterval, Logger: logger})
	defer chat.Close()

	var wl httpadapter.WatchlistService
	if db != nil {
		wl = watchlists.New(db, logger)
	}

	srv := httpadapter.New(scanner, wl, chat, logger)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
