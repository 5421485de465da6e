package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"TickerLens/internal/cache"
	"TickerLens/internal/collector"
	"TickerLens/internal/config"
	"TickerLens/internal/console"
	"TickerLens/internal/executor"
	"TickerLens/internal/logging"
	"TickerLens/internal/metrics"
	"TickerLens/internal/model"
	"TickerLens/internal/notifier"
	"TickerLens/internal/reconcile"
	"TickerLens/internal/recorder"
	"TickerLens/internal/scheduler"
	"TickerLens/internal/session"
)

func main() {
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("config validation")
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logging")
	}
	log.Info().Msg("TickerLens starting...")

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics listener")
			}
		}()
		defer srv.Close()
		log.Info().Str("addr", cfg.Metrics.Listen).Msg("metrics listening")
	}

	// Init fetcher
	var fetcher collector.Fetcher
	switch cfg.DataSource.Provider {
	case "rest":
		fetcher = collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy, cfg.Timeout())
	case "synthetic":
		fetcher = &collector.SyntheticFetcher{}
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy, cfg.Timeout())
	}
	log.Info().Str("source", fetcher.Name()).Msg("data source")

	store, err := cache.New(cfg.Cache.MaxEntries, m)
	if err != nil {
		log.Fatal().Err(err).Msg("init cache")
	}
	col := collector.NewCollector(fetcher, log)
	exec := executor.New(col, store, executor.Options{
		Workers: cfg.Fetch.Workers,
		Policy:  cfg.Policy(),
		Metrics: m,
	}, log)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interactive := os.Getenv("TICKERLENS_HEADLESS") != "true"
	hub := notifier.NewHub(log, rec)
	if interactive {
		hub.AddSink(notifier.WriterSink(os.Stdout))
	} else {
		hub.AddSink(notifier.LogSink(logging.Component(log, "banner")))
	}
	viewLog := logging.Component(log, "view")
	hub.OnView(func(v model.ViewState) {
		viewLog.Debug().Uint64("version", v.Version).Strs("symbols", v.Symbols()).Bool("zoomed", v.Zoom != nil).Msg("view published")
	})

	var tn *notifier.TelegramNotifier
	var tsink *notifier.TelegramSink
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		tsink = notifier.NewTelegramSink(ctx, tn, 3)
		hub.AddSink(tsink)
	}

	ctl := reconcile.New(store, exec, hub, log, m)
	stopped := make(chan error, 1)
	go func() { stopped <- ctl.Run(ctx) }()

	handler := console.NewHandler(ctx, ctl, store, rec, log)
	handler.ExportDir = cfg.Export.Dir
	handler.Policy = exec.Policy()

	today := model.Today()
	desired, err := cfg.DesiredState(today)
	if err != nil {
		log.Fatal().Err(err).Msg("initial desired state")
	}
	if cfg.Session.StateFile != "" {
		sess, err := session.NewManager(cfg.Session.StateFile)
		if err != nil {
			log.Warn().Err(err).Msg("load session failed, starting from config defaults")
		} else {
			handler.Session = sess
			if restored, ok := sess.Restore(); ok {
				desired = restored
				log.Info().Strs("symbols", desired.Symbols).Str("window", desired.Window.String()).Msg("session restored")
			}
		}
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, ctl, store, rec, desired.End == today, log)
	if err := sched.RegisterAll(cfg.Schedule.RolloverCron, cfg.Schedule.StatsCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()
	handler.Tracker = sched

	if tn != nil && cfg.Telegram.Commands {
		go tn.StartPolling(ctx, handler.Handle)
		log.Info().Msg("telegram polling started")
	}

	if _, err := ctl.Submit(ctx, desired); err != nil {
		log.Fatal().Err(err).Msg("submit initial desired state")
	}

	replDone := make(chan struct{})
	if interactive {
		go func() {
			defer close(replDone)
			if err := handler.Run(ctx, os.Stdin, os.Stdout); err != nil {
				log.Error().Err(err).Msg("console")
			}
		}()
	}

	log.Info().Msg("TickerLens is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received, stopping...")
	case <-replDone:
		log.Info().Msg("console closed, stopping...")
	case err := <-stopped:
		log.Error().Err(err).Msg("controller stopped unexpectedly")
	}
	cancel()
	exec.Wait()
	hub.Close()
	if tsink != nil {
		tsink.Wait()
	}
	log.Info().Msg("TickerLens stopped")
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
