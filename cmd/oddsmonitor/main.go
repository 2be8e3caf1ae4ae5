package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/alert"
	"github.com/rewired-gh/oddsmonitor/internal/config"
	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/metrics"
	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/monitor"
	"github.com/rewired-gh/oddsmonitor/internal/scheduler"
	"github.com/rewired-gh/oddsmonitor/internal/scoring"
	sig "github.com/rewired-gh/oddsmonitor/internal/signal"
	"github.com/rewired-gh/oddsmonitor/internal/source"
	"github.com/rewired-gh/oddsmonitor/internal/storage"
	"github.com/rewired-gh/oddsmonitor/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var db *storage.Storage
	if cfg.Storage.Enabled {
		db, err = storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	quotes := history.New(cfg.HistoryStoreConfig())
	if db != nil && cfg.History.WarmStart {
		warmStart(db, quotes, cfg.Retention())
	}

	contexts := scoring.NewContextStore()
	var src source.Source
	switch cfg.Source.Mode {
	case "http":
		src = source.NewClient(cfg.Source.FeedURL, cfg.Source.Timeout, cfg.SourceClientConfig(), contexts)
		logger.Info("Using odds feed at %s", cfg.Source.FeedURL)
	default:
		seed := cfg.Source.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		src = source.NewSimulated(cfg.Source.Matches, cfg.Source.Bookmakers, seed)
		logger.Info("Using simulated feed for %d matches across %d bookmakers",
			len(cfg.Source.Matches), len(cfg.Source.Bookmakers))
	}

	scorer, err := scoring.NewWeightedScorer(cfg.ScoringProfile())
	if err != nil {
		logger.Fatal("Failed to initialize scorer: %v", err)
	}
	bankroll, err := cfg.Bankroll()
	if err != nil {
		logger.Fatal("Invalid bankroll: %v", err)
	}
	analyzer := monitor.NewAnalyzer(
		quotes,
		sig.NewEngine(cfg.SignalEngineConfig()),
		scorer,
		alert.NewEvaluator(cfg.AlertThresholds()),
		monitor.Config{
			AnalysisWindow: cfg.History.AnalysisWindow,
			WindowCount:    cfg.History.WindowCount,
			Bankroll:       bankroll,
			Estimator:      cfg.Estimator(),
			Contexts:       contexts,
			Metrics:        m,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinks := alert.MultiSink{alert.LogSink{}}
	var notifier monitor.Notifier
	if cfg.Telegram.Enabled {
		opts := telegram.Options{
			MaxRetries:     cfg.Telegram.MaxRetries,
			RetryDelayBase: cfg.Telegram.RetryDelayBase,
			MessagesPerMin: cfg.Telegram.MessagesPerMinute,
			Status:         analyzer,
		}
		if db != nil {
			opts.History = db
		}
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, opts)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
		sinks = append(sinks, telegramClient)
		notifier = telegramClient
		telegramClient.ListenForCommands(ctx)
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	dispatcherConfig := alert.Config{Cooldown: cfg.AlertCooldown(), SweepEvery: 100}
	if db != nil {
		dispatcherConfig.Recorder = db
	}
	if m != nil {
		dispatcherConfig.Observer = m
	}
	dispatcher := alert.NewDispatcher(sinks, dispatcherConfig)

	alerts := make(chan models.Alert, cfg.Collector.AlertQueueSize)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx, alerts)
	}()

	deps := monitor.Deps{
		Source:   src,
		Store:    quotes,
		Analyzer: analyzer,
		Alerts:   alerts,
		Notifier: notifier,
		Metrics:  m,
	}
	if db != nil {
		deps.QuoteLog = db
	}
	collector, err := monitor.NewCollector(deps, cfg.CollectorSettings())
	if err != nil {
		logger.Fatal("Failed to initialize collector: %v", err)
	}

	maintenance := &scheduler.Maintenance{
		History:      quotes,
		Dedup:        dispatcher,
		Observations: analyzer,
		Metrics:      m,
	}
	if db != nil {
		maintenance.Log = db
	}
	cron := scheduler.New(ctx)
	if err := maintenance.Register(cron, cfg.Maintenance.PurgeSchedule, cfg.Maintenance.SweepSchedule); err != nil {
		logger.Fatal("Failed to schedule maintenance: %v", err)
	}
	cron.Start()

	var metricsServer *http.Server
	if m != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("Serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start collector: %v", err)
	}
	logger.Info("Monitoring service started (interval: %v, retention: %v, min EV: %.1f%%, cooldown: %v)",
		cfg.CollectionInterval(), cfg.Retention(), cfg.Alerts.MinEVThreshold, cfg.AlertCooldown())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")

	collector.Stop()
	cron.Stop()
	close(alerts)
	<-dispatcherDone
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop metrics server: %v", err)
		}
		shutdownCancel()
	}
	logger.Info("Service stopped")
}

// warmStart rehydrates the history store from the quote log.
func warmStart(db *storage.Storage, quotes *history.Store, retention time.Duration) {
	loaded, err := db.LoadQuotesSince(time.Now().Add(-retention))
	if err != nil {
		logger.Warn("Failed to load quote history: %v", err)
		return
	}
	restored := 0
	for _, q := range loaded {
		if err := quotes.Append(q); err != nil {
			logger.Debug("Skipping stored quote for %s: %v", q.MatchID, err)
			continue
		}
		restored++
	}
	logger.Info("Restored %d quotes across %d series from storage", restored, len(quotes.Keys()))
}
