package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/signal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestLoadAndValidate(t *testing.T) {
	content := `
source:
  mode: http
  feed_url: "https://odds.example.com/v1/nba"
  timeout: 5s
  rate_limit: 2

collector:
  collection_interval_seconds: 60
  backoff_max: 2m

history:
  retention_days: 3
  analysis_window: 30m

signal:
  volatility_threshold: 0.08
  max_kelly_stake_fraction: 0.02
  bankroll: "2500.00"
  estimator: prior
  prior_home: 0.55
  prior_away: 0.45

scoring:
  confidence_threshold_strong: 0.9
  weights:
    momentum: 0.4
    pattern: 0.2
    situational: 0.2
    risk_adjusted: 0.1
    context: 0.1

alerts:
  min_ev_threshold: 3.5
  alert_cooldown_seconds: 600

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Source.Timeout != 5*time.Second {
		t.Errorf("Unexpected source timeout: %v", cfg.Source.Timeout)
	}
	if cfg.CollectionInterval() != time.Minute {
		t.Errorf("Unexpected collection interval: %v", cfg.CollectionInterval())
	}
	if cfg.Collector.BackoffMax != 2*time.Minute || cfg.Collector.BackoffBase != 5*time.Second {
		t.Errorf("Unexpected backoff: %v..%v", cfg.Collector.BackoffBase, cfg.Collector.BackoffMax)
	}
	if cfg.Retention() != 72*time.Hour {
		t.Errorf("Unexpected retention: %v", cfg.Retention())
	}
	if cfg.AlertCooldown() != 10*time.Minute {
		t.Errorf("Unexpected cooldown: %v", cfg.AlertCooldown())
	}
	if cfg.Signal.TrendThreshold != 0.01 {
		t.Errorf("Expected default trend threshold, got %v", cfg.Signal.TrendThreshold)
	}

	bankroll, err := cfg.Bankroll()
	if err != nil || bankroll.String() != "2500" {
		t.Errorf("Unexpected bankroll: %v, %v", bankroll, err)
	}
	if est, ok := cfg.Estimator().(signal.PriorEstimator); !ok || est.Home != 0.55 {
		t.Errorf("Unexpected estimator: %#v", cfg.Estimator())
	}

	p := cfg.ScoringProfile()
	if p.Thresholds.Strong != 0.9 || p.Thresholds.Moderate != 0.75 {
		t.Errorf("Unexpected thresholds: %+v", p.Thresholds)
	}
	if p.Weights.Momentum != 0.4 {
		t.Errorf("Unexpected momentum weight: %v", p.Weights.Momentum)
	}
	if len(p.Amplifiers) != 3 {
		t.Errorf("Expected default amplifiers, got %+v", p.Amplifiers)
	}

	if th := cfg.AlertThresholds(); th.MinEV != 3.5 || th.MovementPct != 5 {
		t.Errorf("Unexpected alert thresholds: %+v", th)
	}
	if hc := cfg.HistoryStoreConfig(); hc.VolatilityThreshold != 0.08 {
		t.Errorf("Unexpected history config: %+v", hc)
	}
}

func TestDefaults(t *testing.T) {
	cfg := loadDefaults(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	if cfg.Source.Mode != "simulated" {
		t.Errorf("Unexpected source mode: %s", cfg.Source.Mode)
	}
	if cfg.CollectionInterval() != 30*time.Second {
		t.Errorf("Unexpected interval: %v", cfg.CollectionInterval())
	}
	if cfg.History.RetentionDays != 7 {
		t.Errorf("Unexpected retention days: %d", cfg.History.RetentionDays)
	}
	if cfg.Signal.VolatilityThreshold != 0.10 || cfg.Signal.MaxKellyStakeFraction != 0.05 {
		t.Errorf("Unexpected signal defaults: %+v", cfg.Signal)
	}
	if cfg.Alerts.MinEVThreshold != 5.0 || cfg.Alerts.AlertCooldownSeconds != 300 {
		t.Errorf("Unexpected alert defaults: %+v", cfg.Alerts)
	}
	if cfg.Scoring.ConfidenceThresholdStrong != 0.85 || cfg.Scoring.ConfidenceThresholdModerate != 0.75 {
		t.Errorf("Unexpected scoring defaults: %+v", cfg.Scoring)
	}
	if _, ok := cfg.Estimator().(signal.ConsensusEstimator); !ok {
		t.Errorf("Expected consensus estimator, got %T", cfg.Estimator())
	}
	if b, _ := cfg.Bankroll(); !b.IsZero() {
		t.Errorf("Expected zero bankroll, got %s", b)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ODDSMONITOR_ALERTS_MIN_EV_THRESHOLD", "7.5")
	t.Setenv("ODDSMONITOR_COLLECTOR_COLLECTION_INTERVAL_SECONDS", "15")

	cfg := loadDefaults(t)
	if cfg.Alerts.MinEVThreshold != 7.5 {
		t.Errorf("Expected env override of min EV, got %v", cfg.Alerts.MinEVThreshold)
	}
	if cfg.CollectionInterval() != 15*time.Second {
		t.Errorf("Expected env override of interval, got %v", cfg.CollectionInterval())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"unknown source mode", func(c *Config) { c.Source.Mode = "ftp" }, "source.mode"},
		{"http without url", func(c *Config) { c.Source.Mode = "http" }, "source.feed_url"},
		{"zero interval", func(c *Config) { c.Collector.CollectionIntervalSeconds = 0 }, "collection_interval_seconds"},
		{"backoff inverted", func(c *Config) { c.Collector.BackoffMax = time.Second }, "backoff_base"},
		{"zero retention", func(c *Config) { c.History.RetentionDays = 0 }, "retention_days"},
		{"zero volatility threshold", func(c *Config) { c.Signal.VolatilityThreshold = 0 }, "volatility_threshold"},
		{"kelly cap above one", func(c *Config) { c.Signal.MaxKellyStakeFraction = 1.5 }, "max_kelly_stake_fraction"},
		{"bad bankroll", func(c *Config) { c.Signal.Bankroll = "lots" }, "signal.bankroll"},
		{"negative bankroll", func(c *Config) { c.Signal.Bankroll = "-10" }, "signal.bankroll"},
		{"prior without priors", func(c *Config) { c.Signal.Estimator = "prior" }, "prior_home"},
		{"unknown estimator", func(c *Config) { c.Signal.Estimator = "oracle" }, "signal.estimator"},
		{"weights off", func(c *Config) { c.Scoring.Weights.Momentum = 0.9 }, "scoring profile"},
		{"thresholds inverted", func(c *Config) { c.Scoring.ConfidenceThresholdModerate = 0.9 }, "scoring profile"},
		{"zero cooldown", func(c *Config) { c.Alerts.AlertCooldownSeconds = 0 }, "alert_cooldown_seconds"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, "telegram.bot_token"},
		{"storage without path", func(c *Config) { c.Storage.DBPath = "" }, "storage.db_path"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"bad cron", func(c *Config) { c.Maintenance.PurgeSchedule = "every hour" }, "purge_schedule"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("error %q does not mention %q", err, tt.wantKey)
			}
		})
	}
}
