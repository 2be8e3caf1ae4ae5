package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/oddsmonitor/internal/alert"
	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/monitor"
	"github.com/rewired-gh/oddsmonitor/internal/scoring"
	"github.com/rewired-gh/oddsmonitor/internal/signal"
	"github.com/rewired-gh/oddsmonitor/internal/source"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Source      SourceConfig      `mapstructure:"source"`
	Collector   CollectorConfig   `mapstructure:"collector"`
	History     HistoryConfig     `mapstructure:"history"`
	Signal      SignalConfig      `mapstructure:"signal"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SourceConfig selects and tunes the quote source
type SourceConfig struct {
	Mode           string        `mapstructure:"mode"` // "http" or "simulated"
	FeedURL        string        `mapstructure:"feed_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	Burst          int           `mapstructure:"burst"`
	Matches        []string      `mapstructure:"matches"`
	Bookmakers     []string      `mapstructure:"bookmakers"`
	Seed           int64         `mapstructure:"seed"`
}

// CollectorConfig holds collection loop configuration
type CollectorConfig struct {
	CollectionIntervalSeconds int           `mapstructure:"collection_interval_seconds"`
	FetchTimeout              time.Duration `mapstructure:"fetch_timeout"`
	BackoffBase               time.Duration `mapstructure:"backoff_base"`
	BackoffMax                time.Duration `mapstructure:"backoff_max"`
	AlertQueueSize            int           `mapstructure:"alert_queue_size"`
}

// HistoryConfig holds in-memory history configuration
type HistoryConfig struct {
	RetentionDays  int           `mapstructure:"retention_days"`
	AnalysisWindow time.Duration `mapstructure:"analysis_window"`
	WindowCount    int           `mapstructure:"window_count"`
	WarmStart      bool          `mapstructure:"warm_start"`
}

// SignalConfig holds signal engine configuration
type SignalConfig struct {
	VolatilityThreshold   float64 `mapstructure:"volatility_threshold"`
	TrendThreshold        float64 `mapstructure:"trend_threshold"`
	MaxKellyStakeFraction float64 `mapstructure:"max_kelly_stake_fraction"`
	ReferenceStake        float64 `mapstructure:"reference_stake"`
	Bankroll              string  `mapstructure:"bankroll"` // decimal string, empty for no stake suggestion
	Estimator             string  `mapstructure:"estimator"` // "consensus" or "prior"
	RemoveMargin          bool    `mapstructure:"remove_margin"`
	PriorHome             float64 `mapstructure:"prior_home"`
	PriorAway             float64 `mapstructure:"prior_away"`
}

// ScoringConfig holds the confidence scoring profile
type ScoringConfig struct {
	Profile                     string             `mapstructure:"profile"`
	ConfidenceThresholdStrong   float64            `mapstructure:"confidence_threshold_strong"`
	ConfidenceThresholdModerate float64            `mapstructure:"confidence_threshold_moderate"`
	Weights                     scoring.Weights    `mapstructure:"weights"`
	Amplifiers                  map[string]float64 `mapstructure:"amplifiers"`
}

// AlertsConfig holds alert evaluation and deduplication configuration
type AlertsConfig struct {
	MinEVThreshold       float64 `mapstructure:"min_ev_threshold"`
	MovementThresholdPct float64 `mapstructure:"movement_threshold_pct"`
	AlertCooldownSeconds int     `mapstructure:"alert_cooldown_seconds"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken          string        `mapstructure:"bot_token"`
	ChatID            string        `mapstructure:"chat_id"`
	Enabled           bool          `mapstructure:"enabled"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	MessagesPerMinute int           `mapstructure:"messages_per_minute"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DBPath    string `mapstructure:"db_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MaintenanceConfig holds cron schedules of periodic jobs
type MaintenanceConfig struct {
	PurgeSchedule string `mapstructure:"purge_schedule"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("ODDSMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.mode", "simulated")
	v.SetDefault("source.timeout", "10s")
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.retry_delay_base", "1s")
	v.SetDefault("source.rate_limit", 1.0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("source.matches", source.DefaultMatches)
	v.SetDefault("source.bookmakers", source.DefaultBookmakers)
	v.SetDefault("source.seed", 0)

	// Collector defaults
	v.SetDefault("collector.collection_interval_seconds", 30)
	v.SetDefault("collector.fetch_timeout", "15s")
	v.SetDefault("collector.backoff_base", "5s")
	v.SetDefault("collector.backoff_max", "5m")
	v.SetDefault("collector.alert_queue_size", 256)

	// History defaults
	v.SetDefault("history.retention_days", 7)
	v.SetDefault("history.analysis_window", "1h")
	v.SetDefault("history.window_count", 0) // 0 = no limit
	v.SetDefault("history.warm_start", true)

	// Signal defaults
	v.SetDefault("signal.volatility_threshold", 0.10)
	v.SetDefault("signal.trend_threshold", 0.01)
	v.SetDefault("signal.max_kelly_stake_fraction", 0.05)
	v.SetDefault("signal.reference_stake", 100.0)
	v.SetDefault("signal.bankroll", "")
	v.SetDefault("signal.estimator", "consensus")
	v.SetDefault("signal.remove_margin", true)

	// Scoring defaults
	w := scoring.DefaultWeights()
	v.SetDefault("scoring.profile", "integrated")
	v.SetDefault("scoring.confidence_threshold_strong", 0.85)
	v.SetDefault("scoring.confidence_threshold_moderate", 0.75)
	v.SetDefault("scoring.weights.momentum", w.Momentum)
	v.SetDefault("scoring.weights.pattern", w.Pattern)
	v.SetDefault("scoring.weights.situational", w.Situational)
	v.SetDefault("scoring.weights.risk_adjusted", w.RiskAdjusted)
	v.SetDefault("scoring.weights.context", w.Context)
	amps := make(map[string]float64)
	for _, a := range scoring.DefaultAmplifiers() {
		amps[a.Name] = a.Bonus
	}
	v.SetDefault("scoring.amplifiers", amps)

	// Alerts defaults
	v.SetDefault("alerts.min_ev_threshold", 5.0)
	v.SetDefault("alerts.movement_threshold_pct", 5.0)
	v.SetDefault("alerts.alert_cooldown_seconds", 300)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.messages_per_minute", 20)

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./data/oddsmonitor.db")
	v.SetDefault("storage.max_alerts", 1000)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Maintenance defaults
	v.SetDefault("maintenance.purge_schedule", "@every 1h")
	v.SetDefault("maintenance.sweep_schedule", "@every 5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Source config
	switch c.Source.Mode {
	case "http":
		if c.Source.FeedURL == "" {
			return fmt.Errorf("source.feed_url is required when source.mode is http")
		}
	case "simulated":
		if len(c.Source.Matches) == 0 || len(c.Source.Bookmakers) == 0 {
			return fmt.Errorf("source.matches and source.bookmakers must not be empty in simulated mode")
		}
	default:
		return fmt.Errorf("source.mode must be one of: http, simulated")
	}
	if c.Source.RateLimit < 0 {
		return fmt.Errorf("source.rate_limit must not be negative")
	}

	// Validate Collector config
	if c.Collector.CollectionIntervalSeconds < 1 {
		return fmt.Errorf("collector.collection_interval_seconds must be at least 1")
	}
	if c.Collector.BackoffBase <= 0 || c.Collector.BackoffMax < c.Collector.BackoffBase {
		return fmt.Errorf("collector.backoff_base must be positive and not exceed collector.backoff_max")
	}
	if c.Collector.AlertQueueSize < 1 {
		return fmt.Errorf("collector.alert_queue_size must be at least 1")
	}

	// Validate History config
	if c.History.RetentionDays < 1 {
		return fmt.Errorf("history.retention_days must be at least 1")
	}
	if c.History.AnalysisWindow < 0 || c.History.WindowCount < 0 {
		return fmt.Errorf("history.analysis_window and history.window_count must not be negative")
	}

	// Validate Signal config
	if c.Signal.VolatilityThreshold <= 0 {
		return fmt.Errorf("signal.volatility_threshold must be positive")
	}
	if c.Signal.TrendThreshold <= 0 {
		return fmt.Errorf("signal.trend_threshold must be positive")
	}
	if c.Signal.MaxKellyStakeFraction <= 0 || c.Signal.MaxKellyStakeFraction > 1 {
		return fmt.Errorf("signal.max_kelly_stake_fraction must be in (0, 1]")
	}
	if _, err := c.Bankroll(); err != nil {
		return err
	}
	switch c.Signal.Estimator {
	case "consensus":
	case "prior":
		if c.Signal.PriorHome <= 0 || c.Signal.PriorHome > 1 || c.Signal.PriorAway <= 0 || c.Signal.PriorAway > 1 {
			return fmt.Errorf("signal.prior_home and signal.prior_away must be in (0, 1] with the prior estimator")
		}
	default:
		return fmt.Errorf("signal.estimator must be one of: consensus, prior")
	}

	// Validate Scoring config
	if err := c.ScoringProfile().Validate(); err != nil {
		return fmt.Errorf("invalid scoring profile: %w", err)
	}

	// Validate Alerts config
	if c.Alerts.MinEVThreshold < 0 {
		return fmt.Errorf("alerts.min_ev_threshold must not be negative")
	}
	if c.Alerts.MovementThresholdPct < 0 {
		return fmt.Errorf("alerts.movement_threshold_pct must not be negative")
	}
	if c.Alerts.AlertCooldownSeconds < 1 {
		return fmt.Errorf("alerts.alert_cooldown_seconds must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.Enabled {
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required when storage is enabled")
		}
		if c.Storage.MaxAlerts < 1 {
			return fmt.Errorf("storage.max_alerts must be at least 1")
		}
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	// Validate Maintenance config
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for key, spec := range map[string]string{
		"maintenance.purge_schedule": c.Maintenance.PurgeSchedule,
		"maintenance.sweep_schedule": c.Maintenance.SweepSchedule,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s is not a valid cron schedule: %w", key, err)
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// CollectionInterval returns the collector cycle period
func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.Collector.CollectionIntervalSeconds) * time.Second
}

// Retention returns the history retention period
func (c *Config) Retention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// AlertCooldown returns the dedup cooldown
func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerts.AlertCooldownSeconds) * time.Second
}

// Bankroll parses signal.bankroll. An empty value yields zero.
func (c *Config) Bankroll() (decimal.Decimal, error) {
	if strings.TrimSpace(c.Signal.Bankroll) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(c.Signal.Bankroll))
	if err != nil {
		return decimal.Zero, fmt.Errorf("signal.bankroll is not a valid amount: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("signal.bankroll must not be negative")
	}
	return d, nil
}

// HistoryStoreConfig returns the history store configuration
func (c *Config) HistoryStoreConfig() history.Config {
	return history.Config{
		Retention:           c.Retention(),
		VolatilityThreshold: c.Signal.VolatilityThreshold,
		TrendThreshold:      c.Signal.TrendThreshold,
	}
}

// SignalEngineConfig returns the signal engine configuration
func (c *Config) SignalEngineConfig() signal.Config {
	return signal.Config{
		Stake:               c.Signal.ReferenceStake,
		MaxStakeFraction:    c.Signal.MaxKellyStakeFraction,
		VolatilityThreshold: c.Signal.VolatilityThreshold,
		TrendThreshold:      c.Signal.TrendThreshold,
	}
}

// Estimator returns the configured true probability estimator
func (c *Config) Estimator() signal.ProbabilityEstimator {
	if c.Signal.Estimator == "prior" {
		return signal.PriorEstimator{Home: c.Signal.PriorHome, Away: c.Signal.PriorAway}
	}
	return signal.ConsensusEstimator{RemoveMargin: c.Signal.RemoveMargin}
}

// ScoringProfile returns the confidence scoring profile
func (c *Config) ScoringProfile() scoring.Profile {
	p := scoring.Profile{
		Name:    c.Scoring.Profile,
		Weights: c.Scoring.Weights,
		Thresholds: scoring.Thresholds{
			Strong:   c.Scoring.ConfidenceThresholdStrong,
			Moderate: c.Scoring.ConfidenceThresholdModerate,
		},
	}
	for name, bonus := range c.Scoring.Amplifiers {
		p.Amplifiers = append(p.Amplifiers, scoring.Amplifier{Name: name, Bonus: bonus})
	}
	return p
}

// AlertThresholds returns the alert evaluation thresholds
func (c *Config) AlertThresholds() alert.Thresholds {
	return alert.Thresholds{
		MinEV:       c.Alerts.MinEVThreshold,
		MovementPct: c.Alerts.MovementThresholdPct,
	}
}

// CollectorSettings returns the collector loop configuration
func (c *Config) CollectorSettings() monitor.CollectorConfig {
	return monitor.CollectorConfig{
		Interval:     c.CollectionInterval(),
		FetchTimeout: c.Collector.FetchTimeout,
		BackoffBase:  c.Collector.BackoffBase,
		BackoffMax:   c.Collector.BackoffMax,
	}
}

// SourceClientConfig returns the HTTP feed client configuration
func (c *Config) SourceClientConfig() source.ClientConfig {
	return source.ClientConfig{
		MaxRetries:     c.Source.MaxRetries,
		RetryDelayBase: c.Source.RetryDelayBase,
		RateLimit:      c.Source.RateLimit,
		Burst:          c.Source.Burst,
	}
}
