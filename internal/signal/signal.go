// Package signal computes expected value, stake sizing, market efficiency, and risk from quotes.
// All functions are pure; malformed input fails with models.ErrInvalidInput and
// missing data yields neutral values.
package signal

import (
	"fmt"
	"math"

	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/models"
)

const (
	// DefaultStake is the reference stake used for EV.
	DefaultStake = 100.0

	// DefaultMaxStakeFraction caps the Kelly fraction.
	DefaultMaxStakeFraction = 0.05

	riskVolatilityWeight = 0.6
	riskLiquidityWeight  = 0.4
)

func checkOdds(odds float64) error {
	if !(odds > 1.0) || math.IsInf(odds, 0) {
		return fmt.Errorf("%w: odds must be greater than 1.0, got %v", models.ErrInvalidInput, odds)
	}
	return nil
}

func checkProbability(p float64) error {
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("%w: probability must be within [0, 1], got %v", models.ErrInvalidInput, p)
	}
	return nil
}

// ImpliedProbability converts decimal odds into the bookmaker's implied probability.
func ImpliedProbability(odds float64) (float64, error) {
	if err := checkOdds(odds); err != nil {
		return 0, err
	}
	return 1 / odds, nil
}

// ExpectedValue returns the expected profit of stake at odds given trueProbability,
// and the same value as a percentage of stake.
func ExpectedValue(trueProbability, odds, stake float64) (ev, evPct float64, err error) {
	if err := checkProbability(trueProbability); err != nil {
		return 0, 0, err
	}
	if err := checkOdds(odds); err != nil {
		return 0, 0, err
	}
	if !(stake > 0) {
		return 0, 0, fmt.Errorf("%w: stake must be positive, got %v", models.ErrInvalidInput, stake)
	}
	ev = trueProbability*(odds-1)*stake - (1-trueProbability)*stake
	return ev, ev / stake * 100, nil
}

// KellyFraction returns the Kelly stake fraction for decimal odds, using net odds b = odds-1,
// clamped to [0, maxFraction]. Zero means no edge.
func KellyFraction(trueProbability, odds, maxFraction float64) (float64, error) {
	if err := checkProbability(trueProbability); err != nil {
		return 0, err
	}
	if err := checkOdds(odds); err != nil {
		return 0, err
	}
	if maxFraction < 0 || maxFraction > 1 {
		return 0, fmt.Errorf("%w: max stake fraction must be within [0, 1], got %v", models.ErrInvalidInput, maxFraction)
	}
	b := odds - 1
	f := (b*trueProbability - (1 - trueProbability)) / b
	return math.Min(math.Max(f, 0), maxFraction), nil
}

// MarketEfficiency is 1 - (max - min) odds across sources, averaged over the sides of one match.
// Only the latest quote of each source is considered.
func MarketEfficiency(quotes []models.Quote) (float64, error) {
	if len(quotes) == 0 {
		return 0, fmt.Errorf("%w: market efficiency needs at least one quote", models.ErrInvalidInput)
	}

	type sideSource struct {
		side   models.Side
		source string
	}
	latest := make(map[sideSource]models.Quote)
	for _, q := range quotes {
		if err := checkOdds(q.Odds); err != nil {
			return 0, err
		}
		k := sideSource{q.Side, q.SourceID}
		if cur, ok := latest[k]; !ok || !q.ObservedAt.Before(cur.ObservedAt) {
			latest[k] = q
		}
	}

	type spread struct{ min, max float64 }
	spreads := make(map[models.Side]*spread)
	for k, q := range latest {
		sp, ok := spreads[k.side]
		if !ok {
			spreads[k.side] = &spread{min: q.Odds, max: q.Odds}
			continue
		}
		sp.min = math.Min(sp.min, q.Odds)
		sp.max = math.Max(sp.max, q.Odds)
	}

	var total float64
	for _, sp := range spreads {
		total += 1 - (sp.max - sp.min)
	}
	return total / float64(len(spreads)), nil
}

// Liquidity counts the distinct sources quoting a match.
func Liquidity(quotes []models.Quote) int {
	seen := make(map[string]struct{})
	for _, q := range quotes {
		seen[q.SourceID] = struct{}{}
	}
	return len(seen)
}

// RiskScore combines volatility with thin liquidity.
func RiskScore(volatility float64, liquidity int) (float64, models.RiskLevel, error) {
	if volatility < 0 || math.IsNaN(volatility) {
		return 0, "", fmt.Errorf("%w: volatility must not be negative, got %v", models.ErrInvalidInput, volatility)
	}
	if liquidity < 1 {
		return 0, "", fmt.Errorf("%w: liquidity must be at least 1, got %d", models.ErrInvalidInput, liquidity)
	}
	score := riskVolatilityWeight*volatility + riskLiquidityWeight/float64(liquidity)
	return score, ClassifyRisk(score), nil
}

// ClassifyRisk buckets a risk score.
func ClassifyRisk(score float64) models.RiskLevel {
	switch {
	case score < 0.3:
		return models.RiskLow
	case score > 0.7:
		return models.RiskHigh
	default:
		return models.RiskMedium
	}
}

// Config holds Engine parameters.
type Config struct {
	Stake               float64
	MaxStakeFraction    float64
	VolatilityThreshold float64
	TrendThreshold      float64
}

// DefaultConfig returns the default engine parameters.
func DefaultConfig() Config {
	return Config{
		Stake:               DefaultStake,
		MaxStakeFraction:    DefaultMaxStakeFraction,
		VolatilityThreshold: 0.10,
		TrendThreshold:      0.01,
	}
}

// Engine bundles the signal functions with their configuration.
type Engine struct {
	config Config
}

// NewEngine creates an engine, filling unset fields with defaults.
func NewEngine(config Config) *Engine {
	def := DefaultConfig()
	if config.Stake <= 0 {
		config.Stake = def.Stake
	}
	if config.MaxStakeFraction <= 0 {
		config.MaxStakeFraction = def.MaxStakeFraction
	}
	if config.VolatilityThreshold <= 0 {
		config.VolatilityThreshold = def.VolatilityThreshold
	}
	if config.TrendThreshold <= 0 {
		config.TrendThreshold = def.TrendThreshold
	}
	return &Engine{config: config}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Compute derives a Signal for one match side. window is the recent history of that side,
// odds the price being evaluated, and liquidity the number of sources quoting the match.
// A short window gives a flat trend rather than an error.
func (e *Engine) Compute(window []models.Quote, odds, trueProbability float64, liquidity int) (models.Signal, error) {
	implied, err := ImpliedProbability(odds)
	if err != nil {
		return models.Signal{}, err
	}
	ev, evPct, err := ExpectedValue(trueProbability, odds, e.config.Stake)
	if err != nil {
		return models.Signal{}, err
	}
	kelly, err := KellyFraction(trueProbability, odds, e.config.MaxStakeFraction)
	if err != nil {
		return models.Signal{}, err
	}

	stats := history.Summarize(window, e.config.VolatilityThreshold, e.config.TrendThreshold)
	risk, level, err := RiskScore(stats.Volatility, liquidity)
	if err != nil {
		return models.Signal{}, err
	}

	return models.Signal{
		ImpliedProbability: implied,
		ExpectedValue:      ev,
		EVPercentage:       evPct,
		KellyFraction:      kelly,
		TrendDirection:     stats.Trend.Direction,
		TrendStrength:      stats.Trend.Strength,
		Volatility:         stats.Volatility,
		IsVolatile:         stats.IsVolatile,
		RiskScore:          risk,
		RiskLevel:          level,
		MovementPct:        stats.MovementPct,
		Points:             stats.Points,
	}, nil
}
