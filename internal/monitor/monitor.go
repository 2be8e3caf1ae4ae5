// Package monitor runs the collection loop and turns each batch of quotes into scored alerts.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/alert"
	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/metrics"
	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/scoring"
	"github.com/rewired-gh/oddsmonitor/internal/signal"
	"github.com/shopspring/decimal"
)

// Config controls how a batch is analysed.
type Config struct {
	AnalysisWindow time.Duration // recency bound of the history window, 0 for all retained quotes
	WindowCount    int           // maximum quotes per window, 0 for no limit
	Bankroll       decimal.Decimal
	Estimator      signal.ProbabilityEstimator
	Contexts       scoring.ContextProvider
	Metrics        *metrics.Metrics
}

// DefaultConfig returns a one hour window with market-consensus probabilities.
func DefaultConfig() Config {
	return Config{
		AnalysisWindow: time.Hour,
		Estimator:      signal.ConsensusEstimator{},
	}
}

type noContext struct{}

func (noContext) MatchContext(string, models.Side) (scoring.MatchContext, bool) {
	return scoring.MatchContext{}, false
}

// Analyzer scores every match side of a batch against its history.
type Analyzer struct {
	store     *history.Store
	engine    *signal.Engine
	scorer    scoring.Scorer
	evaluator *alert.Evaluator
	config    Config

	mu     sync.RWMutex
	latest map[history.Key]alert.Observation
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(store *history.Store, engine *signal.Engine, scorer scoring.Scorer, evaluator *alert.Evaluator, config Config) *Analyzer {
	if config.Estimator == nil {
		config.Estimator = signal.ConsensusEstimator{}
	}
	if config.Contexts == nil {
		config.Contexts = noContext{}
	}
	return &Analyzer{
		store:     store,
		engine:    engine,
		scorer:    scorer,
		evaluator: evaluator,
		config:    config,
		latest:    make(map[history.Key]alert.Observation),
	}
}

// Process analyses a batch already appended to the history store and returns candidate alerts.
// A failure on one match is logged and does not affect the others.
func (a *Analyzer) Process(batch []models.Quote, now time.Time) []models.Alert {
	byMatch := make(map[string][]models.Quote)
	for _, q := range batch {
		byMatch[q.MatchID] = append(byMatch[q.MatchID], q)
	}
	matchIDs := make([]string, 0, len(byMatch))
	for id := range byMatch {
		matchIDs = append(matchIDs, id)
	}
	sort.Strings(matchIDs)

	var alerts []models.Alert
	for _, id := range matchIDs {
		matchAlerts, err := a.processMatch(id, byMatch[id], now)
		if err != nil {
			logger.Warn("Skipping match %s: %v", id, err)
			continue
		}
		alerts = append(alerts, matchAlerts...)
	}
	return alerts
}

func (a *Analyzer) processMatch(matchID string, quotes []models.Quote, now time.Time) ([]models.Alert, error) {
	liquidity := signal.Liquidity(quotes)
	efficiency, err := signal.MarketEfficiency(quotes)
	if err != nil {
		return nil, err
	}

	var alerts []models.Alert
	if arb, ok := signal.FindArbitrage(matchID, quotes); ok {
		alerts = append(alerts, a.evaluator.EvaluateArbitrage(arb, now))
	}

	for _, side := range []models.Side{models.SideHome, models.SideAway} {
		best, ok := signal.BestOdds(side, quotes)
		if !ok {
			continue
		}
		p, ok := a.config.Estimator.Estimate(side, quotes)
		if !ok {
			logger.Debug("No probability estimate for %s (%s)", matchID, side)
			continue
		}

		window := a.store.Window(matchID, side, history.WindowSpec{
			Since: a.config.AnalysisWindow,
			Count: a.config.WindowCount,
			Now:   now,
		})
		sig, err := a.engine.Compute(window, best.Odds, p, liquidity)
		if err != nil {
			logger.Warn("Signal computation failed for %s (%s): %v", matchID, side, err)
			continue
		}

		mc, _ := a.config.Contexts.MatchContext(matchID, side)
		report, err := a.scorer.Score(scoring.BuildInputs(sig, mc))
		if err != nil {
			logger.Warn("Scoring failed for %s (%s): %v", matchID, side, err)
			continue
		}

		obs := alert.Observation{
			MatchID:    matchID,
			Side:       side,
			Odds:       best.Odds,
			SourceID:   best.SourceID,
			Signal:     sig,
			Report:     report,
			Efficiency: efficiency,
			Stake:      signal.StakeAmount(a.config.Bankroll, sig.KellyFraction),
		}
		a.remember(obs)
		a.config.Metrics.RecordSignal(string(report.Recommendation), report.OverallScore, sig.EVPercentage)

		logger.WithFields(logger.Fields{
			"match":          matchID,
			"side":           string(side),
			"odds":           best.Odds,
			"ev_pct":         sig.EVPercentage,
			"kelly":          sig.KellyFraction,
			"trend":          string(sig.TrendDirection),
			"volatility":     sig.Volatility,
			"risk":           string(sig.RiskLevel),
			"efficiency":     efficiency,
			"confidence":     report.OverallScore,
			"recommendation": string(report.Recommendation),
		}).Debug("Scored match side")

		alerts = append(alerts, a.evaluator.Evaluate(obs, now)...)
	}
	return alerts, nil
}

func (a *Analyzer) remember(obs alert.Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest[history.Key{MatchID: obs.MatchID, Side: obs.Side}] = obs
}

// Latest returns the most recent observation of every match side, sorted by match then side.
func (a *Analyzer) Latest() []alert.Observation {
	a.mu.RLock()
	out := make([]alert.Observation, 0, len(a.latest))
	for _, obs := range a.latest {
		out = append(out, obs)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchID != out[j].MatchID {
			return out[i].MatchID < out[j].MatchID
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Forget drops observations of matches that no longer have history.
func (a *Analyzer) Forget(keep []history.Key) {
	live := make(map[history.Key]bool, len(keep))
	for _, k := range keep {
		live[k] = true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.latest {
		if !live[k] {
			delete(a.latest, k)
		}
	}
}
