package scoring

import (
	"math"
	"sync"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

const (
	neutral = 0.5

	momentumScale = 5.0

	paceMin        = 90.0
	paceMax        = 110.0
	marginMax      = 20.0
	quarterLength  = 12 * time.Minute
	regularQuarter = 4

	clutchTime   = 5 * time.Minute
	clutchMargin = 10.0

	streakMinLength  = 3
	streakMinQuality = 0.8

	matchupMinAdvantage = 0.7
	matchupMinGames     = 5
	matchupFullGames    = 10
)

// MatchupStats summarises the head-to-head record of a side.
type MatchupStats struct {
	WinRate          float64
	SuccessRate      float64
	PerformanceRatio float64
	GamesPlayed      int
}

// MatchContext is optional game information about one side of a match.
// Zero values mean the information is unavailable.
type MatchContext struct {
	HasGameState  bool
	Quarter       int
	TimeRemaining time.Duration // left in the current quarter
	ScoreMargin   float64
	Pace          float64

	RecentResults []bool // oldest first, true for a win

	QuarterAvg float64
	QuarterStd float64

	Matchup *MatchupStats

	Importance []float64 // playoff, rivalry, standings factors in [0,1]
}

// ContextProvider looks up match context.
type ContextProvider interface {
	MatchContext(matchID string, side models.Side) (MatchContext, bool)
}

// ContextStore is an in-memory ContextProvider safe for concurrent use.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]MatchContext
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{contexts: make(map[string]MatchContext)}
}

func contextKey(matchID string, side models.Side) string {
	return matchID + "|" + string(side)
}

// Set stores the context of a match side.
func (c *ContextStore) Set(matchID string, side models.Side, ctx MatchContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[contextKey(matchID, side)] = ctx
}

// MatchContext implements ContextProvider.
func (c *ContextStore) MatchContext(matchID string, side models.Side) (MatchContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, ok := c.contexts[contextKey(matchID, side)]
	return ctx, ok
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(x, 1))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return neutral
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// MarketMomentum scores the odds trend of a side. Shortening odds mean money is coming in.
func MarketMomentum(sig models.Signal) float64 {
	shift := math.Min(sig.TrendStrength*momentumScale, neutral)
	switch sig.TrendDirection {
	case models.TrendDown:
		return neutral + shift
	case models.TrendUp:
		return neutral - shift
	default:
		return neutral
	}
}

// HotStreak scores the last three results.
func HotStreak(ctx MatchContext) (float64, bool) {
	n := len(ctx.RecentResults)
	if n < 3 {
		return neutral, false
	}
	wins := 0
	for _, r := range ctx.RecentResults[n-3:] {
		if r {
			wins++
		}
	}
	switch wins {
	case 3:
		return 1.0, true
	case 2:
		return 0.8, true
	case 1:
		return 0.5, true
	default:
		return 0.3, true
	}
}

// MomentumScore combines market momentum with the recent form of the side.
func MomentumScore(sig models.Signal, ctx MatchContext) float64 {
	parts := []float64{MarketMomentum(sig)}
	if s, ok := HotStreak(ctx); ok {
		parts = append(parts, s)
	}
	return clamp01(mean(parts))
}

// PatternScore combines quarter and matchup patterns.
func PatternScore(ctx MatchContext) float64 {
	var parts []float64
	if ctx.QuarterAvg > 0 {
		parts = append(parts, math.Min(ctx.QuarterAvg/(ctx.QuarterAvg+ctx.QuarterStd), 1))
	}
	if m := ctx.Matchup; m != nil {
		confidence := math.Min(float64(m.GamesPlayed)/matchupFullGames, 1)
		parts = append(parts, clamp01(m.SuccessRate)*confidence)
	}
	return clamp01(mean(parts))
}

// SituationalScore scores the game flow: pace, closeness, and time pressure.
func SituationalScore(ctx MatchContext) float64 {
	if !ctx.HasGameState {
		return neutral
	}
	pace := neutral
	if ctx.Pace > 0 {
		pace = clamp01((ctx.Pace - paceMin) / (paceMax - paceMin))
	}
	margin := clamp01(1 - math.Abs(ctx.ScoreMargin)/marginMax)
	return clamp01(mean([]float64{pace, margin, timePressure(ctx)}))
}

func timePressure(ctx MatchContext) float64 {
	quarter := clamp01(float64(ctx.Quarter) / regularQuarter)
	clock := clamp01(1 - ctx.TimeRemaining.Seconds()/quarterLength.Seconds())
	return mean([]float64{quarter, clock})
}

// ContextScore combines game importance with the matchup advantage.
func ContextScore(ctx MatchContext) float64 {
	var parts []float64
	if len(ctx.Importance) > 0 {
		parts = append(parts, clamp01(mean(ctx.Importance)))
	}
	if m := ctx.Matchup; m != nil && m.GamesPlayed > 0 {
		parts = append(parts, clamp01(mean([]float64{m.WinRate, m.PerformanceRatio - 0.5})))
	}
	return clamp01(mean(parts))
}

// DetectAmplifiers evaluates the amplifier conditions against ctx.
func DetectAmplifiers(ctx MatchContext) map[string]bool {
	flags := make(map[string]bool)

	if ctx.HasGameState && ctx.Quarter >= regularQuarter &&
		ctx.TimeRemaining <= clutchTime && math.Abs(ctx.ScoreMargin) <= clutchMargin {
		flags[AmplifierClutch] = true
	}

	if n := len(ctx.RecentResults); n >= streakMinLength {
		streak := 0
		for i := n - 1; i >= 0 && ctx.RecentResults[i]; i-- {
			streak++
		}
		wins := 0
		for _, r := range ctx.RecentResults {
			if r {
				wins++
			}
		}
		if streak >= streakMinLength && float64(wins)/float64(n) >= streakMinQuality {
			flags[AmplifierHotStreak] = true
		}
	}

	if m := ctx.Matchup; m != nil && m.WinRate >= matchupMinAdvantage && m.GamesPlayed >= matchupMinGames {
		flags[AmplifierMatchup] = true
	}
	return flags
}

// BuildInputs assembles scorer inputs for one side from its signal and context.
func BuildInputs(sig models.Signal, ctx MatchContext) Inputs {
	return Inputs{
		Momentum:      MomentumScore(sig, ctx),
		Pattern:       PatternScore(ctx),
		Situational:   SituationalScore(ctx),
		Risk:          clamp01(sig.RiskScore),
		Context:       ContextScore(ctx),
		KellyFraction: sig.KellyFraction,
		Flags:         DetectAmplifiers(ctx),
	}
}
