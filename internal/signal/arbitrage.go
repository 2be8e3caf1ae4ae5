package signal

import (
	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// Arbitrage describes a cross-source arbitrage on a two-way market.
type Arbitrage struct {
	MatchID   string
	Home      models.Quote
	Away      models.Quote
	Margin    float64 // sum of inverse best odds, below 1 when an arbitrage exists
	ProfitPct float64
}

// FindArbitrage checks whether backing both sides at their best odds guarantees a profit.
func FindArbitrage(matchID string, quotes []models.Quote) (Arbitrage, bool) {
	home, okHome := BestOdds(models.SideHome, quotes)
	away, okAway := BestOdds(models.SideAway, quotes)
	if !okHome || !okAway || !(home.Odds > 1.0) || !(away.Odds > 1.0) {
		return Arbitrage{}, false
	}

	margin := 1/home.Odds + 1/away.Odds
	if margin >= 1 {
		return Arbitrage{}, false
	}
	return Arbitrage{
		MatchID:   matchID,
		Home:      home,
		Away:      away,
		Margin:    margin,
		ProfitPct: (1/margin - 1) * 100,
	}, true
}
