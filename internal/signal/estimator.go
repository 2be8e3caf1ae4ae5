package signal

import (
	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// ProbabilityEstimator supplies the true probability of a side winning.
// ok is false when no estimate is available.
type ProbabilityEstimator interface {
	Estimate(side models.Side, quotes []models.Quote) (p float64, ok bool)
}

// ConsensusEstimator uses the market consensus: the mean implied probability of the latest
// quote from each source. With RemoveMargin the home and away consensus is normalised to sum to 1.
type ConsensusEstimator struct {
	RemoveMargin bool
}

// Estimate implements ProbabilityEstimator.
func (c ConsensusEstimator) Estimate(side models.Side, quotes []models.Quote) (float64, bool) {
	p, ok := consensus(side, quotes)
	if !ok {
		return 0, false
	}
	if !c.RemoveMargin {
		return p, true
	}
	other := models.SideAway
	if side == models.SideAway {
		other = models.SideHome
	}
	q, ok := consensus(other, quotes)
	if !ok || p+q <= 0 {
		return p, true
	}
	return p / (p + q), true
}

func consensus(side models.Side, quotes []models.Quote) (float64, bool) {
	latest := make(map[string]models.Quote)
	for _, q := range quotes {
		if q.Side != side || !(q.Odds > 1.0) {
			continue
		}
		if cur, ok := latest[q.SourceID]; !ok || !q.ObservedAt.Before(cur.ObservedAt) {
			latest[q.SourceID] = q
		}
	}
	if len(latest) == 0 {
		return 0, false
	}
	var sum float64
	for _, q := range latest {
		sum += 1 / q.Odds
	}
	return sum / float64(len(latest)), true
}

// PriorEstimator returns fixed per-side probabilities.
type PriorEstimator struct {
	Home float64
	Away float64
}

// Estimate implements ProbabilityEstimator.
func (p PriorEstimator) Estimate(side models.Side, _ []models.Quote) (float64, bool) {
	var v float64
	switch side {
	case models.SideHome:
		v = p.Home
	case models.SideAway:
		v = p.Away
	default:
		return 0, false
	}
	if v <= 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// BestOdds returns the highest odds quoted for side and the source offering it.
func BestOdds(side models.Side, quotes []models.Quote) (models.Quote, bool) {
	var best models.Quote
	found := false
	for _, q := range quotes {
		if q.Side != side {
			continue
		}
		if !found || q.Odds > best.Odds {
			best = q
			found = true
		}
	}
	return best, found
}
