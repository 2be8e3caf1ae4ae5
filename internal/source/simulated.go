package source

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// DefaultMatches and DefaultBookmakers seed the simulated feed.
var (
	DefaultMatches    = []string{"Lakers vs Warriors", "Celtics vs Heat", "Nuggets vs Suns"}
	DefaultBookmakers = []string{"bet365", "Betano", "Sportingbet"}
)

const (
	simMinOdds = 1.05
	simMaxOdds = 6.0
)

// Simulated produces random-walk odds for a fixed set of matches and bookmakers.
type Simulated struct {
	mu         sync.Mutex
	matches    []string
	bookmakers []string
	rng        *rand.Rand
	prices     map[string]float64 // last home price per match
	step       float64
	now        func() time.Time
}

var _ Source = (*Simulated)(nil)

// NewSimulated creates a simulated feed. Empty lists fall back to the defaults.
func NewSimulated(matches, bookmakers []string, seed int64) *Simulated {
	if len(matches) == 0 {
		matches = DefaultMatches
	}
	if len(bookmakers) == 0 {
		bookmakers = DefaultBookmakers
	}
	rng := rand.New(rand.NewSource(seed))
	prices := make(map[string]float64, len(matches))
	for _, m := range matches {
		prices[m] = 1.5 + rng.Float64()*1.5
	}
	return &Simulated{
		matches:    matches,
		bookmakers: bookmakers,
		rng:        rng,
		prices:     prices,
		step:       0.04,
		now:        time.Now,
	}
}

// Fetch implements Source.
func (s *Simulated) Fetch(ctx context.Context) ([]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	quotes := make([]models.Quote, 0, len(s.matches)*len(s.bookmakers)*2)
	for _, m := range s.matches {
		home := clampOdds(s.prices[m] * (1 + s.rng.NormFloat64()*s.step))
		s.prices[m] = home
		away := clampOdds(1 / (1.05 - 1/home))

		for _, b := range s.bookmakers {
			jitter := func(o float64) float64 {
				return math.Round(clampOdds(o*(1+s.rng.NormFloat64()*0.015))*100) / 100
			}
			quotes = append(quotes,
				models.Quote{MatchID: m, Side: models.SideHome, Odds: jitter(home), SourceID: b, ObservedAt: now},
				models.Quote{MatchID: m, Side: models.SideAway, Odds: jitter(away), SourceID: b, ObservedAt: now},
			)
		}
	}
	return quotes, nil
}

func clampOdds(o float64) float64 {
	if math.IsNaN(o) || o < simMinOdds {
		return simMinOdds
	}
	return math.Min(o, simMaxOdds)
}
