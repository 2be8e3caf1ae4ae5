// Package history keeps a bounded in-memory time series of quotes per match and side.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// DefaultRetention is the default age limit of stored quotes.
const DefaultRetention = 7 * 24 * time.Hour

// Key identifies one series.
type Key struct {
	MatchID string
	Side    models.Side
}

// WindowSpec bounds a window query. The zero value selects the whole series.
type WindowSpec struct {
	Since time.Duration // keep quotes observed at or after Now-Since
	Count int           // keep at most the last Count quotes
	Now   time.Time     // reference time for Since; defaults to time.Now
}

// Stats summarises a window.
type Stats struct {
	Points      int
	Volatility  float64
	IsVolatile  bool
	Trend       TrendResult
	MovementPct float64
}

// Config holds the thresholds applied by Stats.
type Config struct {
	Retention           time.Duration
	VolatilityThreshold float64
	TrendThreshold      float64
}

// DefaultConfig returns the default retention and thresholds.
func DefaultConfig() Config {
	return Config{
		Retention:           DefaultRetention,
		VolatilityThreshold: 0.10,
		TrendThreshold:      0.01,
	}
}

// Store is safe for concurrent readers and a single writer.
type Store struct {
	mu     sync.RWMutex
	series map[Key][]models.Quote
	config Config
}

// New creates an empty store.
func New(config Config) *Store {
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	return &Store{
		series: make(map[Key][]models.Quote),
		config: config,
	}
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.config
}

// Append validates q and adds it to its series, keeping the series ordered by ObservedAt.
func (s *Store) Append(q models.Quote) error {
	if err := q.Validate(); err != nil {
		return err
	}
	key := Key{MatchID: q.MatchID, Side: q.Side}

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[key]
	n := len(series)
	if n == 0 || !q.ObservedAt.Before(series[n-1].ObservedAt) {
		s.series[key] = append(series, q)
		return nil
	}

	// Late arrival: insert after any quotes with an equal timestamp.
	i := sort.Search(n, func(i int) bool { return series[i].ObservedAt.After(q.ObservedAt) })
	series = append(series, models.Quote{})
	copy(series[i+1:], series[i:])
	series[i] = q
	s.series[key] = series
	return nil
}

// Window returns a copy of the quotes selected by spec, oldest first.
func (s *Store) Window(matchID string, side models.Side, spec WindowSpec) []models.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[Key{MatchID: matchID, Side: side}]
	if len(series) == 0 {
		return []models.Quote{}
	}

	start := 0
	if spec.Since > 0 {
		now := spec.Now
		if now.IsZero() {
			now = time.Now()
		}
		cutoff := now.Add(-spec.Since)
		start = sort.Search(len(series), func(i int) bool { return !series[i].ObservedAt.Before(cutoff) })
	}
	if spec.Count > 0 && len(series)-start > spec.Count {
		start = len(series) - spec.Count
	}

	out := make([]models.Quote, len(series)-start)
	copy(out, series[start:])
	return out
}

// Stats computes volatility, trend, and movement over the selected window.
func (s *Store) Stats(matchID string, side models.Side, spec WindowSpec) Stats {
	return Summarize(s.Window(matchID, side, spec), s.config.VolatilityThreshold, s.config.TrendThreshold)
}

// Summarize computes window statistics for an arbitrary quote slice.
func Summarize(window []models.Quote, volatilityThreshold, trendThreshold float64) Stats {
	odds := models.OddsOf(window)
	vol := Volatility(odds)
	return Stats{
		Points:      len(odds),
		Volatility:  vol,
		IsVolatile:  IsVolatile(vol, volatilityThreshold),
		Trend:       Trend(odds, trendThreshold),
		MovementPct: MovementPct(odds),
	}
}

// Purge drops quotes older than now minus the retention window and returns how many were removed.
func (s *Store) Purge(now time.Time) int {
	cutoff := now.Add(-s.config.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, series := range s.series {
		i := sort.Search(len(series), func(i int) bool { return !series[i].ObservedAt.Before(cutoff) })
		if i == 0 {
			continue
		}
		removed += i
		if i == len(series) {
			delete(s.series, key)
			continue
		}
		kept := make([]models.Quote, len(series)-i)
		copy(kept, series[i:])
		s.series[key] = kept
	}
	return removed
}

// Keys lists the stored series sorted by match then side.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MatchID != keys[j].MatchID {
			return keys[i].MatchID < keys[j].MatchID
		}
		return keys[i].Side < keys[j].Side
	})
	return keys
}

// Len returns the total number of stored quotes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, series := range s.series {
		n += len(series)
	}
	return n
}
