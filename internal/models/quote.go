// Package models defines the core domain entities: quotes, signals, confidence reports, and alerts.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side identifies the outcome a quote prices.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// ParseSide accepts "home"/"away" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideHome:
		return SideHome, nil
	case SideAway:
		return SideAway, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrInvalidInput, s)
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

// Quote is a single decimal-odds observation from one source.
// Quotes are immutable once recorded.
type Quote struct {
	MatchID    string    `json:"match_id"`
	Side       Side      `json:"side"`
	Odds       float64   `json:"odds"`
	SourceID   string    `json:"source_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validate checks quote field constraints.
func (q *Quote) Validate() error {
	if q.MatchID == "" {
		return fmt.Errorf("%w: match ID must not be empty", ErrInvalidQuote)
	}
	if !q.Side.Valid() {
		return fmt.Errorf("%w: side must be home or away, got %q", ErrInvalidQuote, q.Side)
	}
	if !(q.Odds > 1.0) || math.IsInf(q.Odds, 0) {
		return fmt.Errorf("%w: odds must be a finite number greater than 1.0, got %v", ErrInvalidQuote, q.Odds)
	}
	if q.SourceID == "" {
		return fmt.Errorf("%w: source ID must not be empty", ErrInvalidQuote)
	}
	if q.ObservedAt.IsZero() {
		return fmt.Errorf("%w: observed at must be set", ErrInvalidQuote)
	}
	return nil
}

// OddsOf extracts the odds column of a quote slice.
func OddsOf(quotes []Quote) []float64 {
	out := make([]float64, len(quotes))
	for i, q := range quotes {
		out[i] = q.Odds
	}
	return out
}
