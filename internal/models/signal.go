package models

import "time"

// TrendDirection classifies the slope of an odds series.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Signal is derived from a history window and never persisted.
type Signal struct {
	ImpliedProbability float64        `json:"implied_probability"`
	ExpectedValue      float64        `json:"expected_value"`
	EVPercentage       float64        `json:"ev_percentage"`
	KellyFraction      float64        `json:"kelly_fraction"`
	TrendDirection     TrendDirection `json:"trend_direction"`
	TrendStrength      float64        `json:"trend_strength"`
	Volatility         float64        `json:"volatility"`
	IsVolatile         bool           `json:"is_volatile"`

	RiskScore   float64   `json:"risk_score"`
	RiskLevel   RiskLevel `json:"risk_level"`
	MovementPct float64   `json:"movement_pct"` // first to last quote of the window
	Points      int       `json:"points"`
}

// Recommendation is the categorical outcome of confidence scoring.
type Recommendation string

const (
	RecommendStrong   Recommendation = "strong"
	RecommendModerate Recommendation = "moderate"
	RecommendWait     Recommendation = "wait"
	RecommendPass     Recommendation = "pass"
)

// Actionable reports whether the recommendation suggests placing a bet.
func (r Recommendation) Actionable() bool {
	return r == RecommendStrong || r == RecommendModerate
}

// AmplifierHit records one amplifier applied to a confidence score.
type AmplifierHit struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
}

// ConfidenceReport is the immutable result of one scoring call.
type ConfidenceReport struct {
	OverallScore      float64            `json:"overall_score"`
	ComponentScores   map[string]float64 `json:"component_scores"`
	AmplifiersApplied []AmplifierHit     `json:"amplifiers_applied"`
	Recommendation    Recommendation     `json:"recommendation"`
}

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert kinds.
const (
	KindValue        = "value"
	KindVolatility   = "volatility"
	KindOddsMovement = "odds_movement"
	KindArbitrage    = "arbitrage"
)

// Alert is a notification derived from a signal.
// Subject identifies what the alert is about without its changing figures, such as
// "Lakers vs Warriors|home". Alerts sharing kind and subject are duplicates.
type Alert struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	MatchID  string    `json:"match_id"`
	Subject  string    `json:"subject,omitempty"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	FiredAt  time.Time `json:"fired_at"`
}

// DedupSubject returns Subject, or Message when no subject is set.
func (a Alert) DedupSubject() string {
	if a.Subject != "" {
		return a.Subject
	}
	return a.Message
}
