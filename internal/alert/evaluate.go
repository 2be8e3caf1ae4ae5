package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/signal"
	"github.com/shopspring/decimal"
)

// Thresholds decide which observations become alerts.
type Thresholds struct {
	MinEV       float64 // EV percentage for value alerts
	MovementPct float64 // absolute percent change for movement alerts
}

// DefaultThresholds returns 5% EV and 5% movement.
func DefaultThresholds() Thresholds {
	return Thresholds{MinEV: 5.0, MovementPct: 5.0}
}

// Observation is the analysis of one match side.
type Observation struct {
	MatchID    string
	Side       models.Side
	Odds       float64
	SourceID   string
	Signal     models.Signal
	Report     models.ConfidenceReport
	Efficiency float64         // market efficiency of the whole match
	Stake      decimal.Decimal // suggested stake, zero when no bankroll is configured
}

// Evaluator produces candidate alerts.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates an evaluator.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t}
}

// Evaluate returns the alerts raised by o, possibly none.
func (e *Evaluator) Evaluate(o Observation, now time.Time) []models.Alert {
	var alerts []models.Alert
	sig := o.Signal

	if sig.EVPercentage >= e.thresholds.MinEV {
		msg := fmt.Sprintf("Value on %s (%s) at %.2f from %s: EV %.1f%%, confidence %.0f%%, %s, Kelly %.1f%%",
			o.MatchID, o.Side, o.Odds, o.SourceID, sig.EVPercentage,
			o.Report.OverallScore*100, o.Report.Recommendation, sig.KellyFraction*100)
		if o.Stake.IsPositive() {
			msg += fmt.Sprintf(", stake %s", o.Stake.StringFixed(2))
		}
		alerts = append(alerts, newAlert(models.KindValue, o.MatchID, sideSubject(o), msg, valueSeverity(o.Report.Recommendation), now))
	}

	if sig.IsVolatile {
		msg := fmt.Sprintf("Volatile odds on %s (%s): coefficient of variation %.2f over %d quotes",
			o.MatchID, o.Side, sig.Volatility, sig.Points)
		alerts = append(alerts, newAlert(models.KindVolatility, o.MatchID, sideSubject(o), msg, models.SeverityWarning, now))
	}

	if e.thresholds.MovementPct > 0 && math.Abs(sig.MovementPct) >= e.thresholds.MovementPct {
		direction := "shortened"
		if sig.MovementPct > 0 {
			direction = "drifted"
		}
		msg := fmt.Sprintf("Odds %s on %s (%s): %+.1f%%, trend %s",
			direction, o.MatchID, o.Side, sig.MovementPct, sig.TrendDirection)
		subject := sideSubject(o) + "|" + direction
		alerts = append(alerts, newAlert(models.KindOddsMovement, o.MatchID, subject, msg, models.SeverityInfo, now))
	}

	return alerts
}

// EvaluateArbitrage turns an arbitrage into an alert.
func (e *Evaluator) EvaluateArbitrage(arb signal.Arbitrage, now time.Time) models.Alert {
	msg := fmt.Sprintf("Arbitrage on %s: home %.2f at %s, away %.2f at %s, profit %.2f%%",
		arb.MatchID, arb.Home.Odds, arb.Home.SourceID, arb.Away.Odds, arb.Away.SourceID, arb.ProfitPct)
	subject := arb.MatchID + "|" + arb.Home.SourceID + "|" + arb.Away.SourceID
	return newAlert(models.KindArbitrage, arb.MatchID, subject, msg, models.SeverityCritical, now)
}

// valueSeverity grades a value alert by the confidence recommendation.
func valueSeverity(r models.Recommendation) models.Severity {
	switch {
	case !r.Actionable():
		return models.SeverityInfo
	case r == models.RecommendStrong:
		return models.SeverityCritical
	default:
		return models.SeverityWarning
	}
}

func sideSubject(o Observation) string {
	return o.MatchID + "|" + string(o.Side)
}

func newAlert(kind, matchID, subject, message string, severity models.Severity, now time.Time) models.Alert {
	return models.Alert{
		Kind:     kind,
		MatchID:  matchID,
		Subject:  subject,
		Message:  message,
		Severity: severity,
		FiredAt:  now,
	}
}
