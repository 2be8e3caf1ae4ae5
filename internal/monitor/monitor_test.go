package monitor

import (
	"testing"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/alert"
	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/scoring"
	"github.com/rewired-gh/oddsmonitor/internal/signal"
	"github.com/shopspring/decimal"
)

var base = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func newTestAnalyzer(t *testing.T, store *history.Store, config Config) *Analyzer {
	t.Helper()
	scorer, err := scoring.NewWeightedScorer(scoring.DefaultProfile())
	if err != nil {
		t.Fatalf("NewWeightedScorer: %v", err)
	}
	engine := signal.NewEngine(signal.DefaultConfig())
	return NewAnalyzer(store, engine, scorer, alert.NewEvaluator(alert.DefaultThresholds()), config)
}

func quote(match string, side models.Side, odds float64, src string, at time.Time) models.Quote {
	return models.Quote{MatchID: match, Side: side, Odds: odds, SourceID: src, ObservedAt: at}
}

func TestAnalyzerDowntrendWithEdge(t *testing.T) {
	store := history.New(history.DefaultConfig())
	var last models.Quote
	for i, odds := range []float64{2.10, 2.00, 1.90, 1.80} {
		last = quote("X", models.SideHome, odds, "bet365", base.Add(time.Duration(i)*time.Minute))
		if err := store.Append(last); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	batch := []models.Quote{
		last,
		quote("X", models.SideAway, 2.00, "Betano", last.ObservedAt),
		quote("X", models.SideAway, 2.05, "Sportingbet", last.ObservedAt),
	}
	for _, q := range batch[1:] {
		if err := store.Append(q); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	config := DefaultConfig()
	config.Estimator = signal.PriorEstimator{Home: 0.6, Away: 0.4}
	config.Bankroll = decimal.NewFromInt(1000)
	a := newTestAnalyzer(t, store, config)

	alerts := a.Process(batch, last.ObservedAt)

	latest := a.Latest()
	if len(latest) != 2 {
		t.Fatalf("expected two observations, got %d", len(latest))
	}
	obs := latest[1]
	if obs.Side != models.SideHome {
		t.Fatalf("expected home observation last, got %s", obs.Side)
	}
	sig := obs.Signal
	if sig.TrendDirection != models.TrendDown {
		t.Errorf("trend = %s, want down", sig.TrendDirection)
	}
	if sig.TrendStrength <= 0 {
		t.Errorf("trend strength = %v, want > 0", sig.TrendStrength)
	}
	if sig.Volatility < 0.05 || sig.Volatility > 0.06 {
		t.Errorf("volatility = %v, want about 0.056", sig.Volatility)
	}
	if sig.RiskLevel != models.RiskLow {
		t.Errorf("risk level = %s, want low", sig.RiskLevel)
	}
	if sig.KellyFraction <= 0 {
		t.Errorf("kelly = %v, want positive for a positive edge", sig.KellyFraction)
	}
	if obs.Report.Recommendation == models.RecommendPass {
		t.Error("positive edge must not be forced to pass")
	}
	if !obs.Stake.IsPositive() {
		t.Errorf("stake = %s, want positive", obs.Stake)
	}

	var movement bool
	for _, al := range alerts {
		if al.MatchID != "X" {
			t.Errorf("unexpected match %q", al.MatchID)
		}
		if al.Kind == models.KindOddsMovement {
			movement = true
		}
	}
	if !movement {
		t.Error("expected an odds movement alert for a 14% drop")
	}
}

func TestAnalyzerArbitrage(t *testing.T) {
	store := history.New(history.DefaultConfig())
	batch := []models.Quote{
		quote("M", models.SideHome, 2.20, "bet365", base),
		quote("M", models.SideAway, 1.80, "bet365", base),
		quote("M", models.SideHome, 1.90, "Betano", base),
		quote("M", models.SideAway, 2.25, "Betano", base),
	}
	for _, q := range batch {
		if err := store.Append(q); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	a := newTestAnalyzer(t, store, DefaultConfig())

	var found bool
	for _, al := range a.Process(batch, base) {
		if al.Kind == models.KindArbitrage {
			found = true
		}
	}
	if !found {
		t.Error("expected an arbitrage alert for 1/2.20 + 1/2.25 < 1")
	}
	if n := len(a.Latest()); n != 2 {
		t.Errorf("expected observations for both sides, got %d", n)
	}
}

func TestAnalyzerSkipsMatchWithoutEstimate(t *testing.T) {
	store := history.New(history.DefaultConfig())
	q := quote("Y", models.SideHome, 1.95, "bet365", base)
	if err := store.Append(q); err != nil {
		t.Fatalf("Append: %v", err)
	}
	config := DefaultConfig()
	config.Estimator = signal.PriorEstimator{}
	a := newTestAnalyzer(t, store, config)

	if alerts := a.Process([]models.Quote{q}, base); len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
	if n := len(a.Latest()); n != 0 {
		t.Errorf("expected no observations, got %d", n)
	}
}

func TestAnalyzerForget(t *testing.T) {
	store := history.New(history.DefaultConfig())
	batch := []models.Quote{
		quote("A", models.SideHome, 1.90, "bet365", base),
		quote("B", models.SideHome, 2.10, "bet365", base),
	}
	for _, q := range batch {
		if err := store.Append(q); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	a := newTestAnalyzer(t, store, DefaultConfig())
	a.Process(batch, base)
	if n := len(a.Latest()); n != 2 {
		t.Fatalf("expected 2 observations, got %d", n)
	}

	a.Forget([]history.Key{{MatchID: "B", Side: models.SideHome}})
	latest := a.Latest()
	if len(latest) != 1 || latest[0].MatchID != "B" {
		t.Errorf("expected only B to remain, got %+v", latest)
	}
}

func TestAnalyzerValueAlertWithoutContext(t *testing.T) {
	store := history.New(history.DefaultConfig())
	batch := []models.Quote{
		quote("Nuggets vs Suns", models.SideHome, 2.30, "bet365", base),
		quote("Nuggets vs Suns", models.SideHome, 1.90, "Betano", base),
		quote("Nuggets vs Suns", models.SideHome, 1.90, "Sportingbet", base),
	}
	for _, q := range batch {
		if err := store.Append(q); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	a := newTestAnalyzer(t, store, DefaultConfig())

	var value *models.Alert
	alerts := a.Process(batch, base)
	for i := range alerts {
		if alerts[i].Kind == models.KindValue {
			value = &alerts[i]
		}
	}
	if value == nil {
		t.Fatalf("expected a value alert for the 2.30 outlier, got %+v", alerts)
	}

	obs := a.Latest()[0]
	if obs.Signal.EVPercentage < 5 {
		t.Errorf("EV = %.2f%%, want above the default threshold", obs.Signal.EVPercentage)
	}
	if obs.Report.Recommendation.Actionable() {
		t.Fatalf("without match context the recommendation should stay below moderate, got %s", obs.Report.Recommendation)
	}
	if value.Severity != models.SeverityInfo {
		t.Errorf("severity = %s, want info for a non-actionable recommendation", value.Severity)
	}
}
