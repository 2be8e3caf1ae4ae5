package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

func newDefaultScorer(t *testing.T) *WeightedScorer {
	t.Helper()
	s, err := NewWeightedScorer(DefaultProfile())
	if err != nil {
		t.Fatalf("NewWeightedScorer: %v", err)
	}
	return s
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"market focused", Weights{Momentum: 0.4, RiskAdjusted: 0.4, Context: 0.2}, false},
		{"sum below one", Weights{Momentum: 0.3, Pattern: 0.3}, true},
		{"sum above one", Weights{Momentum: 0.6, Pattern: 0.6}, true},
		{"negative weight", Weights{Momentum: 1.2, Pattern: -0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestProfileValidate(t *testing.T) {
	p := DefaultProfile()
	p.Amplifiers = append(p.Amplifiers, Amplifier{Name: AmplifierClutch, Bonus: 0.1})
	if _, err := NewWeightedScorer(p); err == nil {
		t.Error("expected duplicate amplifier error")
	}

	p = DefaultProfile()
	p.Thresholds = Thresholds{Strong: 0.7, Moderate: 0.8}
	if _, err := NewWeightedScorer(p); err == nil {
		t.Error("expected threshold ordering error")
	}
}

func TestScoreWeightedSum(t *testing.T) {
	s := newDefaultScorer(t)
	report, err := s.Score(Inputs{
		Momentum:      0.8,
		Pattern:       0.6,
		Situational:   0.5,
		Risk:          0.2,
		Context:       0.4,
		KellyFraction: 0.03,
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := 0.30*0.8 + 0.25*0.6 + 0.20*0.5 + 0.15*0.8 + 0.10*0.4
	if math.Abs(report.OverallScore-want) > 1e-9 {
		t.Errorf("overall = %v, want %v", report.OverallScore, want)
	}
	if report.ComponentScores[ComponentRiskAdjusted] != 0.8 {
		t.Errorf("risk_adjusted = %v, want 0.8", report.ComponentScores[ComponentRiskAdjusted])
	}
	if len(report.AmplifiersApplied) != 0 {
		t.Errorf("unexpected amplifiers %v", report.AmplifiersApplied)
	}
	if report.Recommendation != models.RecommendWait {
		t.Errorf("recommendation = %s, want wait", report.Recommendation)
	}
}

func TestScoreAmplifiersOrderedAndClamped(t *testing.T) {
	s := newDefaultScorer(t)
	in := Inputs{
		Momentum: 0.7, Pattern: 0.7, Situational: 0.7, Risk: 0.3, Context: 0.7,
		KellyFraction: 0.05,
		Flags:         map[string]bool{AmplifierMatchup: true, AmplifierClutch: true, AmplifierHotStreak: true},
	}
	report, err := s.Score(in)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	names := []string{}
	for _, a := range report.AmplifiersApplied {
		names = append(names, a.Name)
	}
	want := []string{AmplifierClutch, AmplifierHotStreak, AmplifierMatchup}
	if len(names) != len(want) {
		t.Fatalf("amplifiers = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("amplifier %d = %s, want %s", i, names[i], want[i])
		}
	}
	if math.Abs(report.AmplifiersApplied[0].Multiplier-1.18) > 1e-9 {
		t.Errorf("clutch multiplier = %v", report.AmplifiersApplied[0].Multiplier)
	}
	// 0.7 * 1.18 * 1.15 * 1.12 > 1
	if report.OverallScore != 1 {
		t.Errorf("overall = %v, want clamped 1", report.OverallScore)
	}
	if report.Recommendation != models.RecommendStrong {
		t.Errorf("recommendation = %s, want strong", report.Recommendation)
	}
}

func TestScoreDeterministic(t *testing.T) {
	a := newDefaultScorer(t)
	p := DefaultProfile()
	p.Amplifiers = []Amplifier{p.Amplifiers[2], p.Amplifiers[0], p.Amplifiers[1]}
	b, err := NewWeightedScorer(p)
	if err != nil {
		t.Fatal(err)
	}
	in := Inputs{
		Momentum: 0.6, Pattern: 0.55, Situational: 0.5, Risk: 0.4, Context: 0.5,
		KellyFraction: 0.01,
		Flags:         map[string]bool{AmplifierMatchup: true, AmplifierHotStreak: true},
	}
	ra, _ := a.Score(in)
	rb, _ := b.Score(in)
	if ra.OverallScore != rb.OverallScore {
		t.Errorf("scores differ with amplifier declaration order: %v vs %v", ra.OverallScore, rb.OverallScore)
	}
}

func TestScoreKellyZeroForcesPass(t *testing.T) {
	s := newDefaultScorer(t)
	report, err := s.Score(Inputs{Momentum: 1, Pattern: 1, Situational: 1, Risk: 0, Context: 1})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if report.OverallScore < 0.999 {
		t.Errorf("overall = %v, want ~1", report.OverallScore)
	}
	if report.Recommendation != models.RecommendPass {
		t.Errorf("recommendation = %s, want pass", report.Recommendation)
	}
}

func TestScoreRejectsOutOfRangeComponent(t *testing.T) {
	s := newDefaultScorer(t)
	_, err := s.Score(Inputs{Momentum: 1.2, KellyFraction: 0.01})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	_, err = s.Score(Inputs{Risk: -0.1, KellyFraction: 0.01})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRecommend(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score, kelly float64
		want         models.Recommendation
	}{
		{0.90, 0.02, models.RecommendStrong},
		{0.85, 0.02, models.RecommendStrong},
		{0.80, 0.02, models.RecommendModerate},
		{0.75, 0.02, models.RecommendModerate},
		{0.749, 0.02, models.RecommendWait},
		{0.99, 0, models.RecommendPass},
		{0.10, 0, models.RecommendPass},
	}
	for _, tt := range tests {
		if got := Recommend(tt.score, tt.kelly, th); got != tt.want {
			t.Errorf("Recommend(%v, %v) = %s, want %s", tt.score, tt.kelly, got, tt.want)
		}
	}
}
