// Package scoring combines weighted sub-scores and amplifiers into a confidence report.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// Component names used in ConfidenceReport.ComponentScores.
const (
	ComponentMomentum     = "momentum"
	ComponentPattern      = "pattern"
	ComponentSituational  = "situational"
	ComponentRiskAdjusted = "risk_adjusted"
	ComponentContext      = "context"
)

// Amplifier names.
const (
	AmplifierClutch    = "clutch"
	AmplifierHotStreak = "hot_streak"
	AmplifierMatchup   = "matchup"
)

const weightTolerance = 1e-6

// Weights of each component. They must be non-negative and sum to 1.
type Weights struct {
	Momentum     float64 `mapstructure:"momentum"`
	Pattern      float64 `mapstructure:"pattern"`
	Situational  float64 `mapstructure:"situational"`
	RiskAdjusted float64 `mapstructure:"risk_adjusted"`
	Context      float64 `mapstructure:"context"`
}

// DefaultWeights returns the integrated strategy weighting.
func DefaultWeights() Weights {
	return Weights{
		Momentum:     0.30,
		Pattern:      0.25,
		Situational:  0.20,
		RiskAdjusted: 0.15,
		Context:      0.10,
	}
}

// Validate checks the weights.
func (w Weights) Validate() error {
	parts := []float64{w.Momentum, w.Pattern, w.Situational, w.RiskAdjusted, w.Context}
	var sum float64
	for _, p := range parts {
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("%w: weights must not be negative", models.ErrInvalidInput)
		}
		sum += p
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights must sum to 1.0, got %.6f", models.ErrInvalidInput, sum)
	}
	return nil
}

// Amplifier multiplies the score by 1+Bonus when its condition holds.
type Amplifier struct {
	Name  string  `mapstructure:"name"`
	Bonus float64 `mapstructure:"bonus"`
}

// DefaultAmplifiers returns the clutch, hot streak, and matchup amplifiers.
func DefaultAmplifiers() []Amplifier {
	return []Amplifier{
		{Name: AmplifierClutch, Bonus: 0.18},
		{Name: AmplifierHotStreak, Bonus: 0.15},
		{Name: AmplifierMatchup, Bonus: 0.12},
	}
}

// Thresholds map scores to recommendations.
type Thresholds struct {
	Strong   float64
	Moderate float64
}

// DefaultThresholds returns 0.85 / 0.75.
func DefaultThresholds() Thresholds {
	return Thresholds{Strong: 0.85, Moderate: 0.75}
}

// Profile is a complete scoring configuration.
type Profile struct {
	Name       string
	Weights    Weights
	Amplifiers []Amplifier
	Thresholds Thresholds
}

// DefaultProfile returns the default integrated profile.
func DefaultProfile() Profile {
	return Profile{
		Name:       "integrated",
		Weights:    DefaultWeights(),
		Amplifiers: DefaultAmplifiers(),
		Thresholds: DefaultThresholds(),
	}
}

// Validate checks weights, amplifiers, and thresholds.
func (p Profile) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, a := range p.Amplifiers {
		if a.Name == "" {
			return fmt.Errorf("%w: amplifier name must not be empty", models.ErrInvalidInput)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate amplifier %q", models.ErrInvalidInput, a.Name)
		}
		seen[a.Name] = true
		if a.Bonus < 0 {
			return fmt.Errorf("%w: amplifier %q bonus must not be negative", models.ErrInvalidInput, a.Name)
		}
	}
	t := p.Thresholds
	if t.Moderate <= 0 || t.Strong > 1 || t.Moderate > t.Strong {
		return fmt.Errorf("%w: thresholds must satisfy 0 < moderate <= strong <= 1", models.ErrInvalidInput)
	}
	return nil
}

// Inputs are the normalised sub-scores of one opportunity.
type Inputs struct {
	Momentum      float64
	Pattern       float64
	Situational   float64
	Risk          float64 // converted to 1-Risk before weighting
	Context       float64
	KellyFraction float64
	Flags         map[string]bool // amplifier conditions that hold
}

// Scorer turns inputs into a confidence report.
type Scorer interface {
	Score(in Inputs) (models.ConfidenceReport, error)
}

// WeightedScorer is a Scorer driven by a Profile.
type WeightedScorer struct {
	profile    Profile
	amplifiers []Amplifier
}

var _ Scorer = (*WeightedScorer)(nil)

// NewWeightedScorer validates p and builds a scorer.
func NewWeightedScorer(p Profile) (*WeightedScorer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	amps := make([]Amplifier, len(p.Amplifiers))
	copy(amps, p.Amplifiers)
	sort.Slice(amps, func(i, j int) bool { return amps[i].Name < amps[j].Name })
	return &WeightedScorer{profile: p, amplifiers: amps}, nil
}

// Profile returns the scorer's profile.
func (s *WeightedScorer) Profile() Profile {
	return s.profile
}

// Score implements Scorer.
func (s *WeightedScorer) Score(in Inputs) (models.ConfidenceReport, error) {
	components := map[string]float64{
		ComponentMomentum:     in.Momentum,
		ComponentPattern:      in.Pattern,
		ComponentSituational:  in.Situational,
		ComponentRiskAdjusted: 1 - in.Risk,
		ComponentContext:      in.Context,
	}
	for name, v := range map[string]float64{
		ComponentMomentum:    in.Momentum,
		ComponentPattern:     in.Pattern,
		ComponentSituational: in.Situational,
		"risk":               in.Risk,
		ComponentContext:     in.Context,
	} {
		if !(v >= 0 && v <= 1) {
			return models.ConfidenceReport{}, fmt.Errorf("%w: %s score must be within [0, 1], got %v", models.ErrInvalidInput, name, v)
		}
	}
	if in.KellyFraction < 0 || math.IsNaN(in.KellyFraction) {
		return models.ConfidenceReport{}, fmt.Errorf("%w: kelly fraction must not be negative", models.ErrInvalidInput)
	}

	w := s.profile.Weights
	score := w.Momentum*components[ComponentMomentum] +
		w.Pattern*components[ComponentPattern] +
		w.Situational*components[ComponentSituational] +
		w.RiskAdjusted*components[ComponentRiskAdjusted] +
		w.Context*components[ComponentContext]

	applied := []models.AmplifierHit{}
	for _, a := range s.amplifiers {
		if !in.Flags[a.Name] {
			continue
		}
		m := 1 + a.Bonus
		score *= m
		applied = append(applied, models.AmplifierHit{Name: a.Name, Multiplier: m})
	}
	score = math.Min(score, 1)

	return models.ConfidenceReport{
		OverallScore:      score,
		ComponentScores:   components,
		AmplifiersApplied: applied,
		Recommendation:    Recommend(score, in.KellyFraction, s.profile.Thresholds),
	}, nil
}

// Recommend maps a confidence score to a recommendation. A zero Kelly fraction always passes.
func Recommend(score, kelly float64, t Thresholds) models.Recommendation {
	switch {
	case kelly <= 0:
		return models.RecommendPass
	case score >= t.Strong:
		return models.RecommendStrong
	case score >= t.Moderate:
		return models.RecommendModerate
	default:
		return models.RecommendWait
	}
}
