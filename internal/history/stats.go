package history

import (
	"math"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

const epsilon = 1e-12

// Welford accumulates mean and variance in one pass.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
}

// Add folds x into the running moments.
func (w *Welford) Add(x float64) {
	w.Count++
	delta := x - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := x - w.Mean
	w.M2 += delta * delta2
}

// PopulationStdDev returns the population standard deviation, 0 for fewer than 2 samples.
func (w *Welford) PopulationStdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// Volatility is the coefficient of variation of odds: population stdev over mean.
func Volatility(odds []float64) float64 {
	var w Welford
	for _, o := range odds {
		w.Add(o)
	}
	if w.Count < 2 || math.Abs(w.Mean) < epsilon {
		return 0
	}
	return w.PopulationStdDev() / w.Mean
}

// IsVolatile reports whether v exceeds threshold.
func IsVolatile(v, threshold float64) bool {
	return v > threshold
}

// MinTrendPoints is the shortest series a trend is computed for.
const MinTrendPoints = 3

// TrendResult describes the least-squares trend of a series.
type TrendResult struct {
	Slope     float64
	Direction models.TrendDirection
	Strength  float64 // |slope| relative to the series mean
}

// Trend fits odds against index positions 0..n-1 with ordinary least squares.
// threshold is relative to the series mean.
func Trend(odds []float64, threshold float64) TrendResult {
	n := len(odds)
	if n < MinTrendPoints {
		return TrendResult{Direction: models.TrendFlat}
	}

	var sumX, sumY float64
	for i, y := range odds {
		sumX += float64(i)
		sumY += y
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, den float64
	for i, y := range odds {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	slope := num / den

	res := TrendResult{Slope: slope, Direction: models.TrendFlat}
	if math.Abs(meanY) < epsilon {
		return res
	}
	res.Strength = math.Abs(slope) / math.Abs(meanY)

	switch {
	case slope > threshold*meanY:
		res.Direction = models.TrendUp
	case slope < -threshold*meanY:
		res.Direction = models.TrendDown
	}
	return res
}

// MovementPct is the percent change from the first to the last value.
func MovementPct(odds []float64) float64 {
	if len(odds) < 2 || odds[0] == 0 {
		return 0
	}
	return (odds[len(odds)-1] - odds[0]) / odds[0] * 100
}
