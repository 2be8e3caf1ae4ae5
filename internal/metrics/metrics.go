// Package metrics provides Prometheus metrics for the collector, scorer, and alert pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	FetchDuration  prometheus.Histogram
	QuotesTotal    *prometheus.CounterVec
	HistoryQuotes  prometheus.Gauge
	HistorySeries  prometheus.Gauge
	PurgedTotal    prometheus.Counter
	Backoff        prometheus.Gauge
	SignalsTotal   *prometheus.CounterVec
	Confidence     prometheus.Histogram
	ExpectedValue  prometheus.Histogram
	AlertsTotal    *prometheus.CounterVec
	AlertsDropped  prometheus.Counter
	DedupCacheSize prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsmonitor_cycles_total",
				Help: "Collection cycles by result",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddsmonitor_cycle_duration_seconds",
			Help:    "Duration of a collection cycle",
			Buckets: prometheus.DefBuckets,
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddsmonitor_fetch_duration_seconds",
			Help:    "Duration of quote source fetches",
			Buckets: prometheus.DefBuckets,
		}),
		QuotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsmonitor_quotes_total",
				Help: "Quotes received by outcome",
			},
			[]string{"outcome"},
		),
		HistoryQuotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oddsmonitor_history_quotes",
			Help: "Quotes held in the history store",
		}),
		HistorySeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oddsmonitor_history_series",
			Help: "Match sides tracked in the history store",
		}),
		PurgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oddsmonitor_history_purged_total",
			Help: "Quotes removed by retention purges",
		}),
		Backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oddsmonitor_backoff_seconds",
			Help: "Current extra delay added after fetch failures",
		}),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsmonitor_signals_total",
				Help: "Scored match sides by recommendation",
			},
			[]string{"recommendation"},
		),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddsmonitor_confidence_score",
			Help:    "Distribution of overall confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ExpectedValue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddsmonitor_expected_value_percent",
			Help:    "Distribution of EV percentages at best available odds",
			Buckets: []float64{-20, -10, -5, -2, 0, 2, 5, 10, 20},
		}),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsmonitor_alerts_total",
				Help: "Alert fire decisions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oddsmonitor_alerts_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full",
		}),
		DedupCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oddsmonitor_dedup_cache_keys",
			Help: "Alert keys tracked for cooldown",
		}),
	}

	registry.MustRegister(
		m.CyclesTotal, m.CycleDuration, m.FetchDuration, m.QuotesTotal,
		m.HistoryQuotes, m.HistorySeries, m.PurgedTotal, m.Backoff,
		m.SignalsTotal, m.Confidence, m.ExpectedValue,
		m.AlertsTotal, m.AlertsDropped, m.DedupCacheSize,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCycle records a finished collection cycle.
func (m *Metrics) RecordCycle(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// RecordFetch records a source fetch duration.
func (m *Metrics) RecordFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// RecordQuotes counts received quotes by outcome (stored, invalid).
func (m *Metrics) RecordQuotes(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.QuotesTotal.WithLabelValues(outcome).Add(float64(n))
}

// SetHistorySize updates the history gauges.
func (m *Metrics) SetHistorySize(quotes, series int) {
	if m == nil {
		return
	}
	m.HistoryQuotes.Set(float64(quotes))
	m.HistorySeries.Set(float64(series))
}

// RecordPurge counts purged quotes.
func (m *Metrics) RecordPurge(n int) {
	if m == nil {
		return
	}
	m.PurgedTotal.Add(float64(n))
}

// SetBackoff updates the current backoff.
func (m *Metrics) SetBackoff(d time.Duration) {
	if m == nil {
		return
	}
	m.Backoff.Set(d.Seconds())
}

// RecordSignal records one scored match side.
func (m *Metrics) RecordSignal(recommendation string, confidence, evPct float64) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(recommendation).Inc()
	m.Confidence.Observe(confidence)
	m.ExpectedValue.Observe(evPct)
}

// ObserveAlert records an alert fire decision.
func (m *Metrics) ObserveAlert(kind, outcome string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordAlertDropped counts an alert dropped at enqueue time.
func (m *Metrics) RecordAlertDropped() {
	if m == nil {
		return
	}
	m.AlertsDropped.Inc()
}

// SetDedupCacheSize updates the dedup cache gauge.
func (m *Metrics) SetDedupCacheSize(n int) {
	if m == nil {
		return
	}
	m.DedupCacheSize.Set(float64(n))
}
