package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/metrics"
)

// RetentionLog is persistent storage with time-based retention.
type RetentionLog interface {
	PurgeQuotesBefore(cutoff time.Time) (int64, error)
	PurgeAlertsBefore(cutoff time.Time) (int64, error)
}

// DedupCache is the dispatcher's cooldown cache.
type DedupCache interface {
	Sweep(now time.Time) int
	CacheSize() int
}

// ObservationSet holds per match side analysis results.
type ObservationSet interface {
	Forget(keep []history.Key)
}

// Maintenance bundles the retention and cache jobs. History is required; the rest may be nil.
type Maintenance struct {
	History      *history.Store
	Log          RetentionLog
	Dedup        DedupCache
	Observations ObservationSet
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func (m *Maintenance) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// PurgeHistory drops quotes older than the retention period from memory and from the quote log.
func (m *Maintenance) PurgeHistory(_ context.Context) error {
	now := m.now()
	removed := m.History.Purge(now)
	m.Metrics.RecordPurge(removed)
	m.Metrics.SetHistorySize(m.History.Len(), len(m.History.Keys()))

	if m.Observations != nil {
		m.Observations.Forget(m.History.Keys())
	}

	if m.Log == nil {
		logger.Info("Purged %d quotes from history", removed)
		return nil
	}
	cutoff := now.Add(-m.History.Config().Retention)
	quotes, err := m.Log.PurgeQuotesBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge quote log: %w", err)
	}
	alerts, err := m.Log.PurgeAlertsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge alert log: %w", err)
	}
	logger.Info("Purged %d quotes from history, %d quotes and %d alerts from storage", removed, quotes, alerts)
	return nil
}

// SweepDedup evicts expired cooldown entries.
func (m *Maintenance) SweepDedup(_ context.Context) error {
	if m.Dedup == nil {
		return nil
	}
	evicted := m.Dedup.Sweep(m.now())
	m.Metrics.SetDedupCacheSize(m.Dedup.CacheSize())
	if evicted > 0 {
		logger.Debug("Evicted %d expired dedup entries", evicted)
	}
	return nil
}

// Register schedules both jobs.
func (m *Maintenance) Register(s *Scheduler, purgeSpec, sweepSpec string) error {
	if _, err := s.Add("purge_history", purgeSpec, m.PurgeHistory); err != nil {
		return err
	}
	if _, err := s.Add("sweep_dedup", sweepSpec, m.SweepDedup); err != nil {
		return err
	}
	return nil
}
