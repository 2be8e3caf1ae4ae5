package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/models"
)

type fakeLog struct {
	quoteCutoff time.Time
	alertCutoff time.Time
	err         error
}

func (f *fakeLog) PurgeQuotesBefore(cutoff time.Time) (int64, error) {
	f.quoteCutoff = cutoff
	return 3, f.err
}

func (f *fakeLog) PurgeAlertsBefore(cutoff time.Time) (int64, error) {
	f.alertCutoff = cutoff
	return 1, nil
}

type fakeDedup struct {
	swept time.Time
	size  int
}

func (f *fakeDedup) Sweep(now time.Time) int {
	f.swept = now
	f.size = 0
	return 2
}

func (f *fakeDedup) CacheSize() int { return f.size }

type fakeObservations struct {
	keep []history.Key
}

func (f *fakeObservations) Forget(keep []history.Key) { f.keep = keep }

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(context.Background())
	if _, err := s.Add("broken", "every now and then", func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for invalid spec")
	}
	if _, err := s.Add("sweep", "@every 5m", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	type ctxKey struct{}
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	s := New(base)

	var runs atomic.Int32
	var sawBase atomic.Bool
	if _, err := s.Add("tick", "@every 1s", func(ctx context.Context) error {
		if ctx.Value(ctxKey{}) == "base" {
			sawBase.Store(true)
		}
		runs.Add(1)
		return errors.New("failures are logged, not fatal")
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start()
	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	s.Stop()

	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
	if !sawBase.Load() {
		t.Error("job did not receive the base context")
	}
}

func TestPurgeHistory(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := history.New(history.Config{Retention: time.Hour})
	quotes := []models.Quote{
		{MatchID: "old", Side: models.SideHome, Odds: 1.9, SourceID: "bet365", ObservedAt: now.Add(-2 * time.Hour)},
		{MatchID: "new", Side: models.SideHome, Odds: 2.1, SourceID: "bet365", ObservedAt: now.Add(-time.Minute)},
	}
	for _, q := range quotes {
		if err := store.Append(q); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	log := &fakeLog{}
	obs := &fakeObservations{}
	m := &Maintenance{History: store, Log: log, Observations: obs, Now: func() time.Time { return now }}
	if err := m.PurgeHistory(context.Background()); err != nil {
		t.Fatalf("PurgeHistory: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("history holds %d quotes, want 1", store.Len())
	}
	wantCutoff := now.Add(-time.Hour)
	if !log.quoteCutoff.Equal(wantCutoff) || !log.alertCutoff.Equal(wantCutoff) {
		t.Errorf("cutoffs = %v / %v, want %v", log.quoteCutoff, log.alertCutoff, wantCutoff)
	}
	if len(obs.keep) != 1 || obs.keep[0].MatchID != "new" {
		t.Errorf("observations kept %+v, want only new", obs.keep)
	}

	log.err = errors.New("disk full")
	if err := m.PurgeHistory(context.Background()); err == nil {
		t.Error("expected quote log error to surface")
	}
}

func TestSweepDedup(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	dedup := &fakeDedup{size: 5}
	m := &Maintenance{History: history.New(history.DefaultConfig()), Dedup: dedup, Now: func() time.Time { return now }}

	if err := m.SweepDedup(context.Background()); err != nil {
		t.Fatalf("SweepDedup: %v", err)
	}
	if !dedup.swept.Equal(now) {
		t.Errorf("swept at %v, want %v", dedup.swept, now)
	}

	empty := &Maintenance{History: history.New(history.DefaultConfig())}
	if err := empty.SweepDedup(context.Background()); err != nil {
		t.Errorf("SweepDedup without cache: %v", err)
	}
}

func TestRegister(t *testing.T) {
	s := New(context.Background())
	m := &Maintenance{History: history.New(history.DefaultConfig())}
	if err := m.Register(s, "@every 1h", "@every 5m"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if err := m.Register(New(context.Background()), "bogus", "@every 5m"); err == nil {
		t.Error("expected error for bad purge spec")
	}
}
