// Package alert turns signals into alerts and delivers them with per-key cooldown.
package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// DefaultCooldown is the minimum gap between two deliveries of the same alert key.
const DefaultCooldown = 300 * time.Second

// Delivery outcomes reported to an Observer.
const (
	OutcomeDelivered  = "delivered"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
)

// Sink delivers an alert somewhere.
type Sink interface {
	Deliver(ctx context.Context, a models.Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a models.Alert) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, a models.Alert) error {
	return f(ctx, a)
}

// Recorder keeps a log of delivered alerts.
type Recorder interface {
	AddAlert(a *models.Alert) error
}

// Observer is notified of every fire decision.
type Observer interface {
	ObserveAlert(kind, outcome string)
}

// Config holds dispatcher settings.
type Config struct {
	Cooldown   time.Duration
	SweepEvery int              // fires between lazy cache sweeps, 0 disables
	Now        func() time.Time // clock, defaults to time.Now
	Recorder   Recorder
	Observer   Observer
}

// Dispatcher owns the dedup cache.
type Dispatcher struct {
	mu       sync.Mutex
	cache    map[string]time.Time
	inflight map[string]struct{}
	fires    int

	sink   Sink
	config Config
}

// NewDispatcher creates a dispatcher delivering to sink.
func NewDispatcher(sink Sink, config Config) *Dispatcher {
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Dispatcher{
		cache:    make(map[string]time.Time),
		inflight: make(map[string]struct{}),
		sink:     sink,
		config:   config,
	}
}

// Key hashes the alert kind with its normalized subject.
func Key(kind, subject string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + normalize(subject)))
	return hex.EncodeToString(sum[:])
}

func normalize(subject string) string {
	return strings.Join(strings.Fields(strings.ToLower(subject)), " ")
}

// Fire delivers a unless an alert with the same kind and subject was delivered within the cooldown.
// It reports whether the alert was delivered. A failed delivery leaves the cache untouched
// so the next qualifying alert is retried.
func (d *Dispatcher) Fire(ctx context.Context, a models.Alert) (bool, error) {
	key := Key(a.Kind, a.DedupSubject())
	now := d.config.Now()

	d.mu.Lock()
	d.fires++
	if d.config.SweepEvery > 0 && d.fires%d.config.SweepEvery == 0 {
		d.sweepLocked(now)
	}
	if last, ok := d.cache[key]; ok && now.Sub(last) < d.config.Cooldown {
		d.mu.Unlock()
		d.observe(a.Kind, OutcomeSuppressed)
		logger.Debug("Suppressed %s alert for %s (last sent %v ago)", a.Kind, a.MatchID, now.Sub(last))
		return false, nil
	}
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		d.observe(a.Kind, OutcomeSuppressed)
		return false, nil
	}
	d.inflight[key] = struct{}{}
	d.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.FiredAt.IsZero() {
		a.FiredAt = now
	}

	err := d.sink.Deliver(ctx, a)

	d.mu.Lock()
	delete(d.inflight, key)
	if err == nil {
		d.cache[key] = now
	}
	d.mu.Unlock()

	if err != nil {
		d.observe(a.Kind, OutcomeFailed)
		return false, fmt.Errorf("%w: %s alert for %s: %v", models.ErrDispatchFailure, a.Kind, a.MatchID, err)
	}

	d.observe(a.Kind, OutcomeDelivered)
	if d.config.Recorder != nil {
		if err := d.config.Recorder.AddAlert(&a); err != nil {
			logger.Warn("Failed to record alert %s: %v", a.ID, err)
		}
	}
	return true, nil
}

// Run fires alerts received on in until ctx is cancelled or in is closed.
func (d *Dispatcher) Run(ctx context.Context, in <-chan models.Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-in:
			if !ok {
				return
			}
			if _, err := d.Fire(ctx, a); err != nil {
				logger.Error("Alert dispatch failed: %v", err)
			}
		}
	}
}

// Sweep evicts cache entries whose cooldown has elapsed and returns how many were removed.
func (d *Dispatcher) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(now)
}

func (d *Dispatcher) sweepLocked(now time.Time) int {
	removed := 0
	for key, last := range d.cache {
		if now.Sub(last) >= d.config.Cooldown {
			delete(d.cache, key)
			removed++
		}
	}
	return removed
}

// CacheSize returns the number of keys currently in cooldown tracking.
func (d *Dispatcher) CacheSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

func (d *Dispatcher) observe(kind, outcome string) {
	if d.config.Observer != nil {
		d.config.Observer.ObserveAlert(kind, outcome)
	}
}
