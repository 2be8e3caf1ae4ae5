package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/history"
	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/metrics"
	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/source"
)

// State of a Collector.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// QuoteLog persists appended quotes.
type QuoteLog interface {
	AppendQuotes(quotes []models.Quote) error
}

// Notifier is told about the first failure of a failing streak and about recovery.
type Notifier interface {
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

// CollectorConfig controls cadence and backoff.
type CollectorConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration // capped at half the interval
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

// DefaultCollectorConfig returns a 30s cycle with 5s..5m backoff.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Interval:    30 * time.Second,
		BackoffBase: 5 * time.Second,
		BackoffMax:  5 * time.Minute,
	}
}

// Deps are the collaborators of a Collector. Source, Store, Analyzer, and Alerts are required.
type Deps struct {
	Source   source.Source
	Store    *history.Store
	Analyzer *Analyzer
	Alerts   chan<- models.Alert
	QuoteLog QuoteLog
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Collector periodically fetches quotes, records them, and forwards alerts.
// It is the only writer of its history store.
type Collector struct {
	deps   Deps
	config CollectorConfig
	now    func() time.Time

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{} // non-nil while Stop is waiting for the loop

	// owned by the loop goroutine
	backoff             time.Duration
	consecutiveFailures int
}

// NewCollector validates deps and creates a stopped collector.
func NewCollector(deps Deps, config CollectorConfig) (*Collector, error) {
	if deps.Source == nil || deps.Store == nil || deps.Analyzer == nil || deps.Alerts == nil {
		return nil, errors.New("collector requires a source, history store, analyzer, and alert channel")
	}
	def := DefaultCollectorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = config.BackoffBase
	}
	if config.FetchTimeout <= 0 || config.FetchTimeout > config.Interval/2 {
		config.FetchTimeout = config.Interval / 2
	}
	return &Collector{deps: deps, config: config, now: time.Now}, nil
}

// State returns the current state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the collection loop. Calling Start on a running collector does nothing.
// A Start that races with Stop waits for the stop to finish and then starts a new loop.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	for c.stopped != nil {
		wait := c.stopped
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	if c.state == Running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cancel != nil {
		// previous loop ended with its parent context
		c.cancel()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = Running

	go c.loop(loopCtx, done)
	logger.Info("Collector started (interval: %v, fetch timeout: %v)", c.config.Interval, c.config.FetchTimeout)
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
// It is safe to call repeatedly and concurrently; no history writes happen after it returns.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.stopped != nil {
		wait := c.stopped
		c.mu.Unlock()
		<-wait
		return
	}
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.cancel = nil
	stopped := make(chan struct{})
	c.stopped = stopped
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.stopped = nil
	c.mu.Unlock()
	close(stopped)
}

func (c *Collector) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.state = Stopped
		c.mu.Unlock()
		close(done)
		logger.Info("Collector stopped")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		logger.Debug("Starting collection cycle")
		c.handleCycleResult(ctx, c.RunCycle(ctx))
		if ctx.Err() != nil {
			return
		}
		timer.Reset(c.config.Interval + c.backoff)
	}
}

// RunCycle performs one fetch, append, analyse, and forward pass.
func (c *Collector) RunCycle(ctx context.Context) error {
	start := c.now()

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	quotes, err := c.deps.Source.Fetch(fetchCtx)
	cancel()
	c.deps.Metrics.RecordFetch(c.now().Sub(start))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.deps.Metrics.RecordCycle("fetch_error", c.now().Sub(start))
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}

	stored := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if err := c.deps.Store.Append(q); err != nil {
			logger.Warn("Rejected quote for %s from %s: %v", q.MatchID, q.SourceID, err)
			continue
		}
		stored = append(stored, q)
	}
	c.deps.Metrics.RecordQuotes("stored", len(stored))
	c.deps.Metrics.RecordQuotes("invalid", len(quotes)-len(stored))

	if c.deps.QuoteLog != nil && len(stored) > 0 {
		if err := c.deps.QuoteLog.AppendQuotes(stored); err != nil {
			logger.Warn("Failed to persist %d quotes: %v", len(stored), err)
		}
	}

	alerts := c.deps.Analyzer.Process(stored, c.now())
	forwarded := 0
	for _, a := range alerts {
		select {
		case c.deps.Alerts <- a:
			forwarded++
		default:
			c.deps.Metrics.RecordAlertDropped()
			logger.Warn("Alert queue full, dropping %s alert for %s", a.Kind, a.MatchID)
		}
	}

	c.deps.Metrics.SetHistorySize(c.deps.Store.Len(), len(c.deps.Store.Keys()))
	c.deps.Metrics.RecordCycle("ok", c.now().Sub(start))
	logger.Info("Collection cycle completed in %v: %d quotes stored, %d rejected, %d alerts forwarded",
		c.now().Sub(start), len(stored), len(quotes)-len(stored), forwarded)
	return nil
}

func (c *Collector) handleCycleResult(ctx context.Context, err error) {
	if err == nil {
		if c.consecutiveFailures > 0 {
			logger.Info("Collector recovered after %d failed cycles", c.consecutiveFailures)
			if c.deps.Notifier != nil {
				if sendErr := c.deps.Notifier.SendRecovery(c.consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification: %v", sendErr)
				}
			}
		}
		c.consecutiveFailures = 0
		c.backoff = 0
		c.deps.Metrics.SetBackoff(0)
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}

	c.consecutiveFailures++
	c.backoff = c.nextBackoff()
	c.deps.Metrics.SetBackoff(c.backoff)
	logger.Error("Collection cycle failed (%d in a row, backing off %v): %v", c.consecutiveFailures, c.backoff, err)

	if c.consecutiveFailures == 1 && c.deps.Notifier != nil {
		if sendErr := c.deps.Notifier.SendError(err); sendErr != nil {
			logger.Warn("Failed to send error notification: %v", sendErr)
		}
	}
}

func (c *Collector) nextBackoff() time.Duration {
	if c.backoff == 0 {
		return c.config.BackoffBase
	}
	next := c.backoff * 2
	if next > c.config.BackoffMax {
		next = c.config.BackoffMax
	}
	return next
}
