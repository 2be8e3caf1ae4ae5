package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/scoring"
	"golang.org/x/time/rate"
)

// ContextSink receives match context carried by the feed.
type ContextSink interface {
	Set(matchID string, side models.Side, ctx scoring.MatchContext)
}

// ClientConfig holds tuning parameters for the HTTP client.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	RateLimit           float64 // requests per second, 0 disables limiting
	Burst               int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client fetches quotes from a JSON odds feed.
type Client struct {
	feedURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
	contexts       ContextSink
	now            func() time.Time
}

var _ Source = (*Client)(nil)

// NewClient creates a feed client. contexts may be nil.
func NewClient(feedURL string, timeout time.Duration, cfg ClientConfig, contexts ContextSink) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 5
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
		limiter:        limiter,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		contexts:       contexts,
		now:            time.Now,
	}
}

// feedResponse is the wire format of the odds feed.
type feedResponse struct {
	Matches []feedMatch `json:"matches"`
}

type feedMatch struct {
	ID         string                 `json:"id"`
	ObservedAt *time.Time             `json:"observed_at,omitempty"`
	Odds       []feedOdds             `json:"odds"`
	Context    map[string]feedContext `json:"context,omitempty"` // keyed by side
}

type feedOdds struct {
	Bookmaker string  `json:"bookmaker"`
	Home      float64 `json:"home"`
	Away      float64 `json:"away"`
}

type feedContext struct {
	Quarter              int          `json:"quarter"`
	TimeRemainingSeconds float64      `json:"time_remaining_seconds"`
	ScoreMargin          float64      `json:"score_margin"`
	Pace                 float64      `json:"pace"`
	RecentResults        []bool       `json:"recent_results"`
	QuarterAvg           float64      `json:"quarter_avg"`
	QuarterStd           float64      `json:"quarter_std"`
	Matchup              *feedMatchup `json:"matchup,omitempty"`
	Importance           []float64    `json:"importance,omitempty"`
}

type feedMatchup struct {
	WinRate          float64 `json:"win_rate"`
	SuccessRate      float64 `json:"success_rate"`
	PerformanceRatio float64 `json:"performance_ratio"`
	GamesPlayed      int     `json:"games_played"`
}

// Fetch implements Source.
func (c *Client) Fetch(ctx context.Context) ([]models.Quote, error) {
	resp, err := c.doRequest(ctx, c.feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode feed: %v", models.ErrSourceUnavailable, err)
	}

	now := c.now()
	var quotes []models.Quote
	for _, m := range feed.Matches {
		if m.ID == "" {
			continue
		}
		observedAt := now
		if m.ObservedAt != nil && !m.ObservedAt.IsZero() {
			observedAt = *m.ObservedAt
		}
		for _, o := range m.Odds {
			quotes = append(quotes,
				models.Quote{MatchID: m.ID, Side: models.SideHome, Odds: o.Home, SourceID: o.Bookmaker, ObservedAt: observedAt},
				models.Quote{MatchID: m.ID, Side: models.SideAway, Odds: o.Away, SourceID: o.Bookmaker, ObservedAt: observedAt},
			)
		}
		if c.contexts != nil {
			for sideName, fc := range m.Context {
				side, err := models.ParseSide(sideName)
				if err != nil {
					logger.Debug("Ignoring context for unknown side %q of %s", sideName, m.ID)
					continue
				}
				c.contexts.Set(m.ID, side, fc.toMatchContext())
			}
		}
	}
	return quotes, nil
}

func (fc feedContext) toMatchContext() scoring.MatchContext {
	mc := scoring.MatchContext{
		HasGameState:  fc.Quarter > 0,
		Quarter:       fc.Quarter,
		TimeRemaining: time.Duration(fc.TimeRemainingSeconds * float64(time.Second)),
		ScoreMargin:   fc.ScoreMargin,
		Pace:          fc.Pace,
		RecentResults: fc.RecentResults,
		QuarterAvg:    fc.QuarterAvg,
		QuarterStd:    fc.QuarterStd,
		Importance:    fc.Importance,
	}
	if fc.Matchup != nil {
		mc.Matchup = &scoring.MatchupStats{
			WinRate:          fc.Matchup.WinRate,
			SuccessRate:      fc.Matchup.SuccessRate,
			PerformanceRatio: fc.Matchup.PerformanceRatio,
			GamesPlayed:      fc.Matchup.GamesPlayed,
		}
	}
	return mc
}

// doRequest performs an HTTP GET with rate limiting and retry on transport and server errors.
// A 429 response is returned immediately as ErrRateLimited so the caller can back off.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			return nil, fmt.Errorf("%w (retry after %q)", ErrRateLimited, resp.Header.Get("Retry-After"))
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("%w: unexpected status %d: %s", models.ErrSourceUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			return resp, nil
		}

		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("%w: max retries exceeded: %v", models.ErrSourceUnavailable, lastErr)
}
