package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/models"
	"github.com/rewired-gh/oddsmonitor/internal/scoring"
)

const feedBody = `{
  "matches": [
    {
      "id": "Lakers vs Warriors",
      "observed_at": "2026-03-01T20:00:00Z",
      "odds": [
        {"bookmaker": "bet365", "home": 1.85, "away": 2.05},
        {"bookmaker": "Betano", "home": 1.90, "away": 2.00}
      ],
      "context": {
        "home": {"quarter": 4, "time_remaining_seconds": 120, "score_margin": 3, "recent_results": [true, true, true]},
        "draw": {"quarter": 1}
      }
    },
    {"id": "", "odds": [{"bookmaker": "bet365", "home": 2, "away": 2}]}
  ]
}`

func testConfig() ClientConfig {
	return ClientConfig{MaxRetries: 3, RetryDelayBase: time.Millisecond}
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept header = %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	contexts := scoring.NewContextStore()
	c := NewClient(srv.URL, time.Second, testConfig(), contexts)
	quotes, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(quotes) != 4 {
		t.Fatalf("got %d quotes, want 4", len(quotes))
	}
	want := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			t.Errorf("invalid quote %+v: %v", q, err)
		}
		if !q.ObservedAt.Equal(want) {
			t.Errorf("observed_at = %v, want %v", q.ObservedAt, want)
		}
	}
	if quotes[1].Side != models.SideAway || quotes[1].Odds != 2.05 || quotes[1].SourceID != "bet365" {
		t.Errorf("unexpected quote %+v", quotes[1])
	}

	mc, ok := contexts.MatchContext("Lakers vs Warriors", models.SideHome)
	if !ok {
		t.Fatal("home context not stored")
	}
	if !mc.HasGameState || mc.Quarter != 4 || mc.TimeRemaining != 2*time.Minute {
		t.Errorf("unexpected context %+v", mc)
	}
	if _, ok := contexts.MatchContext("Lakers vs Warriors", models.SideAway); ok {
		t.Error("away context should be absent")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"matches": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testConfig(), nil)
	quotes, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("got %d quotes", len(quotes))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testConfig(), nil)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, models.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestClientRateLimited(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testConfig(), nil)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if !errors.Is(err, models.ErrSourceUnavailable) {
		t.Errorf("rate limit should also be a source failure")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("rate-limited request was retried %d times", calls)
	}
}

func TestClientBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testConfig(), nil)
	if _, err := c.Fetch(context.Background()); !errors.Is(err, models.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestClientHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, ClientConfig{MaxRetries: 1}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Fetch(ctx); err == nil {
		t.Fatal("expected error on timeout")
	}
	if time.Since(start) > time.Second {
		t.Errorf("fetch ignored context deadline (%v)", time.Since(start))
	}
}
