package source

import (
	"context"
	"testing"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

func TestSimulatedFetch(t *testing.T) {
	s := NewSimulated(nil, nil, 42)
	for cycle := 0; cycle < 50; cycle++ {
		quotes, err := s.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		want := len(DefaultMatches) * len(DefaultBookmakers) * 2
		if len(quotes) != want {
			t.Fatalf("got %d quotes, want %d", len(quotes), want)
		}
		for _, q := range quotes {
			if err := q.Validate(); err != nil {
				t.Fatalf("cycle %d produced invalid quote %+v: %v", cycle, q, err)
			}
		}
	}
}

func TestSimulatedCancelled(t *testing.T) {
	s := NewSimulated([]string{"A vs B"}, []string{"bet365"}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fetch(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFuncAdapter(t *testing.T) {
	called := false
	var src Source = Func(func(ctx context.Context) ([]models.Quote, error) {
		called = true
		return nil, nil
	})
	_, _ = src.Fetch(context.Background())
	if !called {
		t.Error("Func not invoked")
	}
}
