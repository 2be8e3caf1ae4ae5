// Package source provides quote sources: an HTTP odds feed and a simulated feed.
package source

import (
	"context"
	"fmt"

	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// ErrRateLimited is returned when the upstream asks the caller to slow down.
var ErrRateLimited = fmt.Errorf("%w: rate limited", models.ErrSourceUnavailable)

// Source returns the current snapshot of quotes. Fetch must be safe to retry.
type Source interface {
	Fetch(ctx context.Context) ([]models.Quote, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) ([]models.Quote, error)

// Fetch implements Source.
func (f Func) Fetch(ctx context.Context) ([]models.Quote, error) {
	return f(ctx)
}
