package alert

import (
	"context"
	"errors"

	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/models"
)

// LogSink writes alerts to the service log.
type LogSink struct{}

// Deliver implements Sink.
func (LogSink) Deliver(_ context.Context, a models.Alert) error {
	logger.WithFields(logger.Fields{
		"alert_id": a.ID,
		"kind":     a.Kind,
		"match":    a.MatchID,
		"severity": string(a.Severity),
	}).Info(a.Message)
	return nil
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

// Deliver implements Sink.
func (m MultiSink) Deliver(ctx context.Context, a models.Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
