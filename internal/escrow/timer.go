package escrow

import (
	"context"
	"log/slog"
	"time"
)

// Timer periodically expires Active escrows past their deadline. Lazy
// expiry on reads covers records that are touched; the timer covers the
// rest.
type Timer struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewTimer creates an expiry sweep timer.
func NewTimer(svc *Service, interval time.Duration) *Timer {
	return &Timer{svc: svc, interval: interval, logger: slog.Default()}
}

// WithLogger sets the logger.
func (t *Timer) WithLogger(l *slog.Logger) *Timer {
	t.logger = l
	return t
}

// Run sweeps until ctx is done. Call in a goroutine.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("escrow expiry sweep started", "interval", t.interval.String())
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("escrow expiry sweep stopped")
			return
		case <-ticker.C:
			if _, err := t.svc.SweepExpired(ctx, 100); err != nil {
				t.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}
