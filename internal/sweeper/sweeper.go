// Package sweeper runs the deadline supervisor: a recurring sweep that
// force-closes active sessions whose deadline has passed. Sweep errors are
// logged and retried on the next tick; the per-session transition itself is
// atomic, so a failed sweep never leaves an overdue session half-expired.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type SweepService interface {
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

type Sweeper struct {
	Service  SweepService
	Interval time.Duration
	Batch    int
	Log      *zap.Logger
}

func New(svc SweepService, interval time.Duration, batch int, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{Service: svc, Interval: interval, Batch: batch, Log: log}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, now time.Time) {
	n, err := s.Service.Sweep(ctx, now.UTC(), s.Batch)
	if err != nil {
		s.Log.Error("deadline sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.Log.Info("deadline sweep", zap.Int("sessions", n))
	}
}
