package booking

import (
	"context"
	"log/slog"
	"time"
)

type expirer interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically expires pending bookings that were never paid.
type Sweeper struct {
	coordinator expirer
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewSweeper(coordinator *Coordinator, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		coordinator: coordinator,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled. Failed sweeps are logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("starting booking expiry sweeper", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopped booking expiry sweeper")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.coordinator.SweepExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("booking expiry sweep failed", "error", err)
		return
	}

	if count > 0 {
		s.logger.Info("expired pending bookings", "count", count)
	}
}
