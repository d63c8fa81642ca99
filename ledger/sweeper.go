package ledger

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires stale redemption tokens.
type Sweeper struct {
	redemptions *Redemptions
	interval    time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

func NewSweeper(redemptions *Redemptions, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		redemptions: redemptions,
		interval:    interval,
		timeout:     10 * time.Second,
		logger:      logger,
	}
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("redemption sweeper disabled")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.redemptions.ExpireStaleTokens(ctx)
	if err != nil {
		s.logger.Error("redemption sweep failed", slog.Any("error", err))
		return 0
	}
	if count > 0 {
		s.logger.Info("expired stale redemptions", slog.Int64("count", count))
	}
	return count
}
