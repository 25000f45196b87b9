package spam

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often every counter is reset.
const DefaultSweepInterval = 5 * time.Second

// Sweeper periodically resets all counters of a detector.
type Sweeper struct {
	detector *Detector
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper. A non-positive interval falls back to DefaultSweepInterval.
func NewSweeper(detector *Detector, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		detector: detector,
		interval: interval,
		logger:   logger.Named("spam_sweeper"),
	}
}

// Interval returns the sweep interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Spam sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Spam sweeper stopped")
			return nil
		case <-ticker.C:
			if cleared := s.detector.Sweep(); cleared > 0 {
				s.logger.Debug("Reset spam counters", zap.Int("cleared", cleared))
			}
		}
	}
}
