package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpirySweeper periodically records lapsed tokens as expired so stored
// status converges with expiry even for tokens nobody presents again.
type ExpirySweeper struct {
	tokens   TokenService
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExpirySweeper creates a sweeper. A non-positive interval makes Start a no-op.
func NewExpirySweeper(tokens TokenService, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		tokens:   tokens,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry_sweeper")),
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("token expiry sweeper disabled")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	s.logger.Info("token expiry sweeper started", slog.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("token sweep failed", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		s.logger.Info("expired lapsed tokens", slog.Int64("count", n))
	}
}
