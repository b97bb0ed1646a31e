package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultSweepBatch    = 100
)

// RefundSweeper periodically applies refunds that were owed when settlement
// gave up, so a store outage never loses points.
type RefundSweeper struct {
	gateway  *Gateway
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

type SweeperOption func(*RefundSweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *RefundSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepBatch(n int) SweeperOption {
	return func(s *RefundSweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *RefundSweeper) {
		s.logger = logger
	}
}

func NewRefundSweeper(gateway *Gateway, opts ...SweeperOption) (*RefundSweeper, error) {
	if gateway == nil {
		return nil, errors.New("ledger gateway is required")
	}
	s := &RefundSweeper{
		gateway:  gateway,
		interval: DefaultSweepInterval,
		batch:    DefaultSweepBatch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps once immediately and then every interval until ctx ends. Sweep
// failures are logged and retried on the next tick.
func (s *RefundSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *RefundSweeper) sweep(ctx context.Context) {
	applied, err := s.gateway.SweepRefunds(ctx, s.batch)
	if err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "refund sweep incomplete", "applied", applied, "error", err)
		return
	}
	if applied > 0 {
		s.logger.InfoContext(ctx, "refund sweep applied owed refunds", "applied", applied)
	}
}
