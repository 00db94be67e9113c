package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

type sweepRunner interface {
	Sweep(ctx context.Context) (signal.SweepResult, error)
}

// Sweeper runs the signal sweep on a fixed interval.
type Sweeper struct {
	signals  sweepRunner
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(signals sweepRunner, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		signals:  signals,
		interval: interval,
		log:      logger.With("service", "sweeper"),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
// Sweep errors are logged; the loop never stops on them.
func (s *Sweeper) Run(ctx context.Context) error {
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

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.signals.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		}
		return
	}
	if res.Expired+res.Redispatched+res.Resumed > 0 {
		s.log.InfoContext(ctx, "sweep completed",
			slog.Int("expired", res.Expired),
			slog.Int("redispatched", res.Redispatched),
			slog.Int("resumed", res.Resumed),
		)
	}
}

// RunSweep performs a single sweep pass and returns. It is the entry point of
// the sweep command for deployments that schedule it externally.
func RunSweep(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := NewLogger(cfg.Log)

	c, err := newContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.signals.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", slog.String("error", err.Error()))
		return err
	}
	if err := c.signals.Wait(ctx); err != nil {
		logger.Error("resumed commits did not finish", slog.String("error", err.Error()))
		return err
	}
	logger.Info("sweep completed",
		slog.Int("expired", res.Expired),
		slog.Int("redispatched", res.Redispatched),
		slog.Int("resumed", res.Resumed),
	)
	return nil
}
