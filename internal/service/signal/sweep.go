package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Sweep runs one maintenance pass:
//   - PENDING signals older than the pending TTL are rejected as expired
//   - PENDING signals whose prompt was never sent get it sent
//   - APPROVED signals whose committer is gone get their commit resumed
//
// Every change goes through the same CAS as decisions, so a sweep racing a
// decision loses cleanly.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.expirePending(ctx)
		res.Expired = n
		return err
	})
	g.Go(func() error {
		n, err := s.redispatch(ctx)
		res.Redispatched = n
		return err
	})
	g.Go(func() error {
		n, err := s.resumeStale(ctx)
		res.Resumed = n
		return err
	})
	err := g.Wait()

	s.metrics.Sweep("expired", res.Expired)
	s.metrics.Sweep("redispatched", res.Redispatched)
	s.metrics.Sweep("resumed", res.Resumed)
	if res != (SweepResult{}) {
		s.log.InfoContext(ctx, "sweep finished",
			slog.Int("expired", res.Expired),
			slog.Int("redispatched", res.Redispatched),
			slog.Int("resumed", res.Resumed),
		)
	}
	return res, err
}

func (s *Service) expirePending(ctx context.Context) (int, error) {
	stale, err := s.store.ListPendingBefore(ctx, s.now().Add(-s.cfg.PendingTTL), s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired pending: %w", err)
	}

	n := 0
	for _, sig := range stale {
		now := s.now().UTC()
		out, err := s.transition(ctx, sig.ID, domain.SignalStatePending, domain.SignalStateRejected, domain.SignalUpdate{
			ResolvedAt:     &now,
			RejectReason:   ptr(domain.RejectReasonExpired),
			DiscardMessage: true,
		})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("expire signal %s: %w", sig.ID, err)
		}
		n++
		s.dispatcher.Announce(ctx, out)
	}
	return n, nil
}

func (s *Service) redispatch(ctx context.Context) (int, error) {
	orphans, err := s.store.ListUndispatched(ctx, s.now().Add(-s.cfg.RedispatchAfter), s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list undispatched: %w", err)
	}

	n := 0
	for _, sig := range orphans {
		if s.dispatch(ctx, sig) {
			n++
		}
	}
	return n, nil
}

// resumeStale restarts commits that outlived their committer. A resumed
// commit rebroadcasts the recorded transaction, if any, so it never writes a
// second entry.
func (s *Service) resumeStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-(s.cfg.CommitTimeout + finalizeTimeout + staleCommitMargin))
	stale, err := s.store.ListStaleApproved(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale approved: %w", err)
	}

	n := 0
	for _, sig := range stale {
		if !s.startCommit(ctx, sig) {
			continue
		}
		n++
		s.log.WarnContext(ctx, "stale commit resumed",
			slog.String("signal_id", sig.ID.String()),
			slog.Bool("recorded_tx", len(sig.LedgerTx) > 0),
		)
	}
	return n, nil
}
