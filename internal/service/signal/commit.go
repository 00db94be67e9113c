package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/pkg/ctxutil"
)

// startCommit runs the ledger commit of an APPROVED signal detached from the
// caller's cancellation but bounded by the commit timeout. It reports false
// when this process already commits the signal.
func (s *Service) startCommit(ctx context.Context, sig domain.Signal) bool {
	if _, running := s.committing.LoadOrStore(sig.ID, struct{}{}); running {
		return false
	}
	detached := ctxutil.WithSignalID(context.WithoutCancel(ctx), sig.ID.String())
	s.commits.Add(1)
	go func() {
		defer s.commits.Done()
		defer s.committing.Delete(sig.ID)
		_, _ = s.commit(detached, sig)
	}()
	return true
}

// commit writes an APPROVED signal to the ledger with bounded exponential
// backoff. Success moves it to COMMITTED and locks the sender to its
// recipient.
//
// The signed transaction is recorded on the signal before it is broadcast,
// and every later attempt, including a resume by the sweep, rebroadcasts
// that same transaction. The signal moves to FAILED only when nothing was
// broadcast or the ledger can no longer mine it; otherwise it stays APPROVED
// for the sweep to resume.
func (s *Service) commit(ctx context.Context, sig domain.Signal) (domain.Signal, error) {
	commitCtx, cancel := context.WithTimeout(ctx, s.cfg.CommitTimeout)
	defer cancel()

	record := func(ctx context.Context, rawTx []byte) error {
		if err := s.store.SetLedgerTx(ctx, sig.ID, rawTx); err != nil {
			return err
		}
		sig.LedgerTx = rawTx
		return nil
	}

	attempts := 0
	ref, err := backoff.RetryNotifyWithData(
		func() (string, error) {
			attempts++
			start := s.now()
			ref, err := s.ledger.Commit(commitCtx, sig, record)
			s.metrics.LedgerAttempt(start, err)
			if errors.Is(err, domain.ErrLedgerRejected) || errors.Is(err, domain.ErrConflict) {
				return "", backoff.Permanent(err)
			}
			return ref, err
		},
		backoff.WithContext(backoff.WithMaxRetries(s.ledgerBackoff(), uint64(max(s.cfg.LedgerMaxAttempts-1, 0))), commitCtx),
		func(err error, wait time.Duration) {
			s.log.WarnContext(ctx, "ledger write failed, retrying",
				slog.String("signal_id", sig.ID.String()),
				slog.Int("attempt", attempts),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		},
	)

	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finCancel()

	if err != nil {
		ledgerErr := &domain.LedgerError{Attempts: attempts, Err: err}
		switch {
		case errors.Is(err, domain.ErrConflict):
			// Another committer recorded a transaction or settled the signal.
			s.log.WarnContext(ctx, "ledger commit taken over",
				slog.String("signal_id", sig.ID.String()),
				slog.String("error", err.Error()),
			)
			return domain.Signal{}, ledgerErr
		case len(sig.LedgerTx) > 0 && !errors.Is(err, domain.ErrLedgerRejected):
			s.log.ErrorContext(ctx, "ledger write unconfirmed, left for the sweep",
				slog.String("signal_id", sig.ID.String()),
				slog.Int("attempts", attempts),
				slog.String("error", err.Error()),
			)
			return domain.Signal{}, ledgerErr
		}

		failed, ferr := s.fail(finCtx, sig, attempts, ledgerErr.Error())
		if ferr != nil {
			return domain.Signal{}, errors.Join(ledgerErr, ferr)
		}
		s.log.ErrorContext(ctx, "ledger commit failed",
			slog.String("signal_id", sig.ID.String()),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		s.dispatcher.Announce(finCtx, failed)
		return failed, ledgerErr
	}

	committed, err := s.finalize(finCtx, sig, ref, attempts)
	if errors.Is(err, domain.ErrConflict) {
		s.log.InfoContext(ctx, "commit already recorded", slog.String("signal_id", sig.ID.String()))
		return domain.Signal{}, err
	}
	if err != nil {
		// The ledger holds the entry but the store does not say so. The
		// transaction stays recorded, so the sweep resumes the commit and
		// finds the mined receipt.
		s.log.ErrorContext(ctx, "ledger written but commit not recorded",
			slog.String("signal_id", sig.ID.String()),
			slog.String("ledger_ref", ref),
			slog.String("error", err.Error()),
		)
		return domain.Signal{}, fmt.Errorf("finalize commit: %w", err)
	}

	s.dispatcher.Announce(finCtx, committed)
	if err := s.dispatcher.Deliver(finCtx, committed); err != nil {
		s.log.WarnContext(ctx, "recipient delivery failed",
			slog.String("signal_id", sig.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return committed, nil
}

func (s *Service) ledgerBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.LedgerInitialBackoff
	b.MaxInterval = s.cfg.LedgerMaxBackoff
	b.MaxElapsedTime = 0
	return b
}

// finalize records the commit and applies the cooldown lock in one
// transaction, serialized with admission checks of the same sender. Storage
// errors are retried briefly; a conflict is final.
func (s *Service) finalize(ctx context.Context, sig domain.Signal, ref string, attempts int) (domain.Signal, error) {
	var committed domain.Signal

	op := func() error {
		unlock, err := s.locker.Lock(ctx, sig.SenderKey)
		if err != nil {
			return fmt.Errorf("lock sender: %w", err)
		}
		defer unlock()

		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.tx.LockKey(ctx, sig.SenderKey); err != nil {
				return err
			}
			now := s.now().UTC()
			out, err := s.store.Transition(ctx, sig.ID, domain.SignalStateApproved, domain.SignalStateCommitted, domain.SignalUpdate{
				CommittedAt: &now,
				LedgerRef:   &ref,
				Attempts:    &attempts,
			})
			if err != nil {
				return err
			}
			if _, err := s.cooldown.ApplyLock(ctx, sig.SenderKey, sig.RecipientHandle, s.cfg.CooldownDays); err != nil {
				return fmt.Errorf("apply lock: %w", err)
			}
			committed = out
			return nil
		})
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx)); err != nil {
		return domain.Signal{}, err
	}

	s.metrics.Transition(domain.SignalStateApproved.String(), domain.SignalStateCommitted.String())
	s.log.InfoContext(ctx, "signal committed",
		slog.String("signal_id", sig.ID.String()),
		slog.String("ledger_ref", ref),
		slog.Int("attempts", attempts),
	)
	return committed, nil
}

// fail moves an APPROVED signal to FAILED. The message stays sealed in the
// store for operators and is never exposed.
func (s *Service) fail(ctx context.Context, sig domain.Signal, attempts int, reason string) (domain.Signal, error) {
	upd := domain.SignalUpdate{LastError: &reason}
	if attempts > 0 {
		upd.Attempts = &attempts
	}
	return s.transition(ctx, sig.ID, domain.SignalStateApproved, domain.SignalStateFailed, upd)
}
