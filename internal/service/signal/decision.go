package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// OnDecision applies a moderator decision. Delivery is at-least-once: a
// decision for a signal that already left PENDING, including one that lost a
// race with a concurrent decision, is reported as a duplicate and not as an
// error. An approval starts the ledger commit in the background.
func (s *Service) OnDecision(ctx context.Context, ev domain.DecisionEvent) (DecisionResult, error) {
	if !ev.Decision.IsValid() {
		return DecisionResult{}, domain.NewValidationError("decision", "must be approve or reject")
	}

	id, err := s.dispatcher.Correlate(ctx, ev)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("correlate decision: %w", err)
	}

	sig, err := s.store.Get(ctx, id)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("get signal: %w", err)
	}
	if sig.State != domain.SignalStatePending {
		return s.duplicate(ctx, ev, sig), nil
	}

	var resolved domain.Signal
	switch ev.Decision {
	case domain.DecisionReject:
		now := s.now().UTC()
		resolved, err = s.transition(ctx, id, domain.SignalStatePending, domain.SignalStateRejected, domain.SignalUpdate{
			ResolvedAt:     &now,
			RejectReason:   ptr(domain.RejectReasonModerator),
			DiscardMessage: true,
		})
	case domain.DecisionApprove:
		resolved, err = s.approve(ctx, sig)
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		current, getErr := s.store.Get(ctx, id)
		if getErr != nil {
			return DecisionResult{}, fmt.Errorf("get signal after conflict: %w", getErr)
		}
		return s.duplicate(ctx, ev, current), nil
	}
	if err != nil {
		s.metrics.Decision(ev.Decision.String(), "error")
		return DecisionResult{}, fmt.Errorf("resolve signal: %w", err)
	}

	s.metrics.Decision(ev.Decision.String(), "applied")
	s.dispatcher.Settle(ctx, ev, resolved, false)

	if resolved.State == domain.SignalStateApproved {
		s.startCommit(ctx, resolved)
	}
	return DecisionResult{SignalID: id, State: resolved.State}, nil
}

// approve moves a PENDING signal to APPROVED, or to REJECTED with reason
// cooldown when the sender is locked to another recipient or already has an
// approval in flight to one. The check and the CAS run under the sender lock.
func (s *Service) approve(ctx context.Context, sig domain.Signal) (domain.Signal, error) {
	unlock, err := s.locker.Lock(ctx, sig.SenderKey)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("lock sender: %w", err)
	}
	defer unlock()

	var (
		out  domain.Signal
		from = domain.SignalStatePending
		to   domain.SignalState
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockKey(ctx, sig.SenderKey); err != nil {
			return err
		}

		blocked, err := s.blockedByCooldown(ctx, sig)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		upd := domain.SignalUpdate{ResolvedAt: &now}
		to = domain.SignalStateApproved
		if blocked {
			to = domain.SignalStateRejected
			upd.RejectReason = ptr(domain.RejectReasonCooldown)
			upd.DiscardMessage = true
		}

		out, err = s.store.Transition(ctx, sig.ID, from, to, upd)
		return err
	})
	if err != nil {
		return domain.Signal{}, err
	}

	s.metrics.Transition(from.String(), to.String())
	s.log.InfoContext(ctx, "signal transitioned",
		slog.String("signal_id", sig.ID.String()),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return out, nil
}

func (s *Service) blockedByCooldown(ctx context.Context, sig domain.Signal) (bool, error) {
	err := s.cooldown.CheckAdmission(ctx, sig.SenderKey, sig.RecipientHandle)
	if errors.Is(err, domain.ErrCooldown) {
		s.log.InfoContext(ctx, "approval blocked by cooldown lock", slog.String("signal_id", sig.ID.String()))
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check admission: %w", err)
	}

	inFlight, err := s.store.HasInFlight(ctx, sig.SenderKey, sig.RecipientHandle)
	if err != nil {
		return false, fmt.Errorf("check in-flight approvals: %w", err)
	}
	if inFlight {
		s.log.InfoContext(ctx, "approval blocked by in-flight approval", slog.String("signal_id", sig.ID.String()))
	}
	return inFlight, nil
}

func (s *Service) duplicate(ctx context.Context, ev domain.DecisionEvent, current domain.Signal) DecisionResult {
	s.metrics.Decision(ev.Decision.String(), "duplicate")
	s.log.InfoContext(ctx, "duplicate decision ignored",
		slog.String("signal_id", current.ID.String()),
		slog.String("decision", ev.Decision.String()),
		slog.String("state", current.State.String()),
	)
	s.dispatcher.Settle(ctx, ev, current, true)
	return DecisionResult{SignalID: current.ID, State: current.State, Duplicate: true}
}
