package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Submit admits a paid submission, persists it PENDING and sends the
// moderation prompt. It does not wait for the decision. A failed prompt does
// not fail the submission. The payment is spent only once the submission
// has passed every other admission check.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	in := input.normalize()
	if err := in.Validate(); err != nil {
		s.metrics.Submission("invalid")
		return SubmitResult{}, err
	}

	receipt, err := s.payment.Verify(ctx, in.PaymentProof, in.SenderKey, in.RecipientHandle)
	if err != nil {
		return SubmitResult{}, s.paymentFailure(err)
	}

	if err := s.checkAdmission(ctx, in.SenderKey, in.RecipientHandle); err != nil {
		if errors.Is(err, domain.ErrCooldown) {
			s.metrics.Submission("cooldown")
			return SubmitResult{}, err
		}
		s.metrics.Submission("error")
		return SubmitResult{}, err
	}

	if err := s.payment.Claim(ctx, receipt); err != nil {
		return SubmitResult{}, s.paymentFailure(err)
	}

	sig, err := s.store.Create(ctx, domain.Signal{
		ID:              uuid.New(),
		SenderKey:       in.SenderKey,
		RecipientHandle: in.RecipientHandle,
		Message:         in.Message,
		SenderContact:   in.SenderContact,
		State:           domain.SignalStatePending,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		s.metrics.Submission("error")
		return SubmitResult{}, fmt.Errorf("create signal: %w", err)
	}

	s.log.InfoContext(ctx, "signal submitted",
		slog.String("signal_id", sig.ID.String()),
		slog.String("sender_key", sig.SenderKey),
		slog.String("recipient", sig.RecipientHandle),
		slog.Int("message_length", domain.TextLength(sig.Message)),
	)
	s.metrics.Submission("accepted")

	return SubmitResult{
		SignalID:   sig.ID,
		State:      sig.State,
		Dispatched: s.dispatch(ctx, sig),
	}, nil
}

func (s *Service) paymentFailure(err error) error {
	if errors.Is(err, domain.ErrPaymentDenied) {
		s.metrics.Submission("payment_denied")
		return err
	}
	s.metrics.Submission("error")
	return fmt.Errorf("payment gate: %w", err)
}

// checkAdmission runs the cooldown check serialized with lock application
// for the same sender.
func (s *Service) checkAdmission(ctx context.Context, senderKey, recipientHandle string) error {
	unlock, err := s.locker.Lock(ctx, senderKey)
	if err != nil {
		return fmt.Errorf("lock sender: %w", err)
	}
	defer unlock()

	return s.cooldown.CheckAdmission(ctx, senderKey, recipientHandle)
}

// dispatch claims the prompt of a signal, sends it and records its
// reference. It reports whether this call sent the prompt. A failed send
// releases the claim for the sweep; once the prompt is out the claim is
// kept, so losing the reference never leads to a second prompt.
func (s *Service) dispatch(ctx context.Context, sig domain.Signal) bool {
	claimed, err := s.store.ClaimDispatch(ctx, sig.ID, s.now().UTC())
	if err != nil {
		s.log.WarnContext(ctx, "claim dispatch failed, left for redispatch",
			slog.String("signal_id", sig.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !claimed {
		s.log.DebugContext(ctx, "prompt already claimed", slog.String("signal_id", sig.ID.String()))
		return false
	}

	ref, err := s.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		s.log.WarnContext(ctx, "dispatch failed, left for redispatch",
			slog.String("signal_id", sig.ID.String()),
			slog.String("error", err.Error()),
		)
		if err := s.store.ReleaseDispatch(context.WithoutCancel(ctx), sig.ID); err != nil {
			s.log.ErrorContext(ctx, "release dispatch failed; the signal expires unprompted",
				slog.String("signal_id", sig.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	if err := s.store.SetPromptRef(ctx, sig.ID, ref); err != nil {
		// The button still carries the signal id, so the decision correlates.
		s.log.WarnContext(ctx, "store prompt ref failed",
			slog.String("signal_id", sig.ID.String()),
			slog.String("prompt_ref", ref),
			slog.String("error", err.Error()),
		)
	}
	return true
}
