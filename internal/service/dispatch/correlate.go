package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Correlate maps a decision back to its signal id. The prompt reference is
// authoritative; when it is not recorded (the prompt was sent but storing the
// reference failed) the id tagged on the button is used instead.
func (s *Service) Correlate(ctx context.Context, ev domain.DecisionEvent) (uuid.UUID, error) {
	sig, err := s.signals.GetByPromptRef(ctx, ev.PromptRef)
	if err == nil {
		if ev.SignalID != uuid.Nil && ev.SignalID != sig.ID {
			return uuid.Nil, fmt.Errorf("prompt %s belongs to signal %s, button names %s: %w",
				ev.PromptRef, sig.ID, ev.SignalID, domain.ErrValidation)
		}
		return sig.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("lookup prompt %s: %w", ev.PromptRef, err)
	}
	if ev.SignalID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("prompt %s: %w", ev.PromptRef, domain.ErrNotFound)
	}

	sig, err = s.signals.Get(ctx, ev.SignalID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup signal %s: %w", ev.SignalID, err)
	}
	return sig.ID, nil
}
