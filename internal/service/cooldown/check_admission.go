package cooldown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// CheckAdmission allows a signal from senderKey to recipientHandle unless the
// sender holds an active lock naming another recipient, in which case it
// returns a *domain.CooldownError.
func (s *Service) CheckAdmission(ctx context.Context, senderKey, recipientHandle string) error {
	senderKey = domain.NormalizeSenderKey(senderKey)
	recipientHandle = domain.NormalizeHandle(recipientHandle)

	rec, err := s.repo.Get(ctx, senderKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get cooldown: %w", err)
	}

	now := s.now()
	if rec.Allows(recipientHandle, now) {
		return nil
	}

	s.log.InfoContext(ctx, "admission denied by cooldown",
		slog.String("sender_key", senderKey),
		slog.Time("expires_at", rec.LockExpiresAt),
	)
	return &domain.CooldownError{
		SenderKey:       senderKey,
		LockedRecipient: *rec.LockedRecipientHandle,
		ExpiresAt:       rec.LockExpiresAt,
	}
}
