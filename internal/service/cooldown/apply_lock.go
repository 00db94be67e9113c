package cooldown

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// ApplyLock binds senderKey to recipientHandle for days (the configured
// default when days <= 0), overwriting any prior lock. A repeated lock to the
// same recipient refreshes the window.
func (s *Service) ApplyLock(ctx context.Context, senderKey, recipientHandle string, days int) (domain.CooldownRecord, error) {
	senderKey = domain.NormalizeSenderKey(senderKey)
	recipientHandle = domain.NormalizeHandle(recipientHandle)
	if senderKey == "" {
		return domain.CooldownRecord{}, domain.NewValidationError("sender_key", "required")
	}
	if domain.TextLength(recipientHandle) < domain.MinTextLength {
		return domain.CooldownRecord{}, domain.NewValidationError("recipient_handle", "min 2 characters")
	}
	if days <= 0 {
		days = s.defaultDays
	}

	now := s.now().UTC()
	rec := domain.CooldownRecord{
		SenderKey:             senderKey,
		LockedRecipientHandle: &recipientHandle,
		LockExpiresAt:         now.Add(time.Duration(days) * 24 * time.Hour),
		UpdatedAt:             now,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return domain.CooldownRecord{}, fmt.Errorf("upsert cooldown: %w", err)
	}

	s.log.InfoContext(ctx, "cooldown lock applied",
		slog.String("sender_key", senderKey),
		slog.String("recipient", recipientHandle),
		slog.Time("expires_at", rec.LockExpiresAt),
	)
	return rec, nil
}
