package cooldown

import (
	"context"
	"errors"
	"fmt"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Status answers a cooldown query for senderKey. Unknown senders are unlocked.
func (s *Service) Status(ctx context.Context, senderKey string) (domain.CooldownStatus, error) {
	senderKey = domain.NormalizeSenderKey(senderKey)
	if senderKey == "" {
		return domain.CooldownStatus{}, domain.NewValidationError("sender_key", "required")
	}

	rec, err := s.repo.Get(ctx, senderKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CooldownStatus{SenderKey: senderKey}, nil
	}
	if err != nil {
		return domain.CooldownStatus{}, fmt.Errorf("get cooldown: %w", err)
	}
	return rec.Status(s.now()), nil
}
