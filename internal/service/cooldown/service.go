// Package cooldown implements the single-recipient lock of a sender. The
// guard is passive: callers serialize CheckAdmission and ApplyLock per sender.
package cooldown

import (
	"context"
	"log/slog"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

type cooldownRepo interface {
	Get(ctx context.Context, senderKey string) (domain.CooldownRecord, error)
	Upsert(ctx context.Context, rec domain.CooldownRecord) error
}

// Service checks and applies sender cooldown locks.
type Service struct {
	repo        cooldownRepo
	defaultDays int
	now         func() time.Time
	log         *slog.Logger
}

// NewService creates a new Cooldown service. days <= 0 falls back to
// domain.DefaultCooldownDays.
func NewService(
	log *slog.Logger,
	repo cooldownRepo,
	days int,
) *Service {
	if days <= 0 {
		days = domain.DefaultCooldownDays
	}
	return &Service{
		repo:        repo,
		defaultDays: days,
		now:         time.Now,
		log:         log.With("service", "cooldown"),
	}
}
