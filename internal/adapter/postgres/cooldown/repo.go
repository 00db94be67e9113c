// Package cooldown implements CooldownRecord persistence using PostgreSQL.
package cooldown

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Repo provides cooldown lock persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new cooldown repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Get returns the lock record of a sender, or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, senderKey string) (domain.CooldownRecord, error) {
	query, args, err := postgres.Builder().
		Select("sender_key", "locked_recipient_handle", "lock_expires_at", "updated_at").
		From("cooldown_locks").
		Where("sender_key = ?", senderKey).
		ToSql()
	if err != nil {
		return domain.CooldownRecord{}, fmt.Errorf("build select cooldown_lock: %w", err)
	}

	var rec domain.CooldownRecord
	err = postgres.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...).
		Scan(&rec.SenderKey, &rec.LockedRecipientHandle, &rec.LockExpiresAt, &rec.UpdatedAt)
	if err != nil {
		return domain.CooldownRecord{}, postgres.MapError(err, "cooldown_lock", senderKey)
	}
	return rec, nil
}

// Upsert stores the lock record, overwriting any prior lock of the sender.
func (r *Repo) Upsert(ctx context.Context, rec domain.CooldownRecord) error {
	query, args, err := postgres.Builder().
		Insert("cooldown_locks").
		Columns("sender_key", "locked_recipient_handle", "lock_expires_at", "updated_at").
		Values(rec.SenderKey, rec.LockedRecipientHandle, rec.LockExpiresAt, rec.UpdatedAt).
		Suffix(`ON CONFLICT (sender_key) DO UPDATE SET
			locked_recipient_handle = EXCLUDED.locked_recipient_handle,
			lock_expires_at = EXCLUDED.lock_expires_at,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert cooldown_lock: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "cooldown_lock", rec.SenderKey)
	}
	return nil
}
