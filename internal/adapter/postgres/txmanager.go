package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTxAttempts bounds reruns of a transaction that failed with a
// serialization failure or deadlock.
const maxTxAttempts = 3

// TxManager runs functions in a transaction carried by the context.
// RunInTx inside a RunInTx callback starts a second independent transaction;
// callers must not nest them.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// RunInTx executes fn in a Read Committed transaction: commit on nil, rollback
// on error or panic (the panic is re-raised). A transaction that fails with a
// serialization failure or deadlock is run again from the start, so fn must
// have no effects outside the transaction.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     20 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         500 * time.Millisecond,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, maxTxAttempts-1), ctx)

	return backoff.Retry(func() error {
		err := m.runOnce(ctx, fn)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LockKey takes a transaction-scoped advisory lock on hashtext(key).
// It must be called inside RunInTx; the lock is released on commit or rollback.
func (m *TxManager) LockKey(ctx context.Context, key string) error {
	if !InTx(ctx) {
		return fmt.Errorf("advisory lock %q: no transaction in context", key)
	}
	q := QuerierFromCtx(ctx, m.pool)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}
