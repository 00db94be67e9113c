package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// codeErrors maps SQLSTATE codes to domain sentinels.
var codeErrors = map[string]error{
	"23505": domain.ErrAlreadyExists, // unique_violation: prompt_ref, registered username
	"23514": domain.ErrValidation,    // check_violation: length and state checks
	"40001": domain.ErrConflict,      // serialization_failure
	"40P01": domain.ErrConflict,      // deadlock_detected
	"55P03": domain.ErrConflict,      // lock_not_available
}

// MapError converts pgx/pgconn errors to domain errors, prefixed with the
// entity and key. Context errors are wrapped but keep their identity. A mapped
// PgError stays in the chain so Retryable can still see it.
func MapError(err error, entity string, id any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %v: %w", entity, id, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", entity, id, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sentinel, ok := codeErrors[pgErr.Code]; ok {
			return fmt.Errorf("%s %v: %w (%w)", entity, id, sentinel, pgErr)
		}
	}
	return fmt.Errorf("%s %v: %w", entity, id, err)
}

// Retryable reports whether err is a transaction failure that succeeds when
// the whole transaction is run again.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
