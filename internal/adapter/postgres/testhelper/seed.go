package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// UniqueSuffix returns a short unique string for generating non-conflicting test data.
func UniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SenderKey returns a sender key unique to this test run.
func SenderKey() string {
	return "0xsender" + UniqueSuffix()
}

// Handle returns a recipient handle unique to this test run.
func Handle() string {
	return "user_" + UniqueSuffix()
}

// SeedSignal inserts a row in the given state directly, bypassing the repo.
// The message column is left NULL; message_length is set so the row passes checks.
func SeedSignal(t *testing.T, pool *pgxpool.Pool, state domain.SignalState, createdAt time.Time) domain.Signal {
	t.Helper()

	s := domain.Signal{
		ID:              uuid.New(),
		SenderKey:       SenderKey(),
		RecipientHandle: Handle(),
		State:           state,
		CreatedAt:       createdAt.UTC().Truncate(time.Microsecond),
	}
	var ledgerRef *string
	if state == domain.SignalStateCommitted {
		ref := "0x" + UniqueSuffix()
		ledgerRef = &ref
		s.LedgerRef = ledgerRef
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO signals (id, sender_key, recipient_handle, message_length, state, ledger_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		s.ID, s.SenderKey, s.RecipientHandle, 5, string(state), ledgerRef, s.CreatedAt,
	)
	if err != nil {
		t.Fatalf("SeedSignal: %v", err)
	}
	return s
}
