package signal

import (
	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// SubmitResult is returned as soon as the signal is persisted.
type SubmitResult struct {
	SignalID uuid.UUID
	State    domain.SignalState
	// Dispatched is false when the prompt could not be sent yet; the sweep
	// sends it later.
	Dispatched bool
}

// DecisionResult describes how a decision was applied.
type DecisionResult struct {
	SignalID uuid.UUID
	State    domain.SignalState
	// Duplicate is true when the signal had already left PENDING.
	Duplicate bool
}

// SweepResult counts what one sweep pass changed.
type SweepResult struct {
	Expired      int
	Redispatched int
	Resumed      int
}
