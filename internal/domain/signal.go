package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignalState is the lifecycle state of a signal.
type SignalState string

const (
	SignalStatePending   SignalState = "PENDING"
	SignalStateApproved  SignalState = "APPROVED"
	SignalStateRejected  SignalState = "REJECTED"
	SignalStateCommitted SignalState = "COMMITTED"
	SignalStateFailed    SignalState = "FAILED"
)

// SignalStates lists every state in lifecycle order.
var SignalStates = []SignalState{
	SignalStatePending,
	SignalStateApproved,
	SignalStateRejected,
	SignalStateCommitted,
	SignalStateFailed,
}

func (s SignalState) String() string { return string(s) }

func (s SignalState) IsValid() bool {
	switch s {
	case SignalStatePending, SignalStateApproved, SignalStateRejected, SignalStateCommitted, SignalStateFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s SignalState) IsTerminal() bool {
	switch s {
	case SignalStateRejected, SignalStateCommitted, SignalStateFailed:
		return true
	case SignalStatePending, SignalStateApproved:
		return false
	}
	return false
}

// CanTransitionTo reports whether from -> next is an edge of the lifecycle.
//
//	PENDING  -> APPROVED | REJECTED
//	APPROVED -> COMMITTED | FAILED
func (s SignalState) CanTransitionTo(next SignalState) bool {
	switch s {
	case SignalStatePending:
		return next == SignalStateApproved || next == SignalStateRejected
	case SignalStateApproved:
		return next == SignalStateCommitted || next == SignalStateFailed
	case SignalStateRejected, SignalStateCommitted, SignalStateFailed:
		return false
	}
	return false
}

// ParseSignalState parses a state name case-insensitively.
func ParseSignalState(raw string) (SignalState, bool) {
	s := SignalState(upper(raw))
	return s, s.IsValid()
}

// RejectReason explains why a signal ended up REJECTED.
type RejectReason string

const (
	RejectReasonModerator RejectReason = "moderator"
	RejectReasonExpired   RejectReason = "expired"
	RejectReasonCooldown  RejectReason = "cooldown"
)

// Signal is one sender-to-recipient message and its lifecycle.
type Signal struct {
	ID              uuid.UUID
	SenderKey       string
	RecipientHandle string
	Message         string
	SenderContact   *string
	State           SignalState
	PromptRef       *string
	// DispatchedAt is set when a prompt send is claimed. A signal with it set
	// and no PromptRef may already have a prompt in the chat.
	DispatchedAt *time.Time
	RejectReason *RejectReason
	LedgerRef    *string
	// LedgerTx is the signed ledger transaction, recorded before its first
	// broadcast and rebroadcast until it is mined.
	LedgerTx    []byte
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	CommittedAt *time.Time
	UpdatedAt   time.Time
}

// Redacted returns a copy that is safe to expose outside the moderation path.
// Message and contact are kept only once the signal is COMMITTED.
func (s Signal) Redacted() Signal {
	s.LedgerTx = nil
	if s.State == SignalStateCommitted {
		return s
	}
	s.Message = ""
	s.SenderContact = nil
	return s
}

// SignalUpdate carries the fields written together with a state transition.
// Nil fields are left untouched.
type SignalUpdate struct {
	ResolvedAt   *time.Time
	CommittedAt  *time.Time
	RejectReason *RejectReason
	LedgerRef    *string
	Attempts     *int
	LastError    *string
	// DiscardMessage erases message and contact.
	DiscardMessage bool
}

// Decision is the moderator's verdict on a pending signal.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) String() string { return string(d) }

func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject:
		return true
	}
	return false
}

// TargetState maps a decision to the state a PENDING signal moves to.
func (d Decision) TargetState() SignalState {
	switch d {
	case DecisionApprove:
		return SignalStateApproved
	case DecisionReject:
		return SignalStateRejected
	}
	return ""
}

// DecisionEvent is an inbound decision as delivered by the chat transport.
// The transport may deliver the same event more than once. SignalID is the id
// tagged on the prompt button; it must agree with the signal PromptRef
// resolves to.
type DecisionEvent struct {
	PromptRef  string
	SignalID   uuid.UUID
	Decision   Decision
	CallbackID string
}

// SignalStats holds counts per state.
type SignalStats map[SignalState]int

// Total returns the number of signals across all states.
func (s SignalStats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}
