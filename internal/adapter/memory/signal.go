// Package memory provides in-process implementations of the stores, the
// sender locker and the payment replay guard. It backs the "memory" storage
// driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// SignalStore keeps signals in a map. Every operation is atomic.
type SignalStore struct {
	mu      sync.RWMutex
	signals map[uuid.UUID]domain.Signal
	prompts map[string]uuid.UUID
	now     func() time.Time
}

// NewSignalStore creates an empty store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		signals: make(map[uuid.UUID]domain.Signal),
		prompts: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

// Create stores a new PENDING signal.
func (s *SignalStore) Create(_ context.Context, sig domain.Signal) (domain.Signal, error) {
	if sig.State != domain.SignalStatePending {
		return domain.Signal{}, fmt.Errorf("signal %s: create in state %s: %w", sig.ID, sig.State, domain.ErrValidation)
	}
	if domain.TextLength(sig.Message) < domain.MinTextLength || domain.TextLength(sig.RecipientHandle) < domain.MinTextLength {
		return domain.Signal{}, fmt.Errorf("signal %s: %w", sig.ID, domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[sig.ID]; ok {
		return domain.Signal{}, fmt.Errorf("signal %s: %w", sig.ID, domain.ErrAlreadyExists)
	}
	sig.UpdatedAt = sig.CreatedAt
	s.signals[sig.ID] = sig
	return clone(sig), nil
}

// Get returns a signal by id.
func (s *SignalStore) Get(_ context.Context, id uuid.UUID) (domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[id]
	if !ok {
		return domain.Signal{}, fmt.Errorf("signal %s: %w", id, domain.ErrNotFound)
	}
	return clone(sig), nil
}

// GetByPromptRef returns the signal whose moderation prompt is ref.
func (s *SignalStore) GetByPromptRef(_ context.Context, ref string) (domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.prompts[ref]
	if !ok {
		return domain.Signal{}, fmt.Errorf("signal %s: %w", ref, domain.ErrNotFound)
	}
	return clone(s.signals[id]), nil
}

// Transition applies a compare-and-swap state change.
func (s *SignalStore) Transition(_ context.Context, id uuid.UUID, from, to domain.SignalState, upd domain.SignalUpdate) (domain.Signal, error) {
	if !from.CanTransitionTo(to) {
		return domain.Signal{}, fmt.Errorf("signal %s: %s -> %s: %w", id, from, to, domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return domain.Signal{}, fmt.Errorf("signal %s: %w", id, domain.ErrNotFound)
	}
	if sig.State != from {
		return domain.Signal{}, &domain.ConflictError{SignalID: id, Expected: from, Actual: sig.State}
	}

	sig.State = to
	sig.UpdatedAt = s.now()
	if upd.ResolvedAt != nil {
		sig.ResolvedAt = copyPtr(upd.ResolvedAt)
	}
	if upd.CommittedAt != nil {
		sig.CommittedAt = copyPtr(upd.CommittedAt)
	}
	if upd.RejectReason != nil {
		sig.RejectReason = copyPtr(upd.RejectReason)
	}
	if upd.LedgerRef != nil {
		sig.LedgerRef = copyPtr(upd.LedgerRef)
	}
	if upd.Attempts != nil {
		sig.Attempts = *upd.Attempts
	}
	if upd.LastError != nil {
		sig.LastError = copyPtr(upd.LastError)
	}
	if from == domain.SignalStateApproved {
		sig.LedgerTx = nil
	}
	if upd.DiscardMessage || to == domain.SignalStateRejected {
		sig.Message = ""
		sig.SenderContact = nil
	}

	s.signals[id] = sig
	return clone(sig), nil
}

// SetPromptRef records the moderation prompt of a PENDING signal.
func (s *SignalStore) SetPromptRef(_ context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return fmt.Errorf("signal %s: %w", id, domain.ErrNotFound)
	}
	if sig.State != domain.SignalStatePending {
		return &domain.ConflictError{SignalID: id, Expected: domain.SignalStatePending, Actual: sig.State}
	}
	if owner, taken := s.prompts[ref]; taken && owner != id {
		return fmt.Errorf("prompt %s: %w", ref, domain.ErrAlreadyExists)
	}
	if sig.PromptRef != nil {
		delete(s.prompts, *sig.PromptRef)
	}
	sig.PromptRef = &ref
	sig.UpdatedAt = s.now()
	s.signals[id] = sig
	s.prompts[ref] = id
	return nil
}

// ClaimDispatch marks the prompt of a PENDING signal as being sent. It
// reports false when the signal is no longer PENDING or already claimed.
func (s *SignalStore) ClaimDispatch(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return false, fmt.Errorf("signal %s: %w", id, domain.ErrNotFound)
	}
	if sig.State != domain.SignalStatePending || sig.PromptRef != nil || sig.DispatchedAt != nil {
		return false, nil
	}
	sig.DispatchedAt = &at
	sig.UpdatedAt = s.now()
	s.signals[id] = sig
	return true, nil
}

// ReleaseDispatch drops a dispatch claim that never produced a prompt.
func (s *SignalStore) ReleaseDispatch(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return fmt.Errorf("signal %s: %w", id, domain.ErrNotFound)
	}
	if sig.PromptRef != nil {
		return nil
	}
	sig.DispatchedAt = nil
	sig.UpdatedAt = s.now()
	s.signals[id] = sig
	return nil
}

// SetLedgerTx records the signed ledger transaction of an APPROVED signal.
// A signal holds at most one.
func (s *SignalStore) SetLedgerTx(_ context.Context, id uuid.UUID, rawTx []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return fmt.Errorf("signal %s: %w", id, domain.ErrNotFound)
	}
	if sig.State != domain.SignalStateApproved || sig.LedgerTx != nil {
		return &domain.ConflictError{SignalID: id, Expected: domain.SignalStateApproved, Actual: sig.State}
	}
	sig.LedgerTx = slices.Clone(rawTx)
	sig.UpdatedAt = s.now()
	s.signals[id] = sig
	return nil
}

// ListByState returns signals in the given state, newest first.
func (s *SignalStore) ListByState(_ context.Context, state domain.SignalState, limit, offset int) ([]domain.Signal, error) {
	out := s.filter(func(sig domain.Signal) bool { return sig.State == state })
	slices.SortFunc(out, func(a, b domain.Signal) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, limit, offset), nil
}

// ListPendingBefore returns PENDING signals created before the cutoff, oldest first.
func (s *SignalStore) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	out := s.filter(func(sig domain.Signal) bool {
		return sig.State == domain.SignalStatePending && sig.CreatedAt.Before(before)
	})
	slices.SortFunc(out, func(a, b domain.Signal) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return page(out, limit, 0), nil
}

// ListUndispatched returns unclaimed PENDING signals created before the cutoff.
func (s *SignalStore) ListUndispatched(_ context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	out := s.filter(func(sig domain.Signal) bool {
		return sig.State == domain.SignalStatePending && sig.PromptRef == nil && sig.DispatchedAt == nil &&
			sig.CreatedAt.Before(before)
	})
	slices.SortFunc(out, func(a, b domain.Signal) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return page(out, limit, 0), nil
}

// ListStaleApproved returns APPROVED signals resolved before the cutoff.
func (s *SignalStore) ListStaleApproved(_ context.Context, before time.Time, limit int) ([]domain.Signal, error) {
	out := s.filter(func(sig domain.Signal) bool {
		return sig.State == domain.SignalStateApproved && sig.ResolvedAt != nil && sig.ResolvedAt.Before(before)
	})
	slices.SortFunc(out, func(a, b domain.Signal) int { return a.ResolvedAt.Compare(*b.ResolvedAt) })
	return page(out, limit, 0), nil
}

// HasInFlight reports whether the sender has an APPROVED signal to a
// recipient other than recipientHandle.
func (s *SignalStore) HasInFlight(_ context.Context, senderKey, recipientHandle string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sig := range s.signals {
		if sig.SenderKey == senderKey && sig.State == domain.SignalStateApproved && sig.RecipientHandle != recipientHandle {
			return true, nil
		}
	}
	return false, nil
}

// Stats returns the number of signals per state.
func (s *SignalStore) Stats(_ context.Context) (domain.SignalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(domain.SignalStats, len(domain.SignalStates))
	for _, st := range domain.SignalStates {
		stats[st] = 0
	}
	for _, sig := range s.signals {
		stats[sig.State]++
	}
	return stats, nil
}

func (s *SignalStore) filter(keep func(domain.Signal) bool) []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Signal
	for _, sig := range s.signals {
		if keep(sig) {
			out = append(out, clone(sig))
		}
	}
	return out
}

func page(in []domain.Signal, limit, offset int) []domain.Signal {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// clone deep-copies pointer fields so callers cannot mutate stored records.
func clone(s domain.Signal) domain.Signal {
	s.SenderContact = copyPtr(s.SenderContact)
	s.PromptRef = copyPtr(s.PromptRef)
	s.RejectReason = copyPtr(s.RejectReason)
	s.LedgerRef = copyPtr(s.LedgerRef)
	s.LastError = copyPtr(s.LastError)
	s.ResolvedAt = copyPtr(s.ResolvedAt)
	s.CommittedAt = copyPtr(s.CommittedAt)
	s.DispatchedAt = copyPtr(s.DispatchedAt)
	s.LedgerTx = slices.Clone(s.LedgerTx)
	return s
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

