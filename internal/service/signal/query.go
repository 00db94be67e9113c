package signal

import (
	"context"
	"fmt"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Get returns the public view of a signal: message and contact only once
// the signal is COMMITTED.
func (s *Service) Get(ctx context.Context, input GetInput) (domain.Signal, error) {
	if err := input.Validate(); err != nil {
		return domain.Signal{}, err
	}
	sig, err := s.store.Get(ctx, input.ID)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("get signal: %w", err)
	}
	return sig.Redacted(), nil
}

// List returns a redacted page of signals in one state, newest first.
func (s *Service) List(ctx context.Context, input ListInput) ([]domain.Signal, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	sigs, err := s.store.ListByState(ctx, input.State, limit, input.Offset)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]domain.Signal, len(sigs))
	for i, sig := range sigs {
		out[i] = sig.Redacted()
	}
	return out, nil
}

// Stats returns signal counts per state.
func (s *Service) Stats(ctx context.Context) (domain.SignalStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("signal stats: %w", err)
	}
	return stats, nil
}
