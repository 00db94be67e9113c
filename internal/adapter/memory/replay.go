package memory

import (
	"context"
	"sync"
	"time"
)

// ReplayGuard remembers claimed payment proof ids until they expire.
type ReplayGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewReplayGuard creates an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{claims: make(map[string]time.Time), now: time.Now}
}

// Claim records id until expiresAt. It returns false if id is already claimed.
func (g *ReplayGuard) Claim(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.claims {
		if !now.Before(exp) {
			delete(g.claims, k)
		}
	}

	if _, taken := g.claims[id]; taken {
		return false, nil
	}
	g.claims[id] = expiresAt
	return true, nil
}
