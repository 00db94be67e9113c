package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers claimed payment proof ids in Redis until they expire.
type ReplayGuard struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewReplayGuard creates a ReplayGuard. Keys are stored as prefix + "jti:" + id.
func NewReplayGuard(client *redis.Client, prefix string) *ReplayGuard {
	return &ReplayGuard{client: client, prefix: prefix, now: time.Now}
}

// Claim records id until expiresAt. It returns false if id is already claimed.
func (g *ReplayGuard) Claim(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(g.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := g.client.SetNX(ctx, g.prefix+"jti:"+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim payment proof: %w", err)
	}
	return ok, nil
}
