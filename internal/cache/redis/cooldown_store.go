package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tng25/lino/internal/domain"
)

// CooldownStore implements domain.CooldownStore. Each block is a plain
// string key holding the reason, with the cooldown duration as its TTL, so
// expiry needs no sweeper and lookups never observe stale blocks.
type CooldownStore struct {
	rdb *redis.Client
}

var _ domain.CooldownStore = (*CooldownStore)(nil)

// NewCooldownStore creates a CooldownStore backed by the given Client.
func NewCooldownStore(c *Client) *CooldownStore {
	return &CooldownStore{rdb: c.rdb}
}

// Block records a cooldown for key lasting d, annotated with reason. A
// repeated Block for the same key resets the TTL and overwrites the reason.
func (s *CooldownStore) Block(ctx context.Context, key string, d time.Duration, reason string) error {
	if d <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, key, reason, d).Err(); err != nil {
		return fmt.Errorf("redis: block %s: %w", key, err)
	}
	return nil
}

// Blocked reports whether key is under an active cooldown and the reason
// recorded when it was set.
func (s *CooldownStore) Blocked(ctx context.Context, key string) (bool, string, error) {
	reason, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("redis: check %s: %w", key, err)
	}
	return true, reason, nil
}

// Clear removes a block before its TTL expires. Used by operator tooling.
func (s *CooldownStore) Clear(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: clear %s: %w", key, err)
	}
	return nil
}
