// Package redis implements ports.DeadManCache on top of redis/go-redis.
// The teacher's go.mod already declared this driver without using it;
// here it backs the Dead-Man Switch's cross-instance coordination state
// (§4.6), the one piece of application state that genuinely needs to be
// shared across API replicas rather than kept per-process.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	heartbeatKeyPrefix = "agentwallet:deadman:heartbeat:"
	frozenKeyPrefix    = "agentwallet:deadman:frozen:"
	// heartbeatTTL bounds how long a stale heartbeat lingers in the cache
	// if an agent is deleted without being explicitly cleaned up.
	heartbeatTTL = 24 * time.Hour
)

// HeartbeatCache is a Redis-backed ports.DeadManCache.
type HeartbeatCache struct {
	client *redis.Client
}

// NewHeartbeatCache wraps an existing *redis.Client.
func NewHeartbeatCache(client *redis.Client) *HeartbeatCache {
	return &HeartbeatCache{client: client}
}

var _ ports.DeadManCache = (*HeartbeatCache)(nil)

func (c *HeartbeatCache) SetHeartbeat(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	key := heartbeatKeyPrefix + agentID.String()
	if err := c.client.Set(ctx, key, at.Format(time.RFC3339Nano), heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("redis: set heartbeat: %w", err)
	}
	return nil
}

func (c *HeartbeatCache) GetHeartbeat(ctx context.Context, agentID uuid.UUID) (time.Time, bool, error) {
	key := heartbeatKeyPrefix + agentID.String()
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: get heartbeat: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: parse heartbeat: %w", err)
	}
	return at, true, nil
}

func (c *HeartbeatCache) Freeze(ctx context.Context, agentID uuid.UUID) error {
	key := frozenKeyPrefix + agentID.String()
	if err := c.client.Set(ctx, key, "1", 0).Err(); err != nil {
		return fmt.Errorf("redis: freeze: %w", err)
	}
	return nil
}

func (c *HeartbeatCache) Unfreeze(ctx context.Context, agentID uuid.UUID) error {
	key := frozenKeyPrefix + agentID.String()
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: unfreeze: %w", err)
	}
	return nil
}

func (c *HeartbeatCache) IsFrozen(ctx context.Context, agentID uuid.UUID) (bool, error) {
	key := frozenKeyPrefix + agentID.String()
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: is frozen: %w", err)
	}
	return n > 0, nil
}
