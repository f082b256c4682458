// Package memory provides an in-process ports.DeadManCache for
// single-instance deployments and tests, where a shared Redis instance
// isn't configured. Per §5, this is an accepted degradation: without a
// shared cache, freeze/heartbeat state does not cross instances, but a
// restart's under-enforcement window is the same either way.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/google/uuid"
)

// HeartbeatCache is a mutex-guarded in-process ports.DeadManCache.
type HeartbeatCache struct {
	mu         sync.Mutex
	heartbeats map[uuid.UUID]time.Time
	frozen     map[uuid.UUID]struct{}
}

// NewHeartbeatCache constructs an empty in-process cache.
func NewHeartbeatCache() *HeartbeatCache {
	return &HeartbeatCache{
		heartbeats: make(map[uuid.UUID]time.Time),
		frozen:     make(map[uuid.UUID]struct{}),
	}
}

var _ ports.DeadManCache = (*HeartbeatCache)(nil)

func (c *HeartbeatCache) SetHeartbeat(_ context.Context, agentID uuid.UUID, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats[agentID] = at
	return nil
}

func (c *HeartbeatCache) GetHeartbeat(_ context.Context, agentID uuid.UUID) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.heartbeats[agentID]
	return at, ok, nil
}

func (c *HeartbeatCache) Freeze(_ context.Context, agentID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen[agentID] = struct{}{}
	return nil
}

func (c *HeartbeatCache) Unfreeze(_ context.Context, agentID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.frozen, agentID)
	return nil
}

func (c *HeartbeatCache) IsFrozen(_ context.Context, agentID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.frozen[agentID]
	return ok, nil
}
