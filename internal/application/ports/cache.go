package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeadManCache is the Dead-Man Switch's cross-instance coordination
// cache: the frozen-agent set and each agent's last heartbeat, shared
// across every API instance (§4.6, §5). It is a soft cache — fully
// rebuildable from DeadManStore's events and heartbeat rows, so its
// unavailability degrades to single-instance-only enforcement rather
// than breaking correctness (§5 Shared resource policy).
type DeadManCache interface {
	SetHeartbeat(ctx context.Context, agentID uuid.UUID, at time.Time) error
	GetHeartbeat(ctx context.Context, agentID uuid.UUID) (time.Time, bool, error)

	Freeze(ctx context.Context, agentID uuid.UUID) error
	Unfreeze(ctx context.Context, agentID uuid.UUID) error
	IsFrozen(ctx context.Context, agentID uuid.UUID) (bool, error)
}
