package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// LineageStatus mirrors the agent's own lifecycle for the purposes of
// spawn eligibility and cascade termination.
type LineageStatus string

const (
	LineageStatusActive     LineageStatus = "ACTIVE"
	LineageStatusFrozen     LineageStatus = "FROZEN"
	LineageStatusTerminated LineageStatus = "TERMINATED"
)

// SpawnPolicy is the inheritable policy envelope every descendant's
// effective limits must fit within (§4.7). Ratios multiply the parent's
// policy; overrides further tighten but never loosen it.
type SpawnPolicy struct {
	MaxSpendRatio       float64 `json:"maxSpendRatio"`
	MaxTransactionRatio float64 `json:"maxTransactionRatio"`
	MaxSpawnDepth       int     `json:"maxSpawnDepth"`
	MaxChildren         int     `json:"maxChildren"`
	ChildrenCanSpawn    bool    `json:"childrenCanSpawn"`
	VendorAllowlist     []string `json:"vendorAllowlist,omitempty"`
}

// DefaultSpawnPolicy is the policy a root agent with no explicit lineage
// starts from (§4.7 step 3).
func DefaultSpawnPolicy() SpawnPolicy {
	return SpawnPolicy{
		MaxSpendRatio:       1.0,
		MaxTransactionRatio: 1.0,
		MaxSpawnDepth:       3,
		MaxChildren:         10,
		ChildrenCanSpawn:    true,
	}
}

// AgentLineage is one node in the tree of agents produced by spawning,
// rooted at a distinguished agent (§3).
type AgentLineage struct {
	agentID     uuid.UUID
	parentID    *uuid.UUID
	rootID      uuid.UUID
	depth       int
	childrenIDs []uuid.UUID
	status      LineageStatus
	spawnPolicy SpawnPolicy

	createdAt time.Time
	updatedAt time.Time
}

// NewRootLineage creates the lineage row for an agent with no parent —
// the root of a new tree.
func NewRootLineage(agentID uuid.UUID, policy SpawnPolicy) *AgentLineage {
	now := time.Now()
	return &AgentLineage{
		agentID:     agentID,
		parentID:    nil,
		rootID:      agentID,
		depth:       0,
		childrenIDs: []uuid.UUID{},
		status:      LineageStatusActive,
		spawnPolicy: policy,
		createdAt:   now,
		updatedAt:   now,
	}
}

// NewChildLineage creates the lineage row for a newly spawned child.
func NewChildLineage(agentID, parentID, rootID uuid.UUID, depth int, policy SpawnPolicy) *AgentLineage {
	now := time.Now()
	return &AgentLineage{
		agentID:     agentID,
		parentID:    &parentID,
		rootID:      rootID,
		depth:       depth,
		childrenIDs: []uuid.UUID{},
		status:      LineageStatusActive,
		spawnPolicy: policy,
		createdAt:   now,
		updatedAt:   now,
	}
}

// ReconstructAgentLineage reconstructs a lineage row from stored data.
func ReconstructAgentLineage(
	agentID uuid.UUID,
	parentID *uuid.UUID,
	rootID uuid.UUID,
	depth int,
	childrenIDs []uuid.UUID,
	status LineageStatus,
	spawnPolicy SpawnPolicy,
	createdAt, updatedAt time.Time,
) *AgentLineage {
	return &AgentLineage{
		agentID: agentID, parentID: parentID, rootID: rootID, depth: depth,
		childrenIDs: childrenIDs, status: status, spawnPolicy: spawnPolicy,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (l *AgentLineage) AgentID() uuid.UUID         { return l.agentID }
func (l *AgentLineage) ParentID() *uuid.UUID       { return l.parentID }
func (l *AgentLineage) RootID() uuid.UUID          { return l.rootID }
func (l *AgentLineage) Depth() int                 { return l.depth }
func (l *AgentLineage) ChildrenIDs() []uuid.UUID   { return l.childrenIDs }
func (l *AgentLineage) Status() LineageStatus      { return l.status }
func (l *AgentLineage) SpawnPolicy() SpawnPolicy   { return l.spawnPolicy }
func (l *AgentLineage) CreatedAt() time.Time       { return l.createdAt }
func (l *AgentLineage) UpdatedAt() time.Time       { return l.updatedAt }

// IsActive reports whether this lineage node currently permits spawning.
func (l *AgentLineage) IsActive() bool {
	return l.status == LineageStatusActive
}

// CanSpawnChild checks the eligibility preconditions of §4.7 step 4,
// excluding the duplicate-lineage check (which needs a store lookup and
// lives in the spawn application package).
func (l *AgentLineage) CanSpawnChild() error {
	if !l.IsActive() {
		return errors.NewStateConflict("AgentLineage", string(l.status), "spawn")
	}
	if l.depth >= l.spawnPolicy.MaxSpawnDepth {
		return errors.ErrSpawnDepthExceeded
	}
	if len(l.childrenIDs) >= l.spawnPolicy.MaxChildren {
		return errors.ErrSpawnChildrenLimit
	}
	if l.depth > 0 && !l.spawnPolicy.ChildrenCanSpawn {
		return errors.ErrSpawnNotPermitted
	}
	return nil
}

// AddChild appends childID to the children list. Atomic with the child
// lineage row's creation, per §4.7 step 6.
func (l *AgentLineage) AddChild(childID uuid.UUID) {
	l.childrenIDs = append(l.childrenIDs, childID)
	l.updatedAt = time.Now()
}

// Freeze marks this lineage node Frozen (dead-man cascade or kill switch).
func (l *AgentLineage) Freeze() {
	if l.status != LineageStatusTerminated {
		l.status = LineageStatusFrozen
		l.updatedAt = time.Now()
	}
}

// Terminate marks this lineage node Terminated. Irreversible.
func (l *AgentLineage) Terminate() {
	l.status = LineageStatusTerminated
	l.updatedAt = time.Now()
}

// ChildPolicy derives a monotonically-tighter policy for a child, applying
// ratios then overrides (§4.7 step 5). overrides with a zero value for a
// numeric field mean "no override" for that field.
func (l *AgentLineage) ChildPolicy(overrides SpawnPolicy) SpawnPolicy {
	parent := l.spawnPolicy
	child := SpawnPolicy{
		MaxSpendRatio:       parent.MaxSpendRatio,
		MaxTransactionRatio: parent.MaxTransactionRatio,
		MaxSpawnDepth:       parent.MaxSpawnDepth - 1,
		MaxChildren:         parent.MaxChildren,
		ChildrenCanSpawn:    parent.ChildrenCanSpawn,
		VendorAllowlist:     intersectVendors(parent.VendorAllowlist, overrides.VendorAllowlist),
	}

	if overrides.MaxSpendRatio > 0 && overrides.MaxSpendRatio < child.MaxSpendRatio {
		child.MaxSpendRatio = overrides.MaxSpendRatio
	}
	if overrides.MaxTransactionRatio > 0 && overrides.MaxTransactionRatio < child.MaxTransactionRatio {
		child.MaxTransactionRatio = overrides.MaxTransactionRatio
	}
	if overrides.MaxSpawnDepth > 0 && overrides.MaxSpawnDepth < child.MaxSpawnDepth {
		child.MaxSpawnDepth = overrides.MaxSpawnDepth
	}
	if overrides.MaxChildren > 0 && overrides.MaxChildren < child.MaxChildren {
		child.MaxChildren = overrides.MaxChildren
	}
	if !overrides.ChildrenCanSpawn {
		// ChildrenCanSpawn stays the parent's value; the override's value
		// for this field is not applied.
	}
	return child
}

func intersectVendors(parent, override []string) []string {
	if len(override) == 0 {
		return parent
	}
	if len(parent) == 0 {
		return override
	}
	allowed := make(map[string]bool, len(parent))
	for _, v := range parent {
		allowed[v] = true
	}
	var out []string
	for _, v := range override {
		if allowed[v] {
			out = append(out, v)
		}
	}
	return out
}

// SpawnEvent is the append-only record of one authorized spawn attempt.
type SpawnEvent struct {
	id               uuid.UUID
	parentID         uuid.UUID
	childID          uuid.UUID
	depth            int
	inheritedPolicy  SpawnPolicy
	authorized       bool
	createdAt        time.Time
}

// NewSpawnEvent records a spawn attempt's outcome.
func NewSpawnEvent(parentID, childID uuid.UUID, depth int, inheritedPolicy SpawnPolicy, authorized bool) *SpawnEvent {
	return &SpawnEvent{
		id: uuid.New(), parentID: parentID, childID: childID, depth: depth,
		inheritedPolicy: inheritedPolicy, authorized: authorized, createdAt: time.Now(),
	}
}

// ReconstructSpawnEvent reconstructs a SpawnEvent from stored data.
func ReconstructSpawnEvent(
	id, parentID, childID uuid.UUID,
	depth int,
	inheritedPolicy SpawnPolicy,
	authorized bool,
	createdAt time.Time,
) *SpawnEvent {
	return &SpawnEvent{id: id, parentID: parentID, childID: childID, depth: depth, inheritedPolicy: inheritedPolicy, authorized: authorized, createdAt: createdAt}
}

func (e *SpawnEvent) ID() uuid.UUID               { return e.id }
func (e *SpawnEvent) ParentID() uuid.UUID         { return e.parentID }
func (e *SpawnEvent) ChildID() uuid.UUID          { return e.childID }
func (e *SpawnEvent) Depth() int                  { return e.depth }
func (e *SpawnEvent) InheritedPolicy() SpawnPolicy { return e.inheritedPolicy }
func (e *SpawnEvent) Authorized() bool            { return e.authorized }
func (e *SpawnEvent) CreatedAt() time.Time        { return e.createdAt }
