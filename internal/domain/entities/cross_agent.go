package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// SettlementMode controls when a cross-agent transaction is considered
// settled once authorized (§3).
type SettlementMode string

const (
	SettlementModeImmediate SettlementMode = "immediate"
	SettlementModeBatched   SettlementMode = "batched"
	SettlementModeEscrow    SettlementMode = "escrow"
)

// CrossAgentPolicy governs payments between a source agent and a target
// (an exact agent, a group, or the wildcard — exactly one is populated).
type CrossAgentPolicy struct {
	id             uuid.UUID
	ownerID        uuid.UUID
	sourceAgentID  uuid.UUID
	targetAgentID  *uuid.UUID
	targetAgentGroup *uuid.UUID // null ⇒ wildcard when targetAgentID is also nil

	maxPerTransaction       string
	maxDailyToTarget        string
	maxDailyAllAgents       string
	allowedPaymentTypes     []string
	requireHumanApprovalAbove string

	requireMutualPolicy       bool
	settlementMode            SettlementMode
	minCounterpartyTrustScore float64
	enabled                   bool

	createdAt time.Time
	updatedAt time.Time
}

// NewCrossAgentPolicy validates the "exactly one of target fields" rule
// and constructs a new enabled policy.
func NewCrossAgentPolicy(
	ownerID, sourceAgentID uuid.UUID,
	targetAgentID, targetAgentGroup *uuid.UUID,
	maxPerTransaction, maxDailyToTarget, maxDailyAllAgents string,
	allowedPaymentTypes []string,
	requireHumanApprovalAbove string,
	requireMutualPolicy bool,
	settlementMode SettlementMode,
	minCounterpartyTrustScore float64,
) (*CrossAgentPolicy, error) {
	populated := 0
	if targetAgentID != nil {
		populated++
	}
	if targetAgentGroup != nil {
		populated++
	}
	if populated > 1 {
		return nil, errors.ValidationError{Field: "target", Message: "exactly one of targetAgentId/targetAgentGroup may be set"}
	}
	if minCounterpartyTrustScore < 0 || minCounterpartyTrustScore > 1 {
		return nil, errors.ValidationError{Field: "minCounterpartyTrustScore", Message: "must be in [0,1]"}
	}

	now := time.Now()
	return &CrossAgentPolicy{
		id: uuid.New(), ownerID: ownerID, sourceAgentID: sourceAgentID,
		targetAgentID: targetAgentID, targetAgentGroup: targetAgentGroup,
		maxPerTransaction: maxPerTransaction, maxDailyToTarget: maxDailyToTarget, maxDailyAllAgents: maxDailyAllAgents,
		allowedPaymentTypes: allowedPaymentTypes, requireHumanApprovalAbove: requireHumanApprovalAbove,
		requireMutualPolicy: requireMutualPolicy, settlementMode: settlementMode,
		minCounterpartyTrustScore: minCounterpartyTrustScore, enabled: true,
		createdAt: now, updatedAt: now,
	}, nil
}

// ReconstructCrossAgentPolicy reconstructs a policy from stored data.
func ReconstructCrossAgentPolicy(
	id, ownerID, sourceAgentID uuid.UUID,
	targetAgentID, targetAgentGroup *uuid.UUID,
	maxPerTransaction, maxDailyToTarget, maxDailyAllAgents string,
	allowedPaymentTypes []string,
	requireHumanApprovalAbove string,
	requireMutualPolicy bool,
	settlementMode SettlementMode,
	minCounterpartyTrustScore float64,
	enabled bool,
	createdAt, updatedAt time.Time,
) *CrossAgentPolicy {
	return &CrossAgentPolicy{
		id: id, ownerID: ownerID, sourceAgentID: sourceAgentID,
		targetAgentID: targetAgentID, targetAgentGroup: targetAgentGroup,
		maxPerTransaction: maxPerTransaction, maxDailyToTarget: maxDailyToTarget, maxDailyAllAgents: maxDailyAllAgents,
		allowedPaymentTypes: allowedPaymentTypes, requireHumanApprovalAbove: requireHumanApprovalAbove,
		requireMutualPolicy: requireMutualPolicy, settlementMode: settlementMode,
		minCounterpartyTrustScore: minCounterpartyTrustScore, enabled: enabled,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (p *CrossAgentPolicy) ID() uuid.UUID                      { return p.id }
func (p *CrossAgentPolicy) OwnerID() uuid.UUID                 { return p.ownerID }
func (p *CrossAgentPolicy) SourceAgentID() uuid.UUID           { return p.sourceAgentID }
func (p *CrossAgentPolicy) TargetAgentID() *uuid.UUID          { return p.targetAgentID }
func (p *CrossAgentPolicy) TargetAgentGroup() *uuid.UUID       { return p.targetAgentGroup }
func (p *CrossAgentPolicy) MaxPerTransaction() string          { return p.maxPerTransaction }
func (p *CrossAgentPolicy) MaxDailyToTarget() string           { return p.maxDailyToTarget }
func (p *CrossAgentPolicy) MaxDailyAllAgents() string          { return p.maxDailyAllAgents }
func (p *CrossAgentPolicy) AllowedPaymentTypes() []string      { return p.allowedPaymentTypes }
func (p *CrossAgentPolicy) RequireHumanApprovalAbove() string  { return p.requireHumanApprovalAbove }
func (p *CrossAgentPolicy) RequireMutualPolicy() bool          { return p.requireMutualPolicy }
func (p *CrossAgentPolicy) SettlementMode() SettlementMode     { return p.settlementMode }
func (p *CrossAgentPolicy) MinCounterpartyTrustScore() float64 { return p.minCounterpartyTrustScore }
func (p *CrossAgentPolicy) Enabled() bool                      { return p.enabled }
func (p *CrossAgentPolicy) CreatedAt() time.Time               { return p.createdAt }
func (p *CrossAgentPolicy) UpdatedAt() time.Time               { return p.updatedAt }

// IsWildcard reports whether this policy is the fallback (no specific
// target), the least-specific resolution tier (§4.8 step 1c).
func (p *CrossAgentPolicy) IsWildcard() bool {
	return p.targetAgentID == nil && p.targetAgentGroup == nil
}

// Specificity ranks this policy for the resolution order: exact(2) >
// group(1) > wildcard(0).
func (p *CrossAgentPolicy) Specificity() int {
	switch {
	case p.targetAgentID != nil:
		return 2
	case p.targetAgentGroup != nil:
		return 1
	default:
		return 0
	}
}

// Disable turns the policy off.
func (p *CrossAgentPolicy) Disable() {
	p.enabled = false
	p.updatedAt = time.Now()
}

// AuthorizationMethod classifies how a cross-agent transaction came to be
// authorized (§3).
type AuthorizationMethod string

const (
	AuthorizationMethodAuto          AuthorizationMethod = "auto"
	AuthorizationMethodEscalated     AuthorizationMethod = "escalated"
	AuthorizationMethodHumanApproved AuthorizationMethod = "human_approved"
)

// SettlementStatus is the settlement lifecycle of a CrossAgentTransaction.
type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "pending"
	SettlementStatusSettled SettlementStatus = "settled"
	SettlementStatusFailed  SettlementStatus = "failed"
)

// CrossAgentTransaction is a payment attempt between two agents, governed
// by §4.8 instead of the per-wallet rules engine.
type CrossAgentTransaction struct {
	id                  uuid.UUID
	sourceAgentID       uuid.UUID
	targetAgentID       uuid.UUID
	amount              string
	paymentType         string
	authorized          bool
	authorizationMethod AuthorizationMethod
	settlementStatus    SettlementStatus
	requiresHuman       bool
	policyID            *uuid.UUID

	createdAt time.Time
}

// NewCrossAgentTransaction creates a new, not-yet-authorized transaction
// record. The authorize/escalate/settle state is set by the crossagent
// application package, not the constructor.
func NewCrossAgentTransaction(sourceAgentID, targetAgentID uuid.UUID, amount, paymentType string) *CrossAgentTransaction {
	return &CrossAgentTransaction{
		id: uuid.New(), sourceAgentID: sourceAgentID, targetAgentID: targetAgentID,
		amount: amount, paymentType: paymentType,
		settlementStatus: SettlementStatusPending,
		createdAt:        time.Now(),
	}
}

// ReconstructCrossAgentTransaction reconstructs a transaction from stored data.
func ReconstructCrossAgentTransaction(
	id, sourceAgentID, targetAgentID uuid.UUID,
	amount, paymentType string,
	authorized bool,
	authorizationMethod AuthorizationMethod,
	settlementStatus SettlementStatus,
	requiresHuman bool,
	policyID *uuid.UUID,
	createdAt time.Time,
) *CrossAgentTransaction {
	return &CrossAgentTransaction{
		id: id, sourceAgentID: sourceAgentID, targetAgentID: targetAgentID,
		amount: amount, paymentType: paymentType, authorized: authorized,
		authorizationMethod: authorizationMethod, settlementStatus: settlementStatus,
		requiresHuman: requiresHuman, policyID: policyID, createdAt: createdAt,
	}
}

func (t *CrossAgentTransaction) ID() uuid.UUID                          { return t.id }
func (t *CrossAgentTransaction) SourceAgentID() uuid.UUID               { return t.sourceAgentID }
func (t *CrossAgentTransaction) TargetAgentID() uuid.UUID               { return t.targetAgentID }
func (t *CrossAgentTransaction) Amount() string                         { return t.amount }
func (t *CrossAgentTransaction) PaymentType() string                    { return t.paymentType }
func (t *CrossAgentTransaction) Authorized() bool                       { return t.authorized }
func (t *CrossAgentTransaction) AuthorizationMethod() AuthorizationMethod { return t.authorizationMethod }
func (t *CrossAgentTransaction) SettlementStatus() SettlementStatus     { return t.settlementStatus }
func (t *CrossAgentTransaction) RequiresHuman() bool                    { return t.requiresHuman }
func (t *CrossAgentTransaction) PolicyID() *uuid.UUID                   { return t.policyID }
func (t *CrossAgentTransaction) CreatedAt() time.Time                   { return t.createdAt }

// MarkNoPolicy records that no policy resolved, per §4.8 step 1: held for
// human approval with no policy attached.
func (t *CrossAgentTransaction) MarkNoPolicy() {
	t.requiresHuman = true
	t.authorized = false
}

// MarkEscalated records that checks passed but the amount exceeded
// requireHumanApprovalAbove (§4.8 step 4).
func (t *CrossAgentTransaction) MarkEscalated(policyID uuid.UUID) {
	t.policyID = &policyID
	t.authorized = false
	t.authorizationMethod = AuthorizationMethodEscalated
	t.requiresHuman = true
}

// MarkAuthorized records a fully-passed, non-escalated authorization and
// applies the policy's settlement mode (§4.8 step 5).
func (t *CrossAgentTransaction) MarkAuthorized(policyID uuid.UUID, settlementMode SettlementMode) {
	t.policyID = &policyID
	t.authorized = true
	t.authorizationMethod = AuthorizationMethodAuto
	t.requiresHuman = false
	if settlementMode == SettlementModeImmediate {
		t.settlementStatus = SettlementStatusSettled
	} else {
		t.settlementStatus = SettlementStatusPending
	}
}

// Approve is the operator action that resolves an escalated transaction
// (§4.8 step 6).
func (t *CrossAgentTransaction) Approve() error {
	if !t.requiresHuman || t.authorized {
		return errors.NewStateConflict("CrossAgentTransaction", "not-escalated", "approve")
	}
	t.authorized = true
	t.authorizationMethod = AuthorizationMethodHumanApproved
	t.requiresHuman = false
	t.settlementStatus = SettlementStatusSettled
	return nil
}

// AgentGroup is used only as a targetAgentGroup resolution anchor (§3).
type AgentGroup struct {
	id       uuid.UUID
	ownerID  uuid.UUID
	name     string
	agentIDs []uuid.UUID

	createdAt time.Time
	updatedAt time.Time
}

// NewAgentGroup creates a new named group of agents.
func NewAgentGroup(ownerID uuid.UUID, name string, agentIDs []uuid.UUID) (*AgentGroup, error) {
	if name == "" {
		return nil, errors.ValidationError{Field: "name", Message: "is required"}
	}
	now := time.Now()
	return &AgentGroup{id: uuid.New(), ownerID: ownerID, name: name, agentIDs: agentIDs, createdAt: now, updatedAt: now}, nil
}

// ReconstructAgentGroup reconstructs a group from stored data.
func ReconstructAgentGroup(id, ownerID uuid.UUID, name string, agentIDs []uuid.UUID, createdAt, updatedAt time.Time) *AgentGroup {
	return &AgentGroup{id: id, ownerID: ownerID, name: name, agentIDs: agentIDs, createdAt: createdAt, updatedAt: updatedAt}
}

func (g *AgentGroup) ID() uuid.UUID         { return g.id }
func (g *AgentGroup) OwnerID() uuid.UUID    { return g.ownerID }
func (g *AgentGroup) Name() string          { return g.name }
func (g *AgentGroup) AgentIDs() []uuid.UUID { return g.agentIDs }
func (g *AgentGroup) CreatedAt() time.Time  { return g.createdAt }
func (g *AgentGroup) UpdatedAt() time.Time  { return g.updatedAt }

// Contains reports whether agentID belongs to this group.
func (g *AgentGroup) Contains(agentID uuid.UUID) bool {
	for _, id := range g.agentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// AddMember appends an agent to the group if not already present.
func (g *AgentGroup) AddMember(agentID uuid.UUID) {
	if !g.Contains(agentID) {
		g.agentIDs = append(g.agentIDs, agentID)
		g.updatedAt = time.Now()
	}
}
