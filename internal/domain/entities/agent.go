package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// AgentStatus is the operational status of an Agent.
type AgentStatus string

const (
	AgentStatusActive     AgentStatus = "ACTIVE"
	AgentStatusPaused     AgentStatus = "PAUSED"
	AgentStatusSuspended  AgentStatus = "SUSPENDED"
	AgentStatusFrozen     AgentStatus = "FROZEN"
	AgentStatusTerminated AgentStatus = "TERMINATED"
	AgentStatusKilled     AgentStatus = "KILLED"
)

// IsValid checks if the agent status is one of the closed set.
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentStatusActive, AgentStatusPaused, AgentStatusSuspended, AgentStatusFrozen, AgentStatusTerminated, AgentStatusKilled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can never transition again.
func (s AgentStatus) IsTerminal() bool {
	return s == AgentStatusTerminated || s == AgentStatusKilled
}

// Agent is an autonomous principal whose spending is governed. Status
// transitions are monotone away from Active except via explicit operator
// reset; Terminated/Killed are terminal.
type Agent struct {
	id         uuid.UUID
	ownerID    uuid.UUID
	apiKeyHash string
	status     AgentStatus
	metadata   map[string]string
	createdAt  time.Time
	updatedAt  time.Time
}

// NewAgent creates a new Agent owned by ownerID, starting Active.
func NewAgent(ownerID uuid.UUID, apiKeyHash string, metadata map[string]string) (*Agent, error) {
	if ownerID == uuid.Nil {
		return nil, errors.ValidationError{Field: "ownerId", Message: "owner id is required"}
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	now := time.Now()
	return &Agent{
		id:         uuid.New(),
		ownerID:    ownerID,
		apiKeyHash: apiKeyHash,
		status:     AgentStatusActive,
		metadata:   metadata,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructAgent reconstructs an Agent from stored data.
func ReconstructAgent(
	id, ownerID uuid.UUID,
	apiKeyHash string,
	status AgentStatus,
	metadata map[string]string,
	createdAt, updatedAt time.Time,
) *Agent {
	return &Agent{
		id: id, ownerID: ownerID, apiKeyHash: apiKeyHash, status: status,
		metadata: metadata, createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (a *Agent) ID() uuid.UUID               { return a.id }
func (a *Agent) OwnerID() uuid.UUID          { return a.ownerID }
func (a *Agent) APIKeyHash() string          { return a.apiKeyHash }
func (a *Agent) Status() AgentStatus         { return a.status }
func (a *Agent) Metadata() map[string]string { return a.metadata }
func (a *Agent) CreatedAt() time.Time        { return a.createdAt }
func (a *Agent) UpdatedAt() time.Time        { return a.updatedAt }

// IsActive returns true if the agent can currently originate admissions.
func (a *Agent) IsActive() bool {
	return a.status == AgentStatusActive
}

// MatchesAPIKey reports whether plainKey hashes to this agent's stored hash.
func (a *Agent) MatchesAPIKey(plainKey string) bool {
	return a.apiKeyHash == hashAPIKey(plainKey)
}

// CanOriginateAdmission enforces the LatchedCircuit precondition: only an
// Active agent may submit a spend.
func (a *Agent) CanOriginateAdmission() error {
	switch a.status {
	case AgentStatusActive:
		return nil
	case AgentStatusTerminated, AgentStatusKilled:
		return errors.ErrAgentTerminated
	case AgentStatusFrozen:
		return errors.ErrAgentFrozen
	default:
		return errors.ErrAgentNotActive
	}
}

func (a *Agent) transition(to AgentStatus) error {
	if a.status.IsTerminal() {
		return errors.NewStateConflict("Agent", string(a.status), "transition to "+string(to))
	}
	a.status = to
	a.updatedAt = time.Now()
	return nil
}

// Pause moves the agent to Paused (owner-initiated, reversible).
func (a *Agent) Pause() error { return a.transition(AgentStatusPaused) }

// Activate moves the agent back to Active. This is the only way out of a
// non-terminal non-Active state; it represents an explicit operator reset.
func (a *Agent) Activate() error { return a.transition(AgentStatusActive) }

// Suspend moves the agent to Suspended (e.g. owner compliance action).
func (a *Agent) Suspend() error { return a.transition(AgentStatusSuspended) }

// Freeze moves the agent to Frozen. Used by the Kill Switch cascade and the
// Dead-Man Switch's freeze action.
func (a *Agent) Freeze() error { return a.transition(AgentStatusFrozen) }

// Terminate moves the agent to the terminal Terminated state. Irreversible.
func (a *Agent) Terminate() error {
	a.status = AgentStatusTerminated
	a.updatedAt = time.Now()
	return nil
}

// Kill force-transitions the agent to the terminal Killed state, bypassing
// the normal monotonicity check — used only by the manual emergency stop.
func (a *Agent) Kill() {
	a.status = AgentStatusKilled
	a.updatedAt = time.Now()
}
