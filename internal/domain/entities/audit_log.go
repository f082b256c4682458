package entities

import (
	"time"

	"github.com/google/uuid"
)

// AuditDecision classifies the outcome an AuditLogEntry records.
type AuditDecision string

const (
	AuditDecisionAllowed   AuditDecision = "Allowed"
	AuditDecisionBlocked   AuditDecision = "Blocked"
	AuditDecisionEscalated AuditDecision = "Escalated"
	AuditDecisionSystem    AuditDecision = "System"
)

// AuditLogEntry is one append-only record of a state-changing operation.
// Entries are never updated (§4.3).
type AuditLogEntry struct {
	id         uuid.UUID
	agentID    *uuid.UUID
	action     string
	resource   string
	resourceID string
	decision   AuditDecision
	reasoning  map[string]interface{}
	timestamp  time.Time
}

// NewAuditLogEntry creates a new entry. reasoning is typically the
// ruleCheckResults[] or a structured description of the decision.
func NewAuditLogEntry(agentID *uuid.UUID, action, resource, resourceID string, decision AuditDecision, reasoning map[string]interface{}) *AuditLogEntry {
	if reasoning == nil {
		reasoning = map[string]interface{}{}
	}
	return &AuditLogEntry{
		id: uuid.New(), agentID: agentID, action: action, resource: resource,
		resourceID: resourceID, decision: decision, reasoning: reasoning, timestamp: time.Now(),
	}
}

// ReconstructAuditLogEntry reconstructs an entry from stored data.
func ReconstructAuditLogEntry(
	id uuid.UUID,
	agentID *uuid.UUID,
	action, resource, resourceID string,
	decision AuditDecision,
	reasoning map[string]interface{},
	timestamp time.Time,
) *AuditLogEntry {
	return &AuditLogEntry{
		id: id, agentID: agentID, action: action, resource: resource,
		resourceID: resourceID, decision: decision, reasoning: reasoning, timestamp: timestamp,
	}
}

func (e *AuditLogEntry) ID() uuid.UUID                     { return e.id }
func (e *AuditLogEntry) AgentID() *uuid.UUID                { return e.agentID }
func (e *AuditLogEntry) Action() string                     { return e.action }
func (e *AuditLogEntry) Resource() string                   { return e.resource }
func (e *AuditLogEntry) ResourceID() string                 { return e.resourceID }
func (e *AuditLogEntry) Decision() AuditDecision             { return e.decision }
func (e *AuditLogEntry) Reasoning() map[string]interface{}  { return e.reasoning }
func (e *AuditLogEntry) Timestamp() time.Time                { return e.timestamp }
