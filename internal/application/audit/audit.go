// Package audit is the append-only recorder every other subsystem writes
// through (§4.3): admission decisions, kill-switch latches, dead-man
// actions, spawns and cross-agent authorizations all become one
// AuditLogEntry, never mutated after it is written.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/google/uuid"
)

// Recorder appends AuditLogEntry rows on behalf of any caller.
type Recorder struct {
	store ports.AuditStore
}

// New constructs a Recorder.
func New(store ports.AuditStore) *Recorder {
	return &Recorder{store: store}
}

// Record appends a single entry. Callers inside a unit-of-work closure
// should pass the transactional ctx so the entry commits atomically with
// the write it documents.
func (r *Recorder) Record(ctx context.Context, agentID *uuid.UUID, action, resource, resourceID string, decision entities.AuditDecision, reasoning map[string]interface{}) error {
	entry := entities.NewAuditLogEntry(agentID, action, resource, resourceID, decision, reasoning)
	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Allowed is a convenience wrapper for the common allow-path entry.
func (r *Recorder) Allowed(ctx context.Context, agentID *uuid.UUID, action, resource, resourceID string, reasoning map[string]interface{}) error {
	return r.Record(ctx, agentID, action, resource, resourceID, entities.AuditDecisionAllowed, reasoning)
}

// Blocked is a convenience wrapper for a denied/rejected entry.
func (r *Recorder) Blocked(ctx context.Context, agentID *uuid.UUID, action, resource, resourceID string, reasoning map[string]interface{}) error {
	return r.Record(ctx, agentID, action, resource, resourceID, entities.AuditDecisionBlocked, reasoning)
}

// Escalated records an AwaitingApproval/requires-human-review outcome.
func (r *Recorder) Escalated(ctx context.Context, agentID *uuid.UUID, action, resource, resourceID string, reasoning map[string]interface{}) error {
	return r.Record(ctx, agentID, action, resource, resourceID, entities.AuditDecisionEscalated, reasoning)
}

// System records a non-agent-initiated transition (sweep, reconciliation).
func (r *Recorder) System(ctx context.Context, action, resource, resourceID string, reasoning map[string]interface{}) error {
	return r.Record(ctx, nil, action, resource, resourceID, entities.AuditDecisionSystem, reasoning)
}

// List returns audit entries matching filter with pagination.
func (r *Recorder) List(ctx context.Context, filter ports.AuditFilter, offset, limit int) ([]*entities.AuditLogEntry, error) {
	return r.store.List(ctx, filter, offset, limit)
}

// Summary returns the count of entries per decision for agentID since the
// given time, for the audit summary read (SPEC_FULL.md §13).
func (r *Recorder) Summary(ctx context.Context, agentID uuid.UUID, since time.Time) (map[string]int, error) {
	return r.store.CountByDecision(ctx, agentID, since)
}
