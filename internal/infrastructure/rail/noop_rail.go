// Package rail provides RailAdapter implementations. NoopRail is a
// reference adapter for local development and admission-path tests: it
// never talks to a real network, but still enforces the same contract
// (every operation records a deterministic fake reference) so tests can
// assert a rail call happened without a testcontainer.
package rail

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// NoopRail satisfies ports.RailAdapter without moving real money. Balances
// are tracked in-process so GetBalance reflects prior Send calls, which is
// enough for the admission path's integration tests and for local runs
// without a configured external rail.
type NoopRail struct {
	mu       sync.Mutex
	balances map[string]valueobjects.Money
}

// NewNoopRail creates an empty in-memory rail.
func NewNoopRail() *NoopRail {
	return &NoopRail{balances: make(map[string]valueobjects.Money)}
}

// CreateWallet returns a synthetic rail reference keyed on the agent id.
func (r *NoopRail) CreateWallet(_ context.Context, agentID uuid.UUID) (string, error) {
	ref := fmt.Sprintf("noop:%s", agentID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.balances[ref]; !ok {
		r.balances[ref] = valueobjects.Zero()
	}
	return ref, nil
}

// Send debits nothing real; it just books the amount against the rail
// reference derived from recipientID so GetBalance has something to
// report.
func (r *NoopRail) Send(_ context.Context, transactionID uuid.UUID, amount valueobjects.Money, recipientID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := fmt.Sprintf("noop:%s", recipientID)
	current, ok := r.balances[ref]
	if !ok {
		current = valueobjects.Zero()
	}
	updated, err := current.Add(amount)
	if err != nil {
		return "", err
	}
	r.balances[ref] = updated
	return fmt.Sprintf("noop-settlement:%s", transactionID), nil
}

// GetBalance returns the in-memory balance for railRef, zero if unseen.
func (r *NoopRail) GetBalance(_ context.Context, railRef string) (valueobjects.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bal, ok := r.balances[railRef]; ok {
		return bal, nil
	}
	return valueobjects.Zero(), nil
}
