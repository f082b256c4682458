// Package crossagent implements the Cross-Agent Governor (§4.8):
// policy resolution by specificity, the mutual-policy and spend-limit
// checks, and the escalation/approval path for payments between agents.
package crossagent

import (
	"context"
	"fmt"
	"time"

	"github.com/agentwallet/core/internal/application/audit"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	domainerrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dailyWindow = 24 * time.Hour

// Governor authorizes and settles cross-agent payments.
type Governor struct {
	store      ports.CrossAgentStore
	uowFactory ports.UnitOfWorkFactory
	publisher  ports.EventPublisher
	recorder   *audit.Recorder
}

// New constructs a crossagent Governor.
func New(store ports.CrossAgentStore, uowFactory ports.UnitOfWorkFactory, publisher ports.EventPublisher, recorder *audit.Recorder) *Governor {
	return &Governor{store: store, uowFactory: uowFactory, publisher: publisher, recorder: recorder}
}

// Result reports the outcome of an authorize() call.
type Result struct {
	Transaction *entities.CrossAgentTransaction
	Message     string
}

// Authorize runs authorize(source, target, amount, paymentType, metadata)
// (§4.8 steps 1-5).
func (g *Governor) Authorize(ctx context.Context, sourceAgentID, targetAgentID uuid.UUID, amount, paymentType string, metadata map[string]interface{}) (*Result, error) {
	tx := entities.NewCrossAgentTransaction(sourceAgentID, targetAgentID, amount, paymentType)

	policy, err := g.resolvePolicy(ctx, sourceAgentID, targetAgentID)
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}
	if policy == nil {
		tx.MarkNoPolicy()
		if err := g.persist(ctx, tx, nil, "Escalated", "no policy resolved, human approval required", metadata); err != nil {
			return nil, err
		}
		_ = g.publisher.Publish(ctx, events.NewCrossAgentApprovalRequired(tx.ID(), sourceAgentID, targetAgentID, amount))
		return &Result{Transaction: tx, Message: "no policy, human approval required"}, nil
	}

	if policy.RequireMutualPolicy() {
		reverse, err := g.resolvePolicy(ctx, targetAgentID, sourceAgentID)
		if err != nil {
			return nil, fmt.Errorf("resolve mutual policy: %w", err)
		}
		if reverse == nil {
			tx.MarkNoPolicy()
			if err := g.persist(ctx, tx, &policy.id, "Blocked", "mutual policy required but absent", metadata); err != nil {
				return nil, err
			}
			return &Result{Transaction: tx, Message: "mutual policy required but absent"}, nil
		}
	}

	blockReason, err := g.checkLimits(ctx, policy, sourceAgentID, targetAgentID, amount, paymentType)
	if err != nil {
		return nil, err
	}
	if blockReason != "" {
		if err := g.persist(ctx, tx, &policy.id, "Blocked", blockReason, metadata); err != nil {
			return nil, err
		}
		return &Result{Transaction: tx, Message: blockReason}, nil
	}

	amountDec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domainerrors.ValidationError{Field: "amount", Message: "invalid amount"}
	}
	if policy.RequireHumanApprovalAbove() != "" {
		threshold, err := decimal.NewFromString(policy.RequireHumanApprovalAbove())
		if err == nil && amountDec.GreaterThan(threshold) {
			tx.MarkEscalated(policy.ID())
			if err := g.persist(ctx, tx, &policy.id, "Escalated", "amount exceeds human-approval threshold", metadata); err != nil {
				return nil, err
			}
			_ = g.publisher.Publish(ctx, events.NewCrossAgentApprovalRequired(tx.ID(), sourceAgentID, targetAgentID, amount))
			return &Result{Transaction: tx, Message: "escalated"}, nil
		}
	}

	tx.MarkAuthorized(policy.ID(), policy.SettlementMode())
	if err := g.persist(ctx, tx, &policy.id, "Allowed", "authorized", metadata); err != nil {
		return nil, err
	}
	_ = g.publisher.Publish(ctx, events.NewCrossAgentAuthorized(tx.ID(), sourceAgentID, targetAgentID, amount, string(tx.AuthorizationMethod())))
	return &Result{Transaction: tx, Message: "authorized"}, nil
}

// resolvePolicy picks the most specific enabled policy for (source,
// target): exact match, then group, then wildcard (§4.8 step 1).
func (g *Governor) resolvePolicy(ctx context.Context, sourceAgentID, targetAgentID uuid.UUID) (*policyMatch, error) {
	candidates, err := g.store.ResolvePolicies(ctx, sourceAgentID)
	if err != nil {
		return nil, err
	}

	var best *entities.CrossAgentPolicy
	for _, p := range candidates {
		if !p.Enabled() {
			continue
		}
		switch {
		case p.TargetAgentID() != nil && *p.TargetAgentID() == targetAgentID:
			if best == nil || p.Specificity() > best.Specificity() {
				best = p
			}
		case p.TargetAgentGroup() != nil:
			groups, err := g.store.ListGroupsContaining(ctx, targetAgentID)
			if err != nil {
				return nil, err
			}
			for _, grp := range groups {
				if grp.ID() == *p.TargetAgentGroup() && (best == nil || p.Specificity() > best.Specificity()) {
					best = p
				}
			}
		case p.IsWildcard():
			if best == nil {
				best = p
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return &policyMatch{CrossAgentPolicy: best, id: best.ID()}, nil
}

// policyMatch is a thin wrapper so resolvePolicy's callers can reach the
// matched policy's id without repeating best.ID() everywhere.
type policyMatch struct {
	*entities.CrossAgentPolicy
	id uuid.UUID
}

// checkLimits runs §4.8 step 3's five checks, returning a non-empty
// reason for the first one that fails.
func (g *Governor) checkLimits(ctx context.Context, policy *policyMatch, sourceAgentID, targetAgentID uuid.UUID, amountStr, paymentType string) (string, error) {
	if !contains(policy.AllowedPaymentTypes(), paymentType) {
		return fmt.Sprintf("payment type %q not allowed by policy", paymentType), nil
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return "", domainerrors.ValidationError{Field: "amount", Message: "invalid amount"}
	}

	if policy.MaxPerTransaction() != "" {
		limit, _ := decimal.NewFromString(policy.MaxPerTransaction())
		if amount.GreaterThan(limit) {
			return "amount exceeds maxPerTransaction", nil
		}
	}

	since := time.Now().Add(-dailyWindow)
	if policy.MaxDailyToTarget() != "" {
		limit, _ := decimal.NewFromString(policy.MaxDailyToTarget())
		sumStr, err := g.store.SumAuthorizedSince(ctx, sourceAgentID, &targetAgentID, since)
		if err != nil {
			return "", err
		}
		sum, _ := decimal.NewFromString(sumStr)
		if sum.Add(amount).GreaterThan(limit) {
			return "amount exceeds maxDailyToTarget", nil
		}
	}

	if policy.MaxDailyAllAgents() != "" {
		limit, _ := decimal.NewFromString(policy.MaxDailyAllAgents())
		sumStr, err := g.store.SumAuthorizedSince(ctx, sourceAgentID, nil, since)
		if err != nil {
			return "", err
		}
		sum, _ := decimal.NewFromString(sumStr)
		if sum.Add(amount).GreaterThan(limit) {
			return "amount exceeds maxDailyAllAgents", nil
		}
	}

	if policy.MinCounterpartyTrustScore() > 0 {
		score, err := g.store.CounterpartyTrustScore(ctx, targetAgentID)
		if err != nil {
			return "", err
		}
		if score < policy.MinCounterpartyTrustScore() {
			return "counterparty trust score below policy minimum", nil
		}
	}
	return "", nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func (g *Governor) persist(ctx context.Context, tx *entities.CrossAgentTransaction, policyID *uuid.UUID, decision string, reason string, metadata map[string]interface{}) error {
	uow := g.uowFactory.New()
	return uow.Execute(ctx, func(txCtx context.Context) error {
		if err := g.store.SaveTransaction(txCtx, tx); err != nil {
			return fmt.Errorf("save cross-agent transaction: %w", err)
		}
		reasoning := map[string]interface{}{"reason": reason}
		if policyID != nil {
			reasoning["policyId"] = *policyID
		}
		for k, v := range metadata {
			reasoning[k] = v
		}
		sourceAgentID := tx.SourceAgentID()
		switch decision {
		case "Allowed":
			return g.recorder.Allowed(txCtx, &sourceAgentID, "authorize", "cross_agent_transaction", tx.ID().String(), reasoning)
		case "Escalated":
			return g.recorder.Escalated(txCtx, &sourceAgentID, "authorize", "cross_agent_transaction", tx.ID().String(), reasoning)
		default:
			return g.recorder.Blocked(txCtx, &sourceAgentID, "authorize", "cross_agent_transaction", tx.ID().String(), reasoning)
		}
	})
}

// Approve is the operator-only approve(id, operator) resolution path for
// an escalated transaction (§4.8 step 6).
func (g *Governor) Approve(ctx context.Context, transactionID uuid.UUID, operator string) (*entities.CrossAgentTransaction, error) {
	tx, err := g.store.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load cross-agent transaction: %w", err)
	}
	if err := tx.Approve(); err != nil {
		return nil, err
	}
	uow := g.uowFactory.New()
	err = uow.Execute(ctx, func(txCtx context.Context) error {
		if err := g.store.SaveTransaction(txCtx, tx); err != nil {
			return fmt.Errorf("save cross-agent transaction: %w", err)
		}
		sourceAgentID := tx.SourceAgentID()
		return g.recorder.Allowed(txCtx, &sourceAgentID, "approve", "cross_agent_transaction", tx.ID().String(), map[string]interface{}{"operator": operator})
	})
	if err != nil {
		return nil, err
	}
	_ = g.publisher.Publish(ctx, events.NewCrossAgentAuthorized(tx.ID(), tx.SourceAgentID(), tx.TargetAgentID(), tx.Amount(), string(tx.AuthorizationMethod())))
	return tx, nil
}
