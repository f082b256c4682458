package rules

import (
	"context"
	"fmt"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	domainerrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LimitGovernor enforces §4.7 step 5's monotonic-tightening property for
// numeric spend-rule limits: a child's effective limit for any *Limit kind
// must never exceed its parent's. Spawning only derives the abstract
// SpawnPolicy ratios (entities.AgentLineage.ChildPolicy); the numeric cap
// this governor computes is applied lazily, at the point a SpendRule is
// actually created or updated on a wallet.
type LimitGovernor struct {
	wallets ports.WalletStore
	rules   ports.RuleStore
	lineage ports.LineageStore
}

// NewLimitGovernor constructs a LimitGovernor.
func NewLimitGovernor(wallets ports.WalletStore, rules ports.RuleStore, lineage ports.LineageStore) *LimitGovernor {
	return &LimitGovernor{wallets: wallets, rules: rules, lineage: lineage}
}

// ratioFor returns the SpawnPolicy ratio that bounds kind, or false if kind
// carries no numeric limit and so isn't subject to ancestor clamping.
func ratioFor(kind entities.RuleKind, policy entities.SpawnPolicy) (float64, bool) {
	switch kind {
	case entities.RuleKindPerTransactionLimit:
		return policy.MaxTransactionRatio, true
	case entities.RuleKindDailyLimit, entities.RuleKindWeeklyLimit, entities.RuleKindMonthlyLimit:
		return policy.MaxSpendRatio, true
	default:
		return 0, false
	}
}

// Clamp derives walletID's effective cap for kind from its owning agent's
// parent and returns requested reduced to that cap if requested exceeds it
// (§4.7 step 5: "child limit = L_parent · ratio, then further reduced by
// any override"). Non-limit kinds, root agents, and agents whose parent
// carries no active rule of the same kind pass requested through
// unchanged — there's nothing to clamp against.
func (g *LimitGovernor) Clamp(ctx context.Context, walletID uuid.UUID, kind entities.RuleKind, requested string) (string, error) {
	wallet, err := g.wallets.FindByID(ctx, walletID)
	if err != nil {
		return "", fmt.Errorf("load wallet: %w", err)
	}

	childLineage, err := g.lineage.FindByAgentID(ctx, wallet.AgentID())
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return requested, nil
		}
		return "", fmt.Errorf("load lineage: %w", err)
	}
	if childLineage.ParentID() == nil {
		return requested, nil
	}

	ratio, limited := ratioFor(kind, childLineage.SpawnPolicy())
	if !limited {
		return requested, nil
	}

	parentLimit, found, err := g.ancestorLimit(ctx, *childLineage.ParentID(), wallet.Currency().Code(), kind)
	if err != nil {
		return "", err
	}
	if !found {
		return requested, nil
	}

	ancestorCap := parentLimit.Mul(decimal.NewFromFloat(ratio))
	reqDec, err := decimal.NewFromString(requested)
	if err != nil {
		return "", fmt.Errorf("parse requested limit: %w", err)
	}
	if reqDec.GreaterThan(ancestorCap) {
		return ancestorCap.String(), nil
	}
	return requested, nil
}

// ancestorLimit finds parentAgentID's wallet in currency and, if it carries
// an active rule of kind, returns that rule's limit.
func (g *LimitGovernor) ancestorLimit(ctx context.Context, parentAgentID uuid.UUID, currency string, kind entities.RuleKind) (decimal.Decimal, bool, error) {
	wallets, err := g.wallets.ListByAgent(ctx, parentAgentID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load parent wallets: %w", err)
	}

	for _, w := range wallets {
		if w.Currency().Code() != currency {
			continue
		}
		active, err := g.rules.ListActiveByWallet(ctx, w.ID())
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("load parent rules: %w", err)
		}
		for _, r := range active {
			if r.Kind() != kind {
				continue
			}
			limit, err := decimal.NewFromString(r.Params().Limit)
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("parse parent limit: %w", err)
			}
			return limit, true, nil
		}
	}
	return decimal.Zero, false, nil
}
