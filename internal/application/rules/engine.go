// Package rules implements the Rules Engine (§4.4): the closed set of
// eleven spend-rule kinds evaluated against a candidate transaction.
// Evaluation never short-circuits — every active rule produces a result
// so the admission audit trail always carries the full picture.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/application/spendwindow"
	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// Candidate is the minimal view of a transaction the engine needs to
// evaluate rules against.
type Candidate struct {
	Amount      valueobjects.Money
	Category    string
	RecipientID string
	Metadata    map[string]interface{}
}

// Verdict is the engine's output, matching §4.4's {approved, requiresApproval, results[]}.
type Verdict struct {
	Approved         bool
	RequiresApproval bool
	Results          []entities.RuleCheckResult
	EvaluatedAt      time.Time
}

// Engine evaluates a wallet's active SpendRules against a candidate.
type Engine struct {
	txStore ports.TransactionStore
}

// New constructs a rules Engine backed by a TransactionStore.
func New(txStore ports.TransactionStore) *Engine {
	return &Engine{txStore: txStore}
}

// Evaluate runs every active rule on wallet against candidate, ordered by
// descending priority, and returns the aggregate verdict.
func (e *Engine) Evaluate(ctx context.Context, walletID uuid.UUID, activeRules []*entities.SpendRule, candidate Candidate) (Verdict, error) {
	ordered := append([]*entities.SpendRule(nil), activeRules...)
	sortByPriorityDesc(ordered)

	verdict := Verdict{Approved: true, EvaluatedAt: time.Now()}
	for _, rule := range ordered {
		result, err := e.evaluateOne(ctx, walletID, rule, candidate, verdict.EvaluatedAt)
		if err != nil {
			return Verdict{}, fmt.Errorf("evaluate rule %s: %w", rule.ID(), err)
		}
		verdict.Results = append(verdict.Results, result)
		if result.Kind != entities.RuleKindApprovalThreshold && !result.Passed {
			verdict.Approved = false
		}
		if result.Kind == entities.RuleKindApprovalThreshold && result.Passed && boolFromDetails(result.Details) {
			verdict.RequiresApproval = true
		}
	}
	return verdict, nil
}

func boolFromDetails(details map[string]interface{}) bool {
	v, _ := details["requiresApproval"].(bool)
	return v
}

func sortByPriorityDesc(rules []*entities.SpendRule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j-1].Priority() < rules[j].Priority(); j-- {
			rules[j-1], rules[j] = rules[j], rules[j-1]
		}
	}
}

func (e *Engine) evaluateOne(ctx context.Context, walletID uuid.UUID, rule *entities.SpendRule, candidate Candidate, now time.Time) (entities.RuleCheckResult, error) {
	params := rule.Params()
	base := entities.RuleCheckResult{RuleID: rule.ID(), Kind: rule.Kind()}

	switch rule.Kind() {
	case entities.RuleKindPerTransactionLimit:
		limit, err := valueobjects.NewMoney(params.Limit)
		if err != nil {
			return base, err
		}
		passed := candidate.Amount.LessThan(limit) || candidate.Amount.Equals(limit)
		return withReason(base, passed, fmt.Sprintf("amount %s vs limit %s", candidate.Amount, limit)), nil

	case entities.RuleKindDailyLimit, entities.RuleKindWeeklyLimit, entities.RuleKindMonthlyLimit:
		since := windowStart(rule.Kind(), now)
		spent, err := e.txStore.SumCompletedSince(ctx, walletID, since)
		if err != nil {
			return base, err
		}
		return evaluateRollingLimit(base, spent, params.Limit, candidate.Amount)

	case entities.RuleKindCategoryWhitelist:
		passed := candidate.Category == "" || contains(params.Categories, candidate.Category)
		return withReason(base, passed, fmt.Sprintf("category %q in whitelist", candidate.Category)), nil

	case entities.RuleKindCategoryBlacklist:
		passed := candidate.Category == "" || !contains(params.Categories, candidate.Category)
		return withReason(base, passed, fmt.Sprintf("category %q not in blacklist", candidate.Category)), nil

	case entities.RuleKindRecipientWhitelist:
		passed := candidate.RecipientID == "" || contains(params.Recipients, candidate.RecipientID)
		return withReason(base, passed, fmt.Sprintf("recipient %q in whitelist", candidate.RecipientID)), nil

	case entities.RuleKindRecipientBlacklist:
		passed := candidate.RecipientID == "" || !contains(params.Recipients, candidate.RecipientID)
		return withReason(base, passed, fmt.Sprintf("recipient %q not in blacklist", candidate.RecipientID)), nil

	case entities.RuleKindTimeWindow:
		hour := now.UTC().Hour()
		passed := hour >= params.StartHour && hour < params.EndHour
		return withReason(base, passed, fmt.Sprintf("hour %d in [%d,%d)", hour, params.StartHour, params.EndHour)), nil

	case entities.RuleKindApprovalThreshold:
		threshold, err := valueobjects.NewMoney(params.Threshold)
		if err != nil {
			return base, err
		}
		requires := candidate.Amount.GreaterThan(threshold)
		result := withReason(base, true, fmt.Sprintf("amount %s vs threshold %s", candidate.Amount, threshold))
		result.Details = map[string]interface{}{"requiresApproval": requires}
		return result, nil

	case entities.RuleKindSignalFilter:
		signal, _ := candidate.Metadata["signalStrength"].(string)
		passed := contains(params.AllowedSignals, signal)
		return withReason(base, passed, fmt.Sprintf("signal %q allowed", signal)), nil

	default:
		return base, fmt.Errorf("unhandled rule kind %s", rule.Kind())
	}
}

// evaluateRollingLimit compares spend-to-date plus the candidate amount
// against limit. limitStr already reflects any dead-man throttle applied
// to the rule's own limit (§4.6), since the caller reads limit off the
// rule's current params.
func evaluateRollingLimit(base entities.RuleCheckResult, spentStr, limitStr string, amount valueobjects.Money) (entities.RuleCheckResult, error) {
	spent, err := valueobjects.NewMoney(spentStr)
	if err != nil {
		return base, err
	}
	limit, err := valueobjects.NewMoney(limitStr)
	if err != nil {
		return base, err
	}
	total, err := spent.Add(amount)
	if err != nil {
		return base, err
	}
	passed := total.LessThan(limit) || total.Equals(limit)
	return withReason(base, passed, fmt.Sprintf("spend %s + amount %s vs limit %s", spent, amount, limit)), nil
}

func withReason(base entities.RuleCheckResult, passed bool, reason string) entities.RuleCheckResult {
	base.Passed = passed
	base.Reason = reason
	return base
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// windowStart returns the start of the rolling window a *Limit rule kind
// aggregates over, per §4.4's UTC boundary definitions.
func windowStart(kind entities.RuleKind, now time.Time) time.Time {
	now = now.UTC()
	switch kind {
	case entities.RuleKindWeeklyLimit:
		return spendwindow.StartOfWeek(now)
	case entities.RuleKindMonthlyLimit:
		return spendwindow.StartOfMonth(now)
	default:
		return spendwindow.StartOfDay(now)
	}
}
