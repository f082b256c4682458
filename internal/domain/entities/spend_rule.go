package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// RuleKind is the closed enumeration of spend-rule kinds the Rules Engine
// understands. Represented as a sum type, not open polymorphism — §9.
type RuleKind string

const (
	RuleKindPerTransactionLimit RuleKind = "PerTransactionLimit"
	RuleKindDailyLimit          RuleKind = "DailyLimit"
	RuleKindWeeklyLimit         RuleKind = "WeeklyLimit"
	RuleKindMonthlyLimit        RuleKind = "MonthlyLimit"
	RuleKindCategoryWhitelist   RuleKind = "CategoryWhitelist"
	RuleKindCategoryBlacklist   RuleKind = "CategoryBlacklist"
	RuleKindRecipientWhitelist  RuleKind = "RecipientWhitelist"
	RuleKindRecipientBlacklist  RuleKind = "RecipientBlacklist"
	RuleKindTimeWindow          RuleKind = "TimeWindow"
	RuleKindApprovalThreshold   RuleKind = "ApprovalThreshold"
	RuleKindSignalFilter        RuleKind = "SignalFilter"
)

// IsValid reports whether kind belongs to the closed set of §4.4.
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleKindPerTransactionLimit, RuleKindDailyLimit, RuleKindWeeklyLimit, RuleKindMonthlyLimit,
		RuleKindCategoryWhitelist, RuleKindCategoryBlacklist,
		RuleKindRecipientWhitelist, RuleKindRecipientBlacklist,
		RuleKindTimeWindow, RuleKindApprovalThreshold, RuleKindSignalFilter:
		return true
	default:
		return false
	}
}

// RuleParams holds the union of all possible rule-kind parameters. Only the
// fields relevant to Kind are populated; params schema is fixed per kind.
type RuleParams struct {
	Limit            string   `json:"limit,omitempty"`     // decimal string, used by *Limit kinds
	Threshold        string   `json:"threshold,omitempty"` // decimal string, used by ApprovalThreshold
	Categories       []string `json:"categories,omitempty"`
	Recipients       []string `json:"recipients,omitempty"`
	StartHour        int      `json:"startHour,omitempty"`
	EndHour          int      `json:"endHour,omitempty"`
	AllowedSignals   []string `json:"allowedSignals,omitempty"`
	ThrottledFactor  *string  `json:"throttledFactor,omitempty"` // set by dead-man throttle action
}

// SpendRule is a predicate plus effect (block, or flag-for-approval)
// applied during admission, scoped to one wallet.
type SpendRule struct {
	id       uuid.UUID
	walletID uuid.UUID
	kind     RuleKind
	params   RuleParams
	active   bool
	priority int

	createdAt time.Time
	updatedAt time.Time
}

// NewSpendRule validates params against kind's fixed schema (§4.4) and
// constructs a new active rule.
func NewSpendRule(walletID uuid.UUID, kind RuleKind, params RuleParams, priority int) (*SpendRule, error) {
	if !kind.IsValid() {
		return nil, errors.ErrInvalidRuleKind
	}
	if err := validateRuleParams(kind, params); err != nil {
		return nil, err
	}

	now := time.Now()
	return &SpendRule{
		id:        uuid.New(),
		walletID:  walletID,
		kind:      kind,
		params:    params,
		active:    true,
		priority:  priority,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructSpendRule reconstructs a SpendRule from stored data.
func ReconstructSpendRule(
	id, walletID uuid.UUID,
	kind RuleKind,
	params RuleParams,
	active bool,
	priority int,
	createdAt, updatedAt time.Time,
) *SpendRule {
	return &SpendRule{
		id: id, walletID: walletID, kind: kind, params: params,
		active: active, priority: priority, createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (r *SpendRule) ID() uuid.UUID         { return r.id }
func (r *SpendRule) WalletID() uuid.UUID   { return r.walletID }
func (r *SpendRule) Kind() RuleKind        { return r.kind }
func (r *SpendRule) Params() RuleParams    { return r.params }
func (r *SpendRule) Active() bool          { return r.active }
func (r *SpendRule) Priority() int         { return r.priority }
func (r *SpendRule) CreatedAt() time.Time  { return r.createdAt }
func (r *SpendRule) UpdatedAt() time.Time  { return r.updatedAt }

// Deactivate turns the rule off without deleting its history.
func (r *SpendRule) Deactivate() {
	r.active = false
	r.updatedAt = time.Now()
}

// Activate turns the rule back on.
func (r *SpendRule) Activate() {
	r.active = true
	r.updatedAt = time.Now()
}

// UpdateParams replaces the rule's parameters after re-validating them.
func (r *SpendRule) UpdateParams(params RuleParams) error {
	if err := validateRuleParams(r.kind, params); err != nil {
		return err
	}
	r.params = params
	r.updatedAt = time.Now()
	return nil
}

// Throttle applies the dead-man throttle action: stores limit (already
// multiplied by factor by the caller; spec.md §4.6 uses 0.1) as the rule's
// limit and records factor as its throttled factor.
func (r *SpendRule) Throttle(limit string, factor string) {
	r.params.Limit = limit
	r.params.ThrottledFactor = &factor
	r.updatedAt = time.Now()
}

// validateRuleParams enforces the fixed params schema per kind (§4.4):
// limit/threshold > 0; categories/recipients non-empty; hours in [0,23].
func validateRuleParams(kind RuleKind, params RuleParams) error {
	var errs errors.ValidationErrors
	switch kind {
	case RuleKindPerTransactionLimit, RuleKindDailyLimit, RuleKindWeeklyLimit, RuleKindMonthlyLimit:
		if !isPositiveDecimal(params.Limit) {
			errs.Add("limit", "must be a positive decimal")
		}
	case RuleKindApprovalThreshold:
		if !isPositiveDecimal(params.Threshold) {
			errs.Add("threshold", "must be a positive decimal")
		}
	case RuleKindCategoryWhitelist, RuleKindCategoryBlacklist:
		if len(params.Categories) == 0 {
			errs.Add("categories", "must be non-empty")
		}
	case RuleKindRecipientWhitelist, RuleKindRecipientBlacklist:
		if len(params.Recipients) == 0 {
			errs.Add("recipients", "must be non-empty")
		}
	case RuleKindTimeWindow:
		if params.StartHour < 0 || params.StartHour > 23 {
			errs.Add("startHour", "must be in [0,23]")
		}
		if params.EndHour < 0 || params.EndHour > 23 {
			errs.Add("endHour", "must be in [0,23]")
		}
	case RuleKindSignalFilter:
		if len(params.AllowedSignals) == 0 {
			errs.Add("allowedSignals", "must be non-empty")
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func isPositiveDecimal(s string) bool {
	if s == "" {
		return false
	}
	neg := false
	dotSeen := false
	digits := 0
	nonZero := false
	for i, c := range s {
		switch {
		case c == '-' && i == 0:
			neg = true
		case c == '.' && !dotSeen:
			dotSeen = true
		case c >= '0' && c <= '9':
			digits++
			if c != '0' {
				nonZero = true
			}
		default:
			return false
		}
	}
	if neg || digits == 0 {
		return false
	}
	return nonZero
}
