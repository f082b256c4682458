package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// KillSwitchKind is the closed set of trigger conditions a kill switch
// can evaluate (§4.5).
type KillSwitchKind string

const (
	KillSwitchKindDrawdownPercent    KillSwitchKind = "DrawdownPercent"
	KillSwitchKindLossAmount         KillSwitchKind = "LossAmount"
	KillSwitchKindConsecutiveLosses  KillSwitchKind = "ConsecutiveLosses"
	KillSwitchKindDailyLossLimit     KillSwitchKind = "DailyLossLimit"
)

// IsValid reports whether kind is one of the four defined trigger kinds.
func (k KillSwitchKind) IsValid() bool {
	switch k {
	case KillSwitchKindDrawdownPercent, KillSwitchKindLossAmount, KillSwitchKindConsecutiveLosses, KillSwitchKindDailyLossLimit:
		return true
	default:
		return false
	}
}

// KillSwitch is a per-wallet latching circuit breaker. Once triggered, it
// continues to block all new transactions on its wallet until an operator
// resets it (§4.5).
type KillSwitch struct {
	id          uuid.UUID
	walletID    uuid.UUID
	kind        KillSwitchKind
	threshold   string // decimal string for amount-kinds; fraction (0,1] for DrawdownPercent; count for ConsecutiveLosses
	windowHours int
	active      bool
	triggered   bool
	triggeredAt *time.Time
	resetAt     *time.Time
	currentValue string

	createdAt time.Time
	updatedAt time.Time
}

// NewKillSwitch validates params and constructs a new, untriggered,
// active kill switch.
func NewKillSwitch(walletID uuid.UUID, kind KillSwitchKind, threshold string, windowHours int) (*KillSwitch, error) {
	if !kind.IsValid() {
		return nil, errors.ValidationError{Field: "kind", Message: "unknown kill switch kind"}
	}
	if !isPositiveDecimal(threshold) {
		return nil, errors.ValidationError{Field: "threshold", Message: "must be a positive decimal"}
	}
	if kind != KillSwitchKindConsecutiveLosses && windowHours <= 0 {
		return nil, errors.ValidationError{Field: "windowHours", Message: "must be positive"}
	}

	now := time.Now()
	return &KillSwitch{
		id:          uuid.New(),
		walletID:    walletID,
		kind:        kind,
		threshold:   threshold,
		windowHours: windowHours,
		active:      true,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructKillSwitch reconstructs a KillSwitch from stored data.
func ReconstructKillSwitch(
	id, walletID uuid.UUID,
	kind KillSwitchKind,
	threshold string,
	windowHours int,
	active, triggered bool,
	triggeredAt, resetAt *time.Time,
	currentValue string,
	createdAt, updatedAt time.Time,
) *KillSwitch {
	return &KillSwitch{
		id: id, walletID: walletID, kind: kind, threshold: threshold, windowHours: windowHours,
		active: active, triggered: triggered, triggeredAt: triggeredAt, resetAt: resetAt,
		currentValue: currentValue, createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (k *KillSwitch) ID() uuid.UUID             { return k.id }
func (k *KillSwitch) WalletID() uuid.UUID       { return k.walletID }
func (k *KillSwitch) Kind() KillSwitchKind      { return k.kind }
func (k *KillSwitch) Threshold() string         { return k.threshold }
func (k *KillSwitch) WindowHours() int          { return k.windowHours }
func (k *KillSwitch) Active() bool              { return k.active }
func (k *KillSwitch) Triggered() bool           { return k.triggered }
func (k *KillSwitch) TriggeredAt() *time.Time   { return k.triggeredAt }
func (k *KillSwitch) ResetAt() *time.Time       { return k.resetAt }
func (k *KillSwitch) CurrentValue() string      { return k.currentValue }
func (k *KillSwitch) CreatedAt() time.Time      { return k.createdAt }
func (k *KillSwitch) UpdatedAt() time.Time      { return k.updatedAt }

// Trigger latches the switch: sets triggered/triggeredAt/currentValue.
// The caller is responsible for making this atomic with the wallet status
// write, per §4.2/§5.
func (k *KillSwitch) Trigger(observedValue string) error {
	if k.triggered {
		return errors.NewStateConflict("KillSwitch", "triggered", "trigger")
	}
	now := time.Now()
	k.triggered = true
	k.triggeredAt = &now
	k.currentValue = observedValue
	k.resetAt = nil
	k.updatedAt = now
	return nil
}

// Reset is operator-only: clears triggered state and stamps resetAt.
func (k *KillSwitch) Reset() error {
	if !k.triggered {
		return errors.NewStateConflict("KillSwitch", "not-triggered", "reset")
	}
	now := time.Now()
	k.triggered = false
	k.triggeredAt = nil
	k.currentValue = ""
	k.resetAt = &now
	k.updatedAt = now
	return nil
}

// Deactivate turns the kill switch off (it no longer participates in
// evaluation, but its trigger history is retained).
func (k *KillSwitch) Deactivate() {
	k.active = false
	k.updatedAt = time.Now()
}
