// Package entities - Wallet is the ledger entry that every admission
// ultimately reads and mutates. It enforces the ≥0 balance invariant and
// the status gate that Admission's precondition step relies on.
package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// WalletStatus is the operational status of a Wallet.
type WalletStatus string

const (
	WalletStatusActive       WalletStatus = "ACTIVE"
	WalletStatusFrozen       WalletStatus = "FROZEN"
	WalletStatusClosed       WalletStatus = "CLOSED"
	WalletStatusKillSwitched WalletStatus = "KILL_SWITCHED"
)

// IsValid checks if the wallet status is one of the closed set.
func (s WalletStatus) IsValid() bool {
	switch s {
	case WalletStatusActive, WalletStatusFrozen, WalletStatusClosed, WalletStatusKillSwitched:
		return true
	default:
		return false
	}
}

// Wallet is a balance-bearing ledger entry owned by exactly one agent.
//
// Entity Pattern:
// - Has identity (ID)
// - Aggregates Balance as a sub-entity with an optimistic-locking version
// - Enforces the ≥0-after-debit invariant
type Wallet struct {
	id       uuid.UUID
	agentID  uuid.UUID
	currency valueobjects.Currency
	status   WalletStatus
	balance  Balance

	createdAt time.Time
	updatedAt time.Time
}

// Balance holds the wallet's available balance plus funds reserved for an
// in-flight admission, with a version for optimistic locking.
type Balance struct {
	available valueobjects.Money
	held      valueobjects.Money // reserved by an in-flight admission
	version   int64
}

// NewWallet creates a new wallet for an agent with zero balance, Active.
func NewWallet(agentID uuid.UUID, currency valueobjects.Currency) (*Wallet, error) {
	if agentID == uuid.Nil {
		return nil, errors.ValidationError{Field: "agentId", Message: "agent id is required"}
	}
	if currency.IsZero() {
		return nil, errors.ValidationError{Field: "currency", Message: "currency is required"}
	}

	now := time.Now()
	return &Wallet{
		id:       uuid.New(),
		agentID:  agentID,
		currency: currency,
		status:   WalletStatusActive,
		balance: Balance{
			available: valueobjects.Zero(),
			held:      valueobjects.Zero(),
			version:   0,
		},
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructWallet reconstructs a Wallet from stored data.
func ReconstructWallet(
	id, agentID uuid.UUID,
	currency valueobjects.Currency,
	status WalletStatus,
	available, held valueobjects.Money,
	balanceVersion int64,
	createdAt, updatedAt time.Time,
) *Wallet {
	return &Wallet{
		id:       id,
		agentID:  agentID,
		currency: currency,
		status:   status,
		balance: Balance{
			available: available,
			held:      held,
			version:   balanceVersion,
		},
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (w *Wallet) ID() uuid.UUID                    { return w.id }
func (w *Wallet) AgentID() uuid.UUID               { return w.agentID }
func (w *Wallet) Currency() valueobjects.Currency  { return w.currency }
func (w *Wallet) Status() WalletStatus             { return w.status }
func (w *Wallet) AvailableBalance() valueobjects.Money { return w.balance.available }
func (w *Wallet) HeldBalance() valueobjects.Money      { return w.balance.held }
func (w *Wallet) BalanceVersion() int64            { return w.balance.version }
func (w *Wallet) CreatedAt() time.Time             { return w.createdAt }
func (w *Wallet) UpdatedAt() time.Time             { return w.updatedAt }

// IsActive returns true if the wallet can currently be debited.
func (w *Wallet) IsActive() bool {
	return w.status == WalletStatusActive
}

// CanDebit is the wallet half of Admission's precondition gate (§4.1.1).
func (w *Wallet) CanDebit() error {
	switch w.status {
	case WalletStatusActive:
		return nil
	case WalletStatusKillSwitched:
		return errors.NewLatchedCircuit("wallet", w.id.String(), string(w.status))
	case WalletStatusClosed:
		return errors.ErrWalletClosed
	default:
		return errors.ErrWalletNotActive
	}
}

// HasSufficientBalance checks available balance ≥ amount.
func (w *Wallet) HasSufficientBalance(amount valueobjects.Money) bool {
	return w.balance.available.GreaterThanOrEqual(amount)
}

// Credit adds funds to the wallet. Used by the deposit operation, which
// bypasses the rules engine entirely (§4.1).
func (w *Wallet) Credit(amount valueobjects.Money) error {
	if w.status == WalletStatusClosed {
		return errors.NewStateConflict("Wallet", string(w.status), "credit")
	}
	newBalance, err := w.balance.available.Add(amount)
	if err != nil {
		return err
	}
	w.balance.available = newBalance
	w.balance.version++
	w.updatedAt = time.Now()
	return nil
}

// Debit subtracts funds from the wallet. Called only after Admission's
// rules-engine gate has approved the candidate transaction.
func (w *Wallet) Debit(amount valueobjects.Money) error {
	if err := w.CanDebit(); err != nil {
		return err
	}
	if !w.HasSufficientBalance(amount) {
		return errors.ErrInsufficientBalance
	}
	newBalance, err := w.balance.available.Subtract(amount)
	if err != nil {
		return err
	}
	w.balance.available = newBalance
	w.balance.version++
	w.updatedAt = time.Now()
	return nil
}

// KillSwitch latches the wallet into KillSwitched. Called only inside the
// atomic (wallet.status + KillSwitch.triggered) write described in §4.2/§5.
func (w *Wallet) KillSwitch() {
	w.status = WalletStatusKillSwitched
	w.updatedAt = time.Now()
}

// ResetKillSwitch restores the wallet to Active. Operator-only per §4.5.
func (w *Wallet) ResetKillSwitch() error {
	if w.status != WalletStatusKillSwitched {
		return errors.NewStateConflict("Wallet", string(w.status), "reset kill switch")
	}
	w.status = WalletStatusActive
	w.updatedAt = time.Now()
	return nil
}

// Freeze sets the wallet to Frozen (manual emergency stop or cascade).
func (w *Wallet) Freeze() {
	w.status = WalletStatusFrozen
	w.updatedAt = time.Now()
}

// Unfreeze restores the wallet to Active from Frozen.
func (w *Wallet) Unfreeze() error {
	if w.status != WalletStatusFrozen {
		return errors.NewStateConflict("Wallet", string(w.status), "unfreeze")
	}
	w.status = WalletStatusActive
	w.updatedAt = time.Now()
	return nil
}

// Close permanently closes the wallet. Business rule: balance must be zero.
func (w *Wallet) Close() error {
	if !w.balance.available.IsZero() || !w.balance.held.IsZero() {
		return errors.NewStateConflict("Wallet", string(w.status), "close non-zero-balance wallet")
	}
	w.status = WalletStatusClosed
	w.updatedAt = time.Now()
	return nil
}
