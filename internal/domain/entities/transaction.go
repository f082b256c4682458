// Package entities - Transaction is the record of one admission attempt,
// created at submission time and mutated to a terminal status within the
// same admission call except AwaitingApproval (§3 Lifecycle).
package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// RecipientType classifies who a transaction's funds are moving to.
type RecipientType string

const (
	RecipientTypeExternal    RecipientType = "External"
	RecipientTypeAgentWallet RecipientType = "AgentWallet"
	RecipientTypeEscrow      RecipientType = "Escrow"
)

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TransactionStatusPending          TransactionStatus = "Pending"
	TransactionStatusApproved         TransactionStatus = "Approved"
	TransactionStatusAwaitingApproval TransactionStatus = "AwaitingApproval"
	TransactionStatusRejected         TransactionStatus = "Rejected"
	TransactionStatusCompleted        TransactionStatus = "Completed"
	TransactionStatusFailed           TransactionStatus = "Failed"
	TransactionStatusCancelled        TransactionStatus = "Cancelled"
	TransactionStatusKillSwitched     TransactionStatus = "KillSwitched"
)

// IsFinal reports whether the status can no longer change (every status
// except Pending, Approved and AwaitingApproval is terminal).
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case TransactionStatusRejected, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusKillSwitched:
		return true
	default:
		return false
	}
}

// RuleCheckResult records the outcome of one rule evaluated during
// admission, always present for every rule regardless of outcome (§4.4).
type RuleCheckResult struct {
	RuleID  uuid.UUID              `json:"ruleId"`
	Kind    RuleKind               `json:"kind"`
	Passed  bool                   `json:"passed"`
	Reason  string                 `json:"reason"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Transaction is a candidate or completed spend on a Wallet.
type Transaction struct {
	id              uuid.UUID
	walletID        uuid.UUID
	amount          valueobjects.Money
	recipientID     string
	recipientType   RecipientType
	category        string
	status          TransactionStatus
	ruleCheckResults []RuleCheckResult
	metadata        map[string]interface{}
	failureReason   string

	createdAt   time.Time
	completedAt *time.Time
}

// NewTransaction creates a new Pending transaction for a candidate spend.
func NewTransaction(
	walletID uuid.UUID,
	amount valueobjects.Money,
	recipientID string,
	recipientType RecipientType,
	category string,
	metadata map[string]interface{},
) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, errors.ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return &Transaction{
		id:            uuid.New(),
		walletID:      walletID,
		amount:        amount,
		recipientID:   recipientID,
		recipientType: recipientType,
		category:      category,
		status:        TransactionStatusPending,
		metadata:      metadata,
		createdAt:     time.Now(),
	}, nil
}

// ReconstructTransaction reconstructs a Transaction from stored data.
func ReconstructTransaction(
	id, walletID uuid.UUID,
	amount valueobjects.Money,
	recipientID string,
	recipientType RecipientType,
	category string,
	status TransactionStatus,
	ruleCheckResults []RuleCheckResult,
	metadata map[string]interface{},
	failureReason string,
	createdAt time.Time,
	completedAt *time.Time,
) *Transaction {
	return &Transaction{
		id: id, walletID: walletID, amount: amount, recipientID: recipientID,
		recipientType: recipientType, category: category, status: status,
		ruleCheckResults: ruleCheckResults, metadata: metadata, failureReason: failureReason,
		createdAt: createdAt, completedAt: completedAt,
	}
}

func (t *Transaction) ID() uuid.UUID                       { return t.id }
func (t *Transaction) WalletID() uuid.UUID                 { return t.walletID }
func (t *Transaction) Amount() valueobjects.Money          { return t.amount }
func (t *Transaction) RecipientID() string                 { return t.recipientID }
func (t *Transaction) RecipientType() RecipientType         { return t.recipientType }
func (t *Transaction) Category() string                     { return t.category }
func (t *Transaction) Status() TransactionStatus            { return t.status }
func (t *Transaction) RuleCheckResults() []RuleCheckResult  { return t.ruleCheckResults }
func (t *Transaction) Metadata() map[string]interface{}     { return t.metadata }
func (t *Transaction) FailureReason() string                { return t.failureReason }
func (t *Transaction) CreatedAt() time.Time                 { return t.createdAt }
func (t *Transaction) CompletedAt() *time.Time               { return t.completedAt }

// IsDeposit reports whether this transaction is the special deposit
// category excluded from spend-rule/spend-window aggregation (§4.4, §9).
func (t *Transaction) IsDeposit() bool {
	return t.category == "deposit"
}

// SetRuleCheckResults records the full evaluated rule set for the audit
// trail, regardless of the final verdict (§4.1 step 6).
func (t *Transaction) SetRuleCheckResults(results []RuleCheckResult) {
	t.ruleCheckResults = results
}

// MarkAwaitingApproval transitions Pending → AwaitingApproval.
func (t *Transaction) MarkAwaitingApproval() error {
	if t.status != TransactionStatusPending {
		return errors.NewStateConflict("Transaction", string(t.status), "mark awaiting approval")
	}
	t.status = TransactionStatusAwaitingApproval
	return nil
}

// MarkRejected transitions Pending or AwaitingApproval → Rejected.
func (t *Transaction) MarkRejected(reason string) error {
	if t.status != TransactionStatusPending && t.status != TransactionStatusAwaitingApproval {
		return errors.NewStateConflict("Transaction", string(t.status), "reject")
	}
	t.status = TransactionStatusRejected
	t.failureReason = reason
	return nil
}

// MarkKillSwitched transitions Pending → KillSwitched (§4.1 step 3).
func (t *Transaction) MarkKillSwitched(reason string) error {
	if t.status != TransactionStatusPending {
		return errors.NewStateConflict("Transaction", string(t.status), "mark kill-switched")
	}
	t.status = TransactionStatusKillSwitched
	t.failureReason = reason
	return nil
}

// MarkApproved transitions Pending → Approved, immediately before the
// ledger debit is executed.
func (t *Transaction) MarkApproved() error {
	if t.status != TransactionStatusPending {
		return errors.NewStateConflict("Transaction", string(t.status), "approve")
	}
	t.status = TransactionStatusApproved
	return nil
}

// MarkCompleted transitions Approved → Completed and stamps completedAt.
// Only Completed transactions contribute to spend-window aggregates.
func (t *Transaction) MarkCompleted() error {
	if t.status != TransactionStatusApproved {
		return errors.NewStateConflict("Transaction", string(t.status), "complete")
	}
	t.status = TransactionStatusCompleted
	now := time.Now()
	t.completedAt = &now
	return nil
}

// MarkFailed transitions any non-final transaction to Failed. It does not
// touch the wallet: a debit already applied stays in place.
func (t *Transaction) MarkFailed(reason string) error {
	if t.status.IsFinal() {
		return errors.NewStateConflict("Transaction", string(t.status), "fail")
	}
	t.status = TransactionStatusFailed
	t.failureReason = reason
	return nil
}

// Approve transitions AwaitingApproval → Approved (operator action, §4.1
// manual-approval operation). Caller re-checks balance before calling this.
func (t *Transaction) Approve() error {
	if t.status != TransactionStatusAwaitingApproval {
		return errors.NewStateConflict("Transaction", string(t.status), "approve")
	}
	t.status = TransactionStatusApproved
	return nil
}

// Reject transitions AwaitingApproval → Rejected with an operator reason.
func (t *Transaction) Reject(reason string) error {
	if t.status != TransactionStatusAwaitingApproval {
		return errors.NewStateConflict("Transaction", string(t.status), "reject")
	}
	t.status = TransactionStatusRejected
	t.metadata["rejectionReason"] = reason
	return nil
}
