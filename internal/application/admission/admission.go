// Package admission implements the Admission Controller (§4.1): the
// single gateway every wallet-debiting transaction passes through, in
// strict gate order (preconditions, dead-man, kill switch, rules engine),
// before a ledger debit is ever executed. Grounded on the teacher's
// CreateTransactionUseCase — load entity, mutate inside one uow.Execute,
// save, publish — generalized from a single Credit/Debit switch to a
// four-gate pipeline followed by the ledger write.
package admission

import (
	"context"
	"fmt"

	"github.com/agentwallet/core/internal/application/audit"
	"github.com/agentwallet/core/internal/application/deadman"
	"github.com/agentwallet/core/internal/application/killswitch"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/application/rules"
	"github.com/agentwallet/core/internal/domain/entities"
	domainerrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/events"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// Candidate is the caller-supplied shape of a submit() request.
type Candidate struct {
	Amount        string
	Category      string
	RecipientID   string
	RecipientType entities.RecipientType
	Description   string
	Metadata      map[string]interface{}
}

// Controller is the Admission Controller.
type Controller struct {
	walletStore ports.WalletStore
	txStore     ports.TransactionStore
	ruleStore   ports.RuleStore
	uowFactory  ports.UnitOfWorkFactory
	publisher   ports.EventPublisher
	recorder    *audit.Recorder
	deadman     *deadman.Service
	killSwitch  *killswitch.Service
	rulesEngine *rules.Engine
	rail        ports.RailAdapter // optional; nil skips rail settlement
}

// New constructs an Admission Controller. rail may be nil when no
// external settlement rail is configured.
func New(
	walletStore ports.WalletStore,
	txStore ports.TransactionStore,
	ruleStore ports.RuleStore,
	uowFactory ports.UnitOfWorkFactory,
	publisher ports.EventPublisher,
	recorder *audit.Recorder,
	deadmanSvc *deadman.Service,
	killSwitchSvc *killswitch.Service,
	rulesEngine *rules.Engine,
	rail ports.RailAdapter,
) *Controller {
	return &Controller{
		walletStore: walletStore, txStore: txStore, ruleStore: ruleStore,
		uowFactory: uowFactory, publisher: publisher, recorder: recorder,
		deadman: deadmanSvc, killSwitch: killSwitchSvc, rulesEngine: rulesEngine, rail: rail,
	}
}

// Submit runs candidate through the full admission pipeline for walletID
// (§4.1 steps 1-6) and returns the persisted Transaction in its final
// status, whatever that status is — a rejection is not a Go error.
//
// The per-wallet lock (spec.md §5) is acquired once, via FindByIDForUpdate,
// before the first gate runs, and held through the ledger write: every
// gate below evaluates against this one locked read, not a separate
// unlocked snapshot, so two concurrent submissions against the same
// wallet can never both pass a spend-aggregate rule before either's debit
// commits.
func (c *Controller) Submit(ctx context.Context, walletID uuid.UUID, candidate Candidate) (*entities.Transaction, error) {
	amount, err := valueobjects.NewMoney(candidate.Amount)
	if err != nil {
		return nil, domainerrors.ValidationError{Field: "amount", Message: fmt.Sprintf("invalid amount: %v", err)}
	}

	tx, err := entities.NewTransaction(walletID, amount, candidate.RecipientID, candidate.RecipientType, candidate.Category, candidate.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	var (
		wallet      *entities.Wallet
		triggered   *killswitch.Triggered
		rulesReject bool
		reason      string
	)

	uow := c.uowFactory.NewSerializable()
	err = uow.Execute(ctx, func(txCtx context.Context) error {
		wallet, err = c.walletStore.FindByIDForUpdate(txCtx, walletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		// Step 1: preconditions.
		if err := wallet.CanDebit(); err != nil {
			return c.persistPrecondition(txCtx, wallet, tx, err)
		}
		if !wallet.HasSufficientBalance(amount) {
			return c.persistPrecondition(txCtx, wallet, tx, domainerrors.ErrInsufficientBalance)
		}

		// Step 2: dead-man gate.
		if c.deadman != nil {
			block, err := c.deadman.Evaluate(txCtx, wallet.AgentID(), amount, candidate.RecipientID)
			if err != nil {
				return fmt.Errorf("dead-man evaluation: %w", err)
			}
			if block != nil {
				return c.persistDeadMan(txCtx, tx, block)
			}
		}

		// Step 3: kill switch.
		trig, err := c.killSwitch.Check(txCtx, walletID)
		if err != nil {
			return fmt.Errorf("kill switch check: %w", err)
		}
		if trig != nil {
			triggered = trig
			return c.persistKillSwitch(txCtx, wallet, tx, trig)
		}

		// Step 4: rules engine.
		activeRules, err := c.ruleStore.ListActiveByWallet(txCtx, walletID)
		if err != nil {
			return fmt.Errorf("load active rules: %w", err)
		}
		verdict, err := c.rulesEngine.Evaluate(txCtx, walletID, activeRules, rules.Candidate{
			Amount: amount, Category: candidate.Category, RecipientID: candidate.RecipientID, Metadata: candidate.Metadata,
		})
		if err != nil {
			return fmt.Errorf("rules engine evaluation: %w", err)
		}
		tx.SetRuleCheckResults(verdict.Results)

		// Step 5: final status selection + ledger debit.
		switch {
		case !verdict.Approved:
			rulesReject = true
			reason = firstFailureReason(verdict)
			return c.persistRejectRules(txCtx, tx, reason, verdict)
		case verdict.RequiresApproval:
			return c.persistAwaitApproval(txCtx, tx)
		default:
			return c.persistApproveAndComplete(txCtx, wallet, tx)
		}
	})
	if err != nil {
		return nil, err
	}

	// Step 6: publish the events the final, committed status implies.
	switch tx.Status() {
	case entities.TransactionStatusKillSwitched:
		_ = c.publisher.Publish(ctx, events.NewKillSwitchTriggered(wallet.ID(), triggered.KillSwitchID, string(triggered.Kind), triggered.ObservedValue))
		_ = c.publisher.Publish(ctx, events.NewAdmissionDenied(tx.ID(), wallet.ID(), "kill switch triggered"))
	case entities.TransactionStatusRejected:
		if rulesReject {
			_ = c.publisher.Publish(ctx, events.NewAdmissionDenied(tx.ID(), tx.WalletID(), reason))
		}
	case entities.TransactionStatusAwaitingApproval:
		_ = c.publisher.Publish(ctx, events.NewAdmissionAwaitingApproval(tx.ID(), tx.WalletID()))
	case entities.TransactionStatusCompleted:
		_ = c.publisher.Publish(ctx, events.NewAdmissionGranted(tx.ID(), tx.WalletID(), tx.Amount().String()))
		if c.rail != nil && tx.RecipientType() == entities.RecipientTypeExternal {
			// Settlement happens outside the granting transaction: admission
			// has already committed, so a rail failure here does not reverse
			// the ledger debit. The failure is only recorded as a
			// "rail_send_failed" audit entry; nothing reconciles the drift.
			if _, sendErr := c.rail.Send(ctx, tx.ID(), tx.Amount(), tx.RecipientID()); sendErr != nil {
				_ = c.recorder.System(ctx, "rail_send_failed", "transaction", tx.ID().String(), map[string]interface{}{"error": sendErr.Error()})
			}
		}
	}
	return tx, nil
}

// persistPrecondition, persistDeadMan, persistKillSwitch, persistRejectRules,
// persistAwaitApproval, and persistApproveAndComplete run inside Submit's
// single locked transaction: they save the transaction (and, for the kill
// switch and debit paths, the wallet) and write the audit entry, but never
// publish — publishing happens once, after Submit's transaction commits.

func (c *Controller) persistPrecondition(txCtx context.Context, wallet *entities.Wallet, tx *entities.Transaction, cause error) error {
	_ = tx.MarkRejected(cause.Error())
	agentID := wallet.AgentID()
	return c.persistAndAudit(txCtx, tx, &agentID, "Blocked by preconditions", map[string]interface{}{"error": cause.Error()})
}

func (c *Controller) persistDeadMan(txCtx context.Context, tx *entities.Transaction, block *deadman.Block) error {
	reason := fmt.Sprintf("blocked by dead-man switch: %s", block.TriggerType)
	_ = tx.MarkRejected(reason)
	return c.persistAndAudit(txCtx, tx, nil, "Blocked by dead-man switch", map[string]interface{}{
		"triggerType": string(block.TriggerType), "action": string(block.Action),
	})
}

func (c *Controller) persistKillSwitch(txCtx context.Context, wallet *entities.Wallet, tx *entities.Transaction, triggered *killswitch.Triggered) error {
	if wallet.Status() != entities.WalletStatusKillSwitched {
		wallet.KillSwitch()
		if err := c.walletStore.Save(txCtx, wallet); err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}
	}
	if err := tx.MarkKillSwitched(fmt.Sprintf("kill switch %s fired: %s", triggered.Kind, triggered.ObservedValue)); err != nil {
		return err
	}
	if err := c.txStore.Save(txCtx, tx); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return c.recorder.Blocked(txCtx, nil, "submit", "transaction", tx.ID().String(), map[string]interface{}{
		"killSwitchId": triggered.KillSwitchID, "kind": string(triggered.Kind), "observedValue": triggered.ObservedValue,
	})
}

func (c *Controller) persistRejectRules(txCtx context.Context, tx *entities.Transaction, reason string, verdict rules.Verdict) error {
	_ = tx.MarkRejected(reason)
	return c.persistAndAudit(txCtx, tx, nil, "Blocked by rules engine", map[string]interface{}{"results": verdict.Results})
}

func firstFailureReason(verdict rules.Verdict) string {
	for _, r := range verdict.Results {
		if !r.Passed {
			return r.Reason
		}
	}
	return "rejected by rules engine"
}

func (c *Controller) persistAwaitApproval(txCtx context.Context, tx *entities.Transaction) error {
	if err := tx.MarkAwaitingApproval(); err != nil {
		return err
	}
	if err := c.txStore.Save(txCtx, tx); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return c.recorder.Escalated(txCtx, nil, "submit", "transaction", tx.ID().String(), map[string]interface{}{"results": tx.RuleCheckResults()})
}

// persistApproveAndComplete debits wallet — already locked by Submit's
// enclosing transaction — and marks tx Completed.
func (c *Controller) persistApproveAndComplete(txCtx context.Context, wallet *entities.Wallet, tx *entities.Transaction) error {
	if err := wallet.Debit(tx.Amount()); err != nil {
		return err
	}
	if err := c.walletStore.Save(txCtx, wallet); err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}
	if err := tx.MarkApproved(); err != nil {
		return err
	}
	if err := tx.MarkCompleted(); err != nil {
		return err
	}
	if err := c.txStore.Save(txCtx, tx); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return c.recorder.Allowed(txCtx, nil, "submit", "transaction", tx.ID().String(), map[string]interface{}{"results": tx.RuleCheckResults()})
}

func (c *Controller) persistAndAudit(ctx context.Context, tx *entities.Transaction, agentID *uuid.UUID, action string, reasoning map[string]interface{}) error {
	uow := c.uowFactory.New()
	return uow.Execute(ctx, func(txCtx context.Context) error {
		if err := c.txStore.Save(txCtx, tx); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		return c.recorder.Blocked(txCtx, agentID, action, "transaction", tx.ID().String(), reasoning)
	})
}

// Approve executes the operator-only approve(id, operator) operation:
// re-checks balance at execute time before debiting (§4.1).
func (c *Controller) Approve(ctx context.Context, transactionID uuid.UUID, operator string) (*entities.Transaction, error) {
	tx, err := c.txStore.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}

	uow := c.uowFactory.NewSerializable()
	err = uow.Execute(ctx, func(txCtx context.Context) error {
		wallet, err := c.walletStore.FindByIDForUpdate(txCtx, tx.WalletID())
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if err := tx.Approve(); err != nil {
			return err
		}
		// Re-check balance at execute time (§4.1): a shortfall fails the
		// transaction rather than aborting the whole approve call, so the
		// Failed status still commits.
		if !wallet.HasSufficientBalance(tx.Amount()) {
			_ = tx.MarkFailed(domainerrors.ErrInsufficientBalance.Error())
			if err := c.txStore.Save(txCtx, tx); err != nil {
				return fmt.Errorf("save transaction: %w", err)
			}
			return c.recorder.Blocked(txCtx, nil, "approve", "transaction", tx.ID().String(), map[string]interface{}{"operator": operator, "reason": "insufficient balance at approval time"})
		}
		if err := wallet.Debit(tx.Amount()); err != nil {
			return err
		}
		if err := c.walletStore.Save(txCtx, wallet); err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}
		if err := tx.MarkCompleted(); err != nil {
			return err
		}
		if err := c.txStore.Save(txCtx, tx); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		return c.recorder.Allowed(txCtx, nil, "approve", "transaction", tx.ID().String(), map[string]interface{}{"operator": operator})
	})
	if err != nil {
		return nil, err
	}
	if tx.Status() == entities.TransactionStatusFailed {
		_ = c.publisher.Publish(ctx, events.NewAdmissionDenied(tx.ID(), tx.WalletID(), tx.FailureReason()))
		return tx, nil
	}
	_ = c.publisher.Publish(ctx, events.NewAdmissionGranted(tx.ID(), tx.WalletID(), tx.Amount().String()))
	return tx, nil
}

// Reject executes the operator-only reject(id, operator, reason) operation.
func (c *Controller) Reject(ctx context.Context, transactionID uuid.UUID, operator, reason string) (*entities.Transaction, error) {
	tx, err := c.txStore.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if err := tx.Reject(reason); err != nil {
		return nil, err
	}

	uow := c.uowFactory.New()
	err = uow.Execute(ctx, func(txCtx context.Context) error {
		if err := c.txStore.Save(txCtx, tx); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		return c.recorder.Blocked(txCtx, nil, "reject", "transaction", tx.ID().String(), map[string]interface{}{"operator": operator, "reason": reason})
	})
	if err != nil {
		return nil, err
	}
	_ = c.publisher.Publish(ctx, events.NewAdmissionDenied(tx.ID(), tx.WalletID(), reason))
	return tx, nil
}

// Deposit is the deposit operation (§4.1): bypasses the rules engine
// entirely, increments the wallet balance, and writes a Completed
// transaction of category "deposit".
func (c *Controller) Deposit(ctx context.Context, walletID uuid.UUID, amountStr string) (*entities.Transaction, error) {
	var result *entities.Transaction
	uow := c.uowFactory.New()
	err := uow.Execute(ctx, func(txCtx context.Context) error {
		wallet, err := c.walletStore.FindByIDForUpdate(txCtx, walletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		amount, err := valueobjects.NewMoney(amountStr)
		if err != nil {
			return domainerrors.ValidationError{Field: "amount", Message: fmt.Sprintf("invalid amount: %v", err)}
		}
		tx, err := entities.NewTransaction(walletID, amount, "", entities.RecipientTypeAgentWallet, "deposit", nil)
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := wallet.Credit(amount); err != nil {
			return err
		}
		if err := c.walletStore.Save(txCtx, wallet); err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}
		if err := tx.MarkApproved(); err != nil {
			return err
		}
		if err := tx.MarkCompleted(); err != nil {
			return err
		}
		if err := c.txStore.Save(txCtx, tx); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		if err := c.recorder.Allowed(txCtx, nil, "deposit", "transaction", tx.ID().String(), nil); err != nil {
			return err
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = c.publisher.Publish(ctx, events.NewWalletCredited(walletID, result.Amount().String(), result.ID()))
	return result, nil
}
