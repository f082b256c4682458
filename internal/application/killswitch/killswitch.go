// Package killswitch implements the per-wallet latching circuit breaker
// of §4.5: evaluating the four trigger kinds against transaction history,
// latching a wallet atomically with its KillSwitch row, and the
// operator-only reset path.
package killswitch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/application/spendwindow"
	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/agentwallet/core/internal/domain/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service evaluates and latches kill switches.
type Service struct {
	killSwitchStore ports.KillSwitchStore
	walletStore     ports.WalletStore
	txStore         ports.TransactionStore
	uowFactory      ports.UnitOfWorkFactory
	publisher       ports.EventPublisher
}

// New constructs a killswitch Service.
func New(killSwitchStore ports.KillSwitchStore, walletStore ports.WalletStore, txStore ports.TransactionStore, uowFactory ports.UnitOfWorkFactory, publisher ports.EventPublisher) *Service {
	return &Service{killSwitchStore: killSwitchStore, walletStore: walletStore, txStore: txStore, uowFactory: uowFactory, publisher: publisher}
}

// Triggered describes the kill switch that blocked a candidate, if any.
type Triggered struct {
	KillSwitchID  uuid.UUID
	Kind          entities.KillSwitchKind
	ObservedValue string
}

// Check runs every active kill switch on walletID (§4.1 step 3). A
// switch already latched (triggered, not yet reset) blocks immediately
// without re-evaluation. The first switch whose condition fires is
// returned for the caller to latch via Trigger.
func (s *Service) Check(ctx context.Context, walletID uuid.UUID) (*Triggered, error) {
	switches, err := s.killSwitchStore.ListActiveByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load kill switches: %w", err)
	}

	for _, ks := range switches {
		if ks.Triggered() {
			return &Triggered{KillSwitchID: ks.ID(), Kind: ks.Kind(), ObservedValue: ks.CurrentValue()}, nil
		}
	}

	for _, ks := range switches {
		fired, observed, err := s.evaluate(ctx, walletID, ks)
		if err != nil {
			return nil, fmt.Errorf("evaluate kill switch %s: %w", ks.ID(), err)
		}
		if fired {
			return &Triggered{KillSwitchID: ks.ID(), Kind: ks.Kind(), ObservedValue: observed}, nil
		}
	}
	return nil, nil
}

func (s *Service) evaluate(ctx context.Context, walletID uuid.UUID, ks *entities.KillSwitch) (bool, string, error) {
	now := time.Now().UTC()
	since := now.Add(-time.Duration(ks.WindowHours()) * time.Hour)

	threshold, err := decimal.NewFromString(ks.Threshold())
	if err != nil {
		return false, "", err
	}

	switch ks.Kind() {
	case entities.KillSwitchKindDrawdownPercent:
		return s.evaluateDrawdown(ctx, walletID, since, threshold)
	case entities.KillSwitchKindLossAmount:
		return s.evaluateLossSum(ctx, walletID, since, threshold)
	case entities.KillSwitchKindConsecutiveLosses:
		return s.evaluateConsecutiveLosses(ctx, walletID, since, threshold)
	case entities.KillSwitchKindDailyLossLimit:
		return s.evaluateLossSum(ctx, walletID, spendwindow.StartOfDay(now), threshold)
	default:
		return false, "", fmt.Errorf("unhandled kill switch kind %s", ks.Kind())
	}
}

// evaluateDrawdown reconstructs the peak balance as the current balance
// plus the signed amount of every Completed transaction in the window,
// walked backward from the most recent (§4.5 DrawdownPercent).
func (s *Service) evaluateDrawdown(ctx context.Context, walletID uuid.UUID, since time.Time, thresholdFraction decimal.Decimal) (bool, string, error) {
	wallet, err := s.walletStore.FindByID(ctx, walletID)
	if err != nil {
		return false, "", fmt.Errorf("load wallet: %w", err)
	}
	txs, err := s.txStore.List(ctx, ports.TransactionFilter{WalletID: &walletID, Since: &since}, 0, 0)
	if err != nil {
		return false, "", err
	}
	completed := filterCompleted(txs)
	sort.Slice(completed, func(i, j int) bool { return completed[i].CreatedAt().Before(completed[j].CreatedAt()) })

	current := wallet.AvailableBalance().Decimal()
	peak := current
	running := current
	// Walk backward from the most recent transaction, undoing its effect
	// to recover the balance immediately before it, tracking the maximum
	// seen along the way.
	for i := len(completed) - 1; i >= 0; i-- {
		tx := completed[i]
		if tx.IsDeposit() {
			running = running.Sub(tx.Amount().Decimal())
		} else {
			running = running.Add(tx.Amount().Decimal())
		}
		if running.GreaterThan(peak) {
			peak = running
		}
	}

	if peak.IsZero() {
		return false, "0", nil
	}
	drawdown := peak.Sub(current).Div(peak)
	fired := drawdown.GreaterThanOrEqual(thresholdFraction)
	return fired, drawdown.StringFixed(4), nil
}

func (s *Service) evaluateLossSum(ctx context.Context, walletID uuid.UUID, since time.Time, threshold decimal.Decimal) (bool, string, error) {
	txs, err := s.txStore.List(ctx, ports.TransactionFilter{WalletID: &walletID, Since: &since}, 0, 0)
	if err != nil {
		return false, "", err
	}
	total := decimal.Zero
	for _, tx := range filterCompleted(txs) {
		pnl := pnlFromMetadata(tx.Metadata())
		if pnl.IsNegative() {
			total = total.Add(pnl.Neg())
		}
	}
	fired := total.GreaterThanOrEqual(threshold)
	return fired, total.StringFixed(2), nil
}

func (s *Service) evaluateConsecutiveLosses(ctx context.Context, walletID uuid.UUID, since time.Time, threshold decimal.Decimal) (bool, string, error) {
	category := "trading"
	txs, err := s.txStore.List(ctx, ports.TransactionFilter{WalletID: &walletID, Since: &since, Category: &category}, 0, 0)
	if err != nil {
		return false, "", err
	}
	completed := filterCompleted(txs)
	sort.Slice(completed, func(i, j int) bool { return completed[i].CreatedAt().Before(completed[j].CreatedAt()) })

	streak, longest := 0, 0
	for _, tx := range completed {
		if pnlFromMetadata(tx.Metadata()).IsNegative() {
			streak++
			if streak > longest {
				longest = streak
			}
		} else {
			streak = 0
		}
	}
	fired := decimal.NewFromInt(int64(longest)).GreaterThanOrEqual(threshold)
	return fired, fmt.Sprintf("%d", longest), nil
}

func filterCompleted(txs []*entities.Transaction) []*entities.Transaction {
	out := make([]*entities.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Status() == entities.TransactionStatusCompleted {
			out = append(out, tx)
		}
	}
	return out
}

func pnlFromMetadata(metadata map[string]interface{}) decimal.Decimal {
	raw, ok := metadata["pnl"]
	if !ok {
		return decimal.Zero
	}
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

// Trigger latches killSwitchID on walletID, atomically with the wallet's
// status transition to KillSwitched (§4.5 latch semantics, §5 atomicity
// requirement). walletMutator mutates and saves the wallet entity and
// MUST be called inside the same transaction as the kill switch save.
func (s *Service) Trigger(ctx context.Context, walletID, killSwitchID uuid.UUID, observedValue string, walletMutator func(ctx context.Context) error) error {
	uow := s.uowFactory.NewSerializable()
	return uow.Execute(ctx, func(txCtx context.Context) error {
		ks, err := s.killSwitchStore.FindByID(txCtx, killSwitchID)
		if err != nil {
			return fmt.Errorf("load kill switch: %w", err)
		}
		if err := ks.Trigger(observedValue); err != nil {
			return err
		}
		if err := s.killSwitchStore.Save(txCtx, ks); err != nil {
			return fmt.Errorf("save kill switch: %w", err)
		}
		if err := walletMutator(txCtx); err != nil {
			return err
		}
		return s.publisher.Publish(txCtx, events.NewKillSwitchTriggered(walletID, killSwitchID, string(ks.Kind()), observedValue))
	})
}

// Reset is the operator-only recovery path: clears the latch and
// restores the wallet to Active.
func (s *Service) Reset(ctx context.Context, walletID, killSwitchID uuid.UUID, walletMutator func(ctx context.Context) error) error {
	uow := s.uowFactory.New()
	return uow.Execute(ctx, func(txCtx context.Context) error {
		ks, err := s.killSwitchStore.FindByID(txCtx, killSwitchID)
		if err != nil {
			return fmt.Errorf("load kill switch: %w", err)
		}
		if err := ks.Reset(); err != nil {
			return err
		}
		if err := s.killSwitchStore.Save(txCtx, ks); err != nil {
			return fmt.Errorf("save kill switch: %w", err)
		}
		if err := walletMutator(txCtx); err != nil {
			return err
		}
		return s.publisher.Publish(txCtx, events.NewKillSwitchReset(walletID, killSwitchID))
	})
}
