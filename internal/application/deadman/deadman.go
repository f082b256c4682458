// Package deadman implements the Dead-Man Switch of §4.6: a per-agent
// background liveness/velocity/anomaly monitor plus a synchronous
// pre-transaction gate. In-process state (recent transaction timestamps
// and vendor history) is rebuildable from Store history, so a restart
// only costs a temporary, documented under-enforcement window (§5).
package deadman

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/agentwallet/core/internal/domain/events"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// throttleFactor is the dead-man throttle action's fixed multiplier
// applied to an active DailyLimit rule's limit (§4.6 action ladder).
const throttleFactor = "0.1"

// recentWindow bounds how long a transaction timestamp/vendor observation
// is retained for the velocity and vendor-diversity checks (§4.6).
const recentWindow = time.Hour

// activity is one recorded transaction observation used by the velocity
// and vendor-diversity checks.
type activity struct {
	at     time.Time
	vendor string
}

// Service evaluates and enforces the Dead-Man Switch.
type Service struct {
	configStore  ports.DeadManStore
	agentStore   ports.AgentStore
	lineageStore ports.LineageStore
	ruleStore    ports.RuleStore
	walletStore  ports.WalletStore
	txStore      ports.TransactionStore
	cache        ports.DeadManCache
	publisher    ports.EventPublisher
	uowFactory   ports.UnitOfWorkFactory

	mu     sync.Mutex
	recent map[uuid.UUID][]activity
}

// New constructs a Dead-Man Switch Service.
func New(
	configStore ports.DeadManStore,
	agentStore ports.AgentStore,
	lineageStore ports.LineageStore,
	ruleStore ports.RuleStore,
	walletStore ports.WalletStore,
	txStore ports.TransactionStore,
	cache ports.DeadManCache,
	publisher ports.EventPublisher,
	uowFactory ports.UnitOfWorkFactory,
) *Service {
	return &Service{
		configStore: configStore, agentStore: agentStore, lineageStore: lineageStore,
		ruleStore: ruleStore, walletStore: walletStore, txStore: txStore,
		cache: cache, publisher: publisher, uowFactory: uowFactory,
		recent: make(map[uuid.UUID][]activity),
	}
}

// HeartbeatResult is the response to an agent's heartbeat call.
type HeartbeatResult struct {
	CeaseTransactions bool
	NextDeadline      time.Time
}

// Heartbeat refreshes agentID's last-seen timestamp and reports whether
// the agent is currently frozen (§4.6 heartbeat endpoint).
func (s *Service) Heartbeat(ctx context.Context, agentID uuid.UUID) (HeartbeatResult, error) {
	frozen, err := s.cache.IsFrozen(ctx, agentID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	if frozen {
		return HeartbeatResult{CeaseTransactions: true}, nil
	}

	now := time.Now()
	if err := s.cache.SetHeartbeat(ctx, agentID, now); err != nil {
		return HeartbeatResult{}, err
	}
	if err := s.configStore.SaveHeartbeat(ctx, agentID, now); err != nil {
		return HeartbeatResult{}, err
	}

	cfg, err := s.configStore.FindConfig(ctx, agentID)
	if err != nil {
		return HeartbeatResult{NextDeadline: now.Add(time.Minute)}, nil //nolint:nilerr // no config configured yet
	}
	return HeartbeatResult{NextDeadline: cfg.HeartbeatDeadline(now)}, nil
}

// Block reports that the gate rejected a candidate transaction.
type Block struct {
	TriggerType entities.DeadManTriggerType
	Action      entities.DeadManAction
}

// Evaluate is the synchronous pre-transaction gate (§4.6 steps 1-5).
// amount and vendor describe the candidate transaction; vendor may be
// empty when the candidate has no recipient identifier.
func (s *Service) Evaluate(ctx context.Context, agentID uuid.UUID, amount valueobjects.Money, vendor string) (*Block, error) {
	frozen, err := s.cache.IsFrozen(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if frozen {
		return &Block{TriggerType: entities.DeadManTriggerMissedHeartbeat, Action: entities.DeadManActionFreeze}, nil
	}

	cfg, err := s.configStore.FindConfig(ctx, agentID)
	if err != nil {
		// No dead-man config configured for this agent: nothing to gate.
		return nil, nil //nolint:nilerr
	}

	now := time.Now()
	s.prune(agentID, now)

	if s.velocityCount(agentID, now) >= cfg.MaxTxPerMinute() {
		if err := s.trigger(ctx, cfg, entities.DeadManTriggerVelocity, cfg.OnAnomaly()); err != nil {
			return nil, err
		}
		return &Block{TriggerType: entities.DeadManTriggerVelocity, Action: cfg.OnAnomaly()}, nil
	}

	if vendor != "" {
		if s.uniqueVendorCount(agentID, vendor) > cfg.MaxUniqueVendorsPerHour() {
			if err := s.trigger(ctx, cfg, entities.DeadManTriggerVendorDiversity, cfg.OnAnomaly()); err != nil {
				return nil, err
			}
			return &Block{TriggerType: entities.DeadManTriggerVendorDiversity, Action: cfg.OnAnomaly()}, nil
		}
	}

	anomalous, err := s.spendAnomalyFired(ctx, agentID, amount, cfg, now)
	if err != nil {
		return nil, err
	}
	if anomalous {
		blocking := cfg.OnAnomaly() == entities.DeadManActionFreeze || cfg.OnAnomaly() == entities.DeadManActionTerminate
		if err := s.trigger(ctx, cfg, entities.DeadManTriggerSpendAnomaly, cfg.OnAnomaly()); err != nil {
			return nil, err
		}
		if blocking {
			return &Block{TriggerType: entities.DeadManTriggerSpendAnomaly, Action: cfg.OnAnomaly()}, nil
		}
	}

	s.record(agentID, now, vendor)
	return nil, nil
}

func (s *Service) prune(agentID uuid.UUID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-recentWindow)
	kept := s.recent[agentID][:0]
	for _, a := range s.recent[agentID] {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	s.recent[agentID] = kept
}

func (s *Service) record(agentID uuid.UUID, at time.Time, vendor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[agentID] = append(s.recent[agentID], activity{at: at, vendor: vendor})
}

func (s *Service) velocityCount(agentID uuid.UUID, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-time.Minute)
	count := 0
	for _, a := range s.recent[agentID] {
		if a.at.After(cutoff) {
			count++
		}
	}
	return count
}

func (s *Service) uniqueVendorCount(agentID uuid.UUID, candidateVendor string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{candidateVendor: {}}
	for _, a := range s.recent[agentID] {
		if a.vendor != "" {
			seen[a.vendor] = struct{}{}
		}
	}
	return len(seen)
}

// spendAnomalyFired compares current-window spend (including the
// candidate amount) against the mean of up to 7 preceding equal-width
// windows (§4.6 step 4).
func (s *Service) spendAnomalyFired(ctx context.Context, agentID uuid.UUID, amount valueobjects.Money, cfg *entities.DeadManSwitchConfig, now time.Time) (bool, error) {
	windowLen := time.Duration(cfg.AnomalyWindowMinutes()) * time.Minute
	wallets, err := s.walletStore.ListByAgent(ctx, agentID)
	if err != nil {
		return false, err
	}

	current, err := windowSpend(ctx, s.txStore, wallets, now.Add(-windowLen), now)
	if err != nil {
		return false, err
	}
	current = current.Add(amount.Decimal())

	var baseline []decimal.Decimal
	for i := 1; i <= 7; i++ {
		end := now.Add(-windowLen * time.Duration(i))
		start := end.Add(-windowLen)
		spend, err := windowSpend(ctx, s.txStore, wallets, start, end)
		if err != nil {
			return false, err
		}
		if spend.IsPositive() {
			baseline = append(baseline, spend)
		}
	}
	if len(baseline) == 0 {
		return false, nil
	}

	sum := decimal.Zero
	for _, b := range baseline {
		sum = sum.Add(b)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(baseline))))
	if mean.IsZero() {
		return false, nil
	}
	return current.GreaterThan(mean.Mul(decimal.NewFromFloat(cfg.AnomalySpendMultiplier()))), nil
}

// windowSpend sums Completed, non-deposit transaction amounts across
// wallets whose CreatedAt falls in [start, end), matching the equal-width
// bucketing §4.6 step 4 requires for both the current window and each of
// the 7 preceding baseline windows.
func windowSpend(ctx context.Context, txStore ports.TransactionStore, wallets []*entities.Wallet, start, end time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, w := range wallets {
		walletID := w.ID()
		txs, err := txStore.List(ctx, ports.TransactionFilter{
			WalletID: &walletID, Since: &start, Until: &end, ExcludeDeposit: true,
		}, 0, 0)
		if err != nil {
			return decimal.Zero, err
		}
		for _, tx := range txs {
			if tx.Status() != entities.TransactionStatusCompleted {
				continue
			}
			// TransactionFilter.Until is inclusive; end belongs to the next bucket.
			if !tx.CreatedAt().Before(end) {
				continue
			}
			total = total.Add(tx.Amount().Decimal())
		}
	}
	return total, nil
}

// trigger records the dead-man event and applies its action ladder.
func (s *Service) trigger(ctx context.Context, cfg *entities.DeadManSwitchConfig, triggerType entities.DeadManTriggerType, action entities.DeadManAction) error {
	return s.applyAction(ctx, cfg, triggerType, action)
}

// Sweep runs the background liveness check (§4.6): for each agent with a
// dead-man config, a missed heartbeat fires onMissedHeartbeat. It
// snapshots the agent set before processing so it never holds a lock
// across I/O (§5).
func (s *Service) Sweep(ctx context.Context) error {
	agentIDs, err := s.configStore.ListConfiguredAgents(ctx)
	if err != nil {
		return fmt.Errorf("list configured agents: %w", err)
	}

	now := time.Now()
	for _, agentID := range agentIDs {
		frozen, err := s.cache.IsFrozen(ctx, agentID)
		if err != nil || frozen {
			continue
		}
		last, ok, err := s.cache.GetHeartbeat(ctx, agentID)
		if err != nil {
			continue
		}
		if !ok {
			if last, ok, err = lastHeartbeatFromStore(ctx, s.configStore, agentID); err != nil || !ok {
				continue
			}
		}

		cfg, err := s.configStore.FindConfig(ctx, agentID)
		if err != nil {
			continue
		}
		if now.After(cfg.HeartbeatDeadline(last)) {
			if err := s.applyAction(ctx, cfg, entities.DeadManTriggerMissedHeartbeat, cfg.OnMissedHeartbeat()); err != nil {
				return err
			}
		}
	}
	return nil
}

func lastHeartbeatFromStore(ctx context.Context, store ports.DeadManStore, agentID uuid.UUID) (time.Time, bool, error) {
	at, err := store.LastHeartbeat(ctx, agentID)
	if err != nil {
		return time.Time{}, false, err
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}

// ManualTrigger forces onManualTrigger for agentID (owner-initiated).
func (s *Service) ManualTrigger(ctx context.Context, agentID uuid.UUID) error {
	cfg, err := s.configStore.FindConfig(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load dead-man config: %w", err)
	}
	return s.applyAction(ctx, cfg, entities.DeadManTriggerManual, cfg.OnManualTrigger())
}

// applyAction implements the action ladder of §4.6: alert is a no-op
// event; throttle tightens DailyLimit rules; freeze/terminate cascade to
// descendants when configured.
func (s *Service) applyAction(ctx context.Context, cfg *entities.DeadManSwitchConfig, triggerType entities.DeadManTriggerType, action entities.DeadManAction) error {
	agentID := cfg.AgentID()
	var cascadedTo []uuid.UUID

	switch action {
	case entities.DeadManActionAlert:
		// No state change; the event itself is the notification.

	case entities.DeadManActionThrottle:
		if err := s.throttleAgent(ctx, agentID); err != nil {
			return err
		}

	case entities.DeadManActionFreeze:
		if err := s.cache.Freeze(ctx, agentID); err != nil {
			return err
		}
		if err := s.freezeOrTerminateAgent(ctx, agentID, false); err != nil {
			return err
		}
		if cfg.CascadeToChildren() {
			descendants, err := s.descendantsOf(ctx, agentID)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				if err := s.cache.Freeze(ctx, d); err != nil {
					return err
				}
				if err := s.freezeOrTerminateAgent(ctx, d, false); err != nil {
					return err
				}
			}
			cascadedTo = descendants
		}

	case entities.DeadManActionTerminate:
		if err := s.cache.Freeze(ctx, agentID); err != nil {
			return err
		}
		if err := s.freezeOrTerminateAgent(ctx, agentID, true); err != nil {
			return err
		}
		if cfg.CascadeToChildren() {
			descendants, err := s.descendantsOf(ctx, agentID)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				if err := s.cache.Freeze(ctx, d); err != nil {
					return err
				}
				if err := s.freezeOrTerminateAgent(ctx, d, true); err != nil {
					return err
				}
			}
			cascadedTo = descendants
		}

	default:
		return fmt.Errorf("unhandled dead-man action %s", action)
	}

	event := entities.NewDeadManSwitchEvent(agentID, triggerType, action, nil, cascadedTo)
	if err := s.configStore.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("save dead-man event: %w", err)
	}
	return s.publisher.Publish(ctx, events.NewDeadManActionTaken(agentID, string(triggerType), string(action), cascadedTo))
}

func (s *Service) throttleAgent(ctx context.Context, agentID uuid.UUID) error {
	wallets, err := s.walletStore.ListByAgent(ctx, agentID)
	if err != nil {
		return err
	}
	factor, _ := decimal.NewFromString(throttleFactor)
	for _, w := range wallets {
		rules, err := s.ruleStore.ListActiveByWallet(ctx, w.ID())
		if err != nil {
			return err
		}
		for _, rule := range rules {
			if rule.Kind() != entities.RuleKindDailyLimit {
				continue
			}
			limit, err := decimal.NewFromString(rule.Params().Limit)
			if err != nil {
				continue
			}
			rule.Throttle(limit.Mul(factor).StringFixed(2), throttleFactor)
			if err := s.ruleStore.Save(ctx, rule); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) freezeOrTerminateAgent(ctx context.Context, agentID uuid.UUID, terminate bool) error {
	uow := s.uowFactory.New()
	return uow.Execute(ctx, func(txCtx context.Context) error {
		agent, err := s.agentStore.FindByID(txCtx, agentID)
		if err != nil {
			return fmt.Errorf("load agent: %w", err)
		}
		if terminate {
			if err := agent.Terminate(); err != nil {
				return err
			}
		} else if err := agent.Freeze(); err != nil {
			return err
		}
		if err := s.agentStore.Save(txCtx, agent); err != nil {
			return fmt.Errorf("save agent: %w", err)
		}

		lineage, err := s.lineageStore.FindByAgentID(txCtx, agentID)
		if err != nil {
			return nil // an agent with no lineage row has nothing further to latch
		}
		if terminate {
			lineage.Terminate()
		} else {
			lineage.Freeze()
		}
		return s.lineageStore.Save(txCtx, lineage)
	})
}

// descendantsOf returns every agent id reachable from agentID's
// lineage's childrenIDs, for the cascade-to-children action.
func (s *Service) descendantsOf(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	root, err := s.lineageStore.FindByAgentID(ctx, agentID)
	if err != nil {
		return nil, nil
	}
	nodes, err := s.lineageStore.ListByRoot(ctx, root.RootID())
	if err != nil {
		return nil, fmt.Errorf("list lineage tree: %w", err)
	}
	byID := make(map[uuid.UUID]*entities.AgentLineage, len(nodes))
	for _, n := range nodes {
		byID[n.AgentID()] = n
	}

	var descendants []uuid.UUID
	queue := append([]uuid.UUID(nil), root.ChildrenIDs()...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		descendants = append(descendants, next)
		if node, ok := byID[next]; ok {
			queue = append(queue, node.ChildrenIDs()...)
		}
	}
	return descendants, nil
}

// Recover is the operator-only unfreeze path (§4.6). Terminated agents
// are never recoverable.
func (s *Service) Recover(ctx context.Context, agentID uuid.UUID) error {
	uow := s.uowFactory.New()
	err := uow.Execute(ctx, func(txCtx context.Context) error {
		agent, err := s.agentStore.FindByID(txCtx, agentID)
		if err != nil {
			return fmt.Errorf("load agent: %w", err)
		}
		if agent.Status().IsTerminal() {
			return fmt.Errorf("agent %s is terminated and cannot be recovered", agentID)
		}
		if err := agent.Activate(); err != nil {
			return err
		}
		return s.agentStore.Save(txCtx, agent)
	})
	if err != nil {
		return err
	}
	if err := s.cache.Unfreeze(ctx, agentID); err != nil {
		return err
	}

	event, err := s.configStore.FindUnresolvedEvent(ctx, agentID)
	if err == nil && event != nil {
		event.Resolve()
		if err := s.configStore.SaveEvent(ctx, event); err != nil {
			return err
		}
	}
	return s.publisher.Publish(ctx, events.NewDeadManRecovered(agentID))
}
