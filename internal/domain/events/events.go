// Package events defines domain events that represent significant
// business occurrences. Events are immutable facts about what happened in
// the past; they feed the transactional outbox and, from there, the NATS
// fan-out.
package events

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	eventID     uuid.UUID
	eventType   string
	occurredAt  time.Time
	aggregateID uuid.UUID
}

func newBaseEvent(eventType string, aggregateID uuid.UUID) BaseEvent {
	return BaseEvent{eventID: uuid.New(), eventType: eventType, occurredAt: time.Now(), aggregateID: aggregateID}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.eventID }
func (e BaseEvent) EventType() string       { return e.eventType }
func (e BaseEvent) OccurredAt() time.Time   { return e.occurredAt }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.aggregateID }

// Event type constants.
const (
	EventTypeAdmissionGranted        = "admission.granted"
	EventTypeAdmissionDenied         = "admission.denied"
	EventTypeAdmissionAwaitingApproval = "admission.awaiting_approval"
	EventTypeWalletCreated           = "wallet.created"
	EventTypeWalletCredited          = "wallet.credited"
	EventTypeKillSwitchTriggered     = "killswitch.triggered"
	EventTypeKillSwitchReset         = "killswitch.reset"
	EventTypeDeadManActionTaken      = "deadman.action_taken"
	EventTypeDeadManRecovered        = "deadman.recovered"
	EventTypeAgentSpawned            = "agent.spawned"
	EventTypeAgentLineageTerminated  = "agent.lineage_terminated"
	EventTypeCrossAgentAuthorized    = "crossagent.authorized"
	EventTypeCrossAgentApprovalRequired = "crossagent.approval_required"
)

// AdmissionGranted is raised when a candidate transaction is approved and
// debited (§4.1 step 5, Approved branch).
type AdmissionGranted struct {
	BaseEvent
	TransactionID uuid.UUID
	WalletID      uuid.UUID
	Amount        string
}

func NewAdmissionGranted(transactionID, walletID uuid.UUID, amount string) *AdmissionGranted {
	return &AdmissionGranted{BaseEvent: newBaseEvent(EventTypeAdmissionGranted, transactionID), TransactionID: transactionID, WalletID: walletID, Amount: amount}
}

// AdmissionDenied is raised for any non-approved terminal outcome
// (Rejected or KillSwitched).
type AdmissionDenied struct {
	BaseEvent
	TransactionID uuid.UUID
	WalletID      uuid.UUID
	Reason        string
}

func NewAdmissionDenied(transactionID, walletID uuid.UUID, reason string) *AdmissionDenied {
	return &AdmissionDenied{BaseEvent: newBaseEvent(EventTypeAdmissionDenied, transactionID), TransactionID: transactionID, WalletID: walletID, Reason: reason}
}

// AdmissionAwaitingApproval is raised when the rules engine requires
// operator approval before the debit executes.
type AdmissionAwaitingApproval struct {
	BaseEvent
	TransactionID uuid.UUID
	WalletID      uuid.UUID
}

func NewAdmissionAwaitingApproval(transactionID, walletID uuid.UUID) *AdmissionAwaitingApproval {
	return &AdmissionAwaitingApproval{BaseEvent: newBaseEvent(EventTypeAdmissionAwaitingApproval, transactionID), TransactionID: transactionID, WalletID: walletID}
}

// WalletCreated is raised when a new wallet is created.
type WalletCreated struct {
	BaseEvent
	AgentID uuid.UUID
}

func NewWalletCreated(walletID, agentID uuid.UUID) *WalletCreated {
	return &WalletCreated{BaseEvent: newBaseEvent(EventTypeWalletCreated, walletID), AgentID: agentID}
}

// WalletCredited is raised when funds are added to a wallet (deposit).
type WalletCredited struct {
	BaseEvent
	WalletID      uuid.UUID
	Amount        string
	TransactionID uuid.UUID
}

func NewWalletCredited(walletID uuid.UUID, amount string, transactionID uuid.UUID) *WalletCredited {
	return &WalletCredited{BaseEvent: newBaseEvent(EventTypeWalletCredited, walletID), WalletID: walletID, Amount: amount, TransactionID: transactionID}
}

// KillSwitchTriggered is raised when a kill switch latches a wallet.
type KillSwitchTriggered struct {
	BaseEvent
	WalletID     uuid.UUID
	KillSwitchID uuid.UUID
	Kind         string
	CurrentValue string
}

func NewKillSwitchTriggered(walletID, killSwitchID uuid.UUID, kind, currentValue string) *KillSwitchTriggered {
	return &KillSwitchTriggered{BaseEvent: newBaseEvent(EventTypeKillSwitchTriggered, walletID), WalletID: walletID, KillSwitchID: killSwitchID, Kind: kind, CurrentValue: currentValue}
}

// KillSwitchReset is raised on operator reset of a latched kill switch.
type KillSwitchReset struct {
	BaseEvent
	WalletID     uuid.UUID
	KillSwitchID uuid.UUID
}

func NewKillSwitchReset(walletID, killSwitchID uuid.UUID) *KillSwitchReset {
	return &KillSwitchReset{BaseEvent: newBaseEvent(EventTypeKillSwitchReset, walletID), WalletID: walletID, KillSwitchID: killSwitchID}
}

// DeadManActionTaken is raised whenever the dead-man switch's action
// ladder fires, including cascaded descendants.
type DeadManActionTaken struct {
	BaseEvent
	AgentID     uuid.UUID
	TriggerType string
	Action      string
	CascadedTo  []uuid.UUID
}

func NewDeadManActionTaken(agentID uuid.UUID, triggerType, action string, cascadedTo []uuid.UUID) *DeadManActionTaken {
	return &DeadManActionTaken{BaseEvent: newBaseEvent(EventTypeDeadManActionTaken, agentID), AgentID: agentID, TriggerType: triggerType, Action: action, CascadedTo: cascadedTo}
}

// DeadManRecovered is raised when an operator unfreezes an agent.
type DeadManRecovered struct {
	BaseEvent
	AgentID uuid.UUID
}

func NewDeadManRecovered(agentID uuid.UUID) *DeadManRecovered {
	return &DeadManRecovered{BaseEvent: newBaseEvent(EventTypeDeadManRecovered, agentID), AgentID: agentID}
}

// AgentSpawned is raised on a successful spawn.
type AgentSpawned struct {
	BaseEvent
	ParentID uuid.UUID
	ChildID  uuid.UUID
	Depth    int
}

func NewAgentSpawned(parentID, childID uuid.UUID, depth int) *AgentSpawned {
	return &AgentSpawned{BaseEvent: newBaseEvent(EventTypeAgentSpawned, childID), ParentID: parentID, ChildID: childID, Depth: depth}
}

// AgentLineageTerminated is raised once per lineage termination, for the
// agent whose subtree was torn down (descendants get no event of their own).
type AgentLineageTerminated struct {
	BaseEvent
	AgentID uuid.UUID
}

func NewAgentLineageTerminated(agentID uuid.UUID) *AgentLineageTerminated {
	return &AgentLineageTerminated{BaseEvent: newBaseEvent(EventTypeAgentLineageTerminated, agentID), AgentID: agentID}
}

// CrossAgentAuthorized is raised when a cross-agent transaction is
// authorized (auto or human-approved).
type CrossAgentAuthorized struct {
	BaseEvent
	SourceAgentID uuid.UUID
	TargetAgentID uuid.UUID
	Amount        string
	Method        string
}

func NewCrossAgentAuthorized(transactionID, sourceAgentID, targetAgentID uuid.UUID, amount, method string) *CrossAgentAuthorized {
	return &CrossAgentAuthorized{BaseEvent: newBaseEvent(EventTypeCrossAgentAuthorized, transactionID), SourceAgentID: sourceAgentID, TargetAgentID: targetAgentID, Amount: amount, Method: method}
}

// CrossAgentApprovalRequired is raised when a cross-agent transaction is
// escalated or has no resolvable policy.
type CrossAgentApprovalRequired struct {
	BaseEvent
	SourceAgentID uuid.UUID
	TargetAgentID uuid.UUID
	Amount        string
}

func NewCrossAgentApprovalRequired(transactionID, sourceAgentID, targetAgentID uuid.UUID, amount string) *CrossAgentApprovalRequired {
	return &CrossAgentApprovalRequired{BaseEvent: newBaseEvent(EventTypeCrossAgentApprovalRequired, transactionID), SourceAgentID: sourceAgentID, TargetAgentID: targetAgentID, Amount: amount}
}
