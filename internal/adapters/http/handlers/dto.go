package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentwallet/core/internal/domain/entities"
)

// Response DTOs translate domain entities to their wire representation.
// Unlike a Command/Query/DTO use-case layer, AgentWallet's application
// services operate on entities directly (admission.Controller,
// killswitch.Service, ...), so the handlers package owns this one
// translation step instead of a separate dtos package.

type OwnerResponse struct {
	ID        uuid.UUID `json:"id"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toOwnerResponse(o *entities.Owner) OwnerResponse {
	return OwnerResponse{ID: o.ID(), Contact: o.Contact(), CreatedAt: o.CreatedAt(), UpdatedAt: o.UpdatedAt()}
}

type AgentResponse struct {
	ID        uuid.UUID         `json:"id"`
	OwnerID   uuid.UUID         `json:"ownerId"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func toAgentResponse(a *entities.Agent) AgentResponse {
	return AgentResponse{
		ID: a.ID(), OwnerID: a.OwnerID(), Status: string(a.Status()),
		Metadata: a.Metadata(), CreatedAt: a.CreatedAt(), UpdatedAt: a.UpdatedAt(),
	}
}

type WalletResponse struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agentId"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Available string    `json:"available"`
	Held      string    `json:"held"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toWalletResponse(w *entities.Wallet) WalletResponse {
	return WalletResponse{
		ID: w.ID(), AgentID: w.AgentID(), Currency: w.Currency().String(), Status: string(w.Status()),
		Available: w.AvailableBalance().String(), Held: w.HeldBalance().String(), Version: w.BalanceVersion(),
		CreatedAt: w.CreatedAt(), UpdatedAt: w.UpdatedAt(),
	}
}

type SpendRuleResponse struct {
	ID        uuid.UUID            `json:"id"`
	WalletID  uuid.UUID            `json:"walletId"`
	Kind      string               `json:"kind"`
	Params    entities.RuleParams  `json:"params"`
	Active    bool                 `json:"active"`
	Priority  int                  `json:"priority"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func toSpendRuleResponse(r *entities.SpendRule) SpendRuleResponse {
	return SpendRuleResponse{
		ID: r.ID(), WalletID: r.WalletID(), Kind: string(r.Kind()), Params: r.Params(),
		Active: r.Active(), Priority: r.Priority(), CreatedAt: r.CreatedAt(), UpdatedAt: r.UpdatedAt(),
	}
}

type TransactionResponse struct {
	ID               uuid.UUID                      `json:"id"`
	WalletID         uuid.UUID                      `json:"walletId"`
	Amount           string                         `json:"amount"`
	RecipientID      string                         `json:"recipientId"`
	RecipientType    string                         `json:"recipientType"`
	Category         string                         `json:"category"`
	Status           string                         `json:"status"`
	RuleCheckResults []entities.RuleCheckResult      `json:"ruleCheckResults,omitempty"`
	Metadata         map[string]interface{}         `json:"metadata,omitempty"`
	FailureReason    string                         `json:"failureReason,omitempty"`
	CreatedAt        time.Time                      `json:"createdAt"`
	CompletedAt      *time.Time                     `json:"completedAt,omitempty"`
}

func toTransactionResponse(t *entities.Transaction) TransactionResponse {
	return TransactionResponse{
		ID: t.ID(), WalletID: t.WalletID(), Amount: t.Amount().String(), RecipientID: t.RecipientID(),
		RecipientType: string(t.RecipientType()), Category: t.Category(), Status: string(t.Status()),
		RuleCheckResults: t.RuleCheckResults(), Metadata: t.Metadata(), FailureReason: t.FailureReason(),
		CreatedAt: t.CreatedAt(), CompletedAt: t.CompletedAt(),
	}
}

type KillSwitchResponse struct {
	ID           uuid.UUID  `json:"id"`
	WalletID     uuid.UUID  `json:"walletId"`
	Kind         string     `json:"kind"`
	Threshold    string     `json:"threshold"`
	WindowHours  int        `json:"windowHours"`
	Active       bool       `json:"active"`
	Triggered    bool       `json:"triggered"`
	TriggeredAt  *time.Time `json:"triggeredAt,omitempty"`
	ResetAt      *time.Time `json:"resetAt,omitempty"`
	CurrentValue string     `json:"currentValue,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func toKillSwitchResponse(k *entities.KillSwitch) KillSwitchResponse {
	return KillSwitchResponse{
		ID: k.ID(), WalletID: k.WalletID(), Kind: string(k.Kind()), Threshold: k.Threshold(),
		WindowHours: k.WindowHours(), Active: k.Active(), Triggered: k.Triggered(),
		TriggeredAt: k.TriggeredAt(), ResetAt: k.ResetAt(), CurrentValue: k.CurrentValue(),
		CreatedAt: k.CreatedAt(), UpdatedAt: k.UpdatedAt(),
	}
}

type DeadManConfigResponse struct {
	AgentID                  uuid.UUID `json:"agentId"`
	HeartbeatIntervalSeconds int       `json:"heartbeatIntervalSeconds"`
	MissedHeartbeatThreshold int       `json:"missedHeartbeatThreshold"`
	AnomalyWindowMinutes     int       `json:"anomalyWindowMinutes"`
	AnomalySpendMultiplier   float64   `json:"anomalySpendMultiplier"`
	AnomalyTxCountMultiplier float64   `json:"anomalyTxCountMultiplier"`
	MaxTxPerMinute           int       `json:"maxTxPerMinute"`
	MaxUniqueVendorsPerHour  int       `json:"maxUniqueVendorsPerHour"`
	OnAnomaly                string    `json:"onAnomaly"`
	OnMissedHeartbeat        string    `json:"onMissedHeartbeat"`
	OnManualTrigger          string    `json:"onManualTrigger"`
	CascadeToChildren        bool      `json:"cascadeToChildren"`
	RecoveryRequiresHuman    bool      `json:"recoveryRequiresHuman"`
}

func toDeadManConfigResponse(c *entities.DeadManSwitchConfig) DeadManConfigResponse {
	return DeadManConfigResponse{
		AgentID: c.AgentID(), HeartbeatIntervalSeconds: c.HeartbeatIntervalSeconds(),
		MissedHeartbeatThreshold: c.MissedHeartbeatThreshold(), AnomalyWindowMinutes: c.AnomalyWindowMinutes(),
		AnomalySpendMultiplier: c.AnomalySpendMultiplier(), AnomalyTxCountMultiplier: c.AnomalyTxCountMultiplier(),
		MaxTxPerMinute: c.MaxTxPerMinute(), MaxUniqueVendorsPerHour: c.MaxUniqueVendorsPerHour(),
		OnAnomaly: string(c.OnAnomaly()), OnMissedHeartbeat: string(c.OnMissedHeartbeat()),
		OnManualTrigger: string(c.OnManualTrigger()), CascadeToChildren: c.CascadeToChildren(),
		RecoveryRequiresHuman: c.RecoveryRequiresHuman(),
	}
}

type DeadManEventResponse struct {
	ID          uuid.UUID              `json:"id"`
	AgentID     uuid.UUID              `json:"agentId"`
	TriggerType string                 `json:"triggerType"`
	ActionTaken string                 `json:"actionTaken"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CascadedTo  []uuid.UUID            `json:"cascadedTo,omitempty"`
	Resolved    bool                   `json:"resolved"`
	ResolvedAt  *time.Time             `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

func toDeadManEventResponse(e *entities.DeadManSwitchEvent) DeadManEventResponse {
	return DeadManEventResponse{
		ID: e.ID(), AgentID: e.AgentID(), TriggerType: string(e.TriggerType()), ActionTaken: string(e.ActionTaken()),
		Details: e.Details(), CascadedTo: e.CascadedTo(), Resolved: e.Resolved(), ResolvedAt: e.ResolvedAt(),
		CreatedAt: e.CreatedAt(),
	}
}

type LineageResponse struct {
	AgentID     uuid.UUID           `json:"agentId"`
	ParentID    *uuid.UUID          `json:"parentId,omitempty"`
	RootID      uuid.UUID           `json:"rootId"`
	Depth       int                 `json:"depth"`
	ChildrenIDs []uuid.UUID         `json:"childrenIds,omitempty"`
	Status      string              `json:"status"`
	SpawnPolicy entities.SpawnPolicy `json:"spawnPolicy"`
}

func toLineageResponse(l *entities.AgentLineage) LineageResponse {
	return LineageResponse{
		AgentID: l.AgentID(), ParentID: l.ParentID(), RootID: l.RootID(), Depth: l.Depth(),
		ChildrenIDs: l.ChildrenIDs(), Status: string(l.Status()), SpawnPolicy: l.SpawnPolicy(),
	}
}

type SpawnEventResponse struct {
	ID              uuid.UUID            `json:"id"`
	ParentID        uuid.UUID            `json:"parentId"`
	ChildID         uuid.UUID            `json:"childId"`
	Depth           int                  `json:"depth"`
	InheritedPolicy entities.SpawnPolicy `json:"inheritedPolicy"`
	Authorized      bool                 `json:"authorized"`
	CreatedAt       time.Time            `json:"createdAt"`
}

func toSpawnEventResponse(e *entities.SpawnEvent) SpawnEventResponse {
	return SpawnEventResponse{
		ID: e.ID(), ParentID: e.ParentID(), ChildID: e.ChildID(), Depth: e.Depth(),
		InheritedPolicy: e.InheritedPolicy(), Authorized: e.Authorized(), CreatedAt: e.CreatedAt(),
	}
}

type CrossAgentPolicyResponse struct {
	ID                        uuid.UUID              `json:"id"`
	OwnerID                   uuid.UUID              `json:"ownerId"`
	SourceAgentID             uuid.UUID              `json:"sourceAgentId"`
	TargetAgentID             *uuid.UUID             `json:"targetAgentId,omitempty"`
	TargetAgentGroup          *uuid.UUID             `json:"targetAgentGroup,omitempty"`
	MaxPerTransaction         string                 `json:"maxPerTransaction"`
	MaxDailyToTarget          string                 `json:"maxDailyToTarget"`
	MaxDailyAllAgents         string                 `json:"maxDailyAllAgents"`
	AllowedPaymentTypes       []string               `json:"allowedPaymentTypes,omitempty"`
	RequireHumanApprovalAbove string                 `json:"requireHumanApprovalAbove"`
	RequireMutualPolicy       bool                   `json:"requireMutualPolicy"`
	SettlementMode            string                 `json:"settlementMode"`
	MinCounterpartyTrustScore float64                `json:"minCounterpartyTrustScore"`
	Enabled                   bool                   `json:"enabled"`
	CreatedAt                 time.Time              `json:"createdAt"`
	UpdatedAt                 time.Time              `json:"updatedAt"`
}

func toCrossAgentPolicyResponse(p *entities.CrossAgentPolicy) CrossAgentPolicyResponse {
	return CrossAgentPolicyResponse{
		ID: p.ID(), OwnerID: p.OwnerID(), SourceAgentID: p.SourceAgentID(),
		TargetAgentID: p.TargetAgentID(), TargetAgentGroup: p.TargetAgentGroup(),
		MaxPerTransaction: p.MaxPerTransaction(), MaxDailyToTarget: p.MaxDailyToTarget(),
		MaxDailyAllAgents: p.MaxDailyAllAgents(), AllowedPaymentTypes: p.AllowedPaymentTypes(),
		RequireHumanApprovalAbove: p.RequireHumanApprovalAbove(), RequireMutualPolicy: p.RequireMutualPolicy(),
		SettlementMode: string(p.SettlementMode()), MinCounterpartyTrustScore: p.MinCounterpartyTrustScore(),
		Enabled: p.Enabled(), CreatedAt: p.CreatedAt(), UpdatedAt: p.UpdatedAt(),
	}
}

type CrossAgentTransactionResponse struct {
	ID                  uuid.UUID  `json:"id"`
	SourceAgentID       uuid.UUID  `json:"sourceAgentId"`
	TargetAgentID       uuid.UUID  `json:"targetAgentId"`
	Amount              string     `json:"amount"`
	PaymentType         string     `json:"paymentType"`
	Authorized          bool       `json:"authorized"`
	AuthorizationMethod string     `json:"authorizationMethod,omitempty"`
	SettlementStatus    string     `json:"settlementStatus"`
	RequiresHuman       bool       `json:"requiresHuman"`
	PolicyID            *uuid.UUID `json:"policyId,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func toCrossAgentTransactionResponse(t *entities.CrossAgentTransaction) CrossAgentTransactionResponse {
	return CrossAgentTransactionResponse{
		ID: t.ID(), SourceAgentID: t.SourceAgentID(), TargetAgentID: t.TargetAgentID(),
		Amount: t.Amount(), PaymentType: t.PaymentType(), Authorized: t.Authorized(),
		AuthorizationMethod: string(t.AuthorizationMethod()), SettlementStatus: string(t.SettlementStatus()),
		RequiresHuman: t.RequiresHuman(), PolicyID: t.PolicyID(), CreatedAt: t.CreatedAt(),
	}
}

type AgentGroupResponse struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   uuid.UUID   `json:"ownerId"`
	Name      string      `json:"name"`
	AgentIDs  []uuid.UUID `json:"agentIds,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toAgentGroupResponse(g *entities.AgentGroup) AgentGroupResponse {
	return AgentGroupResponse{
		ID: g.ID(), OwnerID: g.OwnerID(), Name: g.Name(), AgentIDs: g.AgentIDs(),
		CreatedAt: g.CreatedAt(), UpdatedAt: g.UpdatedAt(),
	}
}

type AuditEntryResponse struct {
	ID         uuid.UUID              `json:"id"`
	AgentID    *uuid.UUID             `json:"agentId,omitempty"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resourceId"`
	Decision   string                 `json:"decision"`
	Reasoning  map[string]interface{} `json:"reasoning,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func toAuditEntryResponse(e *entities.AuditLogEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID: e.ID(), AgentID: e.AgentID(), Action: e.Action(), Resource: e.Resource(),
		ResourceID: e.ResourceID(), Decision: string(e.Decision()), Reasoning: e.Reasoning(),
		Timestamp: e.Timestamp(),
	}
}
