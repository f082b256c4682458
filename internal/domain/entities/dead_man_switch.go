package entities

import (
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// DeadManAction is the closed action ladder a dead-man trigger can invoke.
// Strictness is Alert < Throttle < Freeze < Terminate (§4.6).
type DeadManAction string

const (
	DeadManActionAlert     DeadManAction = "alert"
	DeadManActionThrottle  DeadManAction = "throttle"
	DeadManActionFreeze    DeadManAction = "freeze"
	DeadManActionTerminate DeadManAction = "terminate"
)

// Severity returns the action's rank in the ladder, for comparing two
// actions or picking the stricter of two candidate responses.
func (a DeadManAction) Severity() int {
	switch a {
	case DeadManActionAlert:
		return 0
	case DeadManActionThrottle:
		return 1
	case DeadManActionFreeze:
		return 2
	case DeadManActionTerminate:
		return 3
	default:
		return -1
	}
}

// IsValid reports whether a is one of the four ladder rungs.
func (a DeadManAction) IsValid() bool {
	return a.Severity() >= 0
}

// DeadManTriggerType identifies what kind of condition fired.
type DeadManTriggerType string

const (
	DeadManTriggerVelocity        DeadManTriggerType = "velocity"
	DeadManTriggerVendorDiversity DeadManTriggerType = "vendor_diversity"
	DeadManTriggerSpendAnomaly    DeadManTriggerType = "spend_anomaly"
	DeadManTriggerMissedHeartbeat DeadManTriggerType = "missed_heartbeat"
	DeadManTriggerManual          DeadManTriggerType = "manual"
)

// DeadManSwitchConfig holds one agent's liveness/velocity/anomaly
// parameters and its action ladder (§4.6).
type DeadManSwitchConfig struct {
	agentID uuid.UUID

	heartbeatIntervalSeconds int
	missedHeartbeatThreshold int // multiplier; a miss fires past interval*threshold

	anomalyWindowMinutes    int
	anomalySpendMultiplier  float64
	anomalyTxCountMultiplier float64

	maxTxPerMinute        int
	maxUniqueVendorsPerHour int

	onAnomaly         DeadManAction
	onMissedHeartbeat DeadManAction
	onManualTrigger   DeadManAction

	cascadeToChildren     bool
	recoveryRequiresHuman bool

	createdAt time.Time
	updatedAt time.Time
}

// NewDeadManSwitchConfig validates and constructs a config for agentID.
func NewDeadManSwitchConfig(
	agentID uuid.UUID,
	heartbeatIntervalSeconds, missedHeartbeatThreshold int,
	anomalyWindowMinutes int,
	anomalySpendMultiplier, anomalyTxCountMultiplier float64,
	maxTxPerMinute, maxUniqueVendorsPerHour int,
	onAnomaly, onMissedHeartbeat, onManualTrigger DeadManAction,
	cascadeToChildren, recoveryRequiresHuman bool,
) (*DeadManSwitchConfig, error) {
	var errs errors.ValidationErrors
	if heartbeatIntervalSeconds <= 0 {
		errs.Add("heartbeatIntervalSeconds", "must be positive")
	}
	if missedHeartbeatThreshold <= 0 {
		errs.Add("missedHeartbeatThreshold", "must be positive")
	}
	if anomalyWindowMinutes <= 0 {
		errs.Add("anomalyWindowMinutes", "must be positive")
	}
	if maxTxPerMinute <= 0 {
		errs.Add("maxTxPerMinute", "must be positive")
	}
	if maxUniqueVendorsPerHour <= 0 {
		errs.Add("maxUniqueVendorsPerHour", "must be positive")
	}
	if !onAnomaly.IsValid() {
		errs.Add("onAnomaly", "must be a valid action")
	}
	if !onMissedHeartbeat.IsValid() {
		errs.Add("onMissedHeartbeat", "must be a valid action")
	}
	if !onManualTrigger.IsValid() {
		errs.Add("onManualTrigger", "must be a valid action")
	}
	if errs.HasErrors() {
		return nil, errs
	}

	now := time.Now()
	return &DeadManSwitchConfig{
		agentID: agentID,
		heartbeatIntervalSeconds: heartbeatIntervalSeconds,
		missedHeartbeatThreshold: missedHeartbeatThreshold,
		anomalyWindowMinutes:     anomalyWindowMinutes,
		anomalySpendMultiplier:   anomalySpendMultiplier,
		anomalyTxCountMultiplier: anomalyTxCountMultiplier,
		maxTxPerMinute:           maxTxPerMinute,
		maxUniqueVendorsPerHour:  maxUniqueVendorsPerHour,
		onAnomaly:                onAnomaly,
		onMissedHeartbeat:        onMissedHeartbeat,
		onManualTrigger:          onManualTrigger,
		cascadeToChildren:        cascadeToChildren,
		recoveryRequiresHuman:    recoveryRequiresHuman,
		createdAt:                now,
		updatedAt:                now,
	}, nil
}

// ReconstructDeadManSwitchConfig reconstructs a config from stored data.
func ReconstructDeadManSwitchConfig(
	agentID uuid.UUID,
	heartbeatIntervalSeconds, missedHeartbeatThreshold, anomalyWindowMinutes int,
	anomalySpendMultiplier, anomalyTxCountMultiplier float64,
	maxTxPerMinute, maxUniqueVendorsPerHour int,
	onAnomaly, onMissedHeartbeat, onManualTrigger DeadManAction,
	cascadeToChildren, recoveryRequiresHuman bool,
	createdAt, updatedAt time.Time,
) *DeadManSwitchConfig {
	return &DeadManSwitchConfig{
		agentID: agentID,
		heartbeatIntervalSeconds: heartbeatIntervalSeconds,
		missedHeartbeatThreshold: missedHeartbeatThreshold,
		anomalyWindowMinutes:     anomalyWindowMinutes,
		anomalySpendMultiplier:   anomalySpendMultiplier,
		anomalyTxCountMultiplier: anomalyTxCountMultiplier,
		maxTxPerMinute:           maxTxPerMinute,
		maxUniqueVendorsPerHour:  maxUniqueVendorsPerHour,
		onAnomaly:                onAnomaly,
		onMissedHeartbeat:        onMissedHeartbeat,
		onManualTrigger:          onManualTrigger,
		cascadeToChildren:        cascadeToChildren,
		recoveryRequiresHuman:    recoveryRequiresHuman,
		createdAt:                createdAt,
		updatedAt:                updatedAt,
	}
}

func (c *DeadManSwitchConfig) AgentID() uuid.UUID                   { return c.agentID }
func (c *DeadManSwitchConfig) HeartbeatIntervalSeconds() int        { return c.heartbeatIntervalSeconds }
func (c *DeadManSwitchConfig) MissedHeartbeatThreshold() int        { return c.missedHeartbeatThreshold }
func (c *DeadManSwitchConfig) AnomalyWindowMinutes() int            { return c.anomalyWindowMinutes }
func (c *DeadManSwitchConfig) AnomalySpendMultiplier() float64      { return c.anomalySpendMultiplier }
func (c *DeadManSwitchConfig) AnomalyTxCountMultiplier() float64    { return c.anomalyTxCountMultiplier }
func (c *DeadManSwitchConfig) MaxTxPerMinute() int                  { return c.maxTxPerMinute }
func (c *DeadManSwitchConfig) MaxUniqueVendorsPerHour() int         { return c.maxUniqueVendorsPerHour }
func (c *DeadManSwitchConfig) OnAnomaly() DeadManAction             { return c.onAnomaly }
func (c *DeadManSwitchConfig) OnMissedHeartbeat() DeadManAction     { return c.onMissedHeartbeat }
func (c *DeadManSwitchConfig) OnManualTrigger() DeadManAction       { return c.onManualTrigger }
func (c *DeadManSwitchConfig) CascadeToChildren() bool              { return c.cascadeToChildren }
func (c *DeadManSwitchConfig) RecoveryRequiresHuman() bool          { return c.recoveryRequiresHuman }
func (c *DeadManSwitchConfig) CreatedAt() time.Time                 { return c.createdAt }
func (c *DeadManSwitchConfig) UpdatedAt() time.Time                 { return c.updatedAt }

// HeartbeatDeadline reports the moment a miss is declared, given the most
// recent heartbeat.
func (c *DeadManSwitchConfig) HeartbeatDeadline(lastHeartbeat time.Time) time.Time {
	return lastHeartbeat.Add(time.Duration(c.heartbeatIntervalSeconds*c.missedHeartbeatThreshold) * time.Second)
}

// DeadManSwitchEvent is the append-only audit record of a dead-man
// transition. cascadedTo lists agent ids frozen/terminated as a
// consequence of this event.
type DeadManSwitchEvent struct {
	id          uuid.UUID
	agentID     uuid.UUID
	triggerType DeadManTriggerType
	actionTaken DeadManAction
	details     map[string]interface{}
	cascadedTo  []uuid.UUID
	resolved    bool
	resolvedAt  *time.Time

	createdAt time.Time
}

// NewDeadManSwitchEvent records a new (unresolved) dead-man event.
func NewDeadManSwitchEvent(
	agentID uuid.UUID,
	triggerType DeadManTriggerType,
	actionTaken DeadManAction,
	details map[string]interface{},
	cascadedTo []uuid.UUID,
) *DeadManSwitchEvent {
	if details == nil {
		details = map[string]interface{}{}
	}
	return &DeadManSwitchEvent{
		id:          uuid.New(),
		agentID:     agentID,
		triggerType: triggerType,
		actionTaken: actionTaken,
		details:     details,
		cascadedTo:  cascadedTo,
		createdAt:   time.Now(),
	}
}

// ReconstructDeadManSwitchEvent reconstructs an event from stored data.
func ReconstructDeadManSwitchEvent(
	id, agentID uuid.UUID,
	triggerType DeadManTriggerType,
	actionTaken DeadManAction,
	details map[string]interface{},
	cascadedTo []uuid.UUID,
	resolved bool,
	resolvedAt *time.Time,
	createdAt time.Time,
) *DeadManSwitchEvent {
	return &DeadManSwitchEvent{
		id: id, agentID: agentID, triggerType: triggerType, actionTaken: actionTaken,
		details: details, cascadedTo: cascadedTo, resolved: resolved, resolvedAt: resolvedAt, createdAt: createdAt,
	}
}

func (e *DeadManSwitchEvent) ID() uuid.UUID                      { return e.id }
func (e *DeadManSwitchEvent) AgentID() uuid.UUID                 { return e.agentID }
func (e *DeadManSwitchEvent) TriggerType() DeadManTriggerType    { return e.triggerType }
func (e *DeadManSwitchEvent) ActionTaken() DeadManAction         { return e.actionTaken }
func (e *DeadManSwitchEvent) Details() map[string]interface{}    { return e.details }
func (e *DeadManSwitchEvent) CascadedTo() []uuid.UUID            { return e.cascadedTo }
func (e *DeadManSwitchEvent) Resolved() bool                     { return e.resolved }
func (e *DeadManSwitchEvent) ResolvedAt() *time.Time             { return e.resolvedAt }
func (e *DeadManSwitchEvent) CreatedAt() time.Time               { return e.createdAt }

// Resolve marks a freeze/terminate event as resolved by an operator
// recovery call. Terminated agents are never resolvable (enforced by the
// deadman application package, not here).
func (e *DeadManSwitchEvent) Resolve() {
	now := time.Now()
	e.resolved = true
	e.resolvedAt = &now
}
