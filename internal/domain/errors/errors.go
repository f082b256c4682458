// Package errors defines domain-specific error types.
// Using typed errors (instead of strings) lets callers branch on error
// category without string matching.
//
// Pattern: Sentinel Errors + Custom Error Types
package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for domain validation
var (
	// Entity validation errors
	ErrInvalidEntityID     = errors.New("invalid entity ID")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrEntityAlreadyExists = errors.New("entity already exists")

	// Owner / Agent errors
	ErrInvalidAPIKey    = errors.New("invalid api key")
	ErrAgentNotActive   = errors.New("agent is not active")
	ErrAgentTerminated  = errors.New("agent is terminated")
	ErrAgentFrozen      = errors.New("agent is frozen")

	// Wallet errors
	ErrWalletNotActive    = errors.New("wallet is not active")
	ErrWalletKillSwitched = errors.New("wallet is kill-switched")
	ErrWalletClosed       = errors.New("wallet is closed")

	// Transaction errors
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrInvalidTransactionType      = errors.New("invalid transaction type")
	ErrTransactionNotPending       = errors.New("transaction is not in awaiting-approval state")
	ErrTransactionAlreadyProcessed = errors.New("transaction already processed")

	// Rule errors
	ErrInvalidRuleKind   = errors.New("invalid rule kind")
	ErrInvalidRuleParams = errors.New("invalid rule parameters")

	// Lineage errors
	ErrLineageAlreadyExists = errors.New("lineage already exists for this agent")
	ErrSpawnDepthExceeded   = errors.New("maximum spawn depth exceeded")
	ErrSpawnChildrenLimit   = errors.New("maximum children count exceeded")
	ErrSpawnNotPermitted    = errors.New("this agent is not permitted to spawn children")

	// Cross-agent errors
	ErrNoCrossAgentPolicy = errors.New("no cross-agent policy resolved for this pair")
)

// DomainError is a custom error type that wraps errors with additional context.
//
// Pattern: Error Wrapping with Context
type DomainError struct {
	Code    string // Machine-readable error code (e.g., "INSUFFICIENT_BALANCE")
	Message string // Human-readable message
	Err     error  // Underlying error (for error chains)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// ValidationError represents validation failures with field-level details.
// Maps to the ValidationFailure category.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %d error(s)", len(e))
}

// Add appends a validation error.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// PolicyBlock represents a rule, kill switch, dead-man, or cross-agent
// check that rejected a request. Reason carries the failed check(s).
type PolicyBlock struct {
	Source  string                 // "rule", "killswitch", "deadman", "crossagent"
	Reason  string                 // human-readable explanation
	Details map[string]interface{} // e.g. {"ruleKind": "DailyLimit", "limit": "500.00"}
}

func (e *PolicyBlock) Error() string {
	return fmt.Sprintf("policy block [%s]: %s", e.Source, e.Reason)
}

// NewPolicyBlock creates a new policy-block error.
func NewPolicyBlock(source, reason string, details map[string]interface{}) *PolicyBlock {
	return &PolicyBlock{Source: source, Reason: reason, Details: details}
}

// LatchedCircuit reports that the wallet is KillSwitched or the agent is
// Frozen/Terminated, and therefore not eligible for any admission.
type LatchedCircuit struct {
	EntityType string // "wallet" or "agent"
	EntityID   string
	State      string
}

func (e *LatchedCircuit) Error() string {
	return fmt.Sprintf("%s [%s] is latched: %s", e.EntityType, e.EntityID, e.State)
}

// NewLatchedCircuit creates a new latched-circuit error.
func NewLatchedCircuit(entityType, entityID, state string) *LatchedCircuit {
	return &LatchedCircuit{EntityType: entityType, EntityID: entityID, State: state}
}

// ConcurrencyError represents errors from concurrent access (optimistic locking).
type ConcurrencyError struct {
	EntityType string
	EntityID   string
	Message    string
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency error on %s [%s]: %s", e.EntityType, e.EntityID, e.Message)
}

// NewConcurrencyError creates a new concurrency error.
func NewConcurrencyError(entityType, entityID, message string) *ConcurrencyError {
	return &ConcurrencyError{EntityType: entityType, EntityID: entityID, Message: message}
}

// StateConflict represents an operation that is illegal for the entity's
// current state, e.g. approving a transaction that is not AwaitingApproval.
type StateConflict struct {
	EntityType   string
	CurrentState string
	Operation    string
}

func (e *StateConflict) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", e.Operation, e.EntityType, e.CurrentState)
}

// NewStateConflict creates a new state-conflict error.
func NewStateConflict(entityType, currentState, operation string) *StateConflict {
	return &StateConflict{EntityType: entityType, CurrentState: currentState, Operation: operation}
}

// Helper functions for common error checking

// IsNotFound checks if an error is an "entity not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var valErr ValidationError
	var valErrs ValidationErrors
	return errors.As(err, &valErr) || errors.As(err, &valErrs)
}

// IsPolicyBlock checks if an error is a policy-block error.
func IsPolicyBlock(err error) bool {
	var pb *PolicyBlock
	return errors.As(err, &pb)
}

// AsPolicyBlock extracts a *PolicyBlock from an error chain, if present.
func AsPolicyBlock(err error) (*PolicyBlock, bool) {
	var pb *PolicyBlock
	ok := errors.As(err, &pb)
	return pb, ok
}

// IsLatchedCircuit checks if an error reports a latched kill switch or frozen agent.
func IsLatchedCircuit(err error) bool {
	var lc *LatchedCircuit
	return errors.As(err, &lc)
}

// IsConcurrencyError checks if an error is a concurrency error.
func IsConcurrencyError(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}

// IsStateConflict checks if an error is a state-conflict error.
func IsStateConflict(err error) bool {
	var sc *StateConflict
	return errors.As(err, &sc)
}
