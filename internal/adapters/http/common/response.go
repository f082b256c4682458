// Package common holds shared types for the HTTP layer.
//
// Split into its own package to avoid an import cycle between handlers
// and the router package.
package common

import (
	"net/http"
	"time"

	domainerrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/gin-gonic/gin"
)

// ============================================
// Standard API Response Format
// ============================================

// APIResponse is the envelope every endpoint responds with.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *APIMeta    `json:"meta,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIMeta carries pagination metadata.
type APIMeta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// APIError is the error shape nested in a failed APIResponse.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Fields     []FieldError           `json:"fields,omitempty"`
	RetryAfter int                    `json:"retry_after,omitempty"`
}

// FieldError reports a validation failure on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ============================================
// Error Codes
// ============================================

const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeTooManyRequests  = "TOO_MANY_REQUESTS"
	ErrCodePolicyBlock      = "POLICY_BLOCK"
	ErrCodeLatchedCircuit   = "LATCHED_CIRCUIT"
	ErrCodeDuplicateRequest = "DUPLICATE_REQUEST"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeConcurrency      = "CONCURRENCY_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// ============================================
// Request ID
// ============================================

const RequestIDKey = "X-Request-ID"

// GetRequestID returns the request id stashed in the gin context.
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		return id.(string)
	}
	return ""
}

// SetRequestID stashes the request id in the gin context and response header.
func SetRequestID(c *gin.Context, id string) {
	c.Set(RequestIDKey, id)
	c.Header(RequestIDKey, id)
}

// ============================================
// Response Helpers
// ============================================

// Success writes a successful response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// SuccessWithMeta writes a successful response carrying pagination metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *APIMeta) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// Error writes an error response.
func Error(c *gin.Context, statusCode int, apiError *APIError) {
	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// ============================================
// Error Response Helpers
// ============================================

// ValidationErrorResponse writes a 400 for request validation failures.
func ValidationErrorResponse(c *gin.Context, fields []FieldError) {
	Error(c, http.StatusBadRequest, &APIError{
		Code:    ErrCodeValidation,
		Message: "Request validation failed",
		Fields:  fields,
	})
}

// NotFoundResponse writes a 404.
func NotFoundResponse(c *gin.Context, resource string) {
	Error(c, http.StatusNotFound, &APIError{
		Code:    ErrCodeNotFound,
		Message: resource + " not found",
		Details: map[string]interface{}{
			"resource": resource,
		},
	})
}

// BadRequestResponse writes a 400 for a malformed request.
func BadRequestResponse(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
	})
}

// UnauthorizedResponse writes a 401.
func UnauthorizedResponse(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, &APIError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	})
}

// ForbiddenResponse writes a 403.
func ForbiddenResponse(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, &APIError{
		Code:    ErrCodeForbidden,
		Message: message,
	})
}

// ConflictResponse writes a 409.
func ConflictResponse(c *gin.Context, message string) {
	Error(c, http.StatusConflict, &APIError{
		Code:    ErrCodeConflict,
		Message: message,
	})
}

// TooManyRequestsResponse writes a 429, for rate limiting.
func TooManyRequestsResponse(c *gin.Context, retryAfter int) {
	Error(c, http.StatusTooManyRequests, &APIError{
		Code:       ErrCodeTooManyRequests,
		Message:    "Too many requests, please try again later",
		RetryAfter: retryAfter,
	})
}

// InternalErrorResponse writes a 500.
func InternalErrorResponse(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, &APIError{
		Code:    ErrCodeInternal,
		Message: message,
	})
}

// ============================================
// Domain Error to HTTP Error Mapper
// ============================================

// HandleDomainError translates a domain error into an HTTP response.
func HandleDomainError(c *gin.Context, err error) {
	if domainerrors.IsValidationError(err) {
		if valErr := extractValidationError(err); valErr != nil {
			ValidationErrorResponse(c, []FieldError{
				{Field: valErr.Field, Message: valErr.Message, Code: "invalid"},
			})
			return
		}
		BadRequestResponse(c, err.Error())
		return
	}

	if pb, ok := domainerrors.AsPolicyBlock(err); ok {
		Error(c, http.StatusUnprocessableEntity, &APIError{
			Code:    ErrCodePolicyBlock,
			Message: pb.Reason,
			Details: map[string]interface{}{
				"source":  pb.Source,
				"details": pb.Details,
			},
		})
		return
	}

	if domainerrors.IsLatchedCircuit(err) {
		Error(c, http.StatusUnprocessableEntity, &APIError{
			Code:    ErrCodeLatchedCircuit,
			Message: err.Error(),
		})
		return
	}

	if domainerrors.IsStateConflict(err) {
		ConflictResponse(c, err.Error())
		return
	}

	if domainerrors.IsConcurrencyError(err) {
		Error(c, http.StatusConflict, &APIError{
			Code:    ErrCodeConcurrency,
			Message: "Resource was modified by another request, please retry",
			Details: map[string]interface{}{
				"retryable": true,
			},
		})
		return
	}

	if domainerrors.IsNotFound(err) {
		NotFoundResponse(c, "Resource")
		return
	}

	if domainErr := extractDomainError(err); domainErr != nil {
		statusCode := http.StatusBadRequest

		switch domainErr.Code {
		case "OWNER_NOT_FOUND", "AGENT_NOT_FOUND", "WALLET_NOT_FOUND", "TRANSACTION_NOT_FOUND":
			statusCode = http.StatusNotFound
		case "API_KEY_COLLISION":
			statusCode = http.StatusConflict
		case "INSUFFICIENT_BALANCE":
			statusCode = http.StatusUnprocessableEntity
		}

		Error(c, statusCode, &APIError{
			Code:    domainErr.Code,
			Message: domainErr.Message,
		})
		return
	}

	InternalErrorResponse(c, "An unexpected error occurred")
}

// extractValidationError pulls a ValidationError out of an error chain.
func extractValidationError(err error) *domainerrors.ValidationError {
	for e := err; e != nil; e = unwrap(e) {
		if v, ok := e.(domainerrors.ValidationError); ok {
			return &v
		}
	}
	return nil
}

// extractDomainError pulls a DomainError out of an error chain.
func extractDomainError(err error) *domainerrors.DomainError {
	for e := err; e != nil; e = unwrap(e) {
		if v, ok := e.(*domainerrors.DomainError); ok {
			return v
		}
	}
	return nil
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
