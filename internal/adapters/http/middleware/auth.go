// Package middleware - Authentication middleware.
//
// AgentWallet authenticates every request with an opaque bearer API key
// issued to either an Owner or an Agent (§2, §6) — there is no session or
// JWT layer. The key's sha256 hash is looked up directly against the
// store; a miss or a malformed header both fail closed as 401.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentwallet/core/internal/application/ports"
)

const (
	// PrincipalTypeKey holds "owner" or "agent" for the authenticated caller.
	PrincipalTypeKey = "auth_principal_type"
	// PrincipalIDKey holds the authenticated owner or agent's id.
	PrincipalIDKey = "auth_principal_id"

	PrincipalTypeOwner = "owner"
	PrincipalTypeAgent = "agent"
)

// AuthConfig wires the two stores a bearer key can resolve against.
type AuthConfig struct {
	OwnerStore ports.OwnerStore
	AgentStore ports.AgentStore
}

// OwnerAuth accepts only an Owner's bearer key (owner-facing endpoints:
// agent/wallet provisioning, rule and kill-switch configuration).
func OwnerAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := bearerKey(c)
		if !ok {
			return
		}
		owner, err := cfg.OwnerStore.FindByAPIKeyHash(c.Request.Context(), hashKey(key))
		if err != nil || owner == nil || !owner.MatchesAPIKey(key) {
			abortWithUnauthorized(c, "invalid owner API key")
			return
		}
		c.Set(PrincipalTypeKey, PrincipalTypeOwner)
		c.Set(PrincipalIDKey, owner.ID())
		c.Next()
	}
}

// AgentAuth accepts only an Agent's bearer key (agent-facing endpoints:
// admission submit, heartbeat, spawn).
func AgentAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := bearerKey(c)
		if !ok {
			return
		}
		agent, err := cfg.AgentStore.FindByAPIKeyHash(c.Request.Context(), hashKey(key))
		if err != nil || agent == nil || !agent.MatchesAPIKey(key) {
			abortWithUnauthorized(c, "invalid agent API key")
			return
		}
		c.Set(PrincipalTypeKey, PrincipalTypeAgent)
		c.Set(PrincipalIDKey, agent.ID())
		c.Set(agentStatusKey, agent.Status())
		c.Next()
	}
}

// AnyAuth accepts either an Owner or an Agent bearer key, for reads that
// both kinds of principal may perform (e.g. audit export).
func AnyAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := bearerKey(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if owner, err := cfg.OwnerStore.FindByAPIKeyHash(ctx, hashKey(key)); err == nil && owner != nil && owner.MatchesAPIKey(key) {
			c.Set(PrincipalTypeKey, PrincipalTypeOwner)
			c.Set(PrincipalIDKey, owner.ID())
			c.Next()
			return
		}
		if agent, err := cfg.AgentStore.FindByAPIKeyHash(ctx, hashKey(key)); err == nil && agent != nil && agent.MatchesAPIKey(key) {
			c.Set(PrincipalTypeKey, PrincipalTypeAgent)
			c.Set(PrincipalIDKey, agent.ID())
			c.Next()
			return
		}
		abortWithUnauthorized(c, "invalid API key")
	}
}

const agentStatusKey = "auth_agent_status"

// hashKey mirrors entities.hashAPIKey (sha256 hex) so a bearer key can be
// looked up against the stored hash without exporting that helper.
func hashKey(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:])
}

func bearerKey(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		abortWithUnauthorized(c, "Authorization header is required")
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		abortWithUnauthorized(c, "Authorization header must be 'Bearer <key>'")
		return "", false
	}
	return parts[1], true
}

func abortWithUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
		"request_id": GetRequestID(c),
		"timestamp":  time.Now().UTC(),
	})
}

// GetPrincipalID returns the authenticated caller's id, or uuid.Nil.
func GetPrincipalID(c *gin.Context) uuid.UUID {
	v, exists := c.Get(PrincipalIDKey)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// GetPrincipalType returns "owner", "agent", or "".
func GetPrincipalType(c *gin.Context) string {
	v, _ := c.Get(PrincipalTypeKey)
	s, _ := v.(string)
	return s
}

// RequireOwner aborts with 403 unless the authenticated principal is an Owner.
func RequireOwner(c *gin.Context) bool {
	if GetPrincipalType(c) != PrincipalTypeOwner {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "owner authentication required",
			},
			"request_id": GetRequestID(c),
			"timestamp":  time.Now().UTC(),
		})
		return false
	}
	return true
}
