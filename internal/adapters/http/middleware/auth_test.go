package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/agentwallet/core/internal/domain/entities"
)

type fakeOwnerStore struct {
	owner *entities.Owner
}

func (f *fakeOwnerStore) Save(ctx context.Context, owner *entities.Owner) error { return nil }
func (f *fakeOwnerStore) FindByID(ctx context.Context, id uuid.UUID) (*entities.Owner, error) {
	return f.owner, nil
}
func (f *fakeOwnerStore) FindByAPIKeyHash(ctx context.Context, hash string) (*entities.Owner, error) {
	if f.owner != nil && f.owner.APIKeyHash() == hash {
		return f.owner, nil
	}
	return nil, nil
}

type fakeAgentStore struct {
	agent *entities.Agent
}

func (f *fakeAgentStore) Save(ctx context.Context, agent *entities.Agent) error { return nil }
func (f *fakeAgentStore) FindByID(ctx context.Context, id uuid.UUID) (*entities.Agent, error) {
	return f.agent, nil
}
func (f *fakeAgentStore) FindByAPIKeyHash(ctx context.Context, hash string) (*entities.Agent, error) {
	if f.agent != nil && f.agent.APIKeyHash() == hash {
		return f.agent, nil
	}
	return nil, nil
}
func (f *fakeAgentStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entities.Agent, error) {
	return nil, nil
}

func newTestOwner(t *testing.T) (*entities.Owner, string) {
	owner, plainKey, err := entities.NewOwner("owner@example.com")
	if err != nil {
		t.Fatalf("NewOwner: %v", err)
	}
	return owner, plainKey
}

func newTestAgent(t *testing.T) (*entities.Agent, string) {
	plainKey := "ag_" + uuid.New().String()
	agent, err := entities.NewAgent(uuid.New(), hashKey(plainKey), nil)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	return agent, plainKey
}

func TestOwnerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	owner, plainKey := newTestOwner(t)
	cfg := &AuthConfig{OwnerStore: &fakeOwnerStore{owner: owner}, AgentStore: &fakeAgentStore{}}

	t.Run("Success", func(t *testing.T) {
		router := gin.New()
		router.Use(OwnerAuth(cfg))
		router.GET("/test", func(c *gin.Context) {
			assert.Equal(t, owner.ID(), GetPrincipalID(c))
			assert.Equal(t, PrincipalTypeOwner, GetPrincipalType(c))
			c.JSON(200, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+plainKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		router := gin.New()
		router.Use(OwnerAuth(cfg))
		router.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{}) })

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		router := gin.New()
		router.Use(OwnerAuth(cfg))
		router.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{}) })

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongKey", func(t *testing.T) {
		router := gin.New()
		router.Use(OwnerAuth(cfg))
		router.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{}) })

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer ow_wrongkey")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAgentAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	agent, plainKey := newTestAgent(t)
	cfg := &AuthConfig{OwnerStore: &fakeOwnerStore{}, AgentStore: &fakeAgentStore{agent: agent}}

	t.Run("Success", func(t *testing.T) {
		router := gin.New()
		router.Use(AgentAuth(cfg))
		router.GET("/test", func(c *gin.Context) {
			assert.Equal(t, agent.ID(), GetPrincipalID(c))
			assert.Equal(t, PrincipalTypeAgent, GetPrincipalType(c))
			c.JSON(200, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+plainKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("EmptyToken", func(t *testing.T) {
		router := gin.New()
		router.Use(AgentAuth(cfg))
		router.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{}) })

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer ")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Owner", func(t *testing.T) {
		c, w := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(PrincipalTypeKey, PrincipalTypeOwner)
		assert.True(t, RequireOwner(c))
		assert.False(t, c.IsAborted())
		_ = w
	})

	t.Run("Agent", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(PrincipalTypeKey, PrincipalTypeAgent)
		assert.False(t, RequireOwner(c))
		assert.True(t, c.IsAborted())
	})
}

func TestGetPrincipalID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("ValidID", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		id := uuid.New()
		c.Set(PrincipalIDKey, id)
		assert.Equal(t, id, GetPrincipalID(c))
	})

	t.Run("NotSet", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Equal(t, uuid.Nil, GetPrincipalID(c))
	})
}
