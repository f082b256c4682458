package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/adapters/http/middleware"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

// AgentHandler exposes agent provisioning and lifecycle transitions.
type AgentHandler struct {
	agents ports.AgentStore
}

func NewAgentHandler(agents ports.AgentStore) *AgentHandler {
	return &AgentHandler{agents: agents}
}

// generateAgentAPIKey mints an opaque bearer key for a newly created
// agent: "ag_" + hex(32 random bytes), mirroring the "ow_" + hex(32 random
// bytes) shape an Owner's key uses internally.
func generateAgentAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ag_" + hex.EncodeToString(buf), nil
}

type CreateAgentRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CreateAgentResponse struct {
	Agent  AgentResponse `json:"agent"`
	APIKey string        `json:"apiKey"`
}

// CreateAgent provisions a new Agent under the authenticated owner.
//
// @Summary Create an agent
// @Tags Agents
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=CreateAgentResponse}
// @Router /api/v1/agents [post]
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	if !middleware.RequireOwner(c) {
		return
	}
	var req CreateAgentRequest
	if !BindJSON(c, &req) {
		return
	}

	plainKey, err := generateAgentAPIKey()
	if err != nil {
		common.InternalErrorResponse(c, "could not generate api key")
		return
	}
	agent, err := entities.NewAgent(middleware.GetPrincipalID(c), hashAgentKey(plainKey), req.Metadata)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.agents.Save(c.Request.Context(), agent); err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusCreated, CreateAgentResponse{Agent: toAgentResponse(agent), APIKey: plainKey})
}

// hashAgentKey mirrors entities.hashAPIKey (sha256 hex) so the handler
// can persist a hash at creation time without exporting that helper.
func hashAgentKey(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:])
}

// GetAgent returns a single agent by id.
//
// @Summary Get agent
// @Tags Agents
// @Security BearerAuth
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) GetAgent(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	agent, err := h.agents.FindByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toAgentResponse(agent))
}

// ListAgents lists every agent belonging to the authenticated owner.
//
// @Summary List agents
// @Tags Agents
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]AgentResponse}
// @Router /api/v1/agents [get]
func (h *AgentHandler) ListAgents(c *gin.Context) {
	if !middleware.RequireOwner(c) {
		return
	}
	agents, err := h.agents.ListByOwner(c.Request.Context(), middleware.GetPrincipalID(c))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentResponse(a))
	}
	common.Success(c, http.StatusOK, out)
}

func (h *AgentHandler) transition(c *gin.Context, apply func(*entities.Agent) error) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	agent, err := h.agents.FindByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := apply(agent); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.agents.Save(c.Request.Context(), agent); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toAgentResponse(agent))
}

// Pause moves the agent to Paused.
//
// @Summary Pause agent
// @Tags Agents
// @Security BearerAuth
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id}/pause [post]
func (h *AgentHandler) Pause(c *gin.Context) { h.transition(c, (*entities.Agent).Pause) }

// Activate moves the agent back to Active.
//
// @Summary Activate agent
// @Tags Agents
// @Security BearerAuth
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id}/activate [post]
func (h *AgentHandler) Activate(c *gin.Context) { h.transition(c, (*entities.Agent).Activate) }

// Suspend moves the agent to Suspended.
//
// @Summary Suspend agent
// @Tags Agents
// @Security BearerAuth
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id}/suspend [post]
func (h *AgentHandler) Suspend(c *gin.Context) { h.transition(c, (*entities.Agent).Suspend) }

// Freeze moves the agent to Frozen.
//
// @Summary Freeze agent
// @Tags Agents
// @Security BearerAuth
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id}/freeze [post]
func (h *AgentHandler) Freeze(c *gin.Context) { h.transition(c, (*entities.Agent).Freeze) }

// Terminate moves the agent to the terminal Terminated state.
//
// @Summary Terminate agent
// @Tags Agents
// @Security BearerAuth
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id}/terminate [post]
func (h *AgentHandler) Terminate(c *gin.Context) { h.transition(c, (*entities.Agent).Terminate) }

// Kill is the manual emergency stop: force-transitions the agent to
// Killed regardless of its current state.
//
// @Summary Kill agent
// @Tags Agents
// @Security BearerAuth
// @Param id path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=AgentResponse}
// @Router /api/v1/agents/{id}/kill [post]
func (h *AgentHandler) Kill(c *gin.Context) {
	h.transition(c, func(a *entities.Agent) error {
		a.Kill()
		return nil
	})
}

// RegisterRoutes mounts the agent endpoints under authed, which must
// already carry owner-or-agent authentication.
func (h *AgentHandler) RegisterRoutes(authed *gin.RouterGroup) {
	agents := authed.Group("/agents")
	{
		agents.POST("", h.CreateAgent)
		agents.GET("", h.ListAgents)
		agents.GET("/:id", h.GetAgent)
		agents.POST("/:id/pause", h.Pause)
		agents.POST("/:id/activate", h.Activate)
		agents.POST("/:id/suspend", h.Suspend)
		agents.POST("/:id/freeze", h.Freeze)
		agents.POST("/:id/terminate", h.Terminate)
		agents.POST("/:id/kill", h.Kill)
	}
}
