package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/application/deadman"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

// DeadManHandler exposes dead-man-switch configuration, heartbeats, and
// the operator recovery path (§4.6).
type DeadManHandler struct {
	store   ports.DeadManStore
	service *deadman.Service
}

func NewDeadManHandler(store ports.DeadManStore, service *deadman.Service) *DeadManHandler {
	return &DeadManHandler{store: store, service: service}
}

type CreateDeadManConfigRequest struct {
	AgentID                  string  `json:"agentId" binding:"required,uuid"`
	HeartbeatIntervalSeconds int     `json:"heartbeatIntervalSeconds" binding:"required"`
	MissedHeartbeatThreshold int     `json:"missedHeartbeatThreshold" binding:"required"`
	AnomalyWindowMinutes     int     `json:"anomalyWindowMinutes" binding:"required"`
	AnomalySpendMultiplier   float64 `json:"anomalySpendMultiplier"`
	AnomalyTxCountMultiplier float64 `json:"anomalyTxCountMultiplier"`
	MaxTxPerMinute           int     `json:"maxTxPerMinute" binding:"required"`
	MaxUniqueVendorsPerHour  int     `json:"maxUniqueVendorsPerHour" binding:"required"`
	OnAnomaly                string  `json:"onAnomaly" binding:"required"`
	OnMissedHeartbeat        string  `json:"onMissedHeartbeat" binding:"required"`
	OnManualTrigger          string  `json:"onManualTrigger" binding:"required"`
	CascadeToChildren        bool    `json:"cascadeToChildren"`
	RecoveryRequiresHuman    bool    `json:"recoveryRequiresHuman"`
}

// CreateConfig attaches (or replaces) an agent's dead-man-switch config.
//
// @Summary Create dead-man-switch config
// @Tags DeadMan
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=DeadManConfigResponse}
// @Router /api/v1/dead-man-switch/configs [post]
func (h *DeadManHandler) CreateConfig(c *gin.Context) {
	var req CreateDeadManConfigRequest
	if !BindJSON(c, &req) {
		return
	}
	cfg, err := entities.NewDeadManSwitchConfig(
		mustUUID(req.AgentID),
		req.HeartbeatIntervalSeconds, req.MissedHeartbeatThreshold,
		req.AnomalyWindowMinutes,
		req.AnomalySpendMultiplier, req.AnomalyTxCountMultiplier,
		req.MaxTxPerMinute, req.MaxUniqueVendorsPerHour,
		entities.DeadManAction(req.OnAnomaly), entities.DeadManAction(req.OnMissedHeartbeat), entities.DeadManAction(req.OnManualTrigger),
		req.CascadeToChildren, req.RecoveryRequiresHuman,
	)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.store.SaveConfig(c.Request.Context(), cfg); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toDeadManConfigResponse(cfg))
}

// GetConfig returns an agent's dead-man-switch config.
//
// @Summary Get dead-man-switch config
// @Tags DeadMan
// @Security BearerAuth
// @Produce json
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=DeadManConfigResponse}
// @Router /api/v1/agents/{agentId}/dead-man-switch [get]
func (h *DeadManHandler) GetConfig(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	cfg, err := h.store.FindConfig(c.Request.Context(), mustUUID(params.AgentID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toDeadManConfigResponse(cfg))
}

// Heartbeat records liveness for an agent, extending its deadline.
//
// @Summary Send a heartbeat
// @Tags DeadMan
// @Security BearerAuth
// @Produce json
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/agents/{agentId}/heartbeat [post]
func (h *DeadManHandler) Heartbeat(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	result, err := h.service.Heartbeat(c.Request.Context(), mustUUID(params.AgentID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{
		"ceaseTransactions": result.CeaseTransactions,
		"nextDeadline":      result.NextDeadline,
	})
}

// ListEvents lists every dead-man-switch event recorded for an agent.
//
// @Summary List dead-man-switch events
// @Tags DeadMan
// @Security BearerAuth
// @Produce json
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=[]DeadManEventResponse}
// @Router /api/v1/agents/{agentId}/dead-man-switch/events [get]
func (h *DeadManHandler) ListEvents(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	events, err := h.store.ListEventsByAgent(c.Request.Context(), mustUUID(params.AgentID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]DeadManEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toDeadManEventResponse(e))
	}
	common.Success(c, http.StatusOK, out)
}

// ManualTrigger force-trips an agent's dead-man switch, applying the
// config's manual-trigger action (not the missed-heartbeat ladder).
//
// @Summary Manually trigger the dead-man switch
// @Tags DeadMan
// @Security BearerAuth
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/agents/{agentId}/dead-man-switch/trigger [post]
func (h *DeadManHandler) ManualTrigger(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	if err := h.service.ManualTrigger(c.Request.Context(), mustUUID(params.AgentID)); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{"status": "triggered"})
}

// Recover unfreezes an agent after operator review. A terminated agent
// can never be recovered.
//
// @Summary Recover an agent from a dead-man-switch freeze
// @Tags DeadMan
// @Security BearerAuth
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/agents/{agentId}/dead-man-switch/recover [post]
func (h *DeadManHandler) Recover(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	if err := h.service.Recover(c.Request.Context(), mustUUID(params.AgentID)); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{"status": "recovered"})
}

// RegisterRoutes mounts the dead-man-switch endpoints.
func (h *DeadManHandler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.POST("/dead-man-switch/configs", h.CreateConfig)
	authed.GET("/agents/:agentId/dead-man-switch", h.GetConfig)
	authed.POST("/agents/:agentId/heartbeat", h.Heartbeat)
	authed.GET("/agents/:agentId/dead-man-switch/events", h.ListEvents)
	authed.POST("/agents/:agentId/dead-man-switch/trigger", h.ManualTrigger)
	authed.POST("/agents/:agentId/dead-man-switch/recover", h.Recover)
}
