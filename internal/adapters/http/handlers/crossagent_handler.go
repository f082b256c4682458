package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/adapters/http/middleware"
	"github.com/agentwallet/core/internal/application/crossagent"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

// CrossAgentHandler exposes cross-agent policy management and the
// authorize/approve payment path (§4.8).
type CrossAgentHandler struct {
	governor *crossagent.Governor
	store    ports.CrossAgentStore
}

func NewCrossAgentHandler(governor *crossagent.Governor, store ports.CrossAgentStore) *CrossAgentHandler {
	return &CrossAgentHandler{governor: governor, store: store}
}

type CreatePolicyRequest struct {
	SourceAgentID             string   `json:"sourceAgentId" binding:"required,uuid"`
	TargetAgentID             string   `json:"targetAgentId" binding:"omitempty,uuid"`
	TargetAgentGroup          string   `json:"targetAgentGroup" binding:"omitempty,uuid"`
	MaxPerTransaction         string   `json:"maxPerTransaction"`
	MaxDailyToTarget          string   `json:"maxDailyToTarget"`
	MaxDailyAllAgents         string   `json:"maxDailyAllAgents"`
	AllowedPaymentTypes       []string `json:"allowedPaymentTypes"`
	RequireHumanApprovalAbove string   `json:"requireHumanApprovalAbove"`
	RequireMutualPolicy       bool     `json:"requireMutualPolicy"`
	SettlementMode            string   `json:"settlementMode" binding:"required"`
	MinCounterpartyTrustScore float64  `json:"minCounterpartyTrustScore"`
}

// CreatePolicy creates a cross-agent spend policy.
//
// @Summary Create cross-agent policy
// @Tags CrossAgent
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=CrossAgentPolicyResponse}
// @Router /api/v1/cross-agent/policies [post]
func (h *CrossAgentHandler) CreatePolicy(c *gin.Context) {
	if !middleware.RequireOwner(c) {
		return
	}
	var req CreatePolicyRequest
	if !BindJSON(c, &req) {
		return
	}

	var targetAgentID, targetAgentGroup *uuid.UUID
	if req.TargetAgentID != "" {
		id := mustUUID(req.TargetAgentID)
		targetAgentID = &id
	}
	if req.TargetAgentGroup != "" {
		id := mustUUID(req.TargetAgentGroup)
		targetAgentGroup = &id
	}

	policy, err := entities.NewCrossAgentPolicy(
		middleware.GetPrincipalID(c), mustUUID(req.SourceAgentID),
		targetAgentID, targetAgentGroup,
		req.MaxPerTransaction, req.MaxDailyToTarget, req.MaxDailyAllAgents,
		req.AllowedPaymentTypes, req.RequireHumanApprovalAbove,
		req.RequireMutualPolicy, entities.SettlementMode(req.SettlementMode),
		req.MinCounterpartyTrustScore,
	)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.store.SavePolicy(c.Request.Context(), policy); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toCrossAgentPolicyResponse(policy))
}

// GetPolicy returns a single cross-agent policy.
//
// @Summary Get cross-agent policy
// @Tags CrossAgent
// @Security BearerAuth
// @Produce json
// @Param id path string true "Policy ID"
// @Success 200 {object} common.APIResponse{data=CrossAgentPolicyResponse}
// @Router /api/v1/cross-agent/policies/{id} [get]
func (h *CrossAgentHandler) GetPolicy(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	policy, err := h.store.FindPolicyByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toCrossAgentPolicyResponse(policy))
}

// DeletePolicy removes a cross-agent policy.
//
// @Summary Delete cross-agent policy
// @Tags CrossAgent
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Success 204
// @Router /api/v1/cross-agent/policies/{id} [delete]
func (h *CrossAgentHandler) DeletePolicy(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	if err := h.store.DeletePolicy(c.Request.Context(), mustUUID(params.ID)); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type CreateGroupRequest struct {
	Name     string   `json:"name" binding:"required"`
	AgentIDs []string `json:"agentIds"`
}

// CreateGroup creates an agent group for use as a policy target.
//
// @Summary Create agent group
// @Tags CrossAgent
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=AgentGroupResponse}
// @Router /api/v1/cross-agent/groups [post]
func (h *CrossAgentHandler) CreateGroup(c *gin.Context) {
	if !middleware.RequireOwner(c) {
		return
	}
	var req CreateGroupRequest
	if !BindJSON(c, &req) {
		return
	}
	ids := make([]uuid.UUID, 0, len(req.AgentIDs))
	for _, a := range req.AgentIDs {
		ids = append(ids, mustUUID(a))
	}
	group, err := entities.NewAgentGroup(middleware.GetPrincipalID(c), req.Name, ids)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.store.SaveGroup(c.Request.Context(), group); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toAgentGroupResponse(group))
}

// GetGroup returns a single agent group.
//
// @Summary Get agent group
// @Tags CrossAgent
// @Security BearerAuth
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} common.APIResponse{data=AgentGroupResponse}
// @Router /api/v1/cross-agent/groups/{id} [get]
func (h *CrossAgentHandler) GetGroup(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	group, err := h.store.FindGroupByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toAgentGroupResponse(group))
}

type AuthorizePaymentRequest struct {
	SourceAgentID string                 `json:"sourceAgentId" binding:"required,uuid"`
	TargetAgentID string                 `json:"targetAgentId" binding:"required,uuid"`
	Amount        string                 `json:"amount" binding:"required,money_amount"`
	PaymentType   string                 `json:"paymentType" binding:"required"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// AuthorizePayment runs a cross-agent payment through policy resolution,
// limit checks, and (if needed) escalation.
//
// @Summary Authorize a cross-agent payment
// @Tags CrossAgent
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse{data=CrossAgentTransactionResponse}
// @Router /api/v1/cross-agent/authorize [post]
func (h *CrossAgentHandler) AuthorizePayment(c *gin.Context) {
	var req AuthorizePaymentRequest
	if !BindJSON(c, &req) {
		return
	}
	result, err := h.governor.Authorize(c.Request.Context(), mustUUID(req.SourceAgentID), mustUUID(req.TargetAgentID), req.Amount, req.PaymentType, req.Metadata)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{
		"transaction": toCrossAgentTransactionResponse(result.Transaction),
		"message":     result.Message,
	})
}

// ApproveTransaction resolves an escalated cross-agent transaction.
//
// @Summary Approve an escalated cross-agent transaction
// @Tags CrossAgent
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} common.APIResponse{data=CrossAgentTransactionResponse}
// @Router /api/v1/cross-agent/transactions/{id}/approve [post]
func (h *CrossAgentHandler) ApproveTransaction(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	tx, err := h.governor.Approve(c.Request.Context(), mustUUID(params.ID), middleware.GetPrincipalID(c).String())
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toCrossAgentTransactionResponse(tx))
}

// GetTransaction returns a single cross-agent transaction.
//
// @Summary Get cross-agent transaction
// @Tags CrossAgent
// @Security BearerAuth
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} common.APIResponse{data=CrossAgentTransactionResponse}
// @Router /api/v1/cross-agent/transactions/{id} [get]
func (h *CrossAgentHandler) GetTransaction(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	tx, err := h.store.FindTransactionByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toCrossAgentTransactionResponse(tx))
}

// RegisterRoutes mounts the cross-agent endpoints.
func (h *CrossAgentHandler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.POST("/cross-agent/policies", h.CreatePolicy)
	authed.GET("/cross-agent/policies/:id", h.GetPolicy)
	authed.DELETE("/cross-agent/policies/:id", h.DeletePolicy)
	authed.POST("/cross-agent/groups", h.CreateGroup)
	authed.GET("/cross-agent/groups/:id", h.GetGroup)
	authed.POST("/cross-agent/authorize", h.AuthorizePayment)
	authed.GET("/cross-agent/transactions/:id", h.GetTransaction)
	authed.POST("/cross-agent/transactions/:id/approve", h.ApproveTransaction)
}
