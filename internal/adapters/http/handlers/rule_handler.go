package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/application/ports"
	rulesvc "github.com/agentwallet/core/internal/application/rules"
	"github.com/agentwallet/core/internal/domain/entities"
)

// RuleHandler exposes spend-rule CRUD, scoped to one wallet.
type RuleHandler struct {
	rules  ports.RuleStore
	limits *rulesvc.LimitGovernor
}

func NewRuleHandler(rules ports.RuleStore, limits *rulesvc.LimitGovernor) *RuleHandler {
	return &RuleHandler{rules: rules, limits: limits}
}

type CreateRuleRequest struct {
	WalletID string               `json:"walletId" binding:"required,uuid"`
	Kind     string               `json:"kind" binding:"required"`
	Params   entities.RuleParams  `json:"params"`
	Priority int                  `json:"priority"`
}

// CreateRule adds a new spend rule to a wallet.
//
// @Summary Create spend rule
// @Tags Rules
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=SpendRuleResponse}
// @Router /api/v1/rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if !BindJSON(c, &req) {
		return
	}
	walletID := mustUUID(req.WalletID)
	kind := entities.RuleKind(req.Kind)
	if req.Params.Limit != "" {
		clamped, err := h.limits.Clamp(c.Request.Context(), walletID, kind, req.Params.Limit)
		if err != nil {
			common.HandleDomainError(c, err)
			return
		}
		req.Params.Limit = clamped
	}
	rule, err := entities.NewSpendRule(walletID, kind, req.Params, req.Priority)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.rules.Save(c.Request.Context(), rule); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toSpendRuleResponse(rule))
}

// ListRules lists every rule on a wallet, active or not.
//
// @Summary List spend rules for a wallet
// @Tags Rules
// @Security BearerAuth
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Success 200 {object} common.APIResponse{data=[]SpendRuleResponse}
// @Router /api/v1/wallets/{walletId}/rules [get]
func (h *RuleHandler) ListRules(c *gin.Context) {
	var params struct {
		WalletID string `uri:"walletId" binding:"required,uuid"`
	}
	if !BindURI(c, &params) {
		return
	}
	rules, err := h.rules.ListByWallet(c.Request.Context(), mustUUID(params.WalletID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]SpendRuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, toSpendRuleResponse(r))
	}
	common.Success(c, http.StatusOK, out)
}

type UpdateRuleParamsRequest struct {
	Params entities.RuleParams `json:"params"`
}

// UpdateRule replaces a rule's parameters.
//
// @Summary Update spend rule parameters
// @Tags Rules
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} common.APIResponse{data=SpendRuleResponse}
// @Router /api/v1/rules/{id} [patch]
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	var req UpdateRuleParamsRequest
	if !BindJSON(c, &req) {
		return
	}
	rule, err := h.rules.FindByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if req.Params.Limit != "" {
		clamped, err := h.limits.Clamp(c.Request.Context(), rule.WalletID(), rule.Kind(), req.Params.Limit)
		if err != nil {
			common.HandleDomainError(c, err)
			return
		}
		req.Params.Limit = clamped
	}
	if err := rule.UpdateParams(req.Params); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.rules.Save(c.Request.Context(), rule); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toSpendRuleResponse(rule))
}

func (h *RuleHandler) setActive(c *gin.Context, active bool) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	rule, err := h.rules.FindByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if active {
		rule.Activate()
	} else {
		rule.Deactivate()
	}
	if err := h.rules.Save(c.Request.Context(), rule); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toSpendRuleResponse(rule))
}

// ActivateRule turns a rule back on.
//
// @Summary Activate spend rule
// @Tags Rules
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 200 {object} common.APIResponse{data=SpendRuleResponse}
// @Router /api/v1/rules/{id}/activate [post]
func (h *RuleHandler) ActivateRule(c *gin.Context) { h.setActive(c, true) }

// DeactivateRule turns a rule off without deleting its history.
//
// @Summary Deactivate spend rule
// @Tags Rules
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 200 {object} common.APIResponse{data=SpendRuleResponse}
// @Router /api/v1/rules/{id}/deactivate [post]
func (h *RuleHandler) DeactivateRule(c *gin.Context) { h.setActive(c, false) }

// DeleteRule permanently removes a rule.
//
// @Summary Delete spend rule
// @Tags Rules
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 204
// @Router /api/v1/rules/{id} [delete]
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), mustUUID(params.ID)); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes mounts the rule endpoints.
func (h *RuleHandler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.POST("/rules", h.CreateRule)
	authed.GET("/wallets/:walletId/rules", h.ListRules)
	authed.PATCH("/rules/:id", h.UpdateRule)
	authed.POST("/rules/:id/activate", h.ActivateRule)
	authed.POST("/rules/:id/deactivate", h.DeactivateRule)
	authed.DELETE("/rules/:id", h.DeleteRule)
}
