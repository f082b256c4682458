package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/application/admission"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/agentwallet/core/internal/domain/valueobjects"
)

// WalletHandler exposes wallet provisioning, reads, and deposits.
// Deposits go through the Admission Controller since it owns every
// wallet-balance mutation (§4.1); everything else is a direct store read.
type WalletHandler struct {
	wallets   ports.WalletStore
	admission *admission.Controller
}

func NewWalletHandler(wallets ports.WalletStore, admissionCtl *admission.Controller) *WalletHandler {
	return &WalletHandler{wallets: wallets, admission: admissionCtl}
}

type CreateWalletRequest struct {
	AgentID  string `json:"agentId" binding:"required,uuid"`
	Currency string `json:"currency" binding:"required,len=3,currency_code"`
}

// CreateWallet provisions a new zero-balance wallet for an agent.
//
// @Summary Create wallet
// @Tags Wallets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=WalletResponse}
// @Router /api/v1/wallets [post]
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var req CreateWalletRequest
	if !BindJSON(c, &req) {
		return
	}
	currency, err := valueobjects.NewCurrency(req.Currency)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	wallet, err := entities.NewWallet(mustUUID(req.AgentID), currency)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.wallets.Save(c.Request.Context(), wallet); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toWalletResponse(wallet))
}

// GetWallet returns a single wallet.
//
// @Summary Get wallet
// @Tags Wallets
// @Security BearerAuth
// @Produce json
// @Param id path string true "Wallet ID"
// @Success 200 {object} common.APIResponse{data=WalletResponse}
// @Router /api/v1/wallets/{id} [get]
func (h *WalletHandler) GetWallet(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	wallet, err := h.wallets.FindByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toWalletResponse(wallet))
}

type ListWalletsParams struct {
	AgentID string `form:"agentId" binding:"omitempty,uuid"`
}

// ListWallets lists wallets, optionally scoped to one agent.
//
// @Summary List wallets
// @Tags Wallets
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]WalletResponse}
// @Router /api/v1/wallets [get]
func (h *WalletHandler) ListWallets(c *gin.Context) {
	pagination := ParsePagination(c)
	var filters ListWalletsParams
	if !BindQuery(c, &filters) {
		return
	}

	var filter ports.WalletFilter
	if filters.AgentID != "" {
		id := mustUUID(filters.AgentID)
		filter.AgentID = &id
	}

	wallets, err := h.wallets.List(c.Request.Context(), filter, pagination.Offset(), pagination.PerPage)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]WalletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toWalletResponse(w))
	}
	common.SuccessWithMeta(c, http.StatusOK, out, BuildMeta(pagination, len(out)))
}

type DepositRequest struct {
	Amount string `json:"amount" binding:"required,money_amount"`
}

// Deposit credits a wallet outside the rules engine.
//
// @Summary Deposit into a wallet
// @Tags Wallets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Wallet ID"
// @Success 200 {object} common.APIResponse{data=TransactionResponse}
// @Router /api/v1/wallets/{id}/deposit [post]
func (h *WalletHandler) Deposit(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	var req DepositRequest
	if !BindJSON(c, &req) {
		return
	}

	tx, err := h.admission.Deposit(c.Request.Context(), mustUUID(params.ID), req.Amount)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toTransactionResponse(tx))
}

// RegisterRoutes mounts the wallet endpoints.
func (h *WalletHandler) RegisterRoutes(authed *gin.RouterGroup) {
	wallets := authed.Group("/wallets")
	{
		wallets.POST("", h.CreateWallet)
		wallets.GET("", h.ListWallets)
		wallets.GET("/:id", h.GetWallet)
		wallets.POST("/:id/deposit", h.Deposit)
	}
}
