package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/application/killswitch"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

// KillSwitchHandler exposes kill-switch configuration and the manual
// trigger/reset path, both of which must flip the wallet's frozen state
// in the same unit of work as the switch itself (§4.5).
type KillSwitchHandler struct {
	killSwitches ports.KillSwitchStore
	wallets      ports.WalletStore
	service      *killswitch.Service
}

func NewKillSwitchHandler(killSwitches ports.KillSwitchStore, wallets ports.WalletStore, service *killswitch.Service) *KillSwitchHandler {
	return &KillSwitchHandler{killSwitches: killSwitches, wallets: wallets, service: service}
}

type CreateKillSwitchRequest struct {
	WalletID    string `json:"walletId" binding:"required,uuid"`
	Kind        string `json:"kind" binding:"required"`
	Threshold   string `json:"threshold" binding:"required,money_amount"`
	WindowHours int    `json:"windowHours"`
}

// CreateKillSwitch attaches a new kill switch to a wallet.
//
// @Summary Create kill switch
// @Tags KillSwitches
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=KillSwitchResponse}
// @Router /api/v1/kill-switches [post]
func (h *KillSwitchHandler) CreateKillSwitch(c *gin.Context) {
	var req CreateKillSwitchRequest
	if !BindJSON(c, &req) {
		return
	}
	ks, err := entities.NewKillSwitch(mustUUID(req.WalletID), entities.KillSwitchKind(req.Kind), req.Threshold, req.WindowHours)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.killSwitches.Save(c.Request.Context(), ks); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toKillSwitchResponse(ks))
}

// ListKillSwitches lists the active kill switches on a wallet.
//
// @Summary List active kill switches for a wallet
// @Tags KillSwitches
// @Security BearerAuth
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Success 200 {object} common.APIResponse{data=[]KillSwitchResponse}
// @Router /api/v1/wallets/{walletId}/kill-switches [get]
func (h *KillSwitchHandler) ListKillSwitches(c *gin.Context) {
	var params struct {
		WalletID string `uri:"walletId" binding:"required,uuid"`
	}
	if !BindURI(c, &params) {
		return
	}
	switches, err := h.killSwitches.ListActiveByWallet(c.Request.Context(), mustUUID(params.WalletID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]KillSwitchResponse, 0, len(switches))
	for _, ks := range switches {
		out = append(out, toKillSwitchResponse(ks))
	}
	common.Success(c, http.StatusOK, out)
}

// DeleteKillSwitch removes a kill switch entirely.
//
// @Summary Delete kill switch
// @Tags KillSwitches
// @Security BearerAuth
// @Param id path string true "Kill Switch ID"
// @Success 204
// @Router /api/v1/kill-switches/{id} [delete]
func (h *KillSwitchHandler) DeleteKillSwitch(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	if err := h.killSwitches.Delete(c.Request.Context(), mustUUID(params.ID)); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckWallet evaluates every active kill switch on a wallet against its
// current state without mutating anything.
//
// @Summary Check a wallet's kill switches
// @Tags KillSwitches
// @Security BearerAuth
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/wallets/{walletId}/kill-switches/check [get]
func (h *KillSwitchHandler) CheckWallet(c *gin.Context) {
	var params struct {
		WalletID string `uri:"walletId" binding:"required,uuid"`
	}
	if !BindURI(c, &params) {
		return
	}
	triggered, err := h.service.Check(c.Request.Context(), mustUUID(params.WalletID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if triggered == nil {
		common.Success(c, http.StatusOK, gin.H{"triggered": false})
		return
	}
	common.Success(c, http.StatusOK, gin.H{
		"triggered":      true,
		"killSwitchId":   triggered.KillSwitchID,
		"kind":           triggered.Kind,
		"observedValue":  triggered.ObservedValue,
	})
}

func (h *KillSwitchHandler) walletMutator(walletID uuid.UUID, mutate func(w *entities.Wallet) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		wallet, err := h.wallets.FindByIDForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if err := mutate(wallet); err != nil {
			return err
		}
		return h.wallets.Save(ctx, wallet)
	}
}

// TriggerKillSwitch manually latches a kill switch, freezing the wallet.
//
// @Summary Manually trigger a kill switch
// @Tags KillSwitches
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Kill Switch ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/kill-switches/{id}/trigger [post]
func (h *KillSwitchHandler) TriggerKillSwitch(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	var req struct {
		WalletID      string `json:"walletId" binding:"required,uuid"`
		ObservedValue string `json:"observedValue" binding:"required"`
	}
	if !BindJSON(c, &req) {
		return
	}
	walletID := mustUUID(req.WalletID)
	mutator := h.walletMutator(walletID, func(w *entities.Wallet) error { w.KillSwitch(); return nil })
	if err := h.service.Trigger(c.Request.Context(), walletID, mustUUID(params.ID), req.ObservedValue, mutator); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{"status": "triggered"})
}

// ResetKillSwitch clears a latched kill switch and unfreezes the wallet.
//
// @Summary Reset a latched kill switch
// @Tags KillSwitches
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Kill Switch ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/kill-switches/{id}/reset [post]
func (h *KillSwitchHandler) ResetKillSwitch(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	var req struct {
		WalletID string `json:"walletId" binding:"required,uuid"`
	}
	if !BindJSON(c, &req) {
		return
	}
	walletID := mustUUID(req.WalletID)
	mutator := h.walletMutator(walletID, func(w *entities.Wallet) error { return w.ResetKillSwitch() })
	if err := h.service.Reset(c.Request.Context(), walletID, mustUUID(params.ID), mutator); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{"status": "reset"})
}

// RegisterRoutes mounts the kill-switch endpoints.
func (h *KillSwitchHandler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.POST("/kill-switches", h.CreateKillSwitch)
	authed.GET("/wallets/:walletId/kill-switches", h.ListKillSwitches)
	authed.GET("/wallets/:walletId/kill-switches/check", h.CheckWallet)
	authed.DELETE("/kill-switches/:id", h.DeleteKillSwitch)
	authed.POST("/kill-switches/:id/trigger", h.TriggerKillSwitch)
	authed.POST("/kill-switches/:id/reset", h.ResetKillSwitch)
}
