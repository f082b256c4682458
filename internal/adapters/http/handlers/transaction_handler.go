package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/adapters/http/middleware"
	"github.com/agentwallet/core/internal/application/admission"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

// TransactionHandler exposes transaction submission and the
// human-in-the-loop approve/reject path, both driven through the
// Admission Controller so every mutation passes its full pipeline.
type TransactionHandler struct {
	admission    *admission.Controller
	transactions ports.TransactionStore
}

func NewTransactionHandler(admissionCtl *admission.Controller, transactions ports.TransactionStore) *TransactionHandler {
	return &TransactionHandler{admission: admissionCtl, transactions: transactions}
}

type SubmitTransactionRequest struct {
	WalletID      string            `json:"walletId" binding:"required,uuid"`
	Amount        string            `json:"amount" binding:"required,money_amount"`
	Category      string            `json:"category" binding:"required"`
	RecipientID   string            `json:"recipientId" binding:"required"`
	RecipientType string            `json:"recipientType" binding:"required"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SubmitTransaction runs a candidate spend through admission: preconditions,
// dead-man gate, kill switches, and the rules engine decide its final
// status. A non-nil error here means the candidate never reached the
// ledger at all; a rejected/escalated transaction is still a 200.
//
// @Summary Submit a transaction for admission
// @Tags Transactions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse{data=TransactionResponse}
// @Router /api/v1/transactions [post]
func (h *TransactionHandler) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if !BindJSON(c, &req) {
		return
	}

	candidate := admission.Candidate{
		Amount:        req.Amount,
		Category:      req.Category,
		RecipientID:   req.RecipientID,
		RecipientType: req.RecipientType,
		Description:   req.Description,
		Metadata:      req.Metadata,
	}

	tx, err := h.admission.Submit(c.Request.Context(), mustUUID(req.WalletID), candidate)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toTransactionResponse(tx))
}

// GetTransaction returns a single transaction.
//
// @Summary Get transaction
// @Tags Transactions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} common.APIResponse{data=TransactionResponse}
// @Router /api/v1/transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	tx, err := h.transactions.FindByID(c.Request.Context(), mustUUID(params.ID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toTransactionResponse(tx))
}

type ListTransactionsParams struct {
	WalletID       string `form:"walletId" binding:"omitempty,uuid"`
	Status         string `form:"status" binding:"omitempty"`
	Category       string `form:"category" binding:"omitempty"`
	Since          string `form:"since" binding:"omitempty"`
	Until          string `form:"until" binding:"omitempty"`
	ExcludeDeposit bool   `form:"excludeDeposit"`
}

// ListTransactions lists transactions, filterable by wallet, status,
// category and time window.
//
// @Summary List transactions
// @Tags Transactions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]TransactionResponse}
// @Router /api/v1/transactions [get]
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	pagination := ParsePagination(c)
	var q ListTransactionsParams
	if !BindQuery(c, &q) {
		return
	}

	filter := buildTransactionFilter(q)
	txs, err := h.transactions.List(c.Request.Context(), filter, pagination.Offset(), pagination.PerPage)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	common.SuccessWithMeta(c, http.StatusOK, out, BuildMeta(pagination, len(out)))
}

func buildTransactionFilter(q ListTransactionsParams) ports.TransactionFilter {
	var filter ports.TransactionFilter
	filter.ExcludeDeposit = q.ExcludeDeposit
	if q.WalletID != "" {
		id := mustUUID(q.WalletID)
		filter.WalletID = &id
	}
	if q.Status != "" {
		status := entities.TransactionStatus(q.Status)
		filter.Status = &status
	}
	if q.Category != "" {
		filter.Category = &q.Category
	}
	if q.Since != "" {
		if t, err := time.Parse(time.RFC3339, q.Since); err == nil {
			filter.Since = &t
		}
	}
	if q.Until != "" {
		if t, err := time.Parse(time.RFC3339, q.Until); err == nil {
			filter.Until = &t
		}
	}
	return filter
}

type ApproveRejectRequest struct {
	Reason string `json:"reason"`
}

// ApproveTransaction approves an escalated transaction: the balance is
// re-checked and the wallet is debited at approval time (no funds were
// held while it awaited approval).
//
// @Summary Approve an escalated transaction
// @Tags Transactions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} common.APIResponse{data=TransactionResponse}
// @Router /api/v1/transactions/{id}/approve [post]
func (h *TransactionHandler) ApproveTransaction(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	tx, err := h.admission.Approve(c.Request.Context(), mustUUID(params.ID), middleware.GetPrincipalID(c).String())
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toTransactionResponse(tx))
}

// RejectTransaction rejects an escalated transaction; the wallet was never
// debited for it, so only the transaction's status changes.
//
// @Summary Reject an escalated transaction
// @Tags Transactions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} common.APIResponse{data=TransactionResponse}
// @Router /api/v1/transactions/{id}/reject [post]
func (h *TransactionHandler) RejectTransaction(c *gin.Context) {
	var params IDParam
	if !BindURI(c, &params) {
		return
	}
	var req ApproveRejectRequest
	if !BindJSON(c, &req) {
		return
	}
	tx, err := h.admission.Reject(c.Request.Context(), mustUUID(params.ID), middleware.GetPrincipalID(c).String(), req.Reason)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toTransactionResponse(tx))
}

// RegisterRoutes mounts the transaction endpoints.
func (h *TransactionHandler) RegisterRoutes(authed *gin.RouterGroup) {
	transactions := authed.Group("/transactions")
	{
		transactions.POST("", h.SubmitTransaction)
		transactions.GET("", h.ListTransactions)
		transactions.GET("/:id", h.GetTransaction)
		transactions.POST("/:id/approve", h.ApproveTransaction)
		transactions.POST("/:id/reject", h.RejectTransaction)
	}
}
