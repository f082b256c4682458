package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/adapters/http/middleware"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

// OwnerHandler exposes owner registration and API key rotation.
type OwnerHandler struct {
	owners ports.OwnerStore
}

func NewOwnerHandler(owners ports.OwnerStore) *OwnerHandler {
	return &OwnerHandler{owners: owners}
}

// RegisterOwnerRequest is the body of the public owner-registration call.
type RegisterOwnerRequest struct {
	Contact string `json:"contact" binding:"required,email"`
}

// RegisterOwnerResponse surfaces the plaintext API key exactly once.
type RegisterOwnerResponse struct {
	Owner  OwnerResponse `json:"owner"`
	APIKey string        `json:"apiKey"`
}

// RegisterOwner creates a new Owner and mints its first API key.
//
// @Summary Register an owner
// @Tags Owners
// @Accept json
// @Produce json
// @Param request body RegisterOwnerRequest true "Owner data"
// @Success 201 {object} common.APIResponse{data=RegisterOwnerResponse}
// @Router /api/v1/owners [post]
func (h *OwnerHandler) RegisterOwner(c *gin.Context) {
	var req RegisterOwnerRequest
	if !BindJSON(c, &req) {
		return
	}

	owner, plainKey, err := entities.NewOwner(req.Contact)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.owners.Save(c.Request.Context(), owner); err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusCreated, RegisterOwnerResponse{Owner: toOwnerResponse(owner), APIKey: plainKey})
}

// RotateKeyResponse surfaces the freshly minted plaintext key.
type RotateKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// RotateKey mints a new API key for the authenticated owner, invalidating
// the previous one.
//
// @Summary Rotate the caller's API key
// @Tags Owners
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=RotateKeyResponse}
// @Router /api/v1/owners/me/rotate-key [post]
func (h *OwnerHandler) RotateKey(c *gin.Context) {
	if !middleware.RequireOwner(c) {
		return
	}
	ownerID := middleware.GetPrincipalID(c)

	owner, err := h.owners.FindByID(c.Request.Context(), ownerID)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	plainKey, err := owner.RotateAPIKey()
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if err := h.owners.Save(c.Request.Context(), owner); err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, RotateKeyResponse{APIKey: plainKey})
}

// Me returns the authenticated owner's profile.
//
// @Summary Get the authenticated owner
// @Tags Owners
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=OwnerResponse}
// @Router /api/v1/owners/me [get]
func (h *OwnerHandler) Me(c *gin.Context) {
	if !middleware.RequireOwner(c) {
		return
	}
	owner, err := h.owners.FindByID(c.Request.Context(), middleware.GetPrincipalID(c))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toOwnerResponse(owner))
}

// RegisterRoutes mounts the owner endpoints. Registration is public;
// everything else requires an owner bearer key.
func (h *OwnerHandler) RegisterRoutes(public *gin.RouterGroup, authed *gin.RouterGroup) {
	public.POST("/owners", h.RegisterOwner)
	owners := authed.Group("/owners")
	{
		owners.GET("/me", h.Me)
		owners.POST("/me/rotate-key", h.RotateKey)
	}
}
