package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/application/audit"
	"github.com/agentwallet/core/internal/application/ports"
)

// AuditHandler exposes read access to the append-only audit log (§4.3).
type AuditHandler struct {
	recorder *audit.Recorder
}

func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

type ListAuditParams struct {
	AgentID  string `form:"agentId" binding:"omitempty,uuid"`
	Resource string `form:"resource" binding:"omitempty"`
	Since    string `form:"since" binding:"omitempty"`
	Until    string `form:"until" binding:"omitempty"`
}

// ListEntries lists audit log entries, filterable by agent, resource and
// time window.
//
// @Summary List audit log entries
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]AuditEntryResponse}
// @Router /api/v1/audit [get]
func (h *AuditHandler) ListEntries(c *gin.Context) {
	pagination := ParsePagination(c)
	var q ListAuditParams
	if !BindQuery(c, &q) {
		return
	}

	var filter ports.AuditFilter
	if q.AgentID != "" {
		id := mustUUID(q.AgentID)
		filter.AgentID = &id
	}
	if q.Resource != "" {
		filter.Resource = &q.Resource
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

	entries, err := h.recorder.List(c.Request.Context(), filter, pagination.Offset(), pagination.PerPage)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	common.SuccessWithMeta(c, http.StatusOK, out, BuildMeta(pagination, len(out)))
}

// Summary returns per-decision counts for an agent over a lookback window.
//
// @Summary Audit decision summary for an agent
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param agentId path string true "Agent ID"
// @Param sinceHours query int false "Lookback window in hours, default 24"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/agents/{agentId}/audit/summary [get]
func (h *AuditHandler) Summary(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	var q struct {
		SinceHours int `form:"sinceHours"`
	}
	if !BindQuery(c, &q) {
		return
	}
	if q.SinceHours <= 0 {
		q.SinceHours = 24
	}
	since := time.Now().Add(-time.Duration(q.SinceHours) * time.Hour)

	counts, err := h.recorder.Summary(c.Request.Context(), mustUUID(params.AgentID), since)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, counts)
}

// RegisterRoutes mounts the audit endpoints.
func (h *AuditHandler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.GET("/audit", h.ListEntries)
	authed.GET("/agents/:agentId/audit/summary", h.Summary)
}
