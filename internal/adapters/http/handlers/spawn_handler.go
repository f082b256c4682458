package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/application/spawn"
	"github.com/agentwallet/core/internal/domain/entities"
)

// SpawnHandler exposes agent-lineage admission and subtree teardown (§4.7).
type SpawnHandler struct {
	governor *spawn.Governor
	lineages ports.LineageStore
}

func NewSpawnHandler(governor *spawn.Governor, lineages ports.LineageStore) *SpawnHandler {
	return &SpawnHandler{governor: governor, lineages: lineages}
}

type SpawnAgentRequest struct {
	ParentID string               `json:"parentId" binding:"required,uuid"`
	ChildID  string               `json:"childId" binding:"required,uuid"`
	Overrides entities.SpawnPolicy `json:"overrides"`
}

// SpawnAgent admits a new child agent into parentId's lineage.
//
// @Summary Spawn a child agent
// @Tags Spawn
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse{data=LineageResponse}
// @Router /api/v1/spawn [post]
func (h *SpawnHandler) SpawnAgent(c *gin.Context) {
	var req SpawnAgentRequest
	if !BindJSON(c, &req) {
		return
	}
	lineage, err := h.governor.Spawn(c.Request.Context(), mustUUID(req.ParentID), mustUUID(req.ChildID), req.Overrides)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, toLineageResponse(lineage))
}

// GetLineage returns an agent's lineage node.
//
// @Summary Get agent lineage
// @Tags Spawn
// @Security BearerAuth
// @Produce json
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=LineageResponse}
// @Router /api/v1/agents/{agentId}/lineage [get]
func (h *SpawnHandler) GetLineage(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	lineage, err := h.lineages.FindByAgentID(c.Request.Context(), mustUUID(params.AgentID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toLineageResponse(lineage))
}

// ListTree lists every lineage node sharing a root with agentId.
//
// @Summary List an agent's lineage tree
// @Tags Spawn
// @Security BearerAuth
// @Produce json
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=[]LineageResponse}
// @Router /api/v1/agents/{agentId}/lineage/tree [get]
func (h *SpawnHandler) ListTree(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	lineage, err := h.lineages.FindByAgentID(c.Request.Context(), mustUUID(params.AgentID))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	nodes, err := h.lineages.ListByRoot(c.Request.Context(), lineage.RootID())
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	out := make([]LineageResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toLineageResponse(n))
	}
	common.Success(c, http.StatusOK, out)
}

// TerminateLineage tears down an agent's entire spawn subtree. Irreversible.
//
// @Summary Terminate an agent's lineage subtree
// @Tags Spawn
// @Security BearerAuth
// @Param agentId path string true "Agent ID"
// @Success 200 {object} common.APIResponse{data=object}
// @Router /api/v1/agents/{agentId}/lineage/terminate [post]
func (h *SpawnHandler) TerminateLineage(c *gin.Context) {
	var params AgentIDParam
	if !BindURI(c, &params) {
		return
	}
	if err := h.governor.TerminateLineage(c.Request.Context(), mustUUID(params.AgentID)); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, gin.H{"status": "terminated"})
}

// RegisterRoutes mounts the spawn endpoints.
func (h *SpawnHandler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.POST("/spawn", h.SpawnAgent)
	authed.GET("/agents/:agentId/lineage", h.GetLineage)
	authed.GET("/agents/:agentId/lineage/tree", h.ListTree)
	authed.POST("/agents/:agentId/lineage/terminate", h.TerminateLineage)
}
