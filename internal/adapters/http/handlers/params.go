package handlers

import "github.com/google/uuid"

// IDParam binds a single ":id" path segment shared by every resource.
type IDParam struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// AgentIDParam binds a single ":agentId" path segment.
type AgentIDParam struct {
	AgentID string `uri:"agentId" binding:"required,uuid"`
}

// mustUUID parses s, already validated by a "uuid" binding tag.
func mustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
