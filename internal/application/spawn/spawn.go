// Package spawn implements the Spawn Governor (§4.7): admitting a spawn
// request, deriving a monotonically-tighter child policy, and tearing
// down a lineage subtree on termination.
package spawn

import (
	"context"
	"fmt"

	"github.com/agentwallet/core/internal/application/audit"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	domainerrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/events"
	"github.com/google/uuid"
)

// Governor admits and tears down agent spawns.
type Governor struct {
	agentStore   ports.AgentStore
	lineageStore ports.LineageStore
	uowFactory   ports.UnitOfWorkFactory
	publisher    ports.EventPublisher
	recorder     *audit.Recorder
}

// New constructs a spawn Governor.
func New(agentStore ports.AgentStore, lineageStore ports.LineageStore, uowFactory ports.UnitOfWorkFactory, publisher ports.EventPublisher, recorder *audit.Recorder) *Governor {
	return &Governor{agentStore: agentStore, lineageStore: lineageStore, uowFactory: uowFactory, publisher: publisher, recorder: recorder}
}

// Spawn admits spawn(parentId, childId, overrides) (§4.7 steps 1-7).
func (g *Governor) Spawn(ctx context.Context, parentID, childID uuid.UUID, overrides entities.SpawnPolicy) (*entities.AgentLineage, error) {
	var child *entities.AgentLineage

	uow := g.uowFactory.NewSerializable()
	err := uow.Execute(ctx, func(txCtx context.Context) error {
		parent, err := g.agentStore.FindByID(txCtx, parentID)
		if err != nil {
			return fmt.Errorf("load parent agent: %w", err)
		}
		if !parent.IsActive() {
			return domainerrors.NewStateConflict("Agent", string(parent.Status()), "spawn")
		}

		parentLineage, err := g.lineageStore.FindByAgentID(txCtx, parentID)
		if domainerrors.IsNotFound(err) {
			parentLineage = entities.NewRootLineage(parentID, entities.DefaultSpawnPolicy())
		} else if err != nil {
			return fmt.Errorf("load parent lineage: %w", err)
		}

		if err := parentLineage.CanSpawnChild(); err != nil {
			return err
		}
		if _, err := g.lineageStore.FindByAgentID(txCtx, childID); err == nil {
			return domainerrors.ErrLineageAlreadyExists
		} else if !domainerrors.IsNotFound(err) {
			return fmt.Errorf("check existing child lineage: %w", err)
		}

		childPolicy := parentLineage.ChildPolicy(overrides)
		child = entities.NewChildLineage(childID, parentID, parentLineage.RootID(), parentLineage.Depth()+1, childPolicy)
		parentLineage.AddChild(childID)

		if err := g.lineageStore.Save(txCtx, parentLineage); err != nil {
			return fmt.Errorf("save parent lineage: %w", err)
		}
		if err := g.lineageStore.Save(txCtx, child); err != nil {
			return fmt.Errorf("save child lineage: %w", err)
		}

		event := entities.NewSpawnEvent(parentID, childID, child.Depth(), childPolicy, true)
		if err := g.lineageStore.SaveSpawnEvent(txCtx, event); err != nil {
			return fmt.Errorf("save spawn event: %w", err)
		}
		return g.recorder.Allowed(txCtx, &parentID, "spawn", "agent", childID.String(), map[string]interface{}{
			"depth": child.Depth(), "policy": childPolicy,
		})
	})
	if err != nil {
		return nil, err
	}
	_ = g.publisher.Publish(ctx, events.NewAgentSpawned(parentID, childID, child.Depth()))
	return child, nil
}

// TerminateLineage performs a breadth-first walk over agentID's subtree, marking every
// descendant (and agentID itself) Terminated — irreversible.
func (g *Governor) TerminateLineage(ctx context.Context, agentID uuid.UUID) error {
	root, err := g.lineageStore.FindByAgentID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load lineage: %w", err)
	}
	nodes, err := g.lineageStore.ListByRoot(ctx, root.RootID())
	if err != nil {
		return fmt.Errorf("list lineage tree: %w", err)
	}
	byID := make(map[uuid.UUID]*entities.AgentLineage, len(nodes))
	for _, n := range nodes {
		byID[n.AgentID()] = n
	}

	subtree := []uuid.UUID{agentID}
	queue := append([]uuid.UUID(nil), root.ChildrenIDs()...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		subtree = append(subtree, next)
		if node, ok := byID[next]; ok {
			queue = append(queue, node.ChildrenIDs()...)
		}
	}

	uow := g.uowFactory.New()
	err = uow.Execute(ctx, func(txCtx context.Context) error {
		for _, id := range subtree {
			lineage, ok := byID[id]
			if !ok {
				continue
			}
			lineage.Terminate()
			if err := g.lineageStore.Save(txCtx, lineage); err != nil {
				return fmt.Errorf("save lineage %s: %w", id, err)
			}
			agent, err := g.agentStore.FindByID(txCtx, id)
			if err != nil {
				return fmt.Errorf("load agent %s: %w", id, err)
			}
			if err := agent.Terminate(); err != nil {
				return err
			}
			if err := g.agentStore.Save(txCtx, agent); err != nil {
				return fmt.Errorf("save agent %s: %w", id, err)
			}
		}
		return g.recorder.System(txCtx, "terminate_lineage", "agent", agentID.String(), map[string]interface{}{"subtree": subtree})
	})
	if err != nil {
		return err
	}
	return g.publisher.Publish(ctx, events.NewAgentLineageTerminated(agentID))
}
