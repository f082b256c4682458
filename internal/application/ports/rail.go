package ports

import (
	"context"

	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// RailAdapter is the contract a payment rail (card network, bank transfer,
// on-chain settlement, internal ledger) must satisfy to sit behind an
// admission-approved transaction (§6 adapter contract). The admission path
// never talks to a rail directly — it calls RailAdapter after a
// transaction clears every gate, outside the database transaction that
// granted admission, since a rail call is not itself transactional.
type RailAdapter interface {
	// CreateWallet provisions whatever the rail needs to receive funds for
	// agentID (e.g. a sub-account), returning a rail-specific reference.
	CreateWallet(ctx context.Context, agentID uuid.UUID) (string, error)

	// Send executes the movement of money for an admitted transaction.
	// recipientID is opaque to the rail (an external account id). Returns
	// a rail-specific settlement reference on success.
	Send(ctx context.Context, transactionID uuid.UUID, amount valueobjects.Money, recipientID string) (string, error)

	// GetBalance returns the rail's view of the agent's available balance,
	// for comparison against the ledger's own Balance. No component in
	// this module calls it.
	GetBalance(ctx context.Context, railRef string) (valueobjects.Money, error)
}
