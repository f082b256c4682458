// Package entities contains domain entities with identity and lifecycle.
// Entities are mutable and compared by their ID, not by their attributes.
package entities

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/agentwallet/core/internal/domain/errors"
	"github.com/google/uuid"
)

// Owner is the human or organization that ultimately controls a tree of
// Agents. It authenticates with an opaque bearer API key that is immutable
// post-issue except through explicit rotation.
type Owner struct {
	id          uuid.UUID
	apiKeyHash  string // sha256 of the issued key; the key itself is never stored
	contact     string
	createdAt   time.Time
	updatedAt   time.Time
}

var contactRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NewOwner creates a new Owner and mints its initial API key.
// Returns the owner and the plaintext key, which is surfaced to the
// caller exactly once and never recoverable afterward.
func NewOwner(contact string) (*Owner, string, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	if !contactRegex.MatchString(contact) {
		return nil, "", errors.ValidationError{Field: "contact", Message: "must be a valid email address"}
	}

	plainKey, err := generateAPIKey()
	if err != nil {
		return nil, "", errors.NewDomainError("KEY_GENERATION_FAILED", "could not generate api key", err)
	}

	now := time.Now()
	owner := &Owner{
		id:         uuid.New(),
		apiKeyHash: hashAPIKey(plainKey),
		contact:    contact,
		createdAt:  now,
		updatedAt:  now,
	}
	return owner, plainKey, nil
}

// ReconstructOwner reconstructs an Owner from stored data.
func ReconstructOwner(id uuid.UUID, apiKeyHash, contact string, createdAt, updatedAt time.Time) *Owner {
	return &Owner{id: id, apiKeyHash: apiKeyHash, contact: contact, createdAt: createdAt, updatedAt: updatedAt}
}

func (o *Owner) ID() uuid.UUID          { return o.id }
func (o *Owner) APIKeyHash() string     { return o.apiKeyHash }
func (o *Owner) Contact() string        { return o.contact }
func (o *Owner) CreatedAt() time.Time   { return o.createdAt }
func (o *Owner) UpdatedAt() time.Time   { return o.updatedAt }

// MatchesAPIKey reports whether the given plaintext key hashes to this
// owner's stored hash.
func (o *Owner) MatchesAPIKey(plainKey string) bool {
	return o.apiKeyHash == hashAPIKey(plainKey)
}

// RotateAPIKey atomically replaces the owner's key with a freshly minted
// one and returns the new plaintext key.
func (o *Owner) RotateAPIKey() (string, error) {
	plainKey, err := generateAPIKey()
	if err != nil {
		return "", errors.NewDomainError("KEY_GENERATION_FAILED", "could not generate api key", err)
	}
	o.apiKeyHash = hashAPIKey(plainKey)
	o.updatedAt = time.Now()
	return plainKey, nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ow_" + hex.EncodeToString(buf), nil
}

func hashAPIKey(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:])
}
