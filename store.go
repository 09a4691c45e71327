package dmthedev

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TrendsAI-bit/dmthedev/engine"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

// MessageStore is an append-only log of sealed messages.
type MessageStore interface {
	// Append stores a message. An empty ID is replaced with a new UUID.
	// Stored messages are never modified or deleted.
	Append(ctx context.Context, msg *StoredMessage) error

	// ListFor returns the messages addressed to a wallet, newest first.
	// A wallet with no messages yields an empty slice, not an error.
	ListFor(ctx context.Context, address string) ([]StoredMessage, error)
}

// StoredMessage is one sealed message and its routing metadata.
type StoredMessage struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`

	// SenderAddress is the canonical address of the sender.
	SenderAddress string `json:"senderAddress"`

	// RecipientAddress is the canonical address of the recipient.
	RecipientAddress string `json:"recipientAddress"`

	// Envelope holds the base64 ciphertext, nonce and ephemeral public key.
	Envelope engine.WireEnvelope `json:"envelope"`

	// CreatedAt is when the message was stored.
	CreatedAt time.Time `json:"createdAt"`
}

// Prepare fills in a missing ID and creation time and checks required fields.
// Backends call it from Append.
func (m *StoredMessage) Prepare(now time.Time) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", errors.ErrMessageInvalid)
	}
	if m.RecipientAddress == "" {
		return fmt.Errorf("%w: missing recipient", errors.ErrMessageInvalid)
	}
	if m.SenderAddress == "" {
		return fmt.Errorf("%w: missing sender", errors.ErrMessageInvalid)
	}
	if m.Envelope.Ciphertext == "" || m.Envelope.Nonce == "" || m.Envelope.EphemeralPublicKey == "" {
		return fmt.Errorf("%w: incomplete envelope", errors.ErrMessageInvalid)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
	return nil
}
