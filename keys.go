package dmthedev

import (
	"context"
	"time"
)

// KeyRegistry stores each wallet's derived public key.
// Senders consult it before encrypting.
type KeyRegistry interface {
	// GetKey returns the registered key for a wallet address.
	// Returns errors.ErrKeyNotFound if the wallet has not published a key.
	GetKey(ctx context.Context, address string) (*RecipientKeyRecord, error)

	// PutKey inserts or replaces the key for a wallet address.
	// format names the derivation format that produced the key.
	PutKey(ctx context.Context, address string, publicKey []byte, format string) error
}

// RecipientKeyRecord is one registered key.
type RecipientKeyRecord struct {
	// WalletAddress is the canonical wallet address.
	WalletAddress string

	// PublicKey is the 32-byte X25519 public key.
	PublicKey []byte

	// Format is the derivation format name, e.g. "sha512-x25519".
	Format string

	// CreatedAt is when the key was last published.
	CreatedAt time.Time
}
