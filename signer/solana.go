package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/mr-tron/base58"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// Solana is an ed25519 wallet addressed by the base58 encoding of its public key.
type Solana struct {
	key ed25519.PrivateKey
}

// NewSolana loads a wallet from a 32-byte seed or a 64-byte Solana keypair
// (seed || public key, as written by solana-keygen).
func NewSolana(secret []byte) (*Solana, error) {
	switch len(secret) {
	case ed25519.SeedSize:
		return &Solana{key: ed25519.NewKeyFromSeed(secret)}, nil
	case ed25519.PrivateKeySize:
		key := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		if string(key[ed25519.SeedSize:]) != string(secret[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: keypair public half does not match seed", errors.ErrInvalidKeyFormat)
		}
		return &Solana{key: key}, nil
	default:
		return nil, fmt.Errorf("%w: ed25519 secret is %d bytes", errors.ErrInvalidKeyLength, len(secret))
	}
}

// GenerateSolana creates a new wallet. A nil random uses crypto/rand.
func GenerateSolana(random io.Reader) (*Solana, error) {
	if random == nil {
		random = rand.Reader
	}
	_, key, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Solana{key: key}, nil
}

// Sign implements Wallet.
func (s *Solana) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(s.key, msg), nil
}

// Address implements Wallet.
func (s *Solana) Address() string {
	return base58.Encode(s.key.Public().(ed25519.PublicKey))
}

// Scheme implements KeyHolder.
func (s *Solana) Scheme() string {
	return SchemeEd25519
}

// Secret returns a copy of the 32-byte seed.
func (s *Solana) Secret() []byte {
	return append([]byte(nil), s.key.Seed()...)
}

// VerifySolana checks an ed25519 signature against a base58 address.
func VerifySolana(address string, msg, sig []byte) (bool, error) {
	pub, err := base58.Decode(address)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrInvalidAddress, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: decoded to %d bytes", errors.ErrInvalidAddress, len(pub))
	}
	return ed25519.Verify(pub, msg, sig), nil
}
