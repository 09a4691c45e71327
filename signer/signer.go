// Package signer provides wallet signers: the only components that hold a
// long-lived secret. Each exposes Sign over arbitrary bytes and the wallet's
// public address, and never hands out the private key except to the keystore.
//
// Both implementations are deterministic (ed25519 by construction,
// secp256k1 via RFC 6979), which key derivation depends on.
package signer

import (
	"context"
	"fmt"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// Signature schemes understood by FromSecret.
const (
	SchemeEd25519   = "ed25519"
	SchemeSecp256k1 = "secp256k1"
)

// Wallet signs messages on behalf of an address.
type Wallet interface {
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	Address() string
}

// KeyHolder is implemented by local wallets whose secret can be exported to
// the keystore.
type KeyHolder interface {
	Wallet
	Scheme() string
	Secret() []byte
}

// FromSecret rebuilds a local wallet from its exported secret.
func FromSecret(scheme string, secret []byte) (KeyHolder, error) {
	switch scheme {
	case SchemeEd25519:
		return NewSolana(secret)
	case SchemeSecp256k1:
		return NewEthereum(secret)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedScheme, scheme)
	}
}

// Generate creates a new local wallet for scheme.
func Generate(scheme string) (KeyHolder, error) {
	switch scheme {
	case SchemeEd25519:
		return GenerateSolana(nil)
	case SchemeSecp256k1:
		return GenerateEthereum()
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedScheme, scheme)
	}
}

// Rejecting is a wallet that refuses every signing request with Err.
type Rejecting struct {
	Addr string
	Err  error
}

// Sign implements Wallet.
func (r Rejecting) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if r.Err == nil {
		return nil, errors.ErrUserRejected
	}
	return nil, r.Err
}

// Address implements Wallet.
func (r Rejecting) Address() string {
	return r.Addr
}
