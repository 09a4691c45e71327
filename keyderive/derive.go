// Package keyderive reconstructs a wallet's message-encryption keypair from a
// signature over a fixed challenge, so the secret key never needs to be stored.
//
// The wallet signs "<prefix>:<address>"; the signature is hashed and the first
// 32 bytes of the digest become an X25519 secret key. Re-signing the same
// challenge with a deterministic signature scheme (ed25519, RFC 6979 ECDSA)
// reproduces the same keypair. Randomized signers break this and cannot be
// detected here.
package keyderive

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

const (
	// KeySize is the size of X25519 public and secret keys.
	KeySize = 32

	// MinSignatureSize is the shortest signature accepted as derivation input.
	MinSignatureSize = 32
)

// Signer produces a signature over arbitrary bytes.
// It mirrors dmthedev.Signer so this package has no upward import.
type Signer interface {
	Sign(ctx context.Context, msg []byte) ([]byte, error)
}

// KeyPair is a derived X25519 keypair. Call Wipe when done with it.
type KeyPair struct {
	PublicKey [KeySize]byte
	SecretKey [KeySize]byte

	// Format is the name of the format the pair was derived with.
	Format string
}

// Wipe zeroes the secret key.
func (k *KeyPair) Wipe() {
	if k == nil {
		return
	}
	wipe(k.SecretKey[:])
}

// Challenge returns the bytes a wallet signs to derive its key under format f.
// The address is canonicalized first so hex case does not change the key.
func Challenge(f Format, walletAddress string) ([]byte, error) {
	walletAddress = CanonicalAddress(walletAddress)
	if walletAddress == "" {
		return nil, errors.ErrInvalidAddress
	}
	return []byte(f.ChallengePrefix + ":" + walletAddress), nil
}

// Derive asks the signer to sign the current-format challenge for walletAddress
// and derives the keypair from the signature.
func Derive(ctx context.Context, signer Signer, walletAddress string) (*KeyPair, error) {
	return DeriveWithFormat(ctx, signer, walletAddress, Current)
}

// DeriveWithFormat is Derive with an explicit format, used to re-derive keys
// that were published under a legacy format.
func DeriveWithFormat(ctx context.Context, signer Signer, walletAddress string, f Format) (*KeyPair, error) {
	challenge, err := Challenge(f, walletAddress)
	if err != nil {
		return nil, err
	}

	sig, err := signer.Sign(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSigningUnavailable, err)
	}
	defer wipe(sig)

	return DeriveFromSignature(sig, f)
}

// DeriveFromSignature derives the keypair from signature bytes already obtained.
func DeriveFromSignature(sig []byte, f Format) (*KeyPair, error) {
	if len(sig) < MinSignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", errors.ErrMalformedSignature, len(sig), MinSignatureSize)
	}
	if f.hash == nil {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownFormat, f.Name)
	}

	digest := f.hash(sig)
	defer wipe(digest)

	kp := &KeyPair{Format: f.Name}
	copy(kp.SecretKey[:], digest[:KeySize])

	pub, err := curve25519.X25519(kp.SecretKey[:], curve25519.Basepoint)
	if err != nil {
		kp.Wipe()
		return nil, fmt.Errorf("compute public key: %w", err)
	}
	copy(kp.PublicKey[:], pub)
	return kp, nil
}

// PublicKeyFromSecret recomputes the X25519 public key for a secret key.
func PublicKeyFromSecret(secret []byte) ([]byte, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", errors.ErrInvalidKeyLength, len(secret), KeySize)
	}
	return curve25519.X25519(secret, curve25519.Basepoint)
}

// Matches reports whether secret is the secret half of publicKey.
func Matches(secret, publicKey []byte) bool {
	pub, err := PublicKeyFromSecret(secret)
	if err != nil || len(publicKey) != KeySize {
		return false
	}
	return subtle.ConstantTimeCompare(pub, publicKey) == 1
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
