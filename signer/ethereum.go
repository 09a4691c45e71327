package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// EthereumSignatureSize is the length of an [R || S || V] signature.
const EthereumSignatureSize = crypto.SignatureLength

// Ethereum is a secp256k1 wallet that signs like personal_sign (EIP-191).
type Ethereum struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewEthereum loads a wallet from a 32-byte secp256k1 secret.
func NewEthereum(secret []byte) (*Ethereum, error) {
	key, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidKeyFormat, err)
	}
	return &Ethereum{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// GenerateEthereum creates a new wallet.
func GenerateEthereum() (*Ethereum, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &Ethereum{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Sign implements Wallet. The result is 65 bytes with V in {27, 28}, as
// browser wallets return it.
func (e *Ethereum) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), e.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Address implements Wallet. The address is EIP-55 checksummed.
func (e *Ethereum) Address() string {
	return e.address.Hex()
}

// Scheme implements KeyHolder.
func (e *Ethereum) Scheme() string {
	return SchemeSecp256k1
}

// Secret returns the 32-byte secret.
func (e *Ethereum) Secret() []byte {
	return crypto.FromECDSA(e.key)
}

// VerifyEthereum recovers the signer of a personal_sign signature and
// compares it with address, ignoring hex case.
func VerifyEthereum(address string, msg, sig []byte) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, errors.ErrInvalidAddress
	}
	if len(sig) != EthereumSignatureSize {
		return false, fmt.Errorf("%w: got %d bytes, want %d", errors.ErrMalformedSignature, len(sig), EthereumSignatureSize)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return false, nil
	}
	recovered := crypto.PubkeyToAddress(*pub).Hex()
	return strings.EqualFold(recovered, address), nil
}
