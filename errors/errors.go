// Package errors provides centralized error definitions for dmthedev.
package errors

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Signing errors.
var (
	// ErrSigningUnavailable indicates the wallet could not or would not sign the challenge.
	ErrSigningUnavailable = errors.New("signing unavailable")

	// ErrUserRejected indicates the wallet owner declined the signing prompt.
	ErrUserRejected = errors.New("user rejected signing request")

	// ErrUnsupported indicates the wallet does not support message signing.
	ErrUnsupported = errors.New("signing not supported by wallet")

	// ErrMalformedSignature indicates the signer returned too few bytes.
	ErrMalformedSignature = errors.New("malformed signature")
)

// Key derivation errors.
var (
	// ErrInvalidAddress indicates an empty or unusable wallet address.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrUnknownFormat indicates a derivation format name that is not recognized.
	ErrUnknownFormat = errors.New("unknown derivation format")

	// ErrInvalidKeyLength indicates a public or secret key of the wrong size.
	ErrInvalidKeyLength = errors.New("invalid key length")
)

// Encryption errors.
var (
	// ErrInvalidEnvelope indicates a missing or wrongly sized envelope field.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrKeyMismatch indicates the secret key does not belong to the expected public key.
	ErrKeyMismatch = errors.New("key mismatch")

	// ErrDecryptionFailed indicates authenticated decryption rejected the ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrEncoding indicates a transport field is not canonical padded base64.
	ErrEncoding = errors.New("encoding error")

	// ErrInvalidPlaintext indicates message text that is not valid UTF-8 and
	// cannot be carried in a record payload unchanged.
	ErrInvalidPlaintext = errors.New("plaintext is not valid UTF-8")

	// ErrNilPayload indicates DecodePayload was called without a buffer.
	ErrNilPayload = errors.New("nil payload")
)

// Store errors.
var (
	// ErrKeyNotFound indicates no derived public key is registered for a wallet.
	ErrKeyNotFound = errors.New("key not found")

	// ErrMessageInvalid indicates a message record is missing required fields.
	ErrMessageInvalid = errors.New("invalid message record")

	// ErrStoreNotRegistered indicates the requested store type is not registered.
	ErrStoreNotRegistered = errors.New("store type not registered")

	// ErrStoreConfigInvalid indicates the store configuration is invalid.
	ErrStoreConfigInvalid = errors.New("invalid store configuration")

	// ErrStoreClosed indicates an operation on a store after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrPathTraversal indicates a mailbox or key path would escape the base directory.
	ErrPathTraversal = errors.New("path traversal")
)

// Configuration errors.
var (
	// ErrConfigInvalid indicates a configuration value failed validation.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Session errors.
var (
	// ErrSessionCleared indicates a decryption session was used after Clear.
	ErrSessionCleared = errors.New("session cleared")
)

// Keystore errors.
var (
	// ErrWalletNotFound indicates the wallet key file does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists indicates a wallet with the same name already exists.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrKeyDecryptFailed indicates the wallet key could not be decrypted.
	ErrKeyDecryptFailed = errors.New("key decryption failed")

	// ErrInvalidKeyFormat indicates the key file has an invalid format.
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// ErrUnsupportedScheme indicates a wallet signature scheme that is not implemented.
	ErrUnsupportedScheme = errors.New("unsupported signature scheme")
)

// KeyMismatchError reports which identity was used at encryption time versus
// decryption time. It matches ErrKeyMismatch with errors.Is.
type KeyMismatchError struct {
	// Expected is the public key the caller expected to decrypt with.
	Expected []byte

	// Actual is the public key recomputed from the secret key.
	Actual []byte
}

func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("key mismatch: expected public key %s, secret key belongs to %s",
		Fingerprint(e.Expected), Fingerprint(e.Actual))
}

// Is implements errors.Is for sentinel matching.
func (e *KeyMismatchError) Is(target error) bool {
	return target == ErrKeyMismatch
}

// Fingerprint returns a short hex prefix of a key, safe for logs and error text.
func Fingerprint(key []byte) string {
	const n = 8
	if len(key) == 0 {
		return "<none>"
	}
	if len(key) <= n {
		return hex.EncodeToString(key)
	}
	return hex.EncodeToString(key[:n]) + "…"
}
