// Package engine seals message text for a recipient's derived public key and
// opens it again with the matching secret key.
//
// Every message uses a fresh ephemeral X25519 keypair and a fresh random
// nonce, and is sealed with NaCl box (X25519 + XSalsa20-Poly1305). The
// ephemeral secret is discarded as soon as the box is sealed.
package engine

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/nacl/box"

	"github.com/TrendsAI-bit/dmthedev/codec"
	"github.com/TrendsAI-bit/dmthedev/errors"
	"github.com/TrendsAI-bit/dmthedev/keyderive"
)

const (
	// Algorithm is the algorithm identifier for sealed envelopes.
	Algorithm = "x25519-xsalsa20-poly1305"

	// KeySize is the size of an X25519 public or secret key.
	KeySize = 32

	// NonceSize is the size of the NaCl box nonce.
	NonceSize = 24

	// Overhead is the size of the Poly1305 tag added to every ciphertext.
	Overhead = box.Overhead
)

// Sealer encrypts messages. The zero value uses crypto/rand and time.Now.
type Sealer struct {
	// Rand supplies ephemeral keys and nonces. It must be a CSPRNG outside tests.
	Rand io.Reader

	// Now stamps the plaintext record.
	Now func() time.Time
}

var defaultSealer Sealer

// Encrypt seals plaintext for recipientPublicKey using the default Sealer.
func Encrypt(plaintext string, recipientPublicKey []byte) (*Envelope, error) {
	return defaultSealer.Encrypt(plaintext, recipientPublicKey)
}

// Encrypt seals plaintext for recipientPublicKey.
func (s Sealer) Encrypt(plaintext string, recipientPublicKey []byte) (*Envelope, error) {
	if len(recipientPublicKey) != KeySize {
		return nil, fmt.Errorf("%w: recipient public key is %d bytes, want %d", errors.ErrInvalidKeyLength, len(recipientPublicKey), KeySize)
	}
	if !utf8.ValidString(plaintext) {
		return nil, errors.ErrInvalidPlaintext
	}

	random := s.Rand
	if random == nil {
		random = rand.Reader
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	ephemeralPub, ephemeralPriv, err := box.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	defer wipe(ephemeralPriv[:])

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	record, err := codec.EncodeRecord(plaintext, now())
	if err != nil {
		return nil, err
	}
	defer wipe(record)

	var recipientKey [KeySize]byte
	copy(recipientKey[:], recipientPublicKey)

	ciphertext := box.Seal(nil, record, &nonce, &recipientKey, ephemeralPriv)

	return &Envelope{
		Ciphertext:         ciphertext,
		Nonce:              nonce[:],
		EphemeralPublicKey: ephemeralPub[:],
	}, nil
}

// Decrypt opens env with recipientSecretKey and decodes the payload.
// If expectedPublicKey is non-nil, the secret key must belong to it or
// Decrypt fails with a *errors.KeyMismatchError before attempting to open.
func Decrypt(env *Envelope, recipientSecretKey, expectedPublicKey []byte) (codec.Message, error) {
	if err := env.Validate(); err != nil {
		return codec.Message{}, err
	}
	if expectedPublicKey != nil {
		if err := checkKey(recipientSecretKey, expectedPublicKey); err != nil {
			return codec.Message{}, err
		}
	}
	plaintext, err := Open(env, recipientSecretKey)
	if err != nil {
		return codec.Message{}, err
	}
	defer wipe(plaintext)
	return codec.DecodePayload(plaintext)
}

// Open authenticates and decrypts env, returning the raw plaintext bytes.
func Open(env *Envelope, recipientSecretKey []byte) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if len(recipientSecretKey) != KeySize {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", errors.ErrInvalidKeyLength, len(recipientSecretKey), KeySize)
	}
	// X25519 ignores the top bit of a public key, so a flipped top bit
	// would still open. Honest senders never set it.
	if env.EphemeralPublicKey[KeySize-1]&0x80 != 0 {
		return nil, fmt.Errorf("%w: non-canonical ephemeral public key", errors.ErrDecryptionFailed)
	}

	var ephemeralPub [KeySize]byte
	copy(ephemeralPub[:], env.EphemeralPublicKey)

	var nonce [NonceSize]byte
	copy(nonce[:], env.Nonce)

	var secret [KeySize]byte
	copy(secret[:], recipientSecretKey)
	defer wipe(secret[:])

	plaintext, ok := box.Open(nil, env.Ciphertext, &nonce, &ephemeralPub, &secret)
	if !ok {
		return nil, errors.ErrDecryptionFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func checkKey(secret, expected []byte) error {
	if len(expected) != KeySize {
		return fmt.Errorf("%w: expected public key is %d bytes, want %d", errors.ErrInvalidKeyLength, len(expected), KeySize)
	}
	actual, err := keyderive.PublicKeyFromSecret(secret)
	if err != nil {
		return err
	}
	if !keyderive.Matches(secret, expected) {
		return &errors.KeyMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
