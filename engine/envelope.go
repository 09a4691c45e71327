package engine

import (
	"encoding/base64"
	"fmt"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// Envelope is the output of one encryption: a NaCl box ciphertext, its nonce,
// and the public half of the single-use sender key.
type Envelope struct {
	Ciphertext         []byte
	Nonce              []byte
	EphemeralPublicKey []byte
}

// Validate checks field presence and sizes.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", errors.ErrInvalidEnvelope)
	}
	if len(e.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce is %d bytes, want %d", errors.ErrInvalidEnvelope, len(e.Nonce), NonceSize)
	}
	if len(e.EphemeralPublicKey) != KeySize {
		return fmt.Errorf("%w: ephemeral public key is %d bytes, want %d", errors.ErrInvalidEnvelope, len(e.EphemeralPublicKey), KeySize)
	}
	if len(e.Ciphertext) <= Overhead {
		return fmt.Errorf("%w: ciphertext is %d bytes, want more than %d", errors.ErrInvalidEnvelope, len(e.Ciphertext), Overhead)
	}
	return nil
}

// WireEnvelope is the transport form of an Envelope: every field is standard
// padded base64.
type WireEnvelope struct {
	Ciphertext         string `json:"ciphertext"`
	Nonce              string `json:"nonce"`
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
}

// ToWire encodes the envelope for transport.
func (e *Envelope) ToWire() WireEnvelope {
	return WireEnvelope{
		Ciphertext:         base64.StdEncoding.EncodeToString(e.Ciphertext),
		Nonce:              base64.StdEncoding.EncodeToString(e.Nonce),
		EphemeralPublicKey: base64.StdEncoding.EncodeToString(e.EphemeralPublicKey),
	}
}

// FromWire decodes a transport envelope. Fields that are not canonical padded
// base64 fail with ErrEncoding; sizes are checked later by Validate.
func FromWire(w WireEnvelope) (*Envelope, error) {
	ct, err := DecodeBase64("ciphertext", w.Ciphertext)
	if err != nil {
		return nil, err
	}
	nonce, err := DecodeBase64("nonce", w.Nonce)
	if err != nil {
		return nil, err
	}
	eph, err := DecodeBase64("ephemeralPublicKey", w.EphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	return &Envelope{Ciphertext: ct, Nonce: nonce, EphemeralPublicKey: eph}, nil
}

// EncodeBase64 encodes bytes as standard padded base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard padded base64, rejecting whitespace,
// missing padding and non-zero trailing bits. field names the value in errors.
func DecodeBase64(field, s string) ([]byte, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("%w: %s: length %d is not a multiple of 4", errors.ErrEncoding, field, len(s))
	}
	for i := 0; i < len(s); i++ {
		if !isBase64Char(s[i]) {
			return nil, fmt.Errorf("%w: %s: invalid character at offset %d", errors.ErrEncoding, field, i)
		}
	}
	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrEncoding, field, err)
	}
	return b, nil
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+', c == '/', c == '=':
		return true
	}
	return false
}
