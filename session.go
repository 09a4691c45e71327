package dmthedev

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/TrendsAI-bit/dmthedev/codec"
	"github.com/TrendsAI-bit/dmthedev/engine"
	"github.com/TrendsAI-bit/dmthedev/errors"
	"github.com/TrendsAI-bit/dmthedev/keyderive"
)

// Session holds a wallet's re-derived keypair while its inbox is read.
// The secret key lives in memory only for the session and is zeroed by Clear.
type Session struct {
	// Address is the canonical wallet address the keys were derived for.
	Address string

	// Format is the derivation format the keys were derived with.
	Format keyderive.Format

	mu       sync.Mutex
	keys     *keyderive.KeyPair
	expected []byte
}

func newSession(address string, f keyderive.Format, keys *keyderive.KeyPair, expected []byte) *Session {
	return &Session{
		Address:  address,
		Format:   f,
		keys:     keys,
		expected: expected,
	}
}

// PublicKey returns a copy of the session's derived public key,
// or nil after Clear.
func (s *Session) PublicKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		return nil
	}
	pub := make([]byte, keyderive.KeySize)
	copy(pub, s.keys.PublicKey[:])
	return pub
}

// Decrypt opens one stored message. Failures are reported in Received.Err
// rather than returned, so one bad message never hides the rest.
func (s *Session) Decrypt(msg StoredMessage) Received {
	r := Received{Message: msg}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		r.Err = errors.ErrSessionCleared
		return r
	}

	env, err := engine.FromWire(msg.Envelope)
	if err != nil {
		r.Err = err
		return r
	}
	decoded, err := engine.Decrypt(env, s.keys.SecretKey[:], s.expected)
	if err != nil {
		r.Err = err
		return r
	}
	r.Decoded = decoded
	return r
}

// Open authenticates and decrypts one stored message without decoding the
// plaintext record. The caller owns the returned bytes.
func (s *Session) Open(msg StoredMessage) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		return nil, errors.ErrSessionCleared
	}

	env, err := engine.FromWire(msg.Envelope)
	if err != nil {
		return nil, err
	}
	return engine.Open(env, s.keys.SecretKey[:])
}

// Clear zeros the secret key. The session is unusable afterwards.
// Clear is safe to call more than once.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys != nil {
		s.keys.Wipe()
		s.keys = nil
	}
}

// Received is the outcome of opening one stored message.
type Received struct {
	// Message is the stored record as read from the MessageStore.
	Message StoredMessage

	// Decoded holds the message text when Err is nil.
	Decoded codec.Message

	// Err explains why the message could not be read.
	Err error
}

// Status labels for Received.Status.
const (
	StatusOK               = "ok"
	StatusKeyMismatch      = "key-mismatch"
	StatusDecryptionFailed = "decryption-failed"
	StatusInvalidEnvelope  = "invalid-envelope"
	StatusEncodingError    = "encoding-error"
	StatusError            = "error"
)

// Status returns a short label for the outcome, suitable for display and
// metric labels.
func (r Received) Status() string {
	switch {
	case r.Err == nil:
		return StatusOK
	case stderrors.Is(r.Err, errors.ErrKeyMismatch):
		return StatusKeyMismatch
	case stderrors.Is(r.Err, errors.ErrDecryptionFailed):
		return StatusDecryptionFailed
	case stderrors.Is(r.Err, errors.ErrInvalidEnvelope):
		return StatusInvalidEnvelope
	case stderrors.Is(r.Err, errors.ErrEncoding):
		return StatusEncodingError
	default:
		return StatusError
	}
}

// Text returns the decoded text, or a bracketed status label when the
// message could not be read. It never returns an empty string for a failure.
func (r Received) Text() string {
	if r.Err != nil {
		return fmt.Sprintf("[%s] %v", r.Status(), r.Err)
	}
	return r.Decoded.Text
}
