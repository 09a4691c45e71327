package engine

import (
	"bytes"
	"crypto/rand"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/nacl/box"

	"github.com/TrendsAI-bit/dmthedev/codec"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

// generateTestKeyPair generates an X25519 key pair for testing.
func generateTestKeyPair() (publicKey, privateKey []byte) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return pub[:], priv[:]
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()

	messages := []string{"hello", "", "gm\nwagmi", strings.Repeat("x", 64*1024), "🦉 ünïcødé"}
	for _, message := range messages {
		env, err := Encrypt(message, pubKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if err := env.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}

		msg, err := Decrypt(env, privKey, nil)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if msg.Text != message {
			t.Errorf("decrypted message mismatch: got %q, want %q", msg.Text, message)
		}
		if msg.Kind != codec.KindVersioned {
			t.Errorf("Kind = %v, want %v", msg.Kind, codec.KindVersioned)
		}
	}
}

func TestEncrypt_Scenario(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()
	_, otherPriv := generateTestKeyPair()

	env, err := Encrypt("hello", pubKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	msg, err := Decrypt(env, privKey, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if msg.Text != "hello" {
		t.Errorf("got %q, want %q", msg.Text, "hello")
	}

	if _, err := Decrypt(env, otherPriv, nil); err != errors.ErrDecryptionFailed {
		t.Errorf("expected ErrDecryptionFailed with unrelated key, got %v", err)
	}
}

func TestEncrypt_FreshEphemeralAndNonce(t *testing.T) {
	pubKey, _ := generateTestKeyPair()

	seenNonces := make(map[string]bool)
	seenKeys := make(map[string]bool)
	for i := 0; i < 50; i++ {
		env, err := Encrypt("same plaintext", pubKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if seenNonces[string(env.Nonce)] {
			t.Fatal("nonce reused")
		}
		if seenKeys[string(env.EphemeralPublicKey)] {
			t.Fatal("ephemeral public key reused")
		}
		seenNonces[string(env.Nonce)] = true
		seenKeys[string(env.EphemeralPublicKey)] = true
	}
}

func TestEncrypt_InvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 31, 33, 64} {
		_, err := Encrypt("hi", make([]byte, n))
		if !stderrors.Is(err, errors.ErrInvalidKeyLength) {
			t.Errorf("key of %d bytes: expected ErrInvalidKeyLength, got %v", n, err)
		}
	}
}

func TestEncrypt_InvalidUTF8(t *testing.T) {
	pubKey, _ := generateTestKeyPair()

	tests := []struct {
		name string
		text string
	}{
		{"lone continuation byte", "a\xffb"},
		{"truncated sequence", "caf\xc3"},
		{"surrogate half", "\xed\xa0\x80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Encrypt(tt.text, pubKey)
			if !stderrors.Is(err, errors.ErrInvalidPlaintext) {
				t.Fatalf("expected ErrInvalidPlaintext, got %v", err)
			}
			if env != nil {
				t.Error("expected no envelope for invalid plaintext")
			}
		})
	}
}

func TestSealer_DeterministicWithInjectedSources(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()
	fixed := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	s := Sealer{
		Rand: bytes.NewReader(bytes.Repeat([]byte{7}, 64)),
		Now:  func() time.Time { return fixed },
	}
	env, err := s.Encrypt("stamped", pubKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !bytes.Equal(env.Nonce, bytes.Repeat([]byte{7}, NonceSize)) {
		t.Error("nonce not drawn from injected reader")
	}

	msg, err := Decrypt(env, privKey, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if msg.Record == nil || msg.Record.Timestamp != "2026-10-19T00:00:00Z" {
		t.Errorf("Record = %+v, want timestamp from injected clock", msg.Record)
	}

	exhausted := Sealer{Rand: bytes.NewReader(make([]byte, 40))}
	if _, err := exhausted.Encrypt("x", pubKey); err == nil {
		t.Error("expected error when random source is exhausted")
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()
	env, err := Encrypt("tamper me", pubKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	fields := []struct {
		name string
		get  func(e *Envelope) []byte
	}{
		{"ciphertext", func(e *Envelope) []byte { return e.Ciphertext }},
		{"nonce", func(e *Envelope) []byte { return e.Nonce }},
		{"ephemeralPublicKey", func(e *Envelope) []byte { return e.EphemeralPublicKey }},
	}

	for _, f := range fields {
		t.Run(f.name, func(t *testing.T) {
			n := len(f.get(env))
			for i := 0; i < n*8; i++ {
				tampered := cloneEnvelope(env)
				f.get(tampered)[i/8] ^= 1 << (i % 8)

				msg, err := Decrypt(tampered, privKey, nil)
				if !stderrors.Is(err, errors.ErrDecryptionFailed) {
					t.Fatalf("bit %d: expected ErrDecryptionFailed, got %v (text %q)", i, err, msg.Text)
				}
			}
		})
	}
}

func TestDecrypt_KeyMismatch(t *testing.T) {
	pubA, _ := generateTestKeyPair()
	pubB, privB := generateTestKeyPair()

	env, err := Encrypt("for A", pubA)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(env, privB, pubA)
	if !stderrors.Is(err, errors.ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	var mismatch *errors.KeyMismatchError
	if !stderrors.As(err, &mismatch) {
		t.Fatalf("expected *KeyMismatchError, got %T", err)
	}
	if !bytes.Equal(mismatch.Expected, pubA) || !bytes.Equal(mismatch.Actual, pubB) {
		t.Error("mismatch error does not name both keys")
	}
	if !strings.Contains(err.Error(), errors.Fingerprint(pubA)) || !strings.Contains(err.Error(), errors.Fingerprint(pubB)) {
		t.Errorf("error text should include both fingerprints: %v", err)
	}

	if _, err := Decrypt(env, privB, nil); err != errors.ErrDecryptionFailed {
		t.Errorf("without expected key: expected ErrDecryptionFailed, got %v", err)
	}

	if _, err := Decrypt(env, privB, pubB); err != errors.ErrDecryptionFailed {
		t.Errorf("with matching expected key: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecrypt_InvalidEnvelope(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()
	env, err := Encrypt("valid", pubKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(e *Envelope)
	}{
		{"missing nonce", func(e *Envelope) { e.Nonce = nil }},
		{"short nonce", func(e *Envelope) { e.Nonce = e.Nonce[:12] }},
		{"missing ephemeral key", func(e *Envelope) { e.EphemeralPublicKey = nil }},
		{"long ephemeral key", func(e *Envelope) { e.EphemeralPublicKey = append(e.EphemeralPublicKey, 0) }},
		{"missing ciphertext", func(e *Envelope) { e.Ciphertext = nil }},
		{"tag only", func(e *Envelope) { e.Ciphertext = e.Ciphertext[:Overhead] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := cloneEnvelope(env)
			tt.mutate(bad)
			_, err := Decrypt(bad, privKey, pubKey)
			if !stderrors.Is(err, errors.ErrInvalidEnvelope) {
				t.Errorf("expected ErrInvalidEnvelope, got %v", err)
			}
		})
	}

	if _, err := Decrypt(nil, privKey, nil); !stderrors.Is(err, errors.ErrInvalidEnvelope) {
		t.Errorf("nil envelope: expected ErrInvalidEnvelope, got %v", err)
	}
	if _, err := Decrypt(env, privKey[:16], nil); !stderrors.Is(err, errors.ErrInvalidKeyLength) {
		t.Errorf("short secret: expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := Decrypt(env, privKey, pubKey[:16]); !stderrors.Is(err, errors.ErrInvalidKeyLength) {
		t.Errorf("short expected key: expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestOpen_LegacyAndBinaryPayloads(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()

	seal := func(payload []byte) *Envelope {
		ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		var nonce [NonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			t.Fatalf("rand.Read failed: %v", err)
		}
		var recipient [KeySize]byte
		copy(recipient[:], pubKey)
		return &Envelope{
			Ciphertext:         box.Seal(nil, payload, &nonce, &recipient, ephPriv),
			Nonce:              nonce[:],
			EphemeralPublicKey: ephPub[:],
		}
	}

	legacy, err := Decrypt(seal([]byte("old style message")), privKey, pubKey)
	if err != nil {
		t.Fatalf("Decrypt legacy failed: %v", err)
	}
	if legacy.Kind != codec.KindLegacyText || legacy.Text != "old style message" {
		t.Errorf("legacy = %+v", legacy)
	}

	binary, err := Decrypt(seal([]byte{0xFF, 0xFE, 0x00, 0x01}), privKey, pubKey)
	if err != nil {
		t.Fatalf("Decrypt binary failed: %v", err)
	}
	if binary.Kind != codec.KindBinary {
		t.Errorf("Kind = %v, want %v", binary.Kind, codec.KindBinary)
	}

	raw, err := Open(seal([]byte("raw")), privKey)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(raw) != "raw" {
		t.Errorf("Open = %q, want %q", raw, "raw")
	}
}

func TestWireEnvelope_RoundTrip(t *testing.T) {
	pubKey, privKey := generateTestKeyPair()
	env, err := Encrypt("over the wire", pubKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	wire := env.ToWire()
	decoded, err := FromWire(wire)
	if err != nil {
		t.Fatalf("FromWire failed: %v", err)
	}
	msg, err := Decrypt(decoded, privKey, pubKey)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if msg.Text != "over the wire" {
		t.Errorf("got %q", msg.Text)
	}
}

func TestDecodeBase64_Strict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"canonical", "aGVsbG8=", false},
		{"empty", "", false},
		{"no padding", "aGVsbG8", true},
		{"url alphabet", "-_-_", true},
		{"embedded newline", "aGVs\nbG8=", true},
		{"embedded space", "aGVs bG8=", true},
		{"trailing bits set", "aGVsbG9=", true},
		{"bad padding position", "aG=sbG8=", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBase64("nonce", tt.input)
			if tt.wantErr {
				if !stderrors.Is(err, errors.ErrEncoding) {
					t.Errorf("expected ErrEncoding, got %v", err)
				}
				if err != nil && !strings.Contains(err.Error(), "nonce") {
					t.Errorf("error should name the field: %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFromWire_RejectsEachField(t *testing.T) {
	pubKey, _ := generateTestKeyPair()
	env, err := Encrypt("x", pubKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	good := env.ToWire()

	for _, field := range []string{"ciphertext", "nonce", "ephemeralPublicKey"} {
		w := good
		switch field {
		case "ciphertext":
			w.Ciphertext = " " + w.Ciphertext
		case "nonce":
			w.Nonce = strings.TrimRight(w.Nonce, "=")
		case "ephemeralPublicKey":
			w.EphemeralPublicKey = "!!!!"
		}
		_, err := FromWire(w)
		if !stderrors.Is(err, errors.ErrEncoding) {
			t.Errorf("%s: expected ErrEncoding, got %v", field, err)
		}
		if err != nil && !strings.Contains(err.Error(), field) {
			t.Errorf("%s: error should name the field: %v", field, err)
		}
	}
}

func cloneEnvelope(e *Envelope) *Envelope {
	return &Envelope{
		Ciphertext:         append([]byte(nil), e.Ciphertext...),
		Nonce:              append([]byte(nil), e.Nonce...),
		EphemeralPublicKey: append([]byte(nil), e.EphemeralPublicKey...),
	}
}
