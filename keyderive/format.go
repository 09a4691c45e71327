package keyderive

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// Format fixes every input that determines a derived key: the challenge
// wording and the hash applied to the signature. Changing either silently
// changes every user's key, so a change needs a new Format.
type Format struct {
	// Name is recorded next to the public key in the key registry.
	Name string

	// ChallengePrefix precedes the wallet address in the signed challenge.
	ChallengePrefix string

	// Legacy marks formats kept only so old keys can still be re-derived.
	Legacy bool

	hash func([]byte) []byte
}

// Current is the format used for all new key publications.
var Current = Format{
	Name:            "sha512-x25519",
	ChallengePrefix: "dmthedev:message-encryption:v1",
	hash: func(b []byte) []byte {
		sum := sha512.Sum512(b)
		return sum[:]
	},
}

// LegacySHA256 re-derives keys published before the challenge was versioned.
var LegacySHA256 = Format{
	Name:            "sha256-x25519",
	ChallengePrefix: "dmthedev:encryption-key",
	Legacy:          true,
	hash: func(b []byte) []byte {
		sum := sha256.Sum256(b)
		return sum[:]
	},
}

// Formats lists every supported format, current first.
func Formats() []Format {
	return []Format{Current, LegacySHA256}
}

// FormatByName resolves a format name stored in the key registry.
// An empty name resolves to Current.
func FormatByName(name string) (Format, error) {
	if name == "" {
		return Current, nil
	}
	for _, f := range Formats() {
		if f.Name == name {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %q", errors.ErrUnknownFormat, name)
}

func (f Format) String() string {
	if f.Legacy {
		return f.Name + " (legacy)"
	}
	return f.Name
}
