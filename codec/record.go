// Package codec converts between message text and the plaintext bytes sealed
// inside an envelope.
//
// Current senders wrap text in a versioned JSON record:
//
//	{"version":1,"payload":"hello","timestamp":"2026-10-19T12:00:00Z"}
//
// Older senders sealed raw text, and corrupted or foreign senders may seal
// arbitrary bytes. DecodePayload accepts all three so that any successfully
// decrypted buffer renders deterministically.
package codec

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// CurrentVersion is the record format written by EncodeRecord.
const CurrentVersion = 1

// PlaintextRecord wraps a message before encryption.
type PlaintextRecord struct {
	Version   int    `json:"version"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp,omitempty"`
}

// EncodeRecord wraps text in a record at CurrentVersion and serializes it.
// A zero now omits the timestamp. Text must be valid UTF-8: JSON would
// otherwise replace the offending bytes with U+FFFD.
func EncodeRecord(text string, now time.Time) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: invalid byte at offset %d", errors.ErrInvalidPlaintext, invalidOffset(text))
	}
	rec := PlaintextRecord{
		Version: CurrentVersion,
		Payload: text,
	}
	if !now.IsZero() {
		rec.Timestamp = now.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

// invalidOffset returns the byte offset of the first invalid UTF-8 sequence.
func invalidOffset(s string) int {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size <= 1 {
				return i
			}
		}
	}
	return len(s)
}
