package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

// BinaryPreviewBytes bounds how much of a binary payload is shown.
const BinaryPreviewBytes = 48

// Kind identifies which strategy decoded a payload.
type Kind int

const (
	// KindVersioned is a current-format PlaintextRecord.
	KindVersioned Kind = iota + 1

	// KindLegacyText is raw UTF-8 text from a pre-record sender.
	KindLegacyText

	// KindBinary is a payload that is not valid UTF-8.
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindVersioned:
		return "versioned"
	case KindLegacyText:
		return "legacy-text"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is the human-readable result of decoding a payload.
type Message struct {
	// Kind reports which strategy produced Text.
	Kind Kind

	// Text is the message text, or the labeled preview for binary payloads.
	Text string

	// Record is set for KindVersioned only.
	Record *PlaintextRecord

	// Size is the length of the decoded buffer in bytes.
	Size int
}

// Strategy attempts to decode a payload. It reports false to defer to the
// next strategy.
type Strategy func(b []byte) (Message, bool)

// Strategies returns the decode strategies in the order DecodePayload tries them.
// The final strategy always succeeds.
func Strategies() []Strategy {
	return []Strategy{
		decodeVersioned,
		decodeLegacyText,
		decodeBinary,
	}
}

// DecodePayload turns decrypted bytes into a Message. It fails only when b is nil.
func DecodePayload(b []byte) (Message, error) {
	if b == nil {
		return Message{}, errors.ErrNilPayload
	}
	for _, strategy := range Strategies() {
		if msg, ok := strategy(b); ok {
			return msg, nil
		}
	}
	// decodeBinary accepts everything.
	panic("codec: no strategy accepted payload")
}

// wireRecord distinguishes absent fields from zero values.
type wireRecord struct {
	Version   *json.RawMessage `json:"version"`
	Payload   *json.RawMessage `json:"payload"`
	Timestamp string           `json:"timestamp"`
}

func decodeVersioned(b []byte) (Message, bool) {
	if !utf8.Valid(b) {
		return Message{}, false
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return Message{}, false
	}
	if dec.More() {
		return Message{}, false
	}
	if w.Version == nil || w.Payload == nil {
		return Message{}, false
	}
	// Only a bare JSON integer counts; "1" and 1.0 do not.
	version, err := strconv.ParseInt(string(*w.Version), 10, 64)
	if err != nil || version < 1 {
		return Message{}, false
	}
	if len(*w.Payload) == 0 || (*w.Payload)[0] != '"' {
		return Message{}, false
	}
	var payload string
	if err := json.Unmarshal(*w.Payload, &payload); err != nil {
		return Message{}, false
	}

	rec := &PlaintextRecord{
		Version:   int(version),
		Payload:   payload,
		Timestamp: w.Timestamp,
	}
	return Message{Kind: KindVersioned, Text: payload, Record: rec, Size: len(b)}, true
}

func decodeLegacyText(b []byte) (Message, bool) {
	if !utf8.Valid(b) {
		return Message{}, false
	}
	return Message{Kind: KindLegacyText, Text: string(b), Size: len(b)}, true
}

func decodeBinary(b []byte) (Message, bool) {
	return Message{Kind: KindBinary, Text: BinaryPreview(b), Size: len(b)}, true
}

// BinaryPreview renders b as "[binary <n> bytes] base64:<prefix>", truncating
// the base64 prefix to BinaryPreviewBytes of input.
func BinaryPreview(b []byte) string {
	preview := b
	suffix := ""
	if len(preview) > BinaryPreviewBytes {
		preview = preview[:BinaryPreviewBytes]
		suffix = "…"
	}
	return fmt.Sprintf("[binary %d bytes] base64:%s%s",
		len(b), base64.StdEncoding.EncodeToString(preview), suffix)
}
