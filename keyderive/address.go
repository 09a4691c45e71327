package keyderive

import "strings"

// CanonicalAddress returns the form of a wallet address used in challenges
// and as a store key. Hex addresses (0x + 40 hex digits) are case-insensitive
// and are lowercased; anything else, such as base58, is case-sensitive and
// only trimmed.
func CanonicalAddress(address string) string {
	address = strings.TrimSpace(address)
	if isHexAddress(address) {
		return "0x" + strings.ToLower(address[2:])
	}
	return address
}

func isHexAddress(s string) bool {
	if len(s) != 42 || (s[:2] != "0x" && s[:2] != "0X") {
		return false
	}
	for i := 2; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
