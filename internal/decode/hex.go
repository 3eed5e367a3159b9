package decode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOddLength is returned for hex strings with an odd number of digits.
	ErrOddLength = errors.New("decode: odd-length hex string")

	// ErrInvalidHex is returned when a line contains non-hex characters.
	ErrInvalidHex = errors.New("decode: invalid hex")
)

// NormalizeHex strips surrounding whitespace, quotes and a b'...' byte
// literal wrapper from s.
func NormalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "b'") || strings.HasPrefix(s, `b"`) {
		s = s[1:]
	}
	s = strings.Trim(s, `'"`)
	return strings.TrimSpace(s)
}

// ParseHexLine normalises s and unhexes it. Parity is checked before any
// character is decoded, so an odd-length string is always reported as
// ErrOddLength even if it also contains invalid characters.
func ParseHexLine(s string) ([]byte, error) {
	s = NormalizeHex(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: %d digits in %q", ErrOddLength, len(s), truncate(s, 32))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
