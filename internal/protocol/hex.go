package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexField is an opaque cryptographic value carried on the wire as a
// lowercase hex string, optionally 0x-prefixed. The observer never
// interprets these bytes; it only checks they are well formed.
type HexField string

func (h HexField) Bytes() ([]byte, error) {
	s := strings.TrimPrefix(strings.ToLower(string(h)), "0x")
	if s == "" {
		return nil, fmt.Errorf("hex: empty string")
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex: odd length")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return b, nil
}

func validHex(h HexField) bool {
	_, err := h.Bytes()
	return err == nil
}
