package core

import (
	"math/rand/v2"
	"strings"
)

const (
	// ShortIDAlphabet holds the 36 symbols a short identifier is drawn from.
	ShortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// ShortIDLength is the fixed length of every short identifier.
	ShortIDLength = 5
)

// ShortIDGenerator produces candidate short identifiers. Implementations are
// not required to guarantee uniqueness; the ledger rejects collisions.
type ShortIDGenerator func() string

// NewShortID draws ShortIDLength symbols independently and uniformly from
// ShortIDAlphabet.
func NewShortID() string {
	var b [ShortIDLength]byte
	for i := range b {
		b[i] = ShortIDAlphabet[rand.IntN(len(ShortIDAlphabet))]
	}
	return string(b[:])
}

// IsShortID reports whether s has the shape of a short identifier.
func IsShortID(s string) bool {
	if len(s) != ShortIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(ShortIDAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// NormalizeShortID upper-cases and trims a user-typed identifier.
func NormalizeShortID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
