// Package domain token.go contains functions to generate, parse, and validate share tokens.
package domain

import (
	"crypto/rand"
	"encoding/hex"
)

// Token is the sole retrieval credential for a share.
// It is a 128-bit random value encoded as 32 lowercase hex characters.
type Token string

// NewToken generates a new cryptographically random 128-bit Token encoded
// as 32 lowercase hexadecimal characters.
func NewToken() (Token, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	dst := make([]byte, 32)
	hex.Encode(dst, b[:]) // hex.Encode always produces lowercase
	return Token(dst), nil
}

// ParseToken validates s and returns it as a Token. It enforces:
// - non-empty
// - length == 32
// - only lowercase [0-9a-f]
// Returns ErrInvalidToken on failure. The fixed length and alphabet also rule
// out path separators, so a parsed token is safe to embed in filenames.
func ParseToken(s string) (Token, error) {
	if !isValidToken(s) {
		return "", ErrInvalidToken
	}
	return Token(s), nil
}

// String returns the string form of the Token.
func (t Token) String() string { return string(t) }

// Valid reports whether the token satisfies the same rules as ParseToken.
func (t Token) Valid() bool { return isValidToken(string(t)) }

// isValidToken performs validation without allocating errors.
func isValidToken(s string) bool {
	if len(s) != 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
