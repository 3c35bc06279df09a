package util

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	IDLength    = 10
)

var base62 = big.NewInt(int64(len(base62Chars)))

// GenID returns a random base62 identifier of IDLength characters
// (about 8.4e17 possible values). Callers do not check the store for
// collisions.
func GenID() (string, error) {
	buf := make([]byte, IDLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, base62)
		if err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		buf[i] = base62Chars[n.Int64()]
	}
	return string(buf), nil
}

// ValidID reports whether s is a plausible paste id: 1 to 64 characters
// from the URL-safe alphabet.
func ValidID(s string) bool {
	if len(s) == 0 || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
