// Package base62 implements the integer <-> short-code codec from spec
// §4.A: digits 0-9A-Za-z, big-endian, left-padded with '0' to a minimum
// length. Pure and collision-free on distinct non-negative integers.
package base62

import (
	"strings"

	"github.com/go-faster/errors"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = int64(len(alphabet))

var charIndex [256]int8

func init() {
	for i := range charIndex {
		charIndex[i] = -1
	}
	for i, c := range alphabet {
		charIndex[byte(c)] = int8(i)
	}
}

// Encode returns the big-endian base62 representation of n, left-padded
// with '0' to minLen characters. n must be non-negative.
func Encode(n int64, minLen int) (string, error) {
	if n < 0 {
		return "", errors.New("base62: negative input")
	}
	if minLen < 0 {
		return "", errors.New("base62: negative minLen")
	}
	if n == 0 {
		return padLeft(string(alphabet[0]), minLen), nil
	}

	var buf [16]byte // enough for base62 of any int64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = alphabet[n%base]
		n /= base
	}
	return padLeft(string(buf[i:]), minLen), nil
}

func padLeft(s string, minLen int) string {
	if len(s) >= minLen {
		return s
	}
	return strings.Repeat(string(alphabet[0]), minLen-len(s)) + s
}

// Decode is the inverse of Encode, ignoring any left padding.
func Decode(s string) (int64, error) {
	if !IsValid(s) {
		return 0, errors.New("base62: invalid input")
	}
	var n int64
	for i := 0; i < len(s); i++ {
		n = n*base + int64(charIndex[s[i]])
	}
	return n, nil
}

// IsValid reports whether s is a non-empty string drawn entirely from the
// base62 alphabet.
func IsValid(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if charIndex[s[i]] < 0 {
			return false
		}
	}
	return true
}
