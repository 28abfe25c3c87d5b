package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/lithammer/shortuuid/v4"
)

// NewID returns a random identifier, optionally prefixed.
func NewID(prefix string) string {
	id := shortuuid.New()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewSecret returns n random bytes hex encoded. Used where the value is a
// credential rather than a label.
func NewSecret(n int) string {
	if n <= 0 {
		n = 16
	}
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
