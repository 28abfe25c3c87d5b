package widget

import (
	"strings"

	"github.com/ankushKun/commentkit-sub001/internal/util"
)

const (
	CSRFHeader = "X-CSRF-Token"
	csrfPrefix = "csrf_"
)

// NewCSRFToken returns a fresh per-frame token.
func NewCSRFToken() string {
	return util.NewID("csrf")
}

// ValidCSRFToken checks shape only; binding a token to a frame is left to
// the caller.
func ValidCSRFToken(token string) bool {
	rest, ok := strings.CutPrefix(token, csrfPrefix)
	if !ok || len(rest) < 16 || len(rest) > 64 {
		return false
	}
	for _, r := range rest {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
