package store

import (
	"net/url"
	"strings"
)

// Slug derives the per-site page key from the identifier a site passes in.
// Absolute URLs reduce to their path. Case is kept since paths are
// case-sensitive.
func Slug(pageID string) string {
	raw := strings.TrimSpace(pageID)
	if raw == "" {
		return "/"
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		raw = parsed.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) > 1 {
		raw = strings.TrimRight(raw, "/")
	}
	if raw == "" {
		return "/"
	}
	return raw
}

// NormalizeDomain lower-cases a host and strips scheme, port, path and a
// leading "www.".
func NormalizeDomain(domain string) string {
	value := strings.ToLower(strings.TrimSpace(domain))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil {
			value = parsed.Host
		}
	}
	if i := strings.IndexAny(value, "/?#"); i >= 0 {
		value = value[:i]
	}
	if i := strings.LastIndex(value, ":"); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSuffix(value, ".")
	return strings.TrimPrefix(value, "www.")
}
