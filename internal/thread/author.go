package thread

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	DefaultMaxContentLength = 5000
	DefaultMaxNameLength    = 80
)

// Author is either a registered user or a guest, never both.
type Author interface {
	DisplayName() string
	AvatarHash() string
	isAuthor()
}

// UserAuthor identifies a comment written by a signed-in user. Name and
// EmailHash are display data joined from the users table.
type UserAuthor struct {
	ID        int64
	Name      string
	EmailHash string
}

func (UserAuthor) isAuthor() {}

func (a UserAuthor) DisplayName() string { return a.Name }
func (a UserAuthor) AvatarHash() string  { return a.EmailHash }

func (a UserAuthor) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"kind":        "user",
		"user_id":     a.ID,
		"name":        a.Name,
		"avatar_hash": a.EmailHash,
	})
}

// GuestAuthor is a name plus an optional one-way hash of the guest's email.
type GuestAuthor struct {
	Name      string
	EmailHash string
}

func (GuestAuthor) isAuthor() {}

func (a GuestAuthor) DisplayName() string { return a.Name }
func (a GuestAuthor) AvatarHash() string  { return a.EmailHash }

func (a GuestAuthor) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"kind":        "guest",
		"name":        a.Name,
		"avatar_hash": a.EmailHash,
	})
}

// AuthorUserID returns the user id for UserAuthor values.
func AuthorUserID(a Author) (int64, bool) {
	if u, ok := a.(UserAuthor); ok && u.ID > 0 {
		return u.ID, true
	}
	return 0, false
}

// SessionUser is the signed-in identity attached to a submission.
type SessionUser struct {
	ID        int64
	Name      string
	EmailHash string
}

type Submission struct {
	SessionUser *SessionUser
	GuestName   string
	GuestEmail  string
	Content     string
}

type Limits struct {
	MaxContentLength int
	MaxNameLength    int
}

func (l Limits) withDefaults() Limits {
	if l.MaxContentLength <= 0 {
		l.MaxContentLength = DefaultMaxContentLength
	}
	if l.MaxNameLength <= 0 {
		l.MaxNameLength = DefaultMaxNameLength
	}
	return l
}

// Resolved is the canonical form of a submission ready to be stored.
type Resolved struct {
	Author  Author
	Content string
}

// ResolveAuthor maps a submission to its author and cleaned content.
// A session user wins over any guest fields sent alongside it.
func ResolveAuthor(sub Submission, limits Limits) (Resolved, error) {
	limits = limits.withDefaults()

	content, err := CleanContent(sub.Content, limits.MaxContentLength)
	if err != nil {
		return Resolved{}, err
	}

	if sub.SessionUser != nil && sub.SessionUser.ID > 0 {
		return Resolved{
			Author: UserAuthor{
				ID:        sub.SessionUser.ID,
				Name:      sub.SessionUser.Name,
				EmailHash: sub.SessionUser.EmailHash,
			},
			Content: content,
		}, nil
	}

	name := strings.TrimSpace(sub.GuestName)
	if name == "" {
		return Resolved{}, Invalid("author_name", "name is required when not signed in")
	}
	if utf8.RuneCountInString(name) > limits.MaxNameLength {
		return Resolved{}, Invalid("author_name", "name is too long")
	}
	return Resolved{
		Author:  GuestAuthor{Name: name, EmailHash: HashEmail(sub.GuestEmail)},
		Content: content,
	}, nil
}

var plainText = bluemonday.StrictPolicy()

// CleanContent strips markup and enforces the length bounds. Comments are
// stored as plain text.
func CleanContent(raw string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", Invalid("content", "content is required")
	}
	cleaned, ok := stripMarkup(trimmed)
	if !ok {
		return "", Invalid("content", "content contains markup")
	}
	if cleaned == "" {
		return "", Invalid("content", "content is required")
	}
	if maxLength > 0 && utf8.RuneCountInString(cleaned) > maxLength {
		return "", Invalid("content", "content is too long")
	}
	return cleaned, nil
}

const maxDecodeRounds = 4

// stripMarkup decodes entities before sanitizing so encoded tags are removed
// too, and repeats until the text no longer changes. ok is false when nested
// encodings outlast maxDecodeRounds.
func stripMarkup(raw string) (string, bool) {
	text := raw
	for range maxDecodeRounds {
		next := strings.TrimSpace(html.UnescapeString(plainText.Sanitize(html.UnescapeString(text))))
		if next == text {
			return text, true
		}
		text = next
	}
	return "", false
}

// HashEmail returns the hex SHA-256 of the normalized address, or "" for a
// blank one.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
