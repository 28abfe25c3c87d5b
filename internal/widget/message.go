// Package widget models the postMessage contract between a host page and the
// comment iframe: the message envelope, the frame's state and the table of
// handlers that moves it forward.
package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MessageType tags every envelope exchanged with the host page.
const MessageType = "commentkit"

type Action string

const (
	ActionLoadComments     Action = "loadComments"
	ActionCommentsLoaded   Action = "commentsLoaded"
	ActionPostComment      Action = "postComment"
	ActionCommentPosted    Action = "commentPosted"
	ActionLogin            Action = "login"
	ActionLoginEmailSent   Action = "loginEmailSent"
	ActionAuthStateChanged Action = "authStateChanged"
	ActionLogout           Action = "logout"
	ActionError            Action = "error"
	ActionResize           Action = "resize"
	ActionReady            Action = "ready"
)

var knownActions = map[Action]struct{}{
	ActionLoadComments:     {},
	ActionCommentsLoaded:   {},
	ActionPostComment:      {},
	ActionCommentPosted:    {},
	ActionLogin:            {},
	ActionLoginEmailSent:   {},
	ActionAuthStateChanged: {},
	ActionLogout:           {},
	ActionError:            {},
	ActionResize:           {},
	ActionReady:            {},
}

func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// User is the signed-in commenter as the frame knows it.
type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	AvatarHash string `json:"avatar_hash,omitempty"`
}

// Message is the envelope {type:"commentkit", action, ...fields}. Comment
// payloads stay opaque JSON; the frame only relays them.
type Message struct {
	Type   string `json:"type"`
	Action Action `json:"action"`

	Comments    json.RawMessage `json:"comments,omitempty"`
	Comment     json.RawMessage `json:"comment,omitempty"`
	Count       int             `json:"count,omitempty"`
	Content     string          `json:"content,omitempty"`
	AuthorName  string          `json:"author_name,omitempty"`
	AuthorEmail string          `json:"author_email,omitempty"`
	ParentID    *int64          `json:"parent_id,omitempty"`
	Status      string          `json:"status,omitempty"`
	Email       string          `json:"email,omitempty"`
	User        *User           `json:"user,omitempty"`
	Error       string          `json:"error,omitempty"`
	Height      int             `json:"height,omitempty"`
}

// NewMessage returns an envelope for action.
func NewMessage(action Action) Message {
	return Message{Type: MessageType, Action: action}
}

var (
	ErrOriginMismatch = errors.New("widget message origin mismatch")
	ErrNotWidget      = errors.New("not a commentkit message")
	ErrUnknownAction  = errors.New("unknown widget action")
)

// ParseMessage decodes raw and accepts it only when origin equals
// expectedOrigin exactly.
func ParseMessage(raw []byte, origin, expectedOrigin string) (Message, error) {
	if expectedOrigin == "" || origin != expectedOrigin {
		return Message{}, fmt.Errorf("%w: got %q", ErrOriginMismatch, origin)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode widget message: %w", err)
	}
	if msg.Type != MessageType {
		return Message{}, ErrNotWidget
	}
	if !msg.Action.Known() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
	return msg, nil
}

// NormalizeOrigin validates a browser origin (scheme://host[:port]) and
// returns it in canonical lower-case form.
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("origin must be http or https: %q", raw)
	}
	if u.Host == "" || u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("origin must be scheme://host[:port]: %q", raw)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
