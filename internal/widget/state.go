package widget

import "encoding/json"

// State is everything the frame tracks between messages.
type State struct {
	Domain       string `json:"domain"`
	PageID       string `json:"page_id"`
	ParentOrigin string `json:"parent_origin"`
	APIBase      string `json:"api_base"`
	CSRFToken    string `json:"csrf_token"`

	Ready      bool            `json:"ready"`
	Loading    bool            `json:"loading"`
	Posting    bool            `json:"posting"`
	Comments   json.RawMessage `json:"comments,omitempty"`
	Count      int             `json:"count"`
	User       *User           `json:"user,omitempty"`
	LoginEmail string          `json:"login_email,omitempty"`
	Notice     string          `json:"notice,omitempty"`
	Error      string          `json:"error,omitempty"`
	Height     int             `json:"height,omitempty"`
}

type EffectKind string

const (
	// EffectPostToHost sends a message to the parent page.
	EffectPostToHost EffectKind = "post_host"
	// EffectPostToFrame delivers a message back into the frame's own queue.
	EffectPostToFrame EffectKind = "post_frame"
	// EffectRequest calls the backend API.
	EffectRequest EffectKind = "request"
)

// Request describes a backend call the frame should make. OnSuccess names
// the action the response is delivered as.
type Request struct {
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Query     map[string]string `json:"query,omitempty"`
	Body      map[string]any    `json:"body,omitempty"`
	CSRF      bool              `json:"csrf"`
	OnSuccess Action            `json:"on_success"`
}

// Effect is an instruction emitted by a handler. Exactly one of Message and
// Request is set.
type Effect struct {
	Kind    EffectKind `json:"kind"`
	Message *Message   `json:"message,omitempty"`
	Request *Request   `json:"request,omitempty"`
}

func toHost(msg Message) Effect {
	return Effect{Kind: EffectPostToHost, Message: &msg}
}

func toFrame(msg Message) Effect {
	return Effect{Kind: EffectPostToFrame, Message: &msg}
}

func request(req Request) Effect {
	return Effect{Kind: EffectRequest, Request: &req}
}
