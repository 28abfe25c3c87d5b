package widget

import (
	"fmt"
	"net/http"
	"strings"
)

// Handler is a pure transition: it never mutates its input state.
type Handler func(State, Message) (State, []Effect)

type Dispatcher struct {
	handlers map[Action]Handler
}

// NewDispatcher returns the default handler table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[Action]Handler{
		ActionReady:            handleReady,
		ActionLoadComments:     handleLoadComments,
		ActionCommentsLoaded:   handleCommentsLoaded,
		ActionPostComment:      handlePostComment,
		ActionCommentPosted:    handleCommentPosted,
		ActionLogin:            handleLogin,
		ActionLoginEmailSent:   handleLoginEmailSent,
		ActionAuthStateChanged: handleAuthStateChanged,
		ActionLogout:           handleLogout,
		ActionError:            handleError,
		ActionResize:           handleResize,
	}}
}

func (d *Dispatcher) Dispatch(state State, msg Message) (State, []Effect, error) {
	handler, ok := d.handlers[msg.Action]
	if !ok {
		return state, nil, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
	next, effects := handler(state, msg)
	return next, effects, nil
}

// Receive validates raw and dispatches it. origin is the sender's origin for
// messages relayed from the host page and empty for the frame's own
// follow-ups (request results and post_frame effects).
func (d *Dispatcher) Receive(state State, raw []byte, origin string) (State, []Effect, error) {
	if origin == "" {
		origin = state.ParentOrigin
	}
	msg, err := ParseMessage(raw, origin, state.ParentOrigin)
	if err != nil {
		return state, nil, err
	}
	return d.Dispatch(state, msg)
}

func errorEffects(text string) []Effect {
	msg := NewMessage(ActionError)
	msg.Error = text
	return []Effect{toFrame(msg)}
}

func loadRequest(state State) Request {
	return Request{
		Method:    http.MethodGet,
		Path:      "/api/v1/sites/comments",
		Query:     map[string]string{"domain": state.Domain, "pageId": state.PageID},
		OnSuccess: ActionCommentsLoaded,
	}
}

func handleReady(state State, _ Message) (State, []Effect) {
	state.Ready = true
	state.Loading = true
	return state, []Effect{toHost(NewMessage(ActionReady)), request(loadRequest(state))}
}

func handleLoadComments(state State, _ Message) (State, []Effect) {
	state.Loading = true
	return state, []Effect{request(loadRequest(state))}
}

func handleCommentsLoaded(state State, msg Message) (State, []Effect) {
	state.Loading = false
	state.Error = ""
	state.Comments = append([]byte(nil), msg.Comments...)
	state.Count = msg.Count
	return state, nil
}

func handlePostComment(state State, msg Message) (State, []Effect) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		state.Error = "comment cannot be empty"
		return state, errorEffects(state.Error)
	}
	if state.User == nil && strings.TrimSpace(msg.AuthorName) == "" {
		state.Error = "name is required"
		return state, errorEffects(state.Error)
	}
	if state.Posting {
		return state, nil
	}

	body := map[string]any{
		"domain":  state.Domain,
		"pageId":  state.PageID,
		"content": content,
	}
	if state.User == nil {
		body["author_name"] = strings.TrimSpace(msg.AuthorName)
		if email := strings.TrimSpace(msg.AuthorEmail); email != "" {
			body["author_email"] = email
		}
	}
	if msg.ParentID != nil {
		body["parent_id"] = *msg.ParentID
	}
	state.Posting = true
	state.Error = ""
	return state, []Effect{request(Request{
		Method:    http.MethodPost,
		Path:      "/api/v1/sites/comments",
		Body:      body,
		CSRF:      true,
		OnSuccess: ActionCommentPosted,
	})}
}

func handleCommentPosted(state State, msg Message) (State, []Effect) {
	state.Posting = false
	if msg.Status == "approved" {
		state.Notice = ""
		state.Loading = true
		return state, []Effect{toHost(msg), request(loadRequest(state))}
	}
	state.Notice = "Your comment is awaiting moderation."
	return state, []Effect{toHost(msg)}
}

func handleLogin(state State, msg Message) (State, []Effect) {
	email := strings.TrimSpace(msg.Email)
	if !strings.Contains(email, "@") {
		state.Error = "a valid email is required"
		return state, errorEffects(state.Error)
	}
	state.Error = ""
	return state, []Effect{request(Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      map[string]any{"email": email},
		CSRF:      true,
		OnSuccess: ActionLoginEmailSent,
	})}
}

func handleLoginEmailSent(state State, msg Message) (State, []Effect) {
	state.LoginEmail = msg.Email
	state.Notice = "Check your inbox for a sign-in link."
	return state, nil
}

func handleAuthStateChanged(state State, msg Message) (State, []Effect) {
	if msg.User != nil {
		user := *msg.User
		state.User = &user
		state.LoginEmail = ""
		state.Notice = ""
	} else {
		state.User = nil
	}
	return state, []Effect{toHost(msg)}
}

func handleLogout(state State, _ Message) (State, []Effect) {
	state.User = nil
	return state, []Effect{
		request(Request{Method: http.MethodPost, Path: "/auth/logout", CSRF: true}),
		toHost(NewMessage(ActionAuthStateChanged)),
	}
}

func handleError(state State, msg Message) (State, []Effect) {
	state.Loading = false
	state.Posting = false
	state.Error = msg.Error
	return state, []Effect{toHost(msg)}
}

func handleResize(state State, msg Message) (State, []Effect) {
	if msg.Height <= 0 || msg.Height == state.Height {
		return state, nil
	}
	state.Height = msg.Height
	out := NewMessage(ActionResize)
	out.Height = msg.Height
	return state, []Effect{toHost(out)}
}
