package app

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ankushKun/commentkit-sub001/internal/widget"
)

const blogOrigin = "https://blog.example.com"

func frameState(pageID string) widget.State {
	return widget.State{
		Domain:       "example.com",
		PageID:       pageID,
		ParentOrigin: blogOrigin,
		APIBase:      "http://api.test",
		CSRFToken:    widget.NewCSRFToken(),
	}
}

func dispatchBody(t *testing.T, state any, message any, origin string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"state": state, "message": message, "origin": origin})
	if err != nil {
		t.Fatalf("marshal dispatch body: %v", err)
	}
	return string(raw)
}

func dispatchAs(t *testing.T, env *testEnv, csrf string, body string) (int, map[string]any) {
	t.Helper()
	rr, payload := doRequest(t, env.handler, http.MethodPost, "/widget/dispatch", body, withHeader(widget.CSRFHeader, csrf))
	return rr.Code, payload
}

func TestWidgetDispatchPostsComment(t *testing.T) {
	env := newTestEnv(t)
	state := frameState("/blog/9")

	code, payload := dispatchAs(t, env, state.CSRFToken, dispatchBody(t, state, map[string]any{
		"type":        "commentkit",
		"action":      "postComment",
		"content":     "Hello from the frame",
		"author_name": "Ann",
	}, blogOrigin))
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d %v", code, payload)
	}
	next := payload["state"].(map[string]any)
	if next["posting"] != true {
		t.Fatalf("expected posting state, got %v", next)
	}
	effects := payload["effects"].([]any)
	if len(effects) != 1 {
		t.Fatalf("expected one effect, got %v", effects)
	}
	effect := effects[0].(map[string]any)
	req := effect["request"].(map[string]any)
	if effect["kind"] != "request" || req["path"] != "/api/v1/sites/comments" || req["csrf"] != true {
		t.Fatalf("unexpected effect %v", effect)
	}

	// Carry out the request the way the frame does.
	reqBody, err := json.Marshal(req["body"])
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	rr, created := doRequest(t, env.handler, req["method"].(string), req["path"].(string), string(reqBody),
		withHeader(widget.CSRFHeader, state.CSRFToken))
	if rr.Code != http.StatusCreated || created["status"] != "pending" {
		t.Fatalf("expected a pending comment, got %d %v", rr.Code, created)
	}

	created["type"] = "commentkit"
	created["action"] = req["on_success"]
	code, payload = dispatchAs(t, env, state.CSRFToken, dispatchBody(t, next, created, ""))
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d %v", code, payload)
	}
	next = payload["state"].(map[string]any)
	if next["posting"] == true || next["notice"] != "Your comment is awaiting moderation." {
		t.Fatalf("unexpected state after commentPosted %v", next)
	}
	effects = payload["effects"].([]any)
	if len(effects) != 1 || effects[0].(map[string]any)["kind"] != "post_host" {
		t.Fatalf("expected the host to be notified, got %v", effects)
	}

	page := bootstrap(t, env, "/blog/9")
	if page["count"].(float64) != 0 {
		t.Fatalf("expected the comment to wait for moderation, got %v", page["count"])
	}
}

func TestWidgetDispatchRejections(t *testing.T) {
	env := newTestEnv(t)
	state := frameState("/p")
	load := map[string]any{"type": "commentkit", "action": "loadComments"}

	code, payload := dispatchAs(t, env, state.CSRFToken, dispatchBody(t, state, load, "https://evil.example.net"))
	if code != http.StatusForbidden || payload["code"] != "ORIGIN_MISMATCH" {
		t.Fatalf("expected ORIGIN_MISMATCH, got %d %v", code, payload)
	}

	code, payload = dispatchAs(t, env, widget.NewCSRFToken(), dispatchBody(t, state, load, blogOrigin))
	if code != http.StatusForbidden || payload["code"] != "CSRF_REQUIRED" {
		t.Fatalf("expected CSRF_REQUIRED for a token from another frame, got %d %v", code, payload)
	}

	forged := state
	forged.ParentOrigin = "https://evil.example.net"
	code, payload = dispatchAs(t, env, forged.CSRFToken, dispatchBody(t, forged, load, forged.ParentOrigin))
	if code != http.StatusBadRequest || payload["code"] != "INVALID_ORIGIN" {
		t.Fatalf("expected INVALID_ORIGIN for a parent outside the site, got %d %v", code, payload)
	}

	code, payload = dispatchAs(t, env, state.CSRFToken, dispatchBody(t, state, map[string]any{"type": "commentkit", "action": "explode"}, blogOrigin))
	if code != http.StatusBadRequest || payload["code"] != "INVALID_MESSAGE" {
		t.Fatalf("expected INVALID_MESSAGE, got %d %v", code, payload)
	}

	code, payload = dispatchAs(t, env, state.CSRFToken, dispatchBody(t, state, load, blogOrigin))
	if code != http.StatusOK {
		t.Fatalf("expected loadComments to dispatch, got %d %v", code, payload)
	}
	effects := payload["effects"].([]any)
	req := effects[0].(map[string]any)["request"].(map[string]any)
	if req["on_success"] != "commentsLoaded" {
		t.Fatalf("expected a comments request, got %v", req)
	}
}
