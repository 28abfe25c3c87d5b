package app

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

func postComment(t *testing.T, env *testEnv, body string, opts ...requestOption) map[string]any {
	t.Helper()
	opts = append([]requestOption{withCSRF()}, opts...)
	rr, payload := doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", body, opts...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	return payload
}

func commentID(t *testing.T, payload map[string]any) int64 {
	t.Helper()
	comment, ok := payload["comment"].(map[string]any)
	if !ok {
		t.Fatalf("expected comment object, got %v", payload)
	}
	return int64(comment["id"].(float64))
}

func bootstrap(t *testing.T, env *testEnv, pageID string, opts ...requestOption) map[string]any {
	t.Helper()
	rr, payload := doRequest(t, env.handler, http.MethodGet, "/api/v1/sites/comments?domain=example.com&pageId="+pageID, "", opts...)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	return payload
}

func TestGuestCommentModerationFlow(t *testing.T) {
	env := newTestEnv(t)

	created := postComment(t, env, `{"domain":"example.com","pageId":"/blog/1","author_name":"Ann","author_email":"Ann@Example.com","content":"First!","page_title":"Post One"}`)
	if created["status"] != "pending" || created["message"] == nil {
		t.Fatalf("expected pending comment with a message, got %v", created)
	}
	if strings.Contains(fmt.Sprint(created), "Ann@Example.com") || strings.Contains(fmt.Sprint(created), "ann@example.com") {
		t.Fatal("expected the guest email to never be returned")
	}
	id := commentID(t, created)

	public := bootstrap(t, env, "/blog/1")
	page := public["page"].(map[string]any)
	if page["comment_count"] != float64(0) || public["count"] != float64(0) {
		t.Fatalf("expected pending comment to be hidden publicly, got %v", page)
	}
	if page["title"] != "Post One" {
		t.Fatalf("expected page title from the first comment, got %v", page["title"])
	}

	rr, payload := doRequest(t, env.handler, http.MethodGet, fmt.Sprintf("/api/v1/admin/sites/%d/pages", env.siteID), "", withSession(env.owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	pages := payload["pages"].([]any)
	if len(pages) != 1 || pages[0].(map[string]any)["comment_count"] != float64(1) || pages[0].(map[string]any)["pending_count"] != float64(1) {
		t.Fatalf("expected admin page view to count the pending comment, got %v", pages)
	}

	rr, payload = doRequest(t, env.handler, http.MethodPatch, fmt.Sprintf("/api/v1/sites/comments/%d/status", id), `{"status":"approved"}`, withSession(env.owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload["status"] != "approved" || payload["previous_status"] != "pending" {
		t.Fatalf("unexpected status response %v", payload)
	}

	public = bootstrap(t, env, "/blog/1")
	if public["page"].(map[string]any)["comment_count"] != float64(1) {
		t.Fatalf("expected approved comment to be counted, got %v", public["page"])
	}
	comments := public["comments"].([]any)
	author := comments[0].(map[string]any)["author"].(map[string]any)
	if author["kind"] != "guest" || author["name"] != "Ann" || author["avatar_hash"] == "" {
		t.Fatalf("unexpected author payload %v", author)
	}
}

func TestOwnerCommentsAreApprovedAndRepliesFlatten(t *testing.T) {
	env := newTestEnv(t)

	root := commentID(t, postComment(t, env, `{"domain":"example.com","pageId":"/p","content":"Root"}`, withSession(env.owner)))
	reply := commentID(t, postComment(t, env, fmt.Sprintf(`{"domain":"example.com","pageId":"/p","content":"Reply","parent_id":%d}`, root), withSession(env.owner)))
	postComment(t, env, fmt.Sprintf(`{"domain":"example.com","pageId":"/p","content":"Grandchild","parent_id":%d}`, reply), withSession(env.owner))

	public := bootstrap(t, env, "/p")
	roots := public["comments"].([]any)
	if len(roots) != 1 {
		t.Fatalf("expected one root, got %d", len(roots))
	}
	replies := roots[0].(map[string]any)["replies"].([]any)
	if len(replies) != 2 {
		t.Fatalf("expected reply and grandchild as siblings, got %d replies", len(replies))
	}
	for _, r := range replies {
		nested := r.(map[string]any)["replies"].([]any)
		if len(nested) != 0 {
			t.Fatalf("expected no nesting below the first level, got %v", nested)
		}
	}
	if public["count"] != float64(3) {
		t.Fatalf("expected count 3, got %v", public["count"])
	}
}

func TestCreateCommentRejections(t *testing.T) {
	env := newTestEnv(t)

	rr, payload := doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", `{"domain":"example.com","pageId":"/p","author_name":"Ann","content":"hi"}`)
	if rr.Code != http.StatusForbidden || payload["code"] != "CSRF_REQUIRED" {
		t.Fatalf("expected 403 without CSRF token, got %d %v", rr.Code, payload)
	}

	rr, payload = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", `{"domain":"example.com","pageId":"/p","author_name":"Ann","content":"   "}`, withCSRF())
	if rr.Code != http.StatusBadRequest || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 for empty content, got %d %v", rr.Code, payload)
	}
	rr, payload = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", `{"domain":"example.com","pageId":"/p","content":"anonymous"}`, withCSRF())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a guest without a name, got %d %v", rr.Code, payload)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", `{"domain":"example.com","pageId":"/p","author_name":"Ann","content":"`+strings.Repeat("x", 5001)+`"}`, withCSRF())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized content, got %d", rr.Code)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", `{"domain":"unknown.org","pageId":"/p","author_name":"Ann","content":"hi"}`, withCSRF())
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown domain, got %d", rr.Code)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments", `{"domain":"example.com","pageId":"/p","author_name":"Ann","content":"hi","parent_id":999}`, withCSRF())
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing parent, got %d", rr.Code)
	}

	rr, payload = doRequest(t, env.handler, http.MethodGet, fmt.Sprintf("/api/v1/admin/sites/%d/comments", env.siteID), "", withSession(env.owner))
	if rr.Code != http.StatusOK || payload["count"] != float64(0) {
		t.Fatalf("expected no comments to be stored, got %d %v", rr.Code, payload)
	}
}

func TestGuestContentIsSanitized(t *testing.T) {
	env := newTestEnv(t)

	created := postComment(t, env, `{"domain":"example.com","pageId":"/p","author_name":"Eve","content":"hi <script>alert(1)</script><b>there</b>"}`)
	comment := created["comment"].(map[string]any)
	content := comment["content"].(string)
	if strings.Contains(content, "<") || !strings.Contains(content, "there") {
		t.Fatalf("expected markup to be stripped, got %q", content)
	}
}

func TestBulkModeration(t *testing.T) {
	env := newTestEnv(t)
	c1 := commentID(t, postComment(t, env, `{"domain":"example.com","pageId":"/p","author_name":"A","content":"one"}`))
	c2 := commentID(t, postComment(t, env, `{"domain":"example.com","pageId":"/p","author_name":"B","content":"two"}`))

	rr, payload := doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments/bulk-status",
		fmt.Sprintf(`{"ids":[%d,%d,999,%d],"action":"approve"}`, c1, c2, c1), withSession(env.owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	results := payload["results"].(map[string]any)
	if results[fmt.Sprint(c1)] != "ok" || results[fmt.Sprint(c2)] != "ok" || results["999"] != "not_found" {
		t.Fatalf("unexpected bulk results %v", results)
	}
	summary := payload["summary"].(map[string]any)
	if summary["ok"] != float64(2) || summary["not_found"] != float64(1) {
		t.Fatalf("unexpected summary %v", summary)
	}

	rr, payload = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments/bulk-status",
		fmt.Sprintf(`{"ids":[%d],"action":"approve"}`, c1), withSession(env.owner))
	if rr.Code != http.StatusOK || payload["results"].(map[string]any)[fmt.Sprint(c1)] != "ok" {
		t.Fatalf("expected re-approving to be a no-op, got %v", payload)
	}

	rr, payload = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments/bulk-status", `{"ids":[],"action":"approve"}`, withSession(env.owner))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty ids, got %d", rr.Code)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments/bulk-status", fmt.Sprintf(`{"ids":[%d],"action":"publish"}`, c1), withSession(env.owner))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown action, got %d", rr.Code)
	}

	stranger := loginAs(t, env.svc, "stranger@example.com")
	rr, payload = doRequest(t, env.handler, http.MethodPost, "/api/v1/sites/comments/bulk-status",
		fmt.Sprintf(`{"ids":[%d],"action":"reject"}`, c2), withSession(stranger))
	if rr.Code != http.StatusOK || payload["results"].(map[string]any)[fmt.Sprint(c2)] != "forbidden" {
		t.Fatalf("expected forbidden outcome for a non-owner, got %v", payload)
	}
}

func TestCommentStatusAuthorization(t *testing.T) {
	env := newTestEnv(t)
	id := commentID(t, postComment(t, env, `{"domain":"example.com","pageId":"/p","author_name":"A","content":"one"}`))

	stranger := loginAs(t, env.svc, "stranger@example.com")
	rr, payload := doRequest(t, env.handler, http.MethodPatch, fmt.Sprintf("/api/v1/sites/comments/%d/status", id), `{"status":"approved"}`, withSession(stranger))
	if rr.Code != http.StatusForbidden || payload["code"] != "FORBIDDEN" {
		t.Fatalf("expected 403 for a non-owner, got %d %v", rr.Code, payload)
	}

	rr, _ = doRequest(t, env.handler, http.MethodPatch, fmt.Sprintf("/api/v1/sites/comments/%d/status", id), `{"status":"spam"}`, withHeader(siteKeyHeader, env.siteKey))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected site key to moderate, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr, _ = doRequest(t, env.handler, http.MethodPatch, "/api/v1/sites/comments/999/status", `{"status":"approved"}`, withSession(env.owner))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown comment, got %d", rr.Code)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPatch, fmt.Sprintf("/api/v1/sites/comments/%d/status", id), `{"status":"published"}`, withSession(env.owner))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown status, got %d", rr.Code)
	}
}

func TestLikes(t *testing.T) {
	env := newTestEnv(t)
	id := commentID(t, postComment(t, env, `{"domain":"example.com","pageId":"/p","content":"likeable"}`, withSession(env.owner)))
	reader := loginAs(t, env.svc, "reader@example.com")

	rr, payload := doRequest(t, env.handler, http.MethodPost, "/api/v1/comments/abc/likes", "", withSession(reader))
	if rr.Code != http.StatusBadRequest || payload["code"] != "INVALID_ID" {
		t.Fatalf("expected INVALID_ID, got %d %v", rr.Code, payload)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/likes", id), "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rr.Code)
	}
	rr, _ = doRequest(t, env.handler, http.MethodPost, "/api/v1/comments/999/likes", "", withSession(reader))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown comment, got %d", rr.Code)
	}

	path := fmt.Sprintf("/api/v1/comments/%d/likes", id)
	_, payload = doRequest(t, env.handler, http.MethodPost, path, "", withSession(reader))
	if payload["liked"] != true || payload["total_likes"] != float64(1) {
		t.Fatalf("expected first toggle to like, got %v", payload)
	}

	public := bootstrap(t, env, "/p", withSession(reader))
	comment := public["comments"].([]any)[0].(map[string]any)
	if comment["liked"] != true || comment["like_count"] != float64(1) {
		t.Fatalf("expected liked comment in bootstrap, got %v", comment)
	}

	_, payload = doRequest(t, env.handler, http.MethodPost, path, "", withSession(reader))
	if payload["liked"] != false || payload["total_likes"] != float64(0) {
		t.Fatalf("expected second toggle to unlike, got %v", payload)
	}

	doRequest(t, env.handler, http.MethodPost, path, "", withSession(reader))
	_, payload = doRequest(t, env.handler, http.MethodDelete, path, "", withSession(reader))
	if payload["liked"] != false || payload["total_likes"] != float64(0) {
		t.Fatalf("expected DELETE to unlike, got %v", payload)
	}
	_, payload = doRequest(t, env.handler, http.MethodDelete, path, "", withSession(reader))
	if payload["liked"] != false {
		t.Fatalf("expected DELETE to be idempotent, got %v", payload)
	}

	pageID := int64(public["page"].(map[string]any)["id"].(float64))
	_, payload = doRequest(t, env.handler, http.MethodPost, fmt.Sprintf("/api/v1/pages/%d/likes", pageID), "", withSession(reader))
	if payload["target"] != "page" || payload["liked"] != true {
		t.Fatalf("expected page like, got %v", payload)
	}
}

func TestTrustedEmailNeedsSignIn(t *testing.T) {
	env := newTestEnv(t)
	body := fmt.Sprintf(`{"settings":{"trusted_authors":[%q]}}`, thread.HashEmail("friend@example.com"))
	rr, _ := doRequest(t, env.handler, http.MethodPatch, sitePath(env.siteID, ""), body, withSession(env.owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	created := postComment(t, env, `{"domain":"example.com","pageId":"/t","author_name":"Impostor","author_email":"friend@example.com","content":"let me in"}`)
	if created["status"] != "pending" {
		t.Fatalf("expected a guest using a trusted email to be queued, got %v", created["status"])
	}

	friend := loginAs(t, env.svc, "friend@example.com")
	created = postComment(t, env, `{"domain":"example.com","pageId":"/t","content":"signed in"}`, withSession(friend))
	if created["status"] != "approved" {
		t.Fatalf("expected the signed-in trusted author to be approved, got %v", created["status"])
	}
}
