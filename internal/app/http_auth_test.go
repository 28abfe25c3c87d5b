package app

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func loginToken(t *testing.T, loginURL string) string {
	t.Helper()
	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("expected token in %q", loginURL)
	}
	return token
}

func TestMagicLinkFlow(t *testing.T) {
	env := newTestEnv(t)

	rr, payload := doRequest(t, env.handler, http.MethodPost, "/auth/login", `{"email":"  Reader@Example.com "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload["email"] != "reader@example.com" {
		t.Fatalf("expected normalized email, got %v", payload["email"])
	}
	devURL, _ := payload["devLoginUrl"].(string)
	if !strings.HasPrefix(devURL, "http://api.test/auth/verify?token=") {
		t.Fatalf("expected dev login url without SMTP, got %q", devURL)
	}
	token := loginToken(t, devURL)

	rr, payload = doRequest(t, env.handler, http.MethodGet, "/auth/verify?token="+url.QueryEscape(token), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookie)
	}
	user, _ := payload["user"].(map[string]any)
	if user["email"] != "reader@example.com" || user["is_superadmin"] != false {
		t.Fatalf("unexpected user payload %v", user)
	}

	rr, _ = doRequest(t, env.handler, http.MethodGet, "/auth/verify?token="+url.QueryEscape(token), "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused link to be rejected with 401, got %d", rr.Code)
	}

	withCookie := func(r *http.Request) { r.AddCookie(cookie) }
	rr, payload = doRequest(t, env.handler, http.MethodGet, "/auth/me", "", withCookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /auth/me to accept the cookie, got %d", rr.Code)
	}
	if me, _ := payload["user"].(map[string]any); me["name"] != "reader" {
		t.Fatalf("expected default display name, got %v", me)
	}

	rr, _ = doRequest(t, env.handler, http.MethodPost, "/auth/logout", "", withCookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rr.Code)
	}
	rr, _ = doRequest(t, env.handler, http.MethodGet, "/auth/me", "", withCookie)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked session to be rejected, got %d", rr.Code)
	}
}

func TestLoginSendsEmailWhenConfigured(t *testing.T) {
	mailer := &fakeMailer{configured: true}
	env := newTestEnvWithMailer(t, mailer)

	rr, payload := doRequest(t, env.handler, http.MethodPost, "/auth/login", `{"email":"root@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if _, leaked := payload["devLoginUrl"]; leaked {
		t.Fatal("expected no dev login url when SMTP is configured")
	}
	if len(mailer.magicLinks) != 1 || mailer.sentTo[0] != "root@example.com" {
		t.Fatalf("expected one magic link mail, got %v", mailer.sentTo)
	}

	rr, payload = doRequest(t, env.handler, http.MethodGet, "/auth/verify?token="+url.QueryEscape(loginToken(t, mailer.magicLinks[0])), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if user, _ := payload["user"].(map[string]any); user["is_superadmin"] != true {
		t.Fatalf("expected configured superadmin, got %v", user)
	}
}

func TestVerifyRedirectsBrowsers(t *testing.T) {
	env := newTestEnv(t)
	_, payload := doRequest(t, env.handler, http.MethodPost, "/auth/login", `{"email":"reader@example.com"}`)
	token := loginToken(t, payload["devLoginUrl"].(string))

	rr, _ := doRequest(t, env.handler, http.MethodGet, "/auth/verify?token="+url.QueryEscape(token), "", withHeader("Accept", "text/html,application/xhtml+xml"))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "http://dashboard.test" {
		t.Fatalf("expected redirect to dashboard, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestLoginRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)

	rr, payload := doRequest(t, env.handler, http.MethodPost, "/auth/login", `{"email":`)
	if rr.Code != http.StatusBadRequest || payload["code"] != "INVALID_BODY" {
		t.Fatalf("expected INVALID_BODY 400, got %d %v", rr.Code, payload)
	}

	rr, payload = doRequest(t, env.handler, http.MethodPost, "/auth/login", `{"email":"not-an-email"}`)
	if rr.Code != http.StatusBadRequest || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR 400, got %d %v", rr.Code, payload)
	}
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/api/v1/admin/sites"},
		{http.MethodGet, "/api/v1/admin/dashboard"},
		{http.MethodPost, "/api/v1/pages/1/likes"},
		{http.MethodPatch, "/api/v1/sites/comments/1/status"},
	} {
		rr, payload := doRequest(t, env.handler, tc.method, tc.path, `{}`)
		if rr.Code != http.StatusUnauthorized || payload["code"] != "UNAUTHORIZED" {
			t.Errorf("%s %s: expected 401, got %d %v", tc.method, tc.path, rr.Code, payload)
		}
	}

	rr, _ := doRequest(t, env.handler, http.MethodGet, "/auth/me", "", withHeader("Authorization", "Bearer garbage"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", rr.Code)
	}
}
