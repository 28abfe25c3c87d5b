package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ankushKun/commentkit-sub001/internal/config"
	"github.com/ankushKun/commentkit-sub001/internal/email"
	"github.com/ankushKun/commentkit-sub001/internal/session"
	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
	"github.com/ankushKun/commentkit-sub001/internal/widget"
)

// fakeStore is the in-memory store with optional per-method overrides.
type fakeStore struct {
	*store.MemoryStore
	pingFn         func(context.Context) error
	siteOverviewFn func(context.Context, int64) (store.SiteOverview, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return f.MemoryStore.Ping(ctx)
}

func (f *fakeStore) SiteOverview(ctx context.Context, siteID int64) (store.SiteOverview, error) {
	if f.siteOverviewFn != nil {
		return f.siteOverviewFn(ctx, siteID)
	}
	return f.MemoryStore.SiteOverview(ctx, siteID)
}

type fakeMailer struct {
	configured bool
	magicLinks []string
	pending    []email.PendingCommentData
	sentTo     []string
}

func (m *fakeMailer) IsConfigured() bool { return m.configured }

func (m *fakeMailer) SendMagicLinkEmail(to, loginURL, _ string) error {
	m.sentTo = append(m.sentTo, to)
	m.magicLinks = append(m.magicLinks, loginURL)
	return nil
}

func (m *fakeMailer) SendPendingCommentEmail(to string, data email.PendingCommentData) error {
	m.sentTo = append(m.sentTo, to)
	m.pending = append(m.pending, data)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		SessionSecret:    "test-secret",
		SessionTTL:       time.Hour,
		MagicLinkTTL:     15 * time.Minute,
		PublicURL:        "http://api.test",
		DashboardURL:     "http://dashboard.test",
		CORSOrigin:       "*",
		MaxContentLength: 5000,
		Superadmins:      []string{"root@example.com"},
	}
}

func newTestService(fs *fakeStore, mailer *fakeMailer) *Service {
	deps := Deps{Store: fs, Sessions: session.NewMemoryStore()}
	if mailer != nil {
		deps.Mailer = mailer
	}
	svc := New(testConfig(), deps)
	svc.bcryptCost = bcrypt.MinCost
	svc.background = func(fn func()) { fn() }
	return svc
}

// testEnv is a service with one owner and one site on example.com.
type testEnv struct {
	svc     *Service
	handler http.Handler
	store   *fakeStore
	owner   Session
	siteID  int64
	siteKey string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithMailer(t, nil)
}

func newTestEnvWithMailer(t *testing.T, mailer *fakeMailer) *testEnv {
	t.Helper()
	fs := &fakeStore{MemoryStore: store.NewMemoryStore()}
	svc := newTestService(fs, mailer)
	owner := loginAs(t, svc, "owner@example.com")

	site, err := svc.CreateSite(context.Background(), owner, CreateSiteInput{Name: "Example", Domain: "https://www.Example.com/blog"})
	if err != nil {
		t.Fatalf("CreateSite() error = %v", err)
	}
	return &testEnv{
		svc:     svc,
		handler: NewHTTPServer(svc, "*").Handler(),
		store:   fs,
		owner:   owner,
		siteID:  site["id"].(int64),
		siteKey: site["api_key"].(string),
	}
}

func loginAs(t *testing.T, svc *Service, address string) Session {
	t.Helper()
	user, err := svc.store.EnsureUserByEmail(context.Background(), address, "", false)
	if err != nil {
		t.Fatalf("EnsureUserByEmail() error = %v", err)
	}
	sess, err := svc.issueSession(user)
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}
	return sess
}

type requestOption func(*http.Request)

func withSession(sess Session) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sess.Token) }
}

func withSessionCookie(sess Session) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess.Token}) }
}

func withCSRF() requestOption {
	return func(r *http.Request) { r.Header.Set(widget.CSRFHeader, widget.NewCSRFToken()) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, opts ...requestOption) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Header().Get("Content-Type") == "application/json" && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, payload
}

func TestTrustedPolicy(t *testing.T) {
	guest := thread.GuestAuthor{Name: "Ann", EmailHash: thread.HashEmail("ann@example.com")}
	site := store.Site{ID: 1, OwnerID: 7, Settings: store.Settings{}}

	if trusted(site, nil, guest) {
		t.Fatal("expected anonymous guest to be untrusted")
	}
	if !trusted(site, &Session{UserID: 7}, thread.UserAuthor{ID: 7}) {
		t.Fatal("expected site owner to be trusted")
	}
	if !trusted(site, &Session{UserID: 9, IsSuperadmin: true}, thread.UserAuthor{ID: 9}) {
		t.Fatal("expected superadmin to be trusted")
	}
	if trusted(site, &Session{UserID: 9}, thread.UserAuthor{ID: 9}) {
		t.Fatal("expected other users to be untrusted")
	}

	site.Settings[store.SettingTrustedAuthors] = []any{guest.EmailHash, "user:9"}
	if trusted(site, nil, guest) {
		t.Fatal("expected a guest claiming a trusted email to stay untrusted")
	}
	if !trusted(site, &Session{UserID: 9}, thread.UserAuthor{ID: 9}) {
		t.Fatal("expected user in trusted_authors to be trusted")
	}
	verified := thread.UserAuthor{ID: 11, EmailHash: guest.EmailHash}
	if !trusted(site, &Session{UserID: 11}, verified) {
		t.Fatal("expected signed-in user with a trusted email hash to be trusted")
	}

	auto := store.Site{OwnerID: 7, Settings: store.Settings{store.SettingAutoApprove: true}}
	if !trusted(auto, nil, thread.GuestAuthor{Name: "Bo"}) {
		t.Fatal("expected auto_approve to trust everyone")
	}
}

func TestPageRefDefaultsToURL(t *testing.T) {
	ref, err := pageRef(1, "", "Title", "https://example.com/blog/1?x=1")
	if err != nil {
		t.Fatalf("pageRef() error = %v", err)
	}
	if ref.PageID != "https://example.com/blog/1?x=1" || ref.Title != "Title" {
		t.Fatalf("unexpected page ref %+v", ref)
	}
	if _, err := pageRef(1, " ", "", ""); err == nil {
		t.Fatal("expected error without pageId or url")
	}
}

func TestSiteFromKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	site, err := env.svc.SiteFromKey(ctx, env.siteKey)
	if err != nil {
		t.Fatalf("SiteFromKey() error = %v", err)
	}
	if site.ID != env.siteID {
		t.Fatalf("expected site %d, got %d", env.siteID, site.ID)
	}
	for _, bad := range []string{"", "nope", "ck_", env.siteKey + "x", "ck_00000000_secret"} {
		if _, err := env.svc.SiteFromKey(ctx, bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestCreateSiteNormalizesDomain(t *testing.T) {
	env := newTestEnv(t)
	site, err := env.store.GetSite(context.Background(), env.siteID)
	if err != nil {
		t.Fatalf("GetSite() error = %v", err)
	}
	if site.Domain != "example.com" {
		t.Fatalf("expected normalized domain example.com, got %q", site.Domain)
	}
	if site.APIKeyHash == "" || site.APIKeyHash == env.siteKey {
		t.Fatal("expected only a hash of the api key to be stored")
	}
}

func TestPendingCommentNotifiesOwner(t *testing.T) {
	mailer := &fakeMailer{configured: true}
	env := newTestEnvWithMailer(t, mailer)
	ctx := context.Background()

	if _, err := env.svc.UpdateSite(ctx, Caller{Session: &env.owner}, env.siteID, UpdateSiteInput{
		Settings: map[string]any{store.SettingNotifyOwner: true},
	}); err != nil {
		t.Fatalf("UpdateSite() error = %v", err)
	}
	if _, err := env.svc.CreateComment(ctx, nil, CreateCommentInput{
		Domain: "example.com", PageID: "/post", AuthorName: "Guest", Content: "Hello there", PageTitle: "Post",
	}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	if len(mailer.pending) != 1 {
		t.Fatalf("expected one notification, got %d", len(mailer.pending))
	}
	if mailer.sentTo[0] != "owner@example.com" || mailer.pending[0].PageTitle != "Post" {
		t.Fatalf("unexpected notification %+v to %v", mailer.pending[0], mailer.sentTo)
	}

	if _, err := env.svc.CreateComment(ctx, &env.owner, CreateCommentInput{
		Domain: "example.com", PageID: "/post", Content: "Owner reply",
	}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if len(mailer.pending) != 1 {
		t.Fatal("expected no notification for an approved comment")
	}
}
