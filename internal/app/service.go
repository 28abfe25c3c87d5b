package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ankushKun/commentkit-sub001/internal/auth"
	"github.com/ankushKun/commentkit-sub001/internal/config"
	"github.com/ankushKun/commentkit-sub001/internal/email"
	"github.com/ankushKun/commentkit-sub001/internal/export"
	"github.com/ankushKun/commentkit-sub001/internal/metrics"
	"github.com/ankushKun/commentkit-sub001/internal/search"
	"github.com/ankushKun/commentkit-sub001/internal/session"
	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
	"github.com/ankushKun/commentkit-sub001/internal/util"
)

// Session is an authenticated dashboard or widget user.
type Session struct {
	Token        string
	UserID       int64
	Name         string
	Email        string
	EmailHash    string
	IsSuperadmin bool
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is the persistence surface the service needs. store.PostgresStore
// and store.MemoryStore both satisfy it.
type DataStore interface {
	EnsureUserByEmail(ctx context.Context, email, displayName string, superadmin bool) (store.User, error)
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	CreateSite(ctx context.Context, input store.NewSite) (store.Site, error)
	GetSite(ctx context.Context, siteID int64) (store.Site, error)
	GetSiteByDomain(ctx context.Context, domain string) (store.Site, error)
	ListSitesByOwner(ctx context.Context, ownerID int64) ([]store.Site, error)
	ListAllSites(ctx context.Context) ([]store.Site, error)
	FindSitesByKeyPrefix(ctx context.Context, prefix string) ([]store.Site, error)
	UpdateSite(ctx context.Context, siteID int64, name string, settings store.Settings) (store.Site, error)
	UpdateSiteKey(ctx context.Context, siteID int64, prefix, hash string) error
	MarkSiteVerified(ctx context.Context, siteID int64, at time.Time) error
	DeleteSite(ctx context.Context, siteID int64) (bool, error)
	EnsurePage(ctx context.Context, ref store.PageRef) (store.Page, error)
	GetPage(ctx context.Context, pageID int64) (store.Page, error)
	ListPages(ctx context.Context, siteID int64) ([]store.Page, error)
	CreateComment(ctx context.Context, input store.NewComment) (thread.Comment, error)
	GetComment(ctx context.Context, commentID int64) (thread.Comment, error)
	ListComments(ctx context.Context, pageID int64, status thread.Status) ([]thread.Comment, error)
	ListSiteComments(ctx context.Context, siteID int64, status thread.Status, limit int) ([]store.ActivityItem, error)
	UpdateCommentStatus(ctx context.Context, commentID int64, status thread.Status) (bool, error)
	ToggleLike(ctx context.Context, target store.LikeTarget, targetID int64, subject string) (store.LikeState, error)
	SetLike(ctx context.Context, target store.LikeTarget, targetID int64, subject string, liked bool) (store.LikeState, error)
	LikedTargets(ctx context.Context, subject string, target store.LikeTarget, ids []int64) (map[int64]bool, error)
	SiteOverview(ctx context.Context, siteID int64) (store.SiteOverview, error)
	Ping(ctx context.Context) error
}

type mailer interface {
	IsConfigured() bool
	SendMagicLinkEmail(to, loginURL, expiresIn string) error
	SendPendingCommentEmail(to string, data email.PendingCommentData) error
}

type commentSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexComment(record search.CommentRecord)
	DeleteSite(siteID int64)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
	CanUpload() bool
}

// Deps are the collaborators of a Service. Only Store and Sessions are
// required.
type Deps struct {
	Store    DataStore
	Sessions session.Store
	Mailer   mailer
	Search   commentSearch
	Exporter exporter
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions session.Store
	mailer   mailer
	search   commentSearch
	exporter exporter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	sites    *siteCache

	bcryptCost int
	now        func() time.Time
	// fetchVerification returns the body of the site's verification file.
	fetchVerification func(ctx context.Context, domain string) (string, error)
	// background runs fire-and-forget work such as notification mail.
	background func(func())
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{
		cfg:               cfg,
		store:             deps.Store,
		sessions:          deps.Sessions,
		mailer:            deps.Mailer,
		search:            deps.Search,
		exporter:          deps.Exporter,
		metrics:           deps.Metrics,
		logger:            logger,
		sites:             newSiteCache(512, time.Minute),
		bcryptCost:        bcrypt.DefaultCost,
		now:               time.Now,
		fetchVerification: fetchVerificationFile,
		background:        func(fn func()) { go fn() },
	}
	if svc.mailer == nil {
		svc.mailer = email.NewService(email.Config{})
	}
	if svc.search == nil {
		svc.search = search.NewService(nil, nil, logger)
	}
	if svc.exporter == nil {
		svc.exporter = export.NewService(deps.Store, nil)
	}
	if svc.metrics == nil {
		svc.metrics = metrics.New()
	}
	return svc
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Ready reports the health of each backing service.
func (s *Service) Ready(ctx context.Context) (map[string]any, bool) {
	ok := true
	checks := map[string]any{}
	check := func(name string, err error) {
		if err != nil {
			ok = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	check("database", s.store.Ping(ctx))
	check("sessions", s.sessions.Ping(ctx))
	return checks, ok
}

func normalizeEmail(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || len(value) > 254 {
		return "", thread.Invalid("email", "a valid email address is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", thread.Invalid("email", "a valid email address is required")
	}
	return value, nil
}

// RequestMagicLink stores a single-use login token and mails the link. When
// SMTP is not configured the link is returned in the response instead.
func (s *Service) RequestMagicLink(ctx context.Context, rawEmail string) (map[string]any, error) {
	address, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	token := util.NewSecret(32)
	if err := s.sessions.SaveMagicLink(ctx, auth.HashToken(token), address, s.cfg.MagicLinkTTL); err != nil {
		return nil, fmt.Errorf("save magic link: %w", err)
	}
	loginURL := s.cfg.PublicURL + "/auth/verify?token=" + url.QueryEscape(token)

	response := map[string]any{
		"ok":      true,
		"email":   address,
		"message": "Check your email for a sign-in link",
	}
	if !s.mailer.IsConfigured() {
		response["devLoginUrl"] = loginURL
		return response, nil
	}
	if err := s.mailer.SendMagicLinkEmail(address, loginURL, humanDuration(s.cfg.MagicLinkTTL)); err != nil {
		return nil, fmt.Errorf("send magic link: %w", err)
	}
	return response, nil
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}

// VerifyMagicLink consumes a login token and opens a session, creating the
// user on first login.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, thread.Invalid("token", "token is required")
	}
	link, err := s.sessions.ConsumeMagicLink(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, session.ErrTokenNotFound) {
			return Session{}, thread.Unauthenticated("login link is invalid or has expired")
		}
		return Session{}, fmt.Errorf("consume magic link: %w", err)
	}

	superadmin := slices.Contains(s.cfg.Superadmins, link.Email)
	user, err := s.store.EnsureUserByEmail(ctx, link.Email, "", superadmin)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) issueSession(user store.User) (Session, error) {
	jti := util.NewID("jti")
	token, claims, err := auth.IssueSessionToken([]byte(s.cfg.SessionSecret), user.ID, user.DisplayName, user.Email, jti, s.cfg.SessionTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:        token,
		UserID:       user.ID,
		Name:         user.DisplayName,
		Email:        user.Email,
		EmailHash:    user.EmailHash,
		IsSuperadmin: user.IsSuperadmin,
		JTI:          jti,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsSessionRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		var notFound *thread.NotFoundError
		if errors.As(err, &notFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:        token,
		UserID:       user.ID,
		Name:         user.DisplayName,
		Email:        user.Email,
		EmailHash:    user.EmailHash,
		IsSuperadmin: user.IsSuperadmin,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session) error {
	if sess.JTI == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, sess.JTI, sess.ExpiresAt)
}

func fetchVerificationFile(ctx context.Context, domain string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+domain+verificationPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch verification file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch verification file: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return "", fmt.Errorf("read verification file: %w", err)
	}
	return string(body), nil
}
