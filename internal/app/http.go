package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ankushKun/commentkit-sub001/internal/auth"
	"github.com/ankushKun/commentkit-sub001/internal/export"
	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
	"github.com/ankushKun/commentkit-sub001/internal/widget"
)

const (
	sessionCookie = "ck_session"
	siteKeyHeader = "X-Site-Key"
)

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	trustedOrigins map[string]struct{}
	router         *mux.Router
	widgets        *widget.Dispatcher
	logger         *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{
		service:        service,
		corsOrigin:     corsOrigin,
		trustedOrigins: trustedOriginSet(corsOrigin, service.cfg.DashboardURL, service.cfg.PublicURL),
		router:         mux.NewRouter(),
		widgets:        widget.NewDispatcher(),
		logger:         service.logger,
	}
	s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

func (s *HTTPServer) routes() {
	r := s.router
	r.Use(s.metricsMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", s.service.Metrics().Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/verify", s.handleVerify).Methods(http.MethodGet)
	r.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/widget/frame", s.handleWidgetFrame).Methods(http.MethodGet)
	r.HandleFunc("/widget/dispatch", s.handleWidgetDispatch).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sites/comments", s.handlePageBootstrap).Methods(http.MethodGet)
	api.HandleFunc("/sites/comments", s.handleCreateComment).Methods(http.MethodPost)
	api.HandleFunc("/sites/comments/bulk-status", s.handleBulkStatus).Methods(http.MethodPost)
	api.HandleFunc("/sites/comments/{id}/status", s.handleCommentStatus).Methods(http.MethodPatch)
	api.HandleFunc("/pages/{id}/likes", s.handleLike(store.TargetPage)).Methods(http.MethodPost, http.MethodDelete)
	api.HandleFunc("/comments/{id}/likes", s.handleLike(store.TargetComment)).Methods(http.MethodPost, http.MethodDelete)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	admin.HandleFunc("/sites", s.handleListSites).Methods(http.MethodGet)
	admin.HandleFunc("/sites", s.handleCreateSite).Methods(http.MethodPost)
	admin.HandleFunc("/sites/{id}", s.handleGetSite).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}", s.handleUpdateSite).Methods(http.MethodPatch)
	admin.HandleFunc("/sites/{id}", s.handleDeleteSite).Methods(http.MethodDelete)
	admin.HandleFunc("/sites/{id}/overview", s.handleSiteOverview).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}/pages", s.handleSitePages).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}/activity", s.handleSiteActivity).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}/comments", s.handleModerationQueue).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}/search", s.handleSearch).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}/export", s.handleExport).Methods(http.MethodGet)
	admin.HandleFunc("/sites/{id}/rotate-key", s.handleRotateKey).Methods(http.MethodPost)
	admin.HandleFunc("/sites/{id}/verify", s.handleVerifySite).Methods(http.MethodPost)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, ok := s.service.Ready(ctx)
	status, code := "ready", http.StatusOK
	if !ok {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ok": ok, "status": status, "checks": checks})
}

// Auth

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	response, err := s.service.RequestMagicLink(r.Context(), body.Email)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.VerifyMagicLink(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)

	if strings.Contains(r.Header.Get("Accept"), "text/html") && s.service.cfg.DashboardURL != "" {
		http.Redirect(w, r, s.service.cfg.DashboardURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      sess.Token,
		"user":       userPayload(sess),
		"expires_at": sess.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(sess), "expires_at": sess.ExpiresAt.Unix()})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.Logout(r.Context(), sess); err != nil {
		s.fail(w, err)
		return
	}
	s.setSessionCookie(w, "", time.Unix(0, 0))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, value string, expires time.Time) {
	sameSite := http.SameSiteLaxMode
	if s.service.cfg.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.service.cfg.CookieSecure,
		SameSite: sameSite,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// Widget

func (s *HTTPServer) handleWidgetFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cfg, err := s.service.WidgetFrame(r.Context(), q.Get("domain"), q.Get("pageId"), q.Get("origin"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "frame-ancestors "+cfg.ParentOrigin)
	w.WriteHeader(http.StatusOK)
	if err := s.widgets.RenderFrame(w, cfg); err != nil {
		s.logger.Error("render widget frame", zap.Error(err))
	}
}

type widgetDispatchRequest struct {
	State   widget.State    `json:"state"`
	Message json.RawMessage `json:"message"`
	Origin  string          `json:"origin"`
}

// handleWidgetDispatch runs one frame message through the handler table and
// returns the next state plus the effects the frame should carry out.
func (s *HTTPServer) handleWidgetDispatch(w http.ResponseWriter, r *http.Request) {
	var body widgetDispatchRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token := r.Header.Get(widget.CSRFHeader)
	if !widget.ValidCSRFToken(token) || token != body.State.CSRFToken {
		s.fail(w, errCSRFRequired)
		return
	}
	cfg, err := s.service.WidgetFrame(r.Context(), body.State.Domain, body.State.PageID, body.State.ParentOrigin)
	if err != nil {
		s.fail(w, err)
		return
	}
	state := body.State
	state.Domain = cfg.Domain
	state.ParentOrigin = cfg.ParentOrigin
	state.APIBase = cfg.APIBase

	next, effects, err := s.widgets.Receive(state, body.Message, body.Origin)
	switch {
	case errors.Is(err, widget.ErrOriginMismatch):
		writeError(w, http.StatusForbidden, "ORIGIN_MISMATCH", "Message origin does not match the frame's parent", nil)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), nil)
		return
	}
	if effects == nil {
		effects = []widget.Effect{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": next, "effects": effects})
}

func (s *HTTPServer) handlePageBootstrap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	response, err := s.service.PageBootstrap(r.Context(), s.optionalSession(r), PageQuery{
		Domain: q.Get("domain"),
		PageID: q.Get("pageId"),
		Title:  q.Get("title"),
		URL:    q.Get("url"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if !widget.ValidCSRFToken(r.Header.Get(widget.CSRFHeader)) {
		s.fail(w, errCSRFRequired)
		return
	}
	var input CreateCommentInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	response, err := s.service.CreateComment(r.Context(), s.optionalSession(r), input)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

// Moderation

func (s *HTTPServer) handleCommentStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	response, err := s.service.UpdateCommentStatus(r.Context(), caller, id, body.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var body struct {
		IDs    []int64 `json:"ids"`
		Action string  `json:"action"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	response, err := s.service.BulkModerate(r.Context(), caller, body.IDs, body.Action)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleLike(target store.LikeTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		response, err := s.service.Like(r.Context(), sess, target, id, r.Method == http.MethodDelete)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// Admin

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	response, err := s.service.Dashboard(r.Context(), sess)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleListSites(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	sites, err := s.service.ListSites(r.Context(), sess)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *HTTPServer) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var input CreateSiteInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	site, err := s.service.CreateSite(r.Context(), sess, input)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

// siteRoute wraps owner routes that take the site id from the path.
func (s *HTTPServer) siteRoute(fn func(ctx context.Context, caller Caller, siteID int64, r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := s.requireCaller(w, r)
		if !ok {
			return
		}
		siteID, ok := pathID(w, r)
		if !ok {
			return
		}
		response, err := fn(r.Context(), caller, siteID, r)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *HTTPServer) handleGetSite(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		return s.service.GetSite(ctx, caller, siteID)
	})(w, r)
}

func (s *HTTPServer) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, r *http.Request) (any, error) {
		var input UpdateSiteInput
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.UpdateSite(ctx, caller, siteID, input)
	})(w, r)
}

func (s *HTTPServer) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		if err := s.service.DeleteSite(ctx, caller, siteID); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "deleted": siteID}, nil
	})(w, r)
}

func (s *HTTPServer) handleSiteOverview(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		return s.service.SiteOverview(ctx, caller, siteID)
	})(w, r)
}

func (s *HTTPServer) handleSitePages(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		pages, err := s.service.SitePages(ctx, caller, siteID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pages": pages}, nil
	})(w, r)
}

func (s *HTTPServer) handleSiteActivity(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		items, err := s.service.SiteActivity(ctx, caller, siteID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"activity": items}, nil
	})(w, r)
}

func (s *HTTPServer) handleModerationQueue(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, r *http.Request) (any, error) {
		q := r.URL.Query()
		return s.service.ModerationQueue(ctx, caller, siteID, q.Get("status"), queryInt(q.Get("limit")))
	})(w, r)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, r *http.Request) (any, error) {
		q := r.URL.Query()
		return s.service.SearchComments(ctx, caller, siteID, q.Get("q"), q.Get("status"), queryInt(q.Get("limit")), queryInt(q.Get("offset")))
	})(w, r)
}

func (s *HTTPServer) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		return s.service.RotateSiteKey(ctx, caller, siteID)
	})(w, r)
}

func (s *HTTPServer) handleVerifySite(w http.ResponseWriter, r *http.Request) {
	s.siteRoute(func(ctx context.Context, caller Caller, siteID int64, _ *http.Request) (any, error) {
		return s.service.VerifySite(ctx, caller, siteID)
	})(w, r)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	upload := q.Get("upload") == "true" || q.Get("upload") == "1"
	result, err := s.service.ExportSite(r.Context(), caller, siteID, q.Get("format"), q.Get("status"), upload)
	if err != nil {
		s.fail(w, err)
		return
	}
	if result.URL != "" {
		writeJSON(w, http.StatusOK, map[string]any{"url": result.URL, "filename": result.Filename})
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// Session helpers

func sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := sessionToken(r)
	if token == "" {
		s.fail(w, errUnauthorized)
		return Session{}, false
	}
	if s.crossSiteCookie(r) {
		s.fail(w, errCrossOrigin)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			s.fail(w, errUnauthorized)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

// crossSiteCookie reports a state-changing request authenticated only by the
// session cookie and sent from an origin outside the credentialed allow-list.
func (s *HTTPServer) crossSiteCookie(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	if bearerToken(r) != "" || r.Header.Get("Origin") == "" {
		return false
	}
	return s.credentialedOrigin(r) == ""
}

// optionalSession returns nil for anonymous callers and for bad tokens.
func (s *HTTPServer) optionalSession(r *http.Request) *Session {
	token := sessionToken(r)
	if token == "" {
		return nil
	}
	if s.crossSiteCookie(r) {
		return nil
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return nil
	}
	return &sess
}

// requireCaller accepts a session, a site key, or both.
func (s *HTTPServer) requireCaller(w http.ResponseWriter, r *http.Request) (Caller, bool) {
	var caller Caller
	if key := r.Header.Get(siteKeyHeader); key != "" {
		site, err := s.service.SiteFromKey(r.Context(), key)
		if err != nil {
			s.fail(w, err)
			return Caller{}, false
		}
		caller.KeySiteID = site.ID
	}
	if sessionToken(r) != "" || caller.KeySiteID == 0 {
		sess, ok := s.requireSession(w, r)
		if !ok {
			return Caller{}, false
		}
		caller.Session = &sess
	}
	return caller, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// Response helpers

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		if rec, ok := w.(*statusRecorder); ok {
			rec.internalErr = err
		}
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var (
		domainErr  *DomainError
		validation *thread.ValidationError
		authErr    *thread.AuthenticationError
		notFound   *thread.NotFoundError
		conflict   *thread.ConflictError
	)
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.As(err, &validation):
		var fields any
		if validation.Field != "" {
			fields = map[string]any{"field": validation.Field}
		}
		return http.StatusBadRequest, "VALIDATION_ERROR", validation.Error(), fields
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, "UNAUTHORIZED", authErr.Error(), nil
	case errors.As(err, &notFound):
		return http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil
	case errors.As(err, &conflict):
		return http.StatusConflict, "CONFLICT", conflict.Error(), nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, export.ErrStorageNotConfigured):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Export storage is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
