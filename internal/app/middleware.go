package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ankushKun/commentkit-sub001/internal/util"
	"github.com/ankushKun/commentkit-sub001/internal/widget"
)

type requestIDKey struct{}

// statusRecorder captures what the handler wrote for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	length      int
	internalErr error
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.length += n
	return n, err
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withMiddleware wraps the router: request id, CORS, preflight, and one
// wide log event per request.
func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin, s.credentialedOrigin(r))
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}
		if r.Body != nil {
			_, _ = io.Copy(io.Discard, r.Body)
			_ = r.Body.Close()
		}

		addr, _, _ := net.SplitHostPort(r.RemoteAddr)
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
			zap.Int("response_length", writer.length),
			zap.String("remote_addr", addr),
			zap.String("user_agent", r.UserAgent()),
			zap.Error(writer.internalErr),
		)
	})
}

// metricsMiddleware runs inside the router so the route template is known.
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		status := http.StatusOK
		if rec, ok := w.(*statusRecorder); ok {
			status = rec.status
		}
		s.service.Metrics().ObserveRequest(r.Method, route, status, time.Since(started))
	})
}

// credentialedOrigin returns the request origin when it may call with
// cookies: the dashboard, the API itself, configured origins, and on widget
// routes the origin of a registered site. Anything else gets "".
func (s *HTTPServer) credentialedOrigin(r *http.Request) string {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return ""
	}
	origin, err := widget.NormalizeOrigin(raw)
	if err != nil {
		return ""
	}
	if _, ok := s.trustedOrigins[origin]; ok {
		return origin
	}
	if isWidgetRoute(r.URL.Path) && s.service.SiteAllowsOrigin(r.Context(), origin) {
		return origin
	}
	return ""
}

func isWidgetRoute(path string) bool {
	return strings.HasPrefix(path, "/api/v1/sites/comments") ||
		strings.HasPrefix(path, "/api/v1/pages/") ||
		strings.HasPrefix(path, "/api/v1/comments/")
}

// trustedOriginSet collects the origins allowed to send credentials on
// every route. "*" entries in corsOrigin only open the uncredentialed policy.
func trustedOriginSet(corsOrigin string, urls ...string) map[string]struct{} {
	set := map[string]struct{}{}
	candidates := append([]string{}, urls...)
	candidates = append(candidates, strings.Split(corsOrigin, ",")...)
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || candidate == "*" {
			continue
		}
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}
		if origin, err := widget.NormalizeOrigin(u.Scheme + "://" + u.Host); err == nil {
			set[origin] = struct{}{}
		}
	}
	return set
}

// setCORSHeaders echoes credentialed only for allow-listed origins. Other
// callers get "*" without credentials when the policy is open, and no
// Allow-Origin at all otherwise.
func setCORSHeaders(header http.Header, corsOrigin, credentialed string) {
	header.Add("Vary", "Origin")
	switch {
	case credentialed != "":
		header.Set("Access-Control-Allow-Origin", credentialed)
		header.Set("Access-Control-Allow-Credentials", "true")
	case strings.Contains(corsOrigin, "*"):
		header.Set("Access-Control-Allow-Origin", "*")
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-CSRF-Token, X-Site-Key")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}
