// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opentrusty/tokenscope/internal/observability/logger"
	"github.com/opentrusty/tokenscope/internal/session"
)

// LoggingMiddleware writes one access log line per request. Server errors
// log at error level and client errors at warn.
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				level := slog.LevelInfo
				switch {
				case status >= 500:
					level = slog.LevelError
				case status >= 400:
					level = slog.LevelWarn
				}
				slog.LogAttrs(r.Context(), level, "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(routePattern(r, r.URL.Path)),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(status),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern returns the matched chi route, or fallback when no route matched.
// Only valid once the router has run.
func routePattern(r *http.Request, fallback string) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return fallback
}

// resolveSession loads the session named by the cookie and extends it. A
// cookie naming a dead session is cleared.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		return nil
	}
	sess, err := h.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		h.clearSessionCookie(w)
		return nil
	}
	if err := h.sessionService.Refresh(r.Context(), sessionID); err != nil {
		slog.ErrorContext(r.Context(), "failed to refresh session", logger.Error(err), logger.SessionID(sessionID))
	}
	return sess
}

// AuthMiddleware requires a live SSO session and adds it to the context
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.resolveSession(w, r)
		if sess == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// OptionalAuth adds the SSO session to the context when the cookie names a
// live one and passes the request through either way.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sess := h.resolveSession(w, r); sess != nil {
			ctx = withSession(ctx, sess)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CSRFMiddleware requires the X-CSRF-Token header on state-changing
// methods of cookie-authenticated API calls. Browsers cannot set it
// cross-origin without CORS.
func (h *Handler) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		default:
			if r.Header.Get("X-CSRF-Token") == "" {
				slog.WarnContext(r.Context(), "missing CSRF token header", logger.Method(r.Method), logger.Path(r.URL.Path))
				respondError(w, http.StatusForbidden, "X-CSRF-Token header is required for state-changing operations")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
