// @title TokenScope API
// @version 1.0.0
// @description OpenID Connect token service with scope-bound refresh tokens
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0

// @BasePath /

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name session_id

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/observability/logger"
	"github.com/opentrusty/tokenscope/internal/observability/tracing"
	"github.com/opentrusty/tokenscope/internal/oidc"
	"github.com/opentrusty/tokenscope/internal/session"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	sessionService  *session.Service
	oauth2Service   *oauth2.Service
	consentManager  *consent.Manager
	catalog         *clientscope.Catalog
	oidcService     *oidc.Service
	auditLogger     audit.Logger
	tracer          *tracing.Tracer
	sessionConfig   SessionConfig
	readiness       map[string]ReadinessCheck
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	MaxAge         time.Duration
}

// Services groups the domain services served over HTTP
type Services struct {
	Identity *identity.Service
	Sessions *session.Service
	OAuth2   *oauth2.Service
	Consents *consent.Manager
	Catalog  *clientscope.Catalog
	OIDC     *oidc.Service
	Audit    audit.Logger
	Tracer   *tracing.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, sessionConfig SessionConfig) *Handler {
	if svc.Audit == nil {
		svc.Audit = audit.NopLogger{}
	}
	if svc.Tracer == nil {
		svc.Tracer, _ = tracing.New(context.Background(), tracing.Config{})
	}
	if sessionConfig.CookieName == "" {
		sessionConfig.CookieName = "session_id"
	}
	if sessionConfig.CookiePath == "" {
		sessionConfig.CookiePath = "/"
	}
	return &Handler{
		identityService: svc.Identity,
		sessionService:  svc.Sessions,
		oauth2Service:   svc.OAuth2,
		consentManager:  svc.Consents,
		catalog:         svc.Catalog,
		oidcService:     svc.OIDC,
		auditLogger:     svc.Audit,
		tracer:          svc.Tracer,
		sessionConfig:   sessionConfig,
		readiness:       make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by /ready.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.readiness[name] = check
}

// NewRouter creates a new HTTP router. metrics may be nil.
func NewRouter(h *Handler, rateLimiter *RateLimiter, metrics *HTTPMetrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if metrics != nil {
		r.Use(metrics.Middleware)
	}
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.Ready)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// RFC OIDC Discovery Section 4
	r.Get("/.well-known/openid-configuration", h.Discovery)
	r.Get("/jwks.json", h.JWKS)

	r.Route("/oauth2", func(r chi.Router) {
		// RFC 6749 Section 4.1.1; the session is optional so that request
		// errors are reported before login is demanded.
		r.With(h.OptionalAuth).Get("/authorize", h.Authorize)
		r.With(h.AuthMiddleware, h.CSRFMiddleware).Post("/consent", h.Consent)

		// RFC 6749 Section 4.1.3 and 6
		r.Post("/token", h.Token)

		// RFC 7009
		r.Post("/revoke", h.Revoke)

		// Cookie or refresh token driven logout
		r.With(h.OptionalAuth).Post("/logout", h.Logout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.With(h.OptionalAuth).Post("/auth/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(h.CSRFMiddleware)

			r.Get("/auth/me", h.GetCurrentUser)
			r.Get("/account/consents", h.ListConsents)
			r.Delete("/account/consents/{clientID}", h.RevokeConsent)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tokenscope",
	})
}

// Ready probes every registered dependency
// @Summary Readiness Check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := []string{}
	for name, check := range h.readiness {
		if err := check(ctx); err != nil {
			slog.WarnContext(ctx, "readiness check failed", logger.Component(name), logger.Error(err))
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	if len(failed) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username" example:"john"`
	Password string `json:"password" example:"secret123"`
}

// Login handles user login
// @Summary Login
// @Description Authenticate user and create an SSO session
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrAccountLocked) {
			respondError(w, http.StatusLocked, "account locked")
			return
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   user.ID,
		Resource:  audit.ResourceSession,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrSessionID: sess.ID},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// GetCurrentUser returns the current authenticated user identity
// @Summary Get Current User
// @Tags User
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/v1/auth/me [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"username":       user.Username,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"profile":        user.Profile,
	})
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	maxAge := int(h.sessionConfig.MaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = 86400
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   maxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// getIPAddress returns the first X-Forwarded-For hop, X-Real-IP, or the
// remote host.
func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
