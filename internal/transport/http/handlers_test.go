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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/observability/tracing"
	"github.com/opentrusty/tokenscope/internal/oidc"
	"github.com/opentrusty/tokenscope/internal/session"
	"github.com/opentrusty/tokenscope/internal/store/memory"
)

const (
	testRedirect = "http://localhost:8180/callback"
	testSecret   = "password"
	johnPassword = "john-secret-pw"
)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  chi.Router
	spans   *tracetest.InMemoryExporter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	nop := audit.NopLogger{}

	catalog := clientscope.NewCatalog(store.Scopes(), nop)
	require.NoError(t, catalog.EnsureBuiltins(ctx))
	require.NoError(t, catalog.Register(ctx, &clientscope.ClientScope{Name: "scope-role-1", Roles: []authz.RoleRef{authz.RealmRole("role-1")}}))

	users := identity.NewService(store.Users(), identity.NewPasswordHasher(64*1024, 1, 1, 16, 32), nop, 5, time.Minute)
	john := &identity.User{Username: "john", Email: "john@email.cz", Profile: identity.Profile{GivenName: "John"}}
	require.NoError(t, users.CreateUser(ctx, john))
	require.NoError(t, users.AddPassword(ctx, john.ID, johnPassword))

	roles := authz.NewService(store.Roles(), store.Assignments(), nop)
	_, err := roles.CreateRole(ctx, "", "role-1", "")
	require.NoError(t, err)
	require.NoError(t, roles.AssignRole(ctx, john.ID, authz.RealmRole("role-1"), audit.ActorSystem))

	signer, err := oidc.NewService(oidc.Config{Issuer: "http://localhost:8080"})
	require.NoError(t, err)
	sessions := session.NewService(store.Sessions(), time.Hour, 0)
	consents := consent.NewManager(store.Consents(), store.RefreshTokens(), nop)

	svc := oauth2.NewService(oauth2.Dependencies{
		Clients:       store.Clients(),
		Codes:         memory.NewCodeStore(time.Minute),
		RefreshTokens: store.RefreshTokens(),
		Scopes:        catalog,
		Consents:      consents,
		Users:         users,
		Roles:         roles,
		Sessions:      sessions,
		Signer:        signer,
		Audit:         nop,
	}, oauth2.Options{})

	require.NoError(t, svc.CreateClient(ctx, &oauth2.Client{
		ClientID:       "test-app",
		ClientName:     "Test App",
		RedirectURIs:   []string{testRedirect},
		DefaultScopes:  []string{"openid", "profile", "email"},
		OptionalScopes: []string{"address", "phone", "scope-role-1"},
		IsActive:       true,
	}, testSecret))
	require.NoError(t, svc.CreateClient(ctx, &oauth2.Client{
		ClientID:               "third-party",
		ClientName:             "Third Party",
		RedirectURIs:           []string{testRedirect},
		DefaultScopes:          []string{"openid", "profile", "email"},
		OptionalScopes:         []string{"address", "phone"},
		ConsentRequired:        true,
		DisplayOnConsentScreen: true,
		ConsentScreenText:      "Demo application",
		IsActive:               true,
	}, testSecret))

	spans := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	h := NewHandler(Services{
		Identity: users,
		Sessions: sessions,
		OAuth2:   svc,
		Consents: consents,
		Catalog:  catalog,
		OIDC:     signer,
		Audit:    nop,
		Tracer:   tracing.NewWithProvider(provider, "test"),
	}, SessionConfig{CookieName: "session_id", CookieHTTPOnly: true})

	metrics, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	return &testServer{t: t, handler: h, router: NewRouter(h, nil, metrics), spans: spans}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login() *http.Cookie {
	s.t.Helper()
	body := strings.NewReader(`{"username":"john","password":"` + johnPassword + `"}`)
	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body))
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	s.t.Fatal("no session cookie")
	return nil
}

func authorizeQuery(clientID, scope string) url.Values {
	return url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {testRedirect},
		"response_type": {"code"},
		"scope":         {scope},
		"state":         {"xyz"},
	}
}

func (s *testServer) authorize(cookie *http.Cookie, q url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return s.do(req)
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func codeFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code, loc.String())
	return code
}

func (s *testServer) token(form url.Values) (*httptest.ResponseRecorder, map[string]any) {
	w := s.do(postForm("/oauth2/token", form))
	var body map[string]any
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func exchangeForm(clientID, code string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirect},
		"client_id":     {clientID},
		"client_secret": {testSecret},
	}
}

func refreshForm(clientID, refreshToken string) url.Values {
	return url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
		"client_secret": {testSecret},
	}
}

// TestPurpose: Validates discovery metadata and the JWKS endpoint.
// Scope: HTTP Integration Test
// Expected: issuer, end_session_endpoint and catalog scopes are advertised; one RSA key is published.
func TestHTTP_Discovery(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var meta oidc.DiscoveryMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "http://localhost:8080", meta.Issuer)
	assert.Equal(t, "http://localhost:8080/oauth2/logout", meta.EndSessionEndpoint)
	assert.Equal(t, []string{"openid", "profile", "email", "address", "phone", "scope-role-1"}, meta.ScopesSupported)

	w = s.do(httptest.NewRequest(http.MethodGet, "/jwks.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var jwks oidc.JWKS
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "RS256", jwks.Keys[0].Alg)
}

// TestPurpose: Ensures request errors are reported before login is demanded and unredirectable errors are not redirected.
// Scope: HTTP Integration Test
// Security: Open redirect prevention (RFC 6749 Section 4.1.2.1)
// Expected: unknown redirect_uri -> 400 JSON; valid request without session -> 401 login_required;
// bad response_type -> 302 to the client with error=invalid_request.
func TestHTTP_Authorize_Errors(t *testing.T) {
	s := newTestServer(t)

	q := authorizeQuery("test-app", "openid")
	q.Set("redirect_uri", "http://evil.example/cb")
	w := s.authorize(nil, q)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))

	w = s.authorize(nil, authorizeQuery("test-app", "openid"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "login_required")

	q = authorizeQuery("test-app", "openid")
	q.Set("response_type", "token")
	w = s.authorize(nil, q)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_request", loc.Query().Get("error"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))
}

// TestPurpose: Walks the code flow over HTTP and verifies replay protection.
// Scope: HTTP Integration Test
// Security: Authorization code replay
// Expected: 200 with canonical scope and no-store; the second exchange is 400 invalid_grant.
func TestHTTP_CodeFlow(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	code := codeFrom(t, s.authorize(cookie, authorizeQuery("test-app", "openid email profile")))

	w, body := s.token(exchangeForm("test-app", code))
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "email openid profile", body["scope"])
	assert.NotEmpty(t, body["id_token"])
	assert.NotEmpty(t, body["refresh_token"])

	w, body = s.token(exchangeForm("test-app", code))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w, body = s.token(refreshForm("test-app", "not-a-token"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_token", body["error"])
}

// TestPurpose: Verifies client authentication failures map to 401 and accept HTTP Basic.
// Scope: HTTP Integration Test
// Expected: wrong secret -> 401 invalid_client; Basic credentials are honoured.
func TestHTTP_Token_ClientAuthentication(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	code := codeFrom(t, s.authorize(cookie, authorizeQuery("test-app", "openid")))
	form := exchangeForm("test-app", code)
	form.Set("client_secret", "wrong")
	w, body := s.token(form)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_client", body["error"])

	code = codeFrom(t, s.authorize(cookie, authorizeQuery("test-app", "openid")))
	form = exchangeForm("", code)
	form.Del("client_secret")
	req := postForm("/oauth2/token", form)
	req.SetBasicAuth("test-app", testSecret)
	w = s.do(req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = s.token(url.Values{"grant_type": {"password"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_grant_type", body["error"])
}

// TestPurpose: Walks consent prompt, approval, account revocation and the failing refresh.
// Scope: HTTP Integration Test
// Security: Consent revocation must invalidate the whole refresh chain
// Expected: prompt lists profile and email with client text; approve redirects with a code;
// DELETE revokes one token; refresh answers 400 invalid_token.
func TestHTTP_ConsentFlow(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	w := s.authorize(cookie, authorizeQuery("third-party", "openid"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pending struct {
		Status string         `json:"status"`
		Scope  string         `json:"scope"`
		Prompt consent.Prompt `json:"prompt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, "consent_required", pending.Status)
	assert.Equal(t, "email openid profile", pending.Scope)
	assert.Equal(t, []consent.PromptScope{
		{Name: "profile", DisplayText: "User profile"},
		{Name: "email", DisplayText: "Email address"},
	}, pending.Prompt.Scopes)
	assert.True(t, pending.Prompt.ShowClient)
	assert.Equal(t, "Demo application", pending.Prompt.ClientConsentText)

	form := authorizeQuery("third-party", "openid")
	form.Set("decision", "approve")
	req := consentRequest(form, cookie)
	code := codeFrom(t, s.do(req))

	w, body := s.token(exchangeForm("third-party", code))
	require.Equal(t, http.StatusOK, w.Code, body)
	refreshToken := body["refresh_token"].(string)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/account/consents", nil)
	req.AddCookie(cookie)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var consents []consent.Consent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &consents))
	require.Len(t, consents, 1)
	assert.Equal(t, []string{"email", "profile"}, consents[0].GrantedScopes)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/account/consents/third-party", nil)
	req.AddCookie(cookie)
	w = s.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code, "CSRF header required")

	req.Header.Set("X-CSRF-Token", "1")
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"client_id":"third-party","revoked_tokens":1}`, w.Body.String())

	w, body = s.token(refreshForm("third-party", refreshToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_token", body["error"])

	w = s.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// consentRequest posts a consent decision the way the consent UI does.
func consentRequest(form url.Values, cookie *http.Cookie) *http.Request {
	req := postForm("/oauth2/consent", form)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", "1")
	return req
}

// TestPurpose: Ensures a cross-site form post cannot approve consent with the user's cookie.
// Scope: HTTP Integration Test
// Security: CSRF on the consent decision endpoint
// Expected: 403 without the X-CSRF-Token header; no consent recorded, so authorize still prompts.
func TestHTTP_Consent_RequiresCSRFHeader(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	form := authorizeQuery("third-party", "openid")
	form.Set("decision", "approve")
	req := postForm("/oauth2/consent", form)
	req.AddCookie(cookie)
	w := s.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/account/consents", nil)
	req.AddCookie(cookie)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.authorize(cookie, authorizeQuery("third-party", "openid"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "consent_required")
}

// TestPurpose: Verifies that denying consent returns access_denied to the client.
// Scope: HTTP Integration Test
// Expected: 302 to the callback with error=access_denied and the original state.
func TestHTTP_ConsentDeny(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	form := authorizeQuery("third-party", "openid")
	form.Set("decision", "deny")
	req := consentRequest(form, cookie)
	w := s.do(req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))

	form.Set("decision", "maybe")
	req = consentRequest(form, cookie)
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

// TestPurpose: Verifies the proxy logout path driven by a refresh token and client credentials.
// Scope: HTTP Integration Test
// Security: Logout must revoke every refresh token of the session
// Expected: revoked=1; the refresh token no longer works; the SSO cookie is dead.
func TestHTTP_Logout_WithRefreshToken(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	code := codeFrom(t, s.authorize(cookie, authorizeQuery("test-app", "openid")))
	_, body := s.token(exchangeForm("test-app", code))
	refreshToken := body["refresh_token"].(string)

	w := s.do(postForm("/oauth2/logout", url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {"test-app"},
		"client_secret": {testSecret},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"revoked":1}`, w.Body.String())

	w, _ = s.token(refreshForm("test-app", refreshToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusUnauthorized, s.authorize(cookie, authorizeQuery("test-app", "openid")).Code)
}

// TestPurpose: Verifies cookie logout and RFC 7009 revocation.
// Scope: HTTP Integration Test
// Expected: revoke answers 200 for known and unknown tokens; cookie logout clears the cookie.
func TestHTTP_RevokeAndCookieLogout(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login()

	code := codeFrom(t, s.authorize(cookie, authorizeQuery("test-app", "openid")))
	_, body := s.token(exchangeForm("test-app", code))
	refreshToken := body["refresh_token"].(string)

	revoke := func(token string) int {
		return s.do(postForm("/oauth2/revoke", url.Values{
			"token":         {token},
			"client_id":     {"test-app"},
			"client_secret": {testSecret},
		})).Code
	}
	assert.Equal(t, http.StatusOK, revoke(refreshToken))
	assert.Equal(t, http.StatusOK, revoke("unknown"))

	w, body := s.token(refreshForm("test-app", refreshToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_token", body["error"])

	req := postForm("/api/v1/auth/logout", url.Values{})
	req.AddCookie(cookie)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)

	req = postForm("/api/v1/auth/logout", url.Values{})
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)
}

// TestPurpose: Ensures failed logins do not create sessions.
// Scope: HTTP Integration Test
// Expected: 401 without a Set-Cookie header.
func TestHTTP_Login_InvalidCredentials(t *testing.T) {
	s := newTestServer(t)
	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"john","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

// TestPurpose: Verifies that token requests are traced with their outcome.
// Scope: HTTP Integration Test
// Expected: an "oauth2.token" span carrying the grant type and the protocol error.
func TestHTTP_Token_Span(t *testing.T) {
	s := newTestServer(t)
	s.token(refreshForm("test-app", "bogus"))

	var found bool
	for _, span := range s.spans.GetSpans() {
		if span.Name != "oauth2.token" {
			continue
		}
		found = true
		attrs := map[string]string{}
		for _, kv := range span.Attributes {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, "refresh_token", attrs["oauth2.grant_type"])
		assert.Equal(t, "invalid_token", attrs["oauth2.error"])
	}
	assert.True(t, found)
}

// TestPurpose: Verifies Prometheus request metrics are labelled by route pattern.
// Scope: HTTP Integration Test
// Expected: /metrics exposes http_requests_total for the /health route.
func TestHTTP_Metrics(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",route="/health",status="200"} 1`)
}

// TestPurpose: Verifies that readiness reflects dependency checks.
// Scope: HTTP Integration Test
// Expected: 200 with passing checks; 503 naming the failing dependency otherwise.
func TestHTTP_Ready(t *testing.T) {
	s := newTestServer(t)
	s.handler.AddReadinessCheck("database", func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)

	s.handler.AddReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	w := s.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","failed":["redis"]}`, w.Body.String())
}

// TestPurpose: Verifies per-IP rate limiting.
// Scope: Unit Test
// Security: Brute-force mitigation on login and token endpoints
// Expected: the second request inside the burst window is rejected with 429; other IPs are unaffected.
func TestHTTP_RateLimit(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()

	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2"))
}
