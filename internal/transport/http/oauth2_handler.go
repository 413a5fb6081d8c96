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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/observability/logger"
	"github.com/opentrusty/tokenscope/internal/oidc"
)

// ConsentRequiredResponse is returned by the authorize endpoint when the
// user must approve scopes. The UI posts the same parameters back to
// /oauth2/consent with a decision.
type ConsentRequiredResponse struct {
	Status string          `json:"status"`
	Scope  string          `json:"scope"`
	Prompt *consent.Prompt `json:"prompt"`
}

func authorizeRequestFrom(values map[string][]string) *oauth2.AuthorizeRequest {
	get := func(k string) string {
		if v := values[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return &oauth2.AuthorizeRequest{
		ClientID:     get("client_id"),
		RedirectURI:  get("redirect_uri"),
		ResponseType: get("response_type"),
		Scope:        get("scope"),
		State:        get("state"),
		Nonce:        get("nonce"),
	}
}

// Authorize endpoint
// @Summary OAuth2 Authorize Endpoint
// @Description Starts the authorization flow (RFC 6749). Returns a consent
// @Description continuation as JSON or redirects to the client with a code.
// @Tags OAuth2
// @Produce json
// @Param client_id query string true "Client ID"
// @Param redirect_uri query string true "Redirect URI"
// @Param response_type query string true "Response Type (must be 'code')"
// @Param scope query string false "Scopes"
// @Param state query string false "Random State"
// @Param nonce query string false "Nonce (OIDC)"
// @Success 200 {object} ConsentRequiredResponse
// @Success 302 {string} string "Redirects to callback"
// @Failure 401 {object} map[string]string
// @Router /oauth2/authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequestFrom(r.URL.Query())

	// Validate request parameters first
	if _, err := h.oauth2Service.ValidateAuthorizeRequest(r.Context(), req); err != nil {
		slog.WarnContext(r.Context(), "invalid authorize request",
			logger.Error(err),
			logger.ClientID(req.ClientID),
		)
		h.redirectOrRespond(w, r, err)
		return
	}

	sess := GetSession(r.Context())
	if sess == nil {
		respondError(w, http.StatusUnauthorized, oidc.ErrLoginRequired)
		return
	}

	res, err := h.oauth2Service.Authorize(r.Context(), req, sess)
	if err != nil {
		h.redirectOrRespond(w, r, err)
		return
	}

	if res.ConsentRequired() {
		slog.DebugContext(r.Context(), "consent required",
			logger.ClientID(req.ClientID),
			logger.Scope(res.Scope),
		)
		w.Header().Set("Cache-Control", "no-store")
		respondJSON(w, http.StatusOK, ConsentRequiredResponse{
			Status: oidc.ErrConsentRequired,
			Scope:  res.Scope,
			Prompt: res.Prompt,
		})
		return
	}

	http.Redirect(w, r, res.RedirectLocation(), http.StatusFound)
}

// Consent records the user's decision on a pending prompt
// @Summary Consent Decision
// @Description Approves or denies the scopes of a pending authorization request
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Param decision formData string true "approve or deny"
// @Param client_id formData string true "Client ID"
// @Param redirect_uri formData string true "Redirect URI"
// @Param response_type formData string true "Response Type"
// @Param scope formData string false "Scopes"
// @Param state formData string false "State"
// @Param nonce formData string false "Nonce"
// @Security CookieAuth
// @Success 302 {string} string "Redirects to callback"
// @Router /oauth2/consent [post]
func (h *Handler) Consent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}
	req := authorizeRequestFrom(r.PostForm)

	switch r.PostForm.Get("decision") {
	case "approve":
		res, err := h.oauth2Service.ApproveConsent(r.Context(), req, GetSession(r.Context()))
		if err != nil {
			h.redirectOrRespond(w, r, err)
			return
		}
		http.Redirect(w, r, res.RedirectLocation(), http.StatusFound)
	case "deny":
		h.redirectOrRespond(w, r, h.oauth2Service.DenyConsent(r.Context(), req))
	default:
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "decision must be approve or deny"))
	}
}

// Token endpoint
// @Summary OAuth2 Token Endpoint
// @Description Exchange a code or refresh token for tokens (RFC 6749)
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code or refresh_token"
// @Param code formData string false "Authorization Code"
// @Param redirect_uri formData string false "Redirect URI"
// @Param client_id formData string false "Client ID (if not Basic Auth)"
// @Param client_secret formData string false "Client Secret (if not Basic Auth)"
// @Param refresh_token formData string false "Refresh Token"
// @Success 200 {object} oauth2.TokenResponse
// @Failure 400 {object} oauth2.Error
// @Failure 401 {object} oauth2.Error
// @Router /oauth2/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	// Prevent caching (RFC 6749 Section 5.1)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}
	clientID, clientSecret := clientCredentials(r)

	req := &oauth2.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: r.PostForm.Get("refresh_token"),
	}

	ctx, span := h.tracer.Start(r.Context(), "oauth2.token")
	defer span.End()
	span.SetAttributes(
		attribute.String("oauth2.grant_type", req.GrantType),
		attribute.String("oauth2.client_id", req.ClientID),
	)

	resp, err := h.oauth2Service.Token(ctx, req)
	if err != nil {
		oe := oauth2.AsError(err)
		span.SetAttributes(attribute.String("oauth2.error", oe.Code))
		span.SetStatus(codes.Error, oe.Code)
		slog.WarnContext(ctx, "token request failed",
			logger.Error(err),
			logger.OAuthError(oe.Code),
			logger.GrantType(req.GrantType),
			logger.ClientID(req.ClientID),
		)
		h.respondOAuthError(w, err)
		return
	}

	span.SetAttributes(attribute.String("oauth2.scope", resp.Scope))
	respondJSON(w, http.StatusOK, resp)
}

// Revoke handles the token revocation request (RFC 7009)
// @Summary Revoke Token
// @Description Revoke a refresh token (RFC 7009)
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Param token formData string true "Token to revoke"
// @Param client_id formData string false "Client ID"
// @Param client_secret formData string false "Client Secret"
// @Success 200 {string} string "OK"
// @Failure 400 {object} oauth2.Error
// @Failure 401 {object} oauth2.Error
// @Router /oauth2/revoke [post]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}
	clientID, clientSecret := clientCredentials(r)

	token := r.PostForm.Get("token")
	if token == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "missing token"))
		return
	}

	if err := h.oauth2Service.RevokeToken(r.Context(), clientID, clientSecret, token); err != nil {
		h.respondOAuthError(w, err)
		return
	}

	// RFC 7009 Section 2.2: 200 whether or not the token was known.
	w.WriteHeader(http.StatusOK)
}

// Logout ends an SSO session and revokes its refresh tokens
// @Summary Logout
// @Description With a refresh_token and client credentials the session the
// @Description token belongs to is ended; otherwise the session cookie is used.
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param refresh_token formData string false "Refresh Token"
// @Param client_id formData string false "Client ID"
// @Param client_secret formData string false "Client Secret"
// @Success 200 {object} map[string]any
// @Failure 400 {object} oauth2.Error
// @Failure 401 {object} map[string]string
// @Router /oauth2/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	if refreshToken := r.PostForm.Get("refresh_token"); refreshToken != "" {
		clientID, clientSecret := clientCredentials(r)
		revoked, err := h.oauth2Service.LogoutWithRefreshToken(r.Context(), clientID, clientSecret, refreshToken)
		if err != nil {
			h.respondOAuthError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
		return
	}

	sess := GetSession(r.Context())
	if sess == nil {
		h.clearSessionCookie(w)
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	revoked, err := h.oauth2Service.Logout(r.Context(), sess.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "logout failed", logger.Error(err), logger.SessionID(sess.ID))
		respondError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

// clientCredentials reads client_id/client_secret from the form, falling back
// to HTTP Basic (RFC 6749 Section 2.3.1).
func clientCredentials(r *http.Request) (string, string) {
	clientID := r.PostForm.Get("client_id")
	clientSecret := r.PostForm.Get("client_secret")
	if clientID == "" {
		if username, password, ok := r.BasicAuth(); ok {
			return username, password
		}
	}
	return clientID, clientSecret
}

// redirectOrRespond delivers err to the client callback when the redirect
// URI was validated, and to the user agent otherwise.
func (h *Handler) redirectOrRespond(w http.ResponseWriter, r *http.Request, err error) {
	oe := oauth2.AsError(err)
	if oe.RedirectURI != "" {
		http.Redirect(w, r, oauth2.ErrorLocation(oe), http.StatusFound)
		return
	}
	h.respondOAuthError(w, oe)
}

// respondOAuthError serializes a protocol error into HTTP response.
func (h *Handler) respondOAuthError(w http.ResponseWriter, err error) {
	oe := oauth2.AsError(err)
	status := http.StatusBadRequest
	switch oe.Code {
	case oauth2.ErrInvalidClient:
		status = http.StatusUnauthorized
	case oauth2.ErrServerError:
		status = http.StatusInternalServerError
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, status, oe)
}
