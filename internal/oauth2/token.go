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

package oauth2

import (
	"context"
	"errors"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/id"
	"github.com/opentrusty/tokenscope/internal/mapper"
	"github.com/opentrusty/tokenscope/internal/oidc"
)

type issuedTokens struct {
	accessToken string
	idToken     string
}

// Exchange exchanges an authorization code for tokens (RFC 6749 Section 4.1.3).
// The code is consumed before anything else is checked, so a code can never
// be used twice, even when the exchange later fails.
func (s *Service) Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, s.reject(ctx, GrantAuthorizationCode, AsError(err), map[string]any{audit.AttrClientID: req.ClientID})
	}
	meta := map[string]any{audit.AttrClientID: client.ClientID}
	if !client.AllowsGrant(GrantAuthorizationCode) {
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrUnauthorizedClient, "grant type not allowed"), meta)
	}
	if req.Code == "" {
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrInvalidRequest, "code is required"), meta)
	}

	as, err := s.codes.Consume(ctx, HashToken(req.Code))
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrInvalidGrant, "authorization code not found"), meta)
		}
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrServerError, "failed to load authorization code"), meta)
	}
	if as.IsExpired() {
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrInvalidGrant, "authorization code expired"), meta)
	}
	if as.ClientID != client.ClientID {
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrInvalidGrant, "client_id mismatch"), meta)
	}
	if as.RedirectURI != req.RedirectURI {
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrInvalidGrant, "redirect_uri mismatch"), meta)
	}
	if _, err := s.sessions.Get(ctx, as.SessionID); err != nil {
		return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrInvalidGrant, "session not active"), meta)
	}
	if oe := s.checkConsent(ctx, as.UserID, client.ClientID, as.ConsentID, ErrInvalidGrant); oe != nil {
		return nil, s.reject(ctx, GrantAuthorizationCode, oe, meta)
	}

	issued, oe := s.issueTokens(ctx, client, as.UserID, as.SessionID, as.Nonce, as.Scope)
	if oe != nil {
		return nil, s.reject(ctx, GrantAuthorizationCode, oe, meta)
	}

	resp := &TokenResponse{
		AccessToken:  issued.accessToken,
		TokenType:    oidc.TypeBearer,
		ExpiresIn:    int(s.signer.AccessTokenLifetime().Seconds()),
		IDToken:      issued.idToken,
		Scope:        as.Scope.String(),
		SessionState: as.SessionID,
	}

	if client.AllowsGrant(GrantRefreshToken) {
		raw := generateToken()
		now := time.Now()
		rt := &RefreshToken{
			ID:        id.NewUUIDv7(),
			TokenHash: HashToken(raw),
			ClientID:  client.ClientID,
			UserID:    as.UserID,
			SessionID: as.SessionID,
			Scope:     as.Scope,
			ConsentID: as.ConsentID,
			ExpiresAt: now.Add(s.refreshLifetime(client)),
			CreatedAt: now,
		}
		if err := s.refreshTokens.Create(ctx, rt); err != nil {
			return nil, s.reject(ctx, GrantAuthorizationCode, NewError(ErrServerError, "failed to issue refresh token"), meta)
		}
		resp.RefreshToken = raw
	}

	s.metrics.TokenIssued(ctx, GrantAuthorizationCode)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  as.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{
			audit.AttrClientID:  client.ClientID,
			audit.AttrScope:     resp.Scope,
			audit.AttrGrantType: GrantAuthorizationCode,
			audit.AttrSessionID: as.SessionID,
		},
	})
	return resp, nil
}

// checkConsent verifies that the consent a grant depends on is still the
// current consent of the user for the client.
func (s *Service) checkConsent(ctx context.Context, userID, clientID, consentID, code string) *Error {
	if consentID == "" {
		return nil
	}
	c, err := s.consents.Get(ctx, userID, clientID)
	switch {
	case errors.Is(err, consent.ErrConsentNotFound):
		return NewError(code, "consent revoked")
	case err != nil:
		return NewError(ErrServerError, "failed to load consent")
	case c.ID != consentID:
		return NewError(code, "consent revoked")
	}
	return nil
}

// issueTokens maps claims and roles from snap and signs both tokens. Nothing
// is persisted here; any failure yields server_error and no token.
func (s *Service) issueTokens(ctx context.Context, client *Client, userID, sessionID, nonce string, snap clientscope.Snapshot) (*issuedTokens, *Error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "user not found")
	}

	claims, err := mapper.MapClaims(user, snap)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to map claims")
	}

	userRoles, err := s.roles.UserRoles(ctx, userID)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to load roles")
	}
	for k, v := range mapper.RoleClaims(mapper.MapRoles(userRoles, client.ClientID, snap)) {
		claims.AccessToken[k] = v
	}

	params := oidc.TokenParams{
		Subject:   userID,
		ClientID:  client.ClientID,
		SessionID: sessionID,
		Scope:     snap.String(),
		Claims:    claims.AccessToken,
	}
	accessToken, err := s.signer.GenerateAccessToken(params)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to sign access token")
	}

	params.Nonce = nonce
	params.Claims = claims.IDToken
	idToken, err := s.signer.GenerateIDToken(params, accessToken)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to sign id token")
	}
	return &issuedTokens{accessToken: accessToken, idToken: idToken}, nil
}

func (s *Service) refreshLifetime(client *Client) time.Duration {
	if client.RefreshTokenLifetime > 0 {
		return time.Duration(client.RefreshTokenLifetime) * time.Second
	}
	return s.refreshTokenLifetime
}
