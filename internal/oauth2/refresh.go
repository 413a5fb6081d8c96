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
	"github.com/opentrusty/tokenscope/internal/id"
	"github.com/opentrusty/tokenscope/internal/oidc"
)

// Refresh handles the refresh_token grant (RFC 6749 Section 6). Claims and
// roles are recomputed from the scope the token was bound to at login; a
// scope parameter on the request is ignored.
func (s *Service) Refresh(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, s.reject(ctx, GrantRefreshToken, AsError(err), map[string]any{audit.AttrClientID: req.ClientID})
	}
	meta := map[string]any{audit.AttrClientID: client.ClientID}
	if !client.AllowsGrant(GrantRefreshToken) {
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrUnauthorizedClient, "grant type not allowed"), meta)
	}
	if req.RefreshToken == "" {
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidRequest, "refresh_token is required"), meta)
	}

	rt, err := s.refreshTokens.GetByTokenHash(ctx, HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidToken, "unknown refresh token"), meta)
		}
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrServerError, "failed to load refresh token"), meta)
	}
	meta[audit.AttrSessionID] = rt.SessionID

	if rt.IsRevoked {
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidToken, "refresh token revoked"), meta)
	}
	if rt.IsExpired() {
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidGrant, "refresh token expired"), meta)
	}
	if rt.ClientID != client.ClientID {
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidGrant, "client_id mismatch"), meta)
	}
	if oe := s.checkConsent(ctx, rt.UserID, rt.ClientID, rt.ConsentID, ErrInvalidToken); oe != nil {
		return nil, s.reject(ctx, GrantRefreshToken, oe, meta)
	}
	if _, err := s.sessions.Get(ctx, rt.SessionID); err != nil {
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidGrant, "session not active"), meta)
	}

	issued, oe := s.issueTokens(ctx, client, rt.UserID, rt.SessionID, "", rt.Scope)
	if oe != nil {
		return nil, s.reject(ctx, GrantRefreshToken, oe, meta)
	}

	// Rotation and the revocation check happen in one atomic step; tokens
	// signed above are discarded if it fails.
	var next *RefreshToken
	raw := req.RefreshToken
	if s.rotateRefreshTokens {
		raw = generateToken()
		now := time.Now()
		next = &RefreshToken{
			ID:          id.NewUUIDv7(),
			TokenHash:   HashToken(raw),
			ClientID:    rt.ClientID,
			UserID:      rt.UserID,
			SessionID:   rt.SessionID,
			Scope:       rt.Scope,
			ConsentID:   rt.ConsentID,
			RotatedFrom: rt.ID,
			ExpiresAt:   now.Add(s.refreshLifetime(client)),
			CreatedAt:   now,
		}
	}
	if err := s.refreshTokens.Rotate(ctx, rt.ID, next); err != nil {
		switch {
		case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrTokenNotFound):
			return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidToken, "refresh token revoked"), meta)
		case errors.Is(err, ErrConsentRevoked):
			return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrInvalidToken, "consent revoked"), meta)
		}
		return nil, s.reject(ctx, GrantRefreshToken, NewError(ErrServerError, "failed to rotate refresh token"), meta)
	}

	s.metrics.TokenIssued(ctx, GrantRefreshToken)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		ActorID:  rt.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{
			audit.AttrClientID:  client.ClientID,
			audit.AttrScope:     rt.Scope.String(),
			audit.AttrGrantType: GrantRefreshToken,
			audit.AttrSessionID: rt.SessionID,
		},
	})

	return &TokenResponse{
		AccessToken:  issued.accessToken,
		TokenType:    oidc.TypeBearer,
		ExpiresIn:    int(s.signer.AccessTokenLifetime().Seconds()),
		RefreshToken: raw,
		IDToken:      issued.idToken,
		Scope:        rt.Scope.String(),
		SessionState: rt.SessionID,
	}, nil
}
