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
	"fmt"

	"github.com/opentrusty/tokenscope/internal/audit"
)

// Logout destroys an SSO session and revokes every refresh token bound to it.
func (s *Service) Logout(ctx context.Context, sessionID string) (int, error) {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return 0, fmt.Errorf("failed to destroy session: %w", err)
	}
	revoked, err := s.refreshTokens.RevokeBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke session tokens: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceSession,
		Metadata: map[string]any{
			audit.AttrSessionID: sessionID,
			audit.AttrRevoked:   revoked,
		},
	})
	return revoked, nil
}

// LogoutWithRefreshToken is the back-channel logout used by relying parties
// and proxies that hold a refresh token but no SSO cookie.
func (s *Service) LogoutWithRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (int, error) {
	client, err := s.ValidateClientCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return 0, err
	}
	if refreshToken == "" {
		return 0, NewError(ErrInvalidRequest, "refresh_token is required")
	}
	rt, err := s.refreshTokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return 0, NewError(ErrInvalidGrant, "unknown refresh token")
		}
		return 0, NewError(ErrServerError, "failed to load refresh token")
	}
	if rt.ClientID != client.ClientID {
		return 0, NewError(ErrInvalidGrant, "client_id mismatch")
	}
	if rt.IsRevoked {
		return 0, NewError(ErrInvalidGrant, "session not active")
	}
	return s.Logout(ctx, rt.SessionID)
}

// RevokeToken revokes a single refresh token (RFC 7009). Unknown tokens are
// not an error.
func (s *Service) RevokeToken(ctx context.Context, clientID, clientSecret, token string) error {
	client, err := s.ValidateClientCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}
	rt, err := s.refreshTokens.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return NewError(ErrServerError, "failed to load refresh token")
	}
	if rt.ClientID != client.ClientID {
		return NewError(ErrInvalidClient, "client_id mismatch")
	}
	if err := s.refreshTokens.Revoke(ctx, rt.ID); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return NewError(ErrServerError, "failed to revoke refresh token")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  rt.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{audit.AttrClientID: client.ClientID},
	})
	return nil
}

// CleanupExpired removes expired authorization codes and refresh tokens.
func (s *Service) CleanupExpired(ctx context.Context) error {
	if err := s.codes.DeleteExpired(ctx); err != nil {
		return fmt.Errorf("failed to delete expired codes: %w", err)
	}
	if err := s.refreshTokens.DeleteExpired(ctx); err != nil {
		return fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return nil
}
