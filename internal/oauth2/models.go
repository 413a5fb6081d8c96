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

	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
)

// Domain errors (Internal)
var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrCodeNotFound        = errors.New("authorization code not found")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrConsentRevoked      = errors.New("consent revoked")
	ErrInvalidBinding      = errors.New("invalid scope binding")
)

// Grant types
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// BindingKind tags a client scope binding.
type BindingKind string

const (
	BindingDefault  BindingKind = "default"
	BindingOptional BindingKind = "optional"
)

// Client represents an OAuth2 client application
type Client struct {
	ID                     string    `json:"id"`
	ClientID               string    `json:"client_id"`
	ClientSecretHash       string    `json:"-"`
	ClientName             string    `json:"client_name"`
	RedirectURIs           []string  `json:"redirect_uris"`
	GrantTypes             []string  `json:"grant_types"`
	DefaultScopes          []string  `json:"default_scopes"`
	OptionalScopes         []string  `json:"optional_scopes"`
	FullScopeAllowed       bool      `json:"full_scope_allowed"`
	ConsentRequired        bool      `json:"consent_required"`
	DisplayOnConsentScreen bool      `json:"display_on_consent_screen"`
	ConsentScreenText      string    `json:"consent_screen_text,omitempty"`
	RefreshTokenLifetime   int       `json:"refresh_token_lifetime"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// ValidateRedirectURI checks if the redirect URI is allowed for this client
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	return contains(c.RedirectURIs, redirectURI)
}

// AllowsGrant reports whether the client may use grantType.
func (c *Client) AllowsGrant(grantType string) bool {
	return contains(c.GrantTypes, grantType)
}

// Binding returns how scope is bound to the client.
func (c *Client) Binding(scope string) (BindingKind, bool) {
	if contains(c.DefaultScopes, scope) {
		return BindingDefault, true
	}
	if contains(c.OptionalScopes, scope) {
		return BindingOptional, true
	}
	return "", false
}

// ConsentPolicy returns the client-level consent settings.
func (c *Client) ConsentPolicy() consent.ClientPolicy {
	return consent.ClientPolicy{
		ClientID:               c.ClientID,
		Name:                   c.ClientName,
		ConsentRequired:        c.ConsentRequired,
		DisplayOnConsentScreen: c.DisplayOnConsentScreen,
		ConsentText:            c.ConsentScreenText,
	}
}

// AuthorizationSession is the server side of an authorization code. It is
// consumed exactly once by the code exchange.
type AuthorizationSession struct {
	ID          string               `json:"id"`
	CodeHash    string               `json:"code_hash"`
	ClientID    string               `json:"client_id"`
	UserID      string               `json:"user_id"`
	SessionID   string               `json:"session_id"`
	RedirectURI string               `json:"redirect_uri"`
	Nonce       string               `json:"nonce,omitempty"`
	State       string               `json:"state,omitempty"`
	Scope       clientscope.Snapshot `json:"scope"`
	ConsentID   string               `json:"consent_id,omitempty"`
	ExpiresAt   time.Time            `json:"expires_at"`
	CreatedAt   time.Time            `json:"created_at"`
}

// IsExpired checks if the authorization code has expired
func (a *AuthorizationSession) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// RefreshToken represents an OAuth2 refresh token. Scope is fixed for the
// whole refresh chain.
type RefreshToken struct {
	ID          string
	TokenHash   string
	ClientID    string
	UserID      string
	SessionID   string
	Scope       clientscope.Snapshot
	ConsentID   string
	RotatedFrom string
	ExpiresAt   time.Time
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
	IsRevoked   bool
	CreatedAt   time.Time
}

// IsExpired checks if the refresh token has expired
func (r *RefreshToken) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// ClientRepository defines the interface for OAuth2 client persistence
type ClientRepository interface {
	// Create creates a new OAuth2 client
	Create(ctx context.Context, client *Client) error

	// GetByClientID retrieves a client by client_id
	GetByClientID(ctx context.Context, clientID string) (*Client, error)

	// Update updates client information
	Update(ctx context.Context, client *Client) error

	// Delete removes a client
	Delete(ctx context.Context, clientID string) error

	// List returns every client
	List(ctx context.Context) ([]*Client, error)
}

// AuthorizationSessionRepository defines the interface for authorization code persistence
type AuthorizationSessionRepository interface {
	// Create stores a new authorization session
	Create(ctx context.Context, as *AuthorizationSession) error

	// Consume atomically removes and returns the session for codeHash.
	// Concurrent callers observe exactly one success; the rest get ErrCodeNotFound.
	Consume(ctx context.Context, codeHash string) (*AuthorizationSession, error)

	// DeleteExpired deletes all expired authorization sessions
	DeleteExpired(ctx context.Context) error
}

// RefreshTokenRepository defines the interface for refresh token persistence
type RefreshTokenRepository interface {
	// Create creates a new refresh token
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves a refresh token
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate atomically checks that oldID is still active and, when the token
	// depends on a consent, that the consent still exists with the same ID.
	// With next set, oldID is revoked and next is stored; with next nil only
	// LastUsedAt is updated. Fails with ErrTokenRevoked or ErrConsentRevoked.
	Rotate(ctx context.Context, oldID string, next *RefreshToken) error

	// Revoke revokes a single refresh token
	Revoke(ctx context.Context, id string) error

	// RevokeBySession revokes every token of an SSO session
	RevokeBySession(ctx context.Context, sessionID string) (int, error)

	// RevokeByConsent revokes every token issued to a user for a client
	RevokeByConsent(ctx context.Context, userID, clientID string) (int, error)

	// DeleteExpired deletes all expired refresh tokens
	DeleteExpired(ctx context.Context) error
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
