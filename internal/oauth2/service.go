package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oidc"
	"github.com/opentrusty/tokenscope/internal/session"
)

// UnknownScopePolicy controls requested scope names the client has no binding for.
type UnknownScopePolicy string

const (
	UnknownScopeIgnore UnknownScopePolicy = "ignore"
	UnknownScopeReject UnknownScopePolicy = "reject"
)

// ScopeCatalog resolves scope names to catalog entries
type ScopeCatalog interface {
	Lookup(ctx context.Context, names []string) ([]*clientscope.ClientScope, error)
	Get(ctx context.Context, name string) (*clientscope.ClientScope, error)
}

// ConsentGate decides and records end-user consent
type ConsentGate interface {
	ScopesNeedingConsent(ctx context.Context, userID string, client consent.ClientPolicy, snap clientscope.Snapshot) (*consent.Prompt, error)
	RecordConsent(ctx context.Context, userID, clientID string, scopes []string) (*consent.Consent, error)
	Get(ctx context.Context, userID, clientID string) (*consent.Consent, error)
}

// UserDirectory loads users for claim mapping
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*identity.User, error)
}

// RoleSource returns the full role set of a user
type RoleSource interface {
	UserRoles(ctx context.Context, userID string) ([]authz.RoleRef, error)
}

// SessionStore exposes the SSO sessions tokens are bound to
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Destroy(ctx context.Context, sessionID string) error
}

// TokenSigner signs access and ID tokens
type TokenSigner interface {
	GenerateAccessToken(p oidc.TokenParams) (string, error)
	GenerateIDToken(p oidc.TokenParams, accessToken string) (string, error)
	AccessTokenLifetime() time.Duration
}

// Metrics records token pipeline outcomes
type Metrics interface {
	TokenIssued(ctx context.Context, grantType string)
	TokenRejected(ctx context.Context, grantType, code string)
	ConsentPrompted(ctx context.Context, clientID string)
}

// Dependencies are the collaborators of the OAuth2 service
type Dependencies struct {
	Clients       ClientRepository
	Codes         AuthorizationSessionRepository
	RefreshTokens RefreshTokenRepository
	Scopes        ScopeCatalog
	Consents      ConsentGate
	Users         UserDirectory
	Roles         RoleSource
	Sessions      SessionStore
	Signer        TokenSigner
	Audit         audit.Logger
	Metrics       Metrics
}

// Options tune issuance
type Options struct {
	AuthCodeLifetime     time.Duration
	RefreshTokenLifetime time.Duration
	RotateRefreshTokens  bool
	UnknownScopePolicy   UnknownScopePolicy
}

// Service provides OAuth2 business logic
type Service struct {
	clients       ClientRepository
	codes         AuthorizationSessionRepository
	refreshTokens RefreshTokenRepository
	scopes        ScopeCatalog
	consents      ConsentGate
	users         UserDirectory
	roles         RoleSource
	sessions      SessionStore
	signer        TokenSigner
	auditLogger   audit.Logger
	metrics       Metrics

	authCodeLifetime     time.Duration
	refreshTokenLifetime time.Duration
	rotateRefreshTokens  bool
	unknownScopePolicy   UnknownScopePolicy
}

// NewService creates a new OAuth2 service
func NewService(deps Dependencies, opts Options) *Service {
	if opts.AuthCodeLifetime <= 0 {
		opts.AuthCodeLifetime = time.Minute
	}
	if opts.RefreshTokenLifetime <= 0 {
		opts.RefreshTokenLifetime = 30 * time.Minute
	}
	if opts.UnknownScopePolicy == "" {
		opts.UnknownScopePolicy = UnknownScopeIgnore
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}

	return &Service{
		clients:              deps.Clients,
		codes:                deps.Codes,
		refreshTokens:        deps.RefreshTokens,
		scopes:               deps.Scopes,
		consents:             deps.Consents,
		users:                deps.Users,
		roles:                deps.Roles,
		sessions:             deps.Sessions,
		signer:               deps.Signer,
		auditLogger:          deps.Audit,
		metrics:              deps.Metrics,
		authCodeLifetime:     opts.AuthCodeLifetime,
		refreshTokenLifetime: opts.RefreshTokenLifetime,
		rotateRefreshTokens:  opts.RotateRefreshTokens,
		unknownScopePolicy:   opts.UnknownScopePolicy,
	}
}

// TokenRequest represents an OAuth2 token request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenResponse represents an OAuth2 token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope"`
	SessionState string `json:"session_state,omitempty"`
}

// Token dispatches a token request by grant type (RFC 6749 Section 4.1.3, 6)
func (s *Service) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.Exchange(ctx, req)
	case GrantRefreshToken:
		return s.Refresh(ctx, req)
	case "":
		return nil, NewError(ErrInvalidRequest, "grant_type is required")
	}
	return nil, NewError(ErrUnsupportedGrantType, "grant_type not supported")
}

func (s *Service) reject(ctx context.Context, grantType string, err *Error, metadata map[string]any) *Error {
	s.metrics.TokenRejected(ctx, grantType, err.Code)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[audit.AttrGrantType] = grantType
	metadata[audit.AttrReason] = err.Description
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRejected,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceToken,
		Metadata: metadata,
	})
	return err
}

type nopMetrics struct{}

func (nopMetrics) TokenIssued(context.Context, string)           {}
func (nopMetrics) TokenRejected(context.Context, string, string) {}
func (nopMetrics) ConsentPrompted(context.Context, string)       {}

func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// HashToken is the storage form of codes, refresh tokens and client secrets.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateClientSecret generates a new client secret
func GenerateClientSecret() string {
	return generateToken()
}
