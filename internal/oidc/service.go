package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/tokenscope/internal/id"
)

// Token types written to the typ claim
const (
	TypeBearer = "Bearer"
	TypeID     = "ID"
)

// Config holds issuer settings
type Config struct {
	Issuer              string
	SigningKey          *rsa.PrivateKey
	AccessTokenLifetime time.Duration
	IDTokenLifetime     time.Duration
}

// Service signs and verifies the tokens issued by the service.
type Service struct {
	issuer     string
	signingKey *rsa.PrivateKey
	kid        string

	accessTokenLifetime time.Duration
	idTokenLifetime     time.Duration
}

// TokenParams describes one token to sign. Claims holds mapped claims;
// registered claims are always set by the service and win over Claims.
type TokenParams struct {
	Subject   string
	ClientID  string
	SessionID string
	Nonce     string
	Scope     string
	Claims    map[string]any
}

// DiscoveryMetadata represents OIDC Discovery metadata (OIDC Discovery Section 3)
type DiscoveryMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	EndSessionEndpoint               string   `json:"end_session_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ClaimsParameterSupported         bool     `json:"claims_parameter_supported"`
}

// JWK represents a JSON Web Key (RFC 7517)
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS represents a JSON Web Key Set (RFC 7517)
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewService creates a new OIDC service. A key is generated when none is configured.
func NewService(cfg Config) (*Service, error) {
	key := cfg.SigningKey
	if key == nil {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}
	if cfg.AccessTokenLifetime <= 0 {
		cfg.AccessTokenLifetime = 5 * time.Minute
	}
	if cfg.IDTokenLifetime <= 0 {
		cfg.IDTokenLifetime = cfg.AccessTokenLifetime
	}

	hash := sha256.Sum256(key.PublicKey.N.Bytes())
	return &Service{
		issuer:              cfg.Issuer,
		signingKey:          key,
		kid:                 base64.RawURLEncoding.EncodeToString(hash[:16]),
		accessTokenLifetime: cfg.AccessTokenLifetime,
		idTokenLifetime:     cfg.IDTokenLifetime,
	}, nil
}

// LoadSigningKey reads an RSA private key in PKCS#1 or PKCS#8 PEM form.
func LoadSigningKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA key")
	}
	return key, nil
}

// Issuer returns the configured issuer URL
func (s *Service) Issuer() string {
	return s.issuer
}

// AccessTokenLifetime is the lifetime of issued access tokens.
func (s *Service) AccessTokenLifetime() time.Duration {
	return s.accessTokenLifetime
}

// GetDiscoveryMetadata returns the OIDC configuration (OIDC Discovery Section 4)
func (s *Service) GetDiscoveryMetadata(scopes []string) DiscoveryMetadata {
	return DiscoveryMetadata{
		Issuer:                           s.issuer,
		AuthorizationEndpoint:            s.issuer + "/oauth2/authorize",
		TokenEndpoint:                    s.issuer + "/oauth2/token",
		RevocationEndpoint:               s.issuer + "/oauth2/revoke",
		EndSessionEndpoint:               s.issuer + "/oauth2/logout",
		JWKSURI:                          s.issuer + "/jwks.json",
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ScopesSupported:                  scopes,
		GrantTypesSupported:              []string{"authorization_code", "refresh_token"},
	}
}

// GetJWKS returns the public keys in JWKS format (RFC 7517)
func (s *Service) GetJWKS() JWKS {
	pub := s.signingKey.PublicKey
	return JWKS{
		Keys: []JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: s.kid,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(bigIntToBytes(pub.E)),
			},
		},
	}
}

func (s *Service) baseClaims(p TokenParams, typ string, lifetime time.Duration) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range p.Claims {
		claims[k] = v
	}
	claims["iss"] = s.issuer
	claims["sub"] = p.Subject
	claims["aud"] = p.ClientID
	claims["azp"] = p.ClientID
	claims["exp"] = now.Add(lifetime).Unix()
	claims["iat"] = now.Unix()
	claims["jti"] = id.NewUUIDv7()
	claims["typ"] = typ
	if p.SessionID != "" {
		claims["sid"] = p.SessionID
	}
	return claims
}

func (s *Service) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.signingKey)
}

// GenerateAccessToken signs an access token carrying the bound scope.
func (s *Service) GenerateAccessToken(p TokenParams) (string, error) {
	claims := s.baseClaims(p, TypeBearer, s.accessTokenLifetime)
	claims["scope"] = p.Scope
	return s.sign(claims)
}

// GenerateIDToken generates a signed id_token JWT (OIDC Core Section 2)
func (s *Service) GenerateIDToken(p TokenParams, accessToken string) (string, error) {
	claims := s.baseClaims(p, TypeID, s.idTokenLifetime)
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}

	// OIDC Core Section 3.1.3.6: left-most half of SHA-256 of the access token
	if accessToken != "" {
		atHash := sha256.Sum256([]byte(accessToken))
		claims["at_hash"] = base64.RawURLEncoding.EncodeToString(atHash[:len(atHash)/2])
	}
	return s.sign(claims)
}

// ParseToken verifies signature, issuer and expiry and returns the claims.
func (s *Service) ParseToken(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return &s.signingKey.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func bigIntToBytes(n int) []byte {
	if n == 0 {
		return []byte{0}
	}
	var res []byte
	for n > 0 {
		res = append([]byte{byte(n & 0xff)}, res...)
		n >>= 8
	}
	return res
}
