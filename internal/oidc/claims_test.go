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

package oidc_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/tokenscope/internal/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *oidc.Service {
	t.Helper()
	svc, err := oidc.NewService(oidc.Config{Issuer: "https://auth.example.com"})
	require.NoError(t, err)
	return svc
}

func params() oidc.TokenParams {
	return oidc.TokenParams{
		Subject:   "u-john",
		ClientID:  "test-app",
		SessionID: "sess-1",
		Scope:     "email openid profile",
		Claims: map[string]any{
			"preferred_username": "john",
			"realm_access":       map[string]any{"roles": []string{"role-1"}},
		},
	}
}

// TestPurpose: Verifies access tokens carry the bound scope and mapped claims.
// Scope: Unit Test
// Security: Resource servers authorize on the scope and role claims
// Expected: scope, typ, azp, sid and mapped claims survive signing and verification.
func TestOIDC_AccessToken_CarriesScopeAndClaims(t *testing.T) {
	svc := newService(t)

	raw, err := svc.GenerateAccessToken(params())
	require.NoError(t, err)

	claims, err := svc.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "email openid profile", claims["scope"])
	assert.Equal(t, oidc.TypeBearer, claims["typ"])
	assert.Equal(t, "test-app", claims["azp"])
	assert.Equal(t, "sess-1", claims["sid"])
	assert.Equal(t, "john", claims["preferred_username"])
	assert.Contains(t, claims, "realm_access")
}

// TestPurpose: Ensures mapped claims cannot replace registered claims.
// Scope: Unit Test
// Security: Subject and audience are owned by the issuer
// Expected: sub and iss come from the service even when Claims sets them.
func TestOIDC_Claims_RegisteredClaimsWin(t *testing.T) {
	svc := newService(t)
	p := params()
	p.Claims["sub"] = "attacker"
	p.Claims["iss"] = "https://evil.example.com"

	raw, err := svc.GenerateIDToken(p, "")
	require.NoError(t, err)

	claims, err := svc.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "u-john", claims["sub"])
	assert.Equal(t, "https://auth.example.com", claims["iss"])
	assert.Equal(t, oidc.TypeID, claims["typ"])
}

// TestPurpose: Verifies nonce propagation and at_hash computation (OIDC Core 3.1.3.6).
// Scope: Unit Test
// Security: Replay protection and token binding
// Expected: nonce present when provided; at_hash equals the left half of SHA-256.
func TestOIDC_IDToken_NonceAndAtHash(t *testing.T) {
	svc := newService(t)
	p := params()
	p.Nonce = "random-nonce-12345"
	accessToken := "test-access-token-for-hash-computation"

	raw, err := svc.GenerateIDToken(p, accessToken)
	require.NoError(t, err)

	claims, err := svc.ParseToken(raw)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(accessToken))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:16]), claims["at_hash"])
	assert.Equal(t, p.Nonce, claims["nonce"])

	raw, err = svc.GenerateIDToken(params(), "")
	require.NoError(t, err)
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	require.NoError(t, err)
	c := parsed.Claims.(jwt.MapClaims)
	assert.NotContains(t, c, "nonce")
	assert.NotContains(t, c, "at_hash")
}

// TestPurpose: Ensures tokens signed by another key or issuer are rejected.
// Scope: Unit Test
// Security: Token forgery
// Expected: ErrInvalidToken.
func TestOIDC_ParseToken_RejectsForeignTokens(t *testing.T) {
	svc := newService(t)
	other, err := oidc.NewService(oidc.Config{Issuer: "https://auth.example.com"})
	require.NoError(t, err)

	raw, err := other.GenerateAccessToken(params())
	require.NoError(t, err)
	_, err = svc.ParseToken(raw)
	assert.ErrorIs(t, err, oidc.ErrInvalidToken)

	_, err = svc.ParseToken("not-a-jwt")
	assert.ErrorIs(t, err, oidc.ErrInvalidToken)
}

// TestPurpose: Validates PEM key loading for both PKCS#1 and PKCS#8 encodings.
// Scope: Unit Test
// Expected: The loaded key signs tokens verifiable through the JWKS key id.
func TestOIDC_LoadSigningKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	dir := t.TempDir()

	pkcs1 := filepath.Join(dir, "pkcs1.pem")
	require.NoError(t, os.WriteFile(pkcs1, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := filepath.Join(dir, "pkcs8.pem")
	require.NoError(t, os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	for _, path := range []string{pkcs1, pkcs8} {
		loaded, err := oidc.LoadSigningKey(path)
		require.NoError(t, err)
		assert.True(t, key.Equal(loaded))
	}

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("nope"), 0o600))
	_, err = oidc.LoadSigningKey(garbage)
	assert.Error(t, err)

	a, err := oidc.NewService(oidc.Config{Issuer: "x", SigningKey: key})
	require.NoError(t, err)
	b, err := oidc.NewService(oidc.Config{Issuer: "x", SigningKey: key})
	require.NoError(t, err)
	assert.Equal(t, a.GetJWKS().Keys[0].Kid, b.GetJWKS().Keys[0].Kid, "kid is derived from the key")
}
