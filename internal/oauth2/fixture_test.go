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

package oauth2_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/oidc"
	"github.com/opentrusty/tokenscope/internal/session"
	"github.com/opentrusty/tokenscope/internal/store/memory"
	"github.com/stretchr/testify/require"
)

const (
	redirectURI = "http://localhost:8180/callback"
	secret      = "password"
)

type fixture struct {
	t        testing.TB
	ctx      context.Context
	store    *memory.Store
	catalog  *clientscope.Catalog
	consents *consent.Manager
	sessions *session.Service
	signer   *oidc.Service
	svc      *oauth2.Service
	johnID   string
}

// failingSigner signs access tokens but never ID tokens.
type failingSigner struct{ *oidc.Service }

func (failingSigner) GenerateIDToken(oidc.TokenParams, string) (string, error) {
	return "", errors.New("hsm unavailable")
}

func newFixture(t testing.TB, opts oauth2.Options) *fixture {
	t.Helper()
	return newFixtureWithSigner(t, opts, nil)
}

func newFixtureWithSigner(t testing.TB, opts oauth2.Options, wrap func(*oidc.Service) oauth2.TokenSigner) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	nop := audit.NopLogger{}

	catalog := clientscope.NewCatalog(store.Scopes(), nop)
	require.NoError(t, catalog.EnsureBuiltins(ctx))
	require.NoError(t, catalog.Register(ctx, &clientscope.ClientScope{Name: "scope-role-1", Roles: []authz.RoleRef{authz.RealmRole("role-1")}}))
	require.NoError(t, catalog.Register(ctx, &clientscope.ClientScope{Name: "scope-role-2", Roles: []authz.RoleRef{authz.RealmRole("role-2")}}))

	address, err := catalog.Get(ctx, clientscope.ScopeAddress)
	require.NoError(t, err)
	address.Attributes.ConsentRequired = false
	require.NoError(t, catalog.Update(ctx, address))

	users := identity.NewService(store.Users(), identity.NewPasswordHasher(64*1024, 1, 1, 16, 32), nop, 5, time.Minute)
	john := &identity.User{
		Username:      "john",
		Email:         "john@email.cz",
		EmailVerified: true,
		Profile:       identity.Profile{GivenName: "John", FamilyName: "Doe"},
		Attributes: map[string][]string{
			"street":              {"Elm 5"},
			"phoneNumber":         {"111-222-333"},
			"phoneNumberVerified": {"true"},
		},
	}
	require.NoError(t, users.CreateUser(ctx, john))

	roles := authz.NewService(store.Roles(), store.Assignments(), nop)
	for _, ref := range []authz.RoleRef{
		authz.RealmRole("role-1"),
		authz.RealmRole("role-2"),
		authz.ClientRole("account", "manage-account"),
		authz.ClientRole("account", "view-profile"),
	} {
		_, err := roles.CreateRole(ctx, ref.ClientID, ref.Name, "")
		require.NoError(t, err)
		require.NoError(t, roles.AssignRole(ctx, john.ID, ref, audit.ActorSystem))
	}

	signer, err := oidc.NewService(oidc.Config{Issuer: "http://localhost:8080"})
	require.NoError(t, err)
	var tokenSigner oauth2.TokenSigner = signer
	if wrap != nil {
		tokenSigner = wrap(signer)
	}

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
		Signer:        tokenSigner,
		Audit:         nop,
	}, opts)

	require.NoError(t, svc.CreateClient(ctx, &oauth2.Client{
		ClientID:       "test-app",
		ClientName:     "Test App",
		RedirectURIs:   []string{redirectURI},
		DefaultScopes:  []string{"openid", "profile", "email"},
		OptionalScopes: []string{"address", "phone", "scope-role-1", "scope-role-2"},
		IsActive:       true,
	}, secret))
	require.NoError(t, svc.CreateClient(ctx, &oauth2.Client{
		ClientID:        "third-party",
		ClientName:      "Third Party",
		RedirectURIs:    []string{redirectURI},
		DefaultScopes:   []string{"openid", "profile", "email"},
		OptionalScopes:  []string{"address", "phone"},
		ConsentRequired: true,
		IsActive:        true,
	}, secret))

	return &fixture{
		t:        t,
		ctx:      ctx,
		store:    store,
		catalog:  catalog,
		consents: consents,
		sessions: sessions,
		signer:   signer,
		svc:      svc,
		johnID:   john.ID,
	}
}

func (f *fixture) login() *session.Session {
	f.t.Helper()
	sess, err := f.sessions.Create(f.ctx, f.johnID, "127.0.0.1", "test-agent")
	require.NoError(f.t, err)
	return sess
}

func (f *fixture) authorizeRequest(clientID, scope string) *oauth2.AuthorizeRequest {
	return &oauth2.AuthorizeRequest{
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		ResponseType: "code",
		Scope:        scope,
		State:        "xyz",
		Nonce:        "n-0S6_WzA2Mj",
	}
}

// code runs the authorization step and requires that no consent is pending.
func (f *fixture) code(sess *session.Session, clientID, scope string) string {
	f.t.Helper()
	res, err := f.svc.Authorize(f.ctx, f.authorizeRequest(clientID, scope), sess)
	require.NoError(f.t, err)
	require.False(f.t, res.ConsentRequired(), "unexpected consent prompt")
	return res.Code
}

func (f *fixture) exchange(clientID, code string) (*oauth2.TokenResponse, error) {
	return f.svc.Token(f.ctx, &oauth2.TokenRequest{
		GrantType:    oauth2.GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  redirectURI,
		ClientID:     clientID,
		ClientSecret: secret,
	})
}

func (f *fixture) refresh(clientID, refreshToken string) (*oauth2.TokenResponse, error) {
	return f.svc.Token(f.ctx, &oauth2.TokenRequest{
		GrantType:    oauth2.GrantRefreshToken,
		RefreshToken: refreshToken,
		ClientID:     clientID,
		ClientSecret: secret,
	})
}

// loginTokens performs a full login for test-app.
func (f *fixture) loginTokens(scope string) *oauth2.TokenResponse {
	f.t.Helper()
	resp, err := f.exchange("test-app", f.code(f.login(), "test-app", scope))
	require.NoError(f.t, err)
	return resp
}

func (f *fixture) claims(raw string) jwt.MapClaims {
	f.t.Helper()
	c, err := f.signer.ParseToken(raw)
	require.NoError(f.t, err)
	return c
}

func realmRoles(claims jwt.MapClaims) []string {
	access, ok := claims["realm_access"].(map[string]any)
	if !ok {
		return nil
	}
	raw, _ := access["roles"].([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(string))
	}
	sort.Strings(out)
	return out
}

func requireOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var oe *oauth2.Error
	require.True(t, errors.As(err, &oe), "expected *oauth2.Error, got %T: %v", err, err)
	require.Equal(t, code, oe.Code, oe.Description)
}
