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

package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/session"
	"github.com/opentrusty/tokenscope/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Verifies that a code can be consumed exactly once under contention.
// Scope: Unit Test
// Security: Authorization code replay
// Expected: One goroutine gets the session; all others get ErrCodeNotFound.
func TestMemory_CodeStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	codes := memory.NewCodeStore(time.Minute)
	require.NoError(t, codes.Create(ctx, &oauth2.AuthorizationSession{
		ID:        "as-1",
		CodeHash:  "hash-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	var wins, misses int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := codes.Consume(ctx, "hash-1")
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, oauth2.ErrCodeNotFound):
				atomic.AddInt32(&misses, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(31), misses)
}

func refreshToken(id, session, consentID string) *oauth2.RefreshToken {
	return &oauth2.RefreshToken{
		ID:        id,
		TokenHash: "h-" + id,
		ClientID:  "third-party",
		UserID:    "john",
		SessionID: session,
		ConsentID: consentID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
}

// TestPurpose: Ensures rotation observes consent revocation atomically.
// Scope: Unit Test
// Security: No refresh may succeed after the consent it depends on is gone
// Expected: Rotate succeeds while consent exists, then fails with ErrConsentRevoked.
func TestMemory_RefreshTokens_RotateChecksConsent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	consents := store.Consents()
	tokens := store.RefreshTokens()

	c, err := consents.Grant(ctx, &consent.Consent{ID: "c-1", UserID: "john", ClientID: "third-party", GrantedScopes: []string{"profile"}})
	require.NoError(t, err)
	require.NoError(t, tokens.Create(ctx, refreshToken("rt-1", "s-1", c.ID)))

	next := refreshToken("rt-2", "s-1", c.ID)
	require.NoError(t, tokens.Rotate(ctx, "rt-1", next))
	assert.ErrorIs(t, tokens.Rotate(ctx, "rt-1", nil), oauth2.ErrTokenRevoked)

	require.NoError(t, consents.Delete(ctx, "john", "third-party"))
	assert.ErrorIs(t, tokens.Rotate(ctx, "rt-2", nil), oauth2.ErrConsentRevoked)

	_, err = consents.Grant(ctx, &consent.Consent{ID: "c-2", UserID: "john", ClientID: "third-party"})
	require.NoError(t, err)
	assert.ErrorIs(t, tokens.Rotate(ctx, "rt-2", nil), oauth2.ErrConsentRevoked, "a new consent does not revive old tokens")
}

// TestPurpose: Validates the session and consent indexes used for cascades.
// Scope: Unit Test
// Expected: RevokeBySession and RevokeByConsent revoke only their dependents and count once.
func TestMemory_RefreshTokens_Cascades(t *testing.T) {
	ctx := context.Background()
	tokens := memory.New().RefreshTokens()

	require.NoError(t, tokens.Create(ctx, refreshToken("rt-1", "s-1", "")))
	require.NoError(t, tokens.Create(ctx, refreshToken("rt-2", "s-2", "")))
	other := refreshToken("rt-3", "s-3", "")
	other.ClientID = "test-app"
	require.NoError(t, tokens.Create(ctx, other))

	n, err := tokens.RevokeBySession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tokens.RevokeByConsent(ctx, "john", "third-party")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rt-1 was already revoked")

	rt, err := tokens.GetByTokenHash(ctx, "h-rt-3")
	require.NoError(t, err)
	assert.False(t, rt.IsRevoked)
}

// TestPurpose: Confirms union grants keep the original record identity.
// Scope: Unit Test
// Expected: Same ID; UpdatedAt only moves when scopes are added.
func TestMemory_Consents_GrantUnion(t *testing.T) {
	ctx := context.Background()
	consents := memory.New().Consents()
	t0 := time.Now()

	first, err := consents.Grant(ctx, &consent.Consent{ID: "c-1", UserID: "john", ClientID: "app", GrantedScopes: []string{"email"}, CreatedAt: t0, UpdatedAt: t0})
	require.NoError(t, err)

	same, err := consents.Grant(ctx, &consent.Consent{ID: "c-2", UserID: "john", ClientID: "app", GrantedScopes: []string{"email"}, UpdatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, first, same)

	grown, err := consents.Grant(ctx, &consent.Consent{ID: "c-3", UserID: "john", ClientID: "app", GrantedScopes: []string{"profile"}, UpdatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "c-1", grown.ID)
	assert.Equal(t, []string{"email", "profile"}, grown.GrantedScopes)
	assert.True(t, grown.UpdatedAt.After(t0))
}

// TestPurpose: Verifies expired refresh tokens are purged together with their indexes.
// Scope: Unit Test
// Expected: the expired token is gone; the live token of the same session is still revoked by session logout.
func TestMemory_RefreshTokens_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	tokens := memory.New().RefreshTokens()

	expired := refreshToken("rt-old", "sess-1", "c-1")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, tokens.Create(ctx, expired))
	require.NoError(t, tokens.Create(ctx, refreshToken("rt-live", "sess-1", "c-1")))

	require.NoError(t, tokens.DeleteExpired(ctx))

	_, err := tokens.GetByTokenHash(ctx, "h-rt-old")
	assert.ErrorIs(t, err, oauth2.ErrTokenNotFound)
	_, err = tokens.GetByTokenHash(ctx, "h-rt-live")
	require.NoError(t, err)

	n, err := tokens.RevokeBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestPurpose: Verifies the cleanup path used by the serve ticker for sessions and codes.
// Scope: Unit Test
// Expected: expired sessions and codes are purged; live ones remain.
func TestMemory_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sessions := session.NewService(store.Sessions(), time.Hour, 0)

	live, err := sessions.Create(ctx, "john", "127.0.0.1", "test")
	require.NoError(t, err)
	require.NoError(t, store.Sessions().Create(ctx, &session.Session{ID: "old", UserID: "john", ExpiresAt: time.Now().Add(-time.Minute)}))

	require.NoError(t, sessions.CleanupExpired(ctx))
	_, err = store.Sessions().Get(ctx, "old")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = store.Sessions().Get(ctx, live.ID)
	require.NoError(t, err)

	codes := memory.NewCodeStore(time.Hour)
	require.NoError(t, codes.Create(ctx, &oauth2.AuthorizationSession{CodeHash: "short", ExpiresAt: time.Now().Add(20 * time.Millisecond)}))
	require.NoError(t, codes.Create(ctx, &oauth2.AuthorizationSession{CodeHash: "long", ExpiresAt: time.Now().Add(time.Minute)}))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, codes.DeleteExpired(ctx))
	_, err = codes.Consume(ctx, "short")
	assert.ErrorIs(t, err, oauth2.ErrCodeNotFound)
	_, err = codes.Consume(ctx, "long")
	require.NoError(t, err)
}
