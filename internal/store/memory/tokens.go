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

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/oauth2"
)

// ConsentRepository implements consent.Repository
type ConsentRepository struct{ s *Store }

func cloneConsent(c *consent.Consent) *consent.Consent {
	cp := *c
	cp.GrantedScopes = append([]string(nil), c.GrantedScopes...)
	return &cp
}

func (r *ConsentRepository) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.consents[pairKey(userID, clientID)]
	if !ok {
		return nil, consent.ErrConsentNotFound
	}
	return cloneConsent(c), nil
}

func (r *ConsentRepository) Grant(ctx context.Context, grant *consent.Consent) (*consent.Consent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(grant.UserID, grant.ClientID)
	existing, ok := r.s.consents[key]
	if !ok {
		c := cloneConsent(grant)
		c.GrantedScopes, _ = consent.Union(nil, grant.GrantedScopes)
		r.s.consents[key] = c
		return cloneConsent(c), nil
	}
	if merged, changed := consent.Union(existing.GrantedScopes, grant.GrantedScopes); changed {
		existing.GrantedScopes = merged
		existing.UpdatedAt = grant.UpdatedAt
	}
	return cloneConsent(existing), nil
}

func (r *ConsentRepository) Delete(ctx context.Context, userID, clientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(userID, clientID)
	if _, ok := r.s.consents[key]; !ok {
		return consent.ErrConsentNotFound
	}
	delete(r.s.consents, key)
	return nil
}

func (r *ConsentRepository) ListByUser(ctx context.Context, userID string) ([]*consent.Consent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*consent.Consent
	for _, c := range r.s.consents {
		if c.UserID == userID {
			out = append(out, cloneConsent(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// RefreshTokenRepository implements oauth2.RefreshTokenRepository. Tokens
// are indexed by session and by (user, client) so logout and consent
// revocation touch only their dependents.
type RefreshTokenRepository struct{ s *Store }

func cloneToken(t *oauth2.RefreshToken) *oauth2.RefreshToken {
	cp := *t
	return &cp
}

func (r *RefreshTokenRepository) insert(t *oauth2.RefreshToken) {
	r.s.refresh[t.ID] = cloneToken(t)
	r.s.refreshByHash[t.TokenHash] = t.ID
	addIndex(r.s.refreshBySession, t.SessionID, t.ID)
	addIndex(r.s.refreshByConsent, pairKey(t.UserID, t.ClientID), t.ID)
}

func (r *RefreshTokenRepository) revoke(ids map[string]struct{}, now time.Time) int {
	n := 0
	for id := range ids {
		t := r.s.refresh[id]
		if t == nil || t.IsRevoked {
			continue
		}
		t.IsRevoked = true
		t.RevokedAt = &now
		n++
	}
	return n
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *oauth2.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.insert(t)
	return nil
}

func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*oauth2.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.refreshByHash[tokenHash]
	if !ok {
		return nil, oauth2.ErrTokenNotFound
	}
	return cloneToken(r.s.refresh[id]), nil
}

func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID string, next *oauth2.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.refresh[oldID]
	if !ok {
		return oauth2.ErrTokenNotFound
	}
	if old.IsRevoked {
		return oauth2.ErrTokenRevoked
	}
	if old.ConsentID != "" {
		c, ok := r.s.consents[pairKey(old.UserID, old.ClientID)]
		if !ok || c.ID != old.ConsentID {
			return oauth2.ErrConsentRevoked
		}
	}

	now := time.Now()
	old.LastUsedAt = &now
	if next == nil {
		return nil
	}
	old.IsRevoked = true
	old.RevokedAt = &now
	r.insert(next)
	return nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.refresh[id]; !ok {
		return oauth2.ErrTokenNotFound
	}
	r.revoke(map[string]struct{}{id: {}}, time.Now())
	return nil
}

func (r *RefreshTokenRepository) RevokeBySession(ctx context.Context, sessionID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.revoke(r.s.refreshBySession[sessionID], time.Now()), nil
}

func (r *RefreshTokenRepository) RevokeByConsent(ctx context.Context, userID, clientID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.revoke(r.s.refreshByConsent[pairKey(userID, clientID)], time.Now()), nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.refresh {
		if !t.IsExpired() {
			continue
		}
		delete(r.s.refresh, id)
		delete(r.s.refreshByHash, t.TokenHash)
		removeIndex(r.s.refreshBySession, t.SessionID, id)
		removeIndex(r.s.refreshByConsent, pairKey(t.UserID, t.ClientID), id)
	}
	return nil
}
