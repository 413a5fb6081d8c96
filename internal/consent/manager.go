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

package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/id"
)

// Manager decides when users must be prompted and records their decisions.
type Manager struct {
	repo        Repository
	invalidator TokenInvalidator
	auditLogger audit.Logger
	locks       *keyedMutex
}

// NewManager creates a new consent manager
func NewManager(repo Repository, invalidator TokenInvalidator, auditLogger audit.Logger) *Manager {
	return &Manager{
		repo:        repo,
		invalidator: invalidator,
		auditLogger: auditLogger,
		locks:       newKeyedMutex(),
	}
}

func key(userID, clientID string) string {
	return userID + "\x00" + clientID
}

// Get returns the consent of a user for a client
func (m *Manager) Get(ctx context.Context, userID, clientID string) (*Consent, error) {
	return m.repo.Get(ctx, userID, clientID)
}

// List returns every consent of a user
func (m *Manager) List(ctx context.Context, userID string) ([]*Consent, error) {
	return m.repo.ListByUser(ctx, userID)
}

// ScopesNeedingConsent returns the prompt for an authorization. A scope is
// pending only when it is consent-gated and not yet granted. Clients that do
// not require consent never prompt.
func (m *Manager) ScopesNeedingConsent(ctx context.Context, userID string, client ClientPolicy, snap clientscope.Snapshot) (*Prompt, error) {
	prompt := &Prompt{
		ClientID:   client.ClientID,
		ClientName: client.Name,
		Scopes:     []PromptScope{},
	}
	if !client.ConsentRequired {
		return prompt, nil
	}
	if client.DisplayOnConsentScreen {
		prompt.ShowClient = true
		prompt.ClientConsentText = client.ConsentText
		if prompt.ClientConsentText == "" {
			prompt.ClientConsentText = client.Name
		}
	}

	stored, err := m.repo.Get(ctx, userID, client.ClientID)
	if err != nil && !errors.Is(err, ErrConsentNotFound) {
		return nil, fmt.Errorf("failed to load consent: %w", err)
	}
	if stored != nil {
		prompt.ConsentID = stored.ID
	}

	for _, s := range snap.Scopes {
		if !s.ConsentRequired {
			continue
		}
		if stored != nil && stored.Has(s.Name) {
			continue
		}
		prompt.Scopes = append(prompt.Scopes, PromptScope{Name: s.Name, DisplayText: s.DisplayText})
	}

	if prompt.Required() {
		m.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeConsentPrompted,
			ActorID:  userID,
			Resource: audit.ResourceConsent,
			Metadata: map[string]any{
				audit.AttrClientID: client.ClientID,
				audit.AttrPending:  strings.Join(prompt.ScopeNames(), " "),
			},
		})
	}
	return prompt, nil
}

// RecordConsent merges scopes into the user's consent for clientID.
// Granting an already granted subset leaves the record unchanged.
func (m *Manager) RecordConsent(ctx context.Context, userID, clientID string, scopes []string) (*Consent, error) {
	if userID == "" || clientID == "" {
		return nil, fmt.Errorf("user and client are required")
	}
	granted, _ := Union(nil, scopes)

	unlock := m.locks.Lock(key(userID, clientID))
	defer unlock()

	now := time.Now()
	c, err := m.repo.Grant(ctx, &Consent{
		ID:            id.NewUUIDv7(),
		UserID:        userID,
		ClientID:      clientID,
		GrantedScopes: granted,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record consent: %w", err)
	}

	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentGranted,
		ActorID:  userID,
		Resource: audit.ResourceConsent,
		Metadata: map[string]any{
			audit.AttrClientID: clientID,
			audit.AttrScope:    strings.Join(granted, " "),
		},
	})
	return c, nil
}

// Revoke deletes the consent of a user for a client and invalidates every
// refresh token issued to that pair. Returns the number of revoked tokens.
func (m *Manager) Revoke(ctx context.Context, userID, clientID string) (int, error) {
	unlock := m.locks.Lock(key(userID, clientID))
	defer unlock()

	err := m.repo.Delete(ctx, userID, clientID)
	missing := errors.Is(err, ErrConsentNotFound)
	if err != nil && !missing {
		return 0, fmt.Errorf("failed to delete consent: %w", err)
	}

	revoked, err := m.invalidator.RevokeByConsent(ctx, userID, clientID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke dependent tokens: %w", err)
	}
	if missing && revoked == 0 {
		return 0, ErrConsentNotFound
	}

	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentRevoked,
		ActorID:  userID,
		Resource: audit.ResourceConsent,
		Metadata: map[string]any{
			audit.AttrClientID: clientID,
			audit.AttrRevoked:  revoked,
		},
	})
	return revoked, nil
}
