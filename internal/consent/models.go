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
	"sort"
	"time"
)

// ErrConsentNotFound is returned when no consent exists for a user and client.
var ErrConsentNotFound = errors.New("consent not found")

// Consent is the set of scopes a user has approved for a client.
type Consent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ClientID      string    `json:"client_id"`
	GrantedScopes []string  `json:"granted_scopes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Has reports whether scope was granted.
func (c *Consent) Has(scope string) bool {
	i := sort.SearchStrings(c.GrantedScopes, scope)
	return i < len(c.GrantedScopes) && c.GrantedScopes[i] == scope
}

// Union merges scopes into granted, returning the sorted union and whether
// anything was added. granted must be sorted.
func Union(granted, scopes []string) ([]string, bool) {
	set := make(map[string]struct{}, len(granted)+len(scopes))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	changed := false
	for _, s := range scopes {
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			changed = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, changed
}

// Repository defines the interface for consent persistence
type Repository interface {
	// Get retrieves the consent of a user for a client
	Get(ctx context.Context, userID, clientID string) (*Consent, error)

	// Grant merges grant.GrantedScopes into the stored consent, creating it
	// from grant when absent. An existing record keeps its ID and is only
	// touched when the union grows. Returns the stored record.
	Grant(ctx context.Context, grant *Consent) (*Consent, error)

	// Delete removes the consent record
	Delete(ctx context.Context, userID, clientID string) error

	// ListByUser returns every consent held by a user
	ListByUser(ctx context.Context, userID string) ([]*Consent, error)
}

// TokenInvalidator revokes the refresh tokens that depend on a consent.
type TokenInvalidator interface {
	RevokeByConsent(ctx context.Context, userID, clientID string) (int, error)
}

// ClientPolicy is the client-level consent configuration.
type ClientPolicy struct {
	ClientID               string
	Name                   string
	ConsentRequired        bool
	DisplayOnConsentScreen bool
	ConsentText            string
}

// PromptScope is one scope awaiting approval.
type PromptScope struct {
	Name        string `json:"name"`
	DisplayText string `json:"display_text"`
}

// Prompt is the consent decision for an authorization request.
type Prompt struct {
	ClientID          string        `json:"client_id"`
	ClientName        string        `json:"client_name,omitempty"`
	Scopes            []PromptScope `json:"scopes"`
	ShowClient        bool          `json:"show_client"`
	ClientConsentText string        `json:"client_consent_text,omitempty"`

	// ConsentID is the consent the authorization depends on, empty when the
	// client does not require consent or nothing was granted yet.
	ConsentID string `json:"-"`
}

// Required reports whether the user must approve scopes before a code is issued.
func (p *Prompt) Required() bool {
	return len(p.Scopes) > 0
}

// ScopeNames returns the names of the pending scopes.
func (p *Prompt) ScopeNames() []string {
	names := make([]string, 0, len(p.Scopes))
	for _, s := range p.Scopes {
		names = append(names, s.Name)
	}
	return names
}
