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

// Package memory is a transactional in-memory store. All repositories share
// one lock, so multi-record operations such as refresh token rotation with a
// consent check are atomic.
package memory

import (
	"sync"

	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/session"
)

// Store holds every record and its secondary indexes.
type Store struct {
	mu sync.RWMutex

	users       map[string]*identity.User
	usersByName map[string]string
	credentials map[string]*identity.Credentials

	sessions map[string]*session.Session

	roles       map[authz.RoleRef]*authz.Role
	assignments map[string]map[authz.RoleRef]*authz.Assignment

	scopes   map[string]*clientscope.ClientScope
	scopeSeq int64

	clients map[string]*oauth2.Client

	consents map[string]*consent.Consent

	refresh          map[string]*oauth2.RefreshToken
	refreshByHash    map[string]string
	refreshBySession map[string]map[string]struct{}
	refreshByConsent map[string]map[string]struct{}
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:            make(map[string]*identity.User),
		usersByName:      make(map[string]string),
		credentials:      make(map[string]*identity.Credentials),
		sessions:         make(map[string]*session.Session),
		roles:            make(map[authz.RoleRef]*authz.Role),
		assignments:      make(map[string]map[authz.RoleRef]*authz.Assignment),
		scopes:           make(map[string]*clientscope.ClientScope),
		clients:          make(map[string]*oauth2.Client),
		consents:         make(map[string]*consent.Consent),
		refresh:          make(map[string]*oauth2.RefreshToken),
		refreshByHash:    make(map[string]string),
		refreshBySession: make(map[string]map[string]struct{}),
		refreshByConsent: make(map[string]map[string]struct{}),
	}
}

// Users returns the identity.UserRepository view
func (s *Store) Users() *UserRepository { return &UserRepository{s} }

// Sessions returns the session.Repository view
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s} }

// Roles returns the authz.RoleRepository view
func (s *Store) Roles() *RoleRepository { return &RoleRepository{s} }

// Assignments returns the authz.AssignmentRepository view
func (s *Store) Assignments() *AssignmentRepository { return &AssignmentRepository{s} }

// Scopes returns the clientscope.Repository view
func (s *Store) Scopes() *ScopeRepository { return &ScopeRepository{s} }

// Clients returns the oauth2.ClientRepository view
func (s *Store) Clients() *ClientRepository { return &ClientRepository{s} }

// Consents returns the consent.Repository view
func (s *Store) Consents() *ConsentRepository { return &ConsentRepository{s} }

// RefreshTokens returns the oauth2.RefreshTokenRepository view
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s} }

func pairKey(userID, clientID string) string {
	return userID + "\x00" + clientID
}

func addIndex(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, id string) {
	if set, ok := index[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}
