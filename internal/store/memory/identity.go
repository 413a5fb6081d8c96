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
	"time"

	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/session"
)

// UserRepository implements identity.UserRepository
type UserRepository struct{ s *Store }

func cloneUser(u *identity.User) *identity.User {
	cp := *u
	if u.Attributes != nil {
		cp.Attributes = make(map[string][]string, len(u.Attributes))
		for k, v := range u.Attributes {
			cp.Attributes[k] = append([]string(nil), v...)
		}
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	return &cp
}

func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return identity.ErrUserAlreadyExists
	}
	if _, ok := r.s.usersByName[user.Username]; ok {
		return identity.ErrUserAlreadyExists
	}
	r.s.users[user.ID] = cloneUser(user)
	r.s.usersByName[user.Username] = user.ID
	return nil
}

func (r *UserRepository) AddCredentials(ctx context.Context, c *identity.Credentials) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[c.UserID]; !ok {
		return identity.ErrUserNotFound
	}
	cp := *c
	r.s.credentials[c.UserID] = &cp
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.usersByName[username]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return cloneUser(r.s.users[id]), nil
}

func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return identity.ErrUserNotFound
	}
	if existing.Username != user.Username {
		delete(r.s.usersByName, existing.Username)
		r.s.usersByName[user.Username] = user.ID
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (r *UserRepository) GetCredentials(ctx context.Context, userID string) (*identity.Credentials, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.credentials[userID]
	if !ok {
		return nil, identity.ErrInvalidCredentials
	}
	cp := *c
	return &cp, nil
}

// SessionRepository implements session.Repository
type SessionRepository struct{ s *Store }

func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *sess
	r.s.sessions[sess.ID] = &cp
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.LastSeenAt = at
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[id]; !ok {
		return session.ErrSessionNotFound
	}
	delete(r.s.sessions, id)
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, sess := range r.s.sessions {
		if sess.IsExpired() {
			delete(r.s.sessions, id)
		}
	}
	return nil
}
