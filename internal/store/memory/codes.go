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
	"sync"
	"time"

	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/patrickmn/go-cache"
)

// CodeStore implements oauth2.AuthorizationSessionRepository on a TTL cache.
// Entries expire with their code.
type CodeStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewCodeStore creates a code store that sweeps expired entries every cleanupInterval
func NewCodeStore(cleanupInterval time.Duration) *CodeStore {
	return &CodeStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *CodeStore) Create(ctx context.Context, as *oauth2.AuthorizationSession) error {
	ttl := time.Until(as.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	cp := *as
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Add(as.CodeHash, &cp, ttl)
}

// Consume removes and returns the entry under a single lock.
func (s *CodeStore) Consume(ctx context.Context, codeHash string) (*oauth2.AuthorizationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(codeHash)
	if !ok {
		return nil, oauth2.ErrCodeNotFound
	}
	s.cache.Delete(codeHash)
	as := *v.(*oauth2.AuthorizationSession)
	return &as, nil
}

func (s *CodeStore) DeleteExpired(ctx context.Context) error {
	s.cache.DeleteExpired()
	return nil
}
