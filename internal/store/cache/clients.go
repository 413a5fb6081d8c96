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

// Package cache provides a read-through cache for OAuth2 clients. Clients are
// read on every authorize, token and logout call but change rarely.
package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/opentrusty/tokenscope/internal/oauth2"
)

// ClientRepository wraps an oauth2.ClientRepository with a TTL cache.
// Concurrent misses for the same client collapse into one load. A load only
// populates the cache if no write to the client started since it began.
type ClientRepository struct {
	next  oauth2.ClientRepository
	cache *gocache.Cache
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewClientRepository caches clients from next for ttl.
func NewClientRepository(next oauth2.ClientRepository, ttl time.Duration) *ClientRepository {
	return &ClientRepository{
		next:        next,
		cache:       gocache.New(ttl, 2*ttl),
		generations: make(map[string]uint64),
	}
}

func (r *ClientRepository) generation(clientID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[clientID]
}

// invalidate drops the cached client and makes loads already in flight
// discard their result.
func (r *ClientRepository) invalidate(clientID string) {
	r.mu.Lock()
	r.generations[clientID]++
	r.cache.Delete(clientID)
	r.mu.Unlock()
	r.group.Forget(clientID)
}

// store caches client unless the client was written after gen was read.
func (r *ClientRepository) store(clientID string, gen uint64, client *oauth2.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[clientID] == gen {
		r.cache.SetDefault(clientID, client)
	}
}

func (r *ClientRepository) Create(ctx context.Context, client *oauth2.Client) error {
	defer r.invalidate(client.ClientID)
	return r.next.Create(ctx, client)
}

// GetByClientID returns a copy of the cached client, loading it on a miss.
// Not-found results are not cached.
func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	if v, ok := r.cache.Get(clientID); ok {
		return copyClient(v.(*oauth2.Client)), nil
	}

	v, err, _ := r.group.Do(clientID, func() (any, error) {
		gen := r.generation(clientID)
		client, err := r.next.GetByClientID(ctx, clientID)
		if err != nil {
			return nil, err
		}
		r.store(clientID, gen, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return copyClient(v.(*oauth2.Client)), nil
}

func (r *ClientRepository) Update(ctx context.Context, client *oauth2.Client) error {
	r.invalidate(client.ClientID)
	defer r.invalidate(client.ClientID)
	return r.next.Update(ctx, client)
}

func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	r.invalidate(clientID)
	defer r.invalidate(clientID)
	return r.next.Delete(ctx, clientID)
}

// List always reads through.
func (r *ClientRepository) List(ctx context.Context) ([]*oauth2.Client, error) {
	return r.next.List(ctx)
}

// Flush drops every cached client.
func (r *ClientRepository) Flush() {
	r.cache.Flush()
}

func copyClient(c *oauth2.Client) *oauth2.Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.GrantTypes = append([]string(nil), c.GrantTypes...)
	cp.DefaultScopes = append([]string(nil), c.DefaultScopes...)
	cp.OptionalScopes = append([]string(nil), c.OptionalScopes...)
	return &cp
}
