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

// Package redis stores authorization sessions in Redis. Keys expire with the
// code and are consumed with GETDEL, so a code is redeemable at most once
// across every replica sharing the instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/opentrusty/tokenscope/internal/oauth2"
)

// DefaultPrefix namespaces code keys.
const DefaultPrefix = "tokenscope:code:"

// Config holds connection settings
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// CodeStore implements oauth2.AuthorizationSessionRepository
type CodeStore struct {
	client rdb.UniversalClient
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*CodeStore, error) {
	client := rdb.NewClient(&rdb.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client rdb.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CodeStore{client: client, prefix: prefix}
}

func (s *CodeStore) key(codeHash string) string {
	return s.prefix + codeHash
}

// Create stores the session until it expires. Reusing a code hash fails.
func (s *CodeStore) Create(ctx context.Context, as *oauth2.AuthorizationSession) error {
	ttl := time.Until(as.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization session already expired")
	}
	payload, err := json.Marshal(as)
	if err != nil {
		return fmt.Errorf("failed to encode authorization session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(as.CodeHash), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store authorization session: %w", err)
	}
	if !ok {
		return fmt.Errorf("authorization code collision")
	}
	return nil
}

// Consume atomically reads and deletes the session.
func (s *CodeStore) Consume(ctx context.Context, codeHash string) (*oauth2.AuthorizationSession, error) {
	payload, err := s.client.GetDel(ctx, s.key(codeHash)).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization session: %w", err)
	}
	var as oauth2.AuthorizationSession
	if err := json.Unmarshal(payload, &as); err != nil {
		return nil, fmt.Errorf("failed to decode authorization session: %w", err)
	}
	return &as, nil
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (s *CodeStore) DeleteExpired(ctx context.Context) error {
	return nil
}

// Ping checks connectivity. Used by the readiness probe.
func (s *CodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *CodeStore) Close() error {
	return s.client.Close()
}
