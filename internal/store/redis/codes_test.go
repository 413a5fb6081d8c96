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

package redis_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/id"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/store/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *redis.CodeStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := redis.New(ctx, redis.Config{Addr: addr, KeyPrefix: "tokenscope:test:" + id.NewUUIDv7() + ":"})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestPurpose: Validates that a stored code is consumed once and keeps its snapshot.
// Scope: Redis Integration Test
// Security: Code replay across replicas
// Expected: one consumer wins; the snapshot round-trips; later consumers get ErrCodeNotFound.
func TestCodeStore_ConsumeOnce(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	snap := clientscope.NewSnapshot([]*clientscope.ClientScope{{Name: "openid", Position: 1}}, false)
	as := &oauth2.AuthorizationSession{
		ID:        id.NewUUIDv7(),
		CodeHash:  oauth2.HashToken("code"),
		ClientID:  "test-app",
		Scope:     snap,
		ExpiresAt: time.Now().Add(time.Minute),
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Create(ctx, as))
	assert.Error(t, store.Create(ctx, as), "duplicate code hash")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Consume(ctx, as.CodeHash)
			if err != nil {
				assert.ErrorIs(t, err, oauth2.ErrCodeNotFound)
				return
			}
			wins.Add(1)
			assert.Equal(t, "openid", got.Scope.String())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

// TestPurpose: Validates that expired sessions are rejected on write.
// Scope: Redis Integration Test
// Expected: error for an ExpiresAt in the past.
func TestCodeStore_RejectsExpired(t *testing.T) {
	store := openStore(t)
	err := store.Create(context.Background(), &oauth2.AuthorizationSession{
		CodeHash:  oauth2.HashToken("old"),
		ExpiresAt: time.Now().Add(-time.Second),
	})
	assert.Error(t, err)
}
