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

package oauth2_test

import (
	"testing"

	"github.com/opentrusty/tokenscope/internal/oauth2"
)

func BenchmarkService_ResolveScopes(b *testing.B) {
	f := newFixture(b, oauth2.Options{})
	client, err := f.store.Clients().GetByClientID(f.ctx, "test-app")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.svc.ResolveScopes(f.ctx, client, "phone scope-role-1 address openid"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkService_Refresh(b *testing.B) {
	f := newFixture(b, oauth2.Options{})
	tokens := f.loginTokens("openid profile email scope-role-1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.refresh("test-app", tokens.RefreshToken); err != nil {
			b.Fatal(err)
		}
	}
}
