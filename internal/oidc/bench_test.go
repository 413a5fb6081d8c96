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


package oidc

import "testing"

func benchParams() TokenParams {
	return TokenParams{
		Subject:   "u-john",
		ClientID:  "test-app",
		SessionID: "sess-1",
		Scope:     "email openid profile scope-role-1",
		Claims: map[string]any{
			"preferred_username": "john",
			"email":              "john@email.cz",
			"realm_access":       map[string]any{"roles": []string{"role-1"}},
		},
	}
}

// BenchmarkService_IssuePair measures one token response: access token plus ID token.
func BenchmarkService_IssuePair(b *testing.B) {
	s, err := NewService(Config{Issuer: "https://auth.example.com"})
	if err != nil {
		b.Fatal(err)
	}
	p := benchParams()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		at, err := s.GenerateAccessToken(p)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := s.GenerateIDToken(p, at); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkService_ParseToken(b *testing.B) {
	s, err := NewService(Config{Issuer: "https://auth.example.com"})
	if err != nil {
		b.Fatal(err)
	}
	raw, err := s.GenerateAccessToken(benchParams())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.ParseToken(raw); err != nil {
			b.Fatal(err)
		}
	}
}
