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

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys attached to token counters.
const (
	KeyGrantType  = attribute.Key("grant_type")
	KeyOAuthError = attribute.Key("oauth_error")
	KeyClientID   = attribute.Key("client_id")
)

// TokenInstruments counts token endpoint outcomes and consent prompts.
type TokenInstruments struct {
	issued   metric.Int64Counter
	rejected metric.Int64Counter
	prompts  metric.Int64Counter
}

// NewTokenInstruments registers the token counters on m.
func NewTokenInstruments(m *Meter) (*TokenInstruments, error) {
	t := &TokenInstruments{}
	err := m.registerCounters(
		counterSpec{"tokenscope.tokens.issued", "Token responses issued, by grant type", &t.issued},
		counterSpec{"tokenscope.tokens.rejected", "Token requests rejected, by grant type and error code", &t.rejected},
		counterSpec{"tokenscope.consent.prompts", "Authorizations that stopped at a consent prompt", &t.prompts},
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TokenInstruments) TokenIssued(ctx context.Context, grantType string) {
	t.issued.Add(ctx, 1, metric.WithAttributes(KeyGrantType.String(grantType)))
}

func (t *TokenInstruments) TokenRejected(ctx context.Context, grantType, code string) {
	t.rejected.Add(ctx, 1, metric.WithAttributes(
		KeyGrantType.String(grantType),
		KeyOAuthError.String(code),
	))
}

func (t *TokenInstruments) ConsentPrompted(ctx context.Context, clientID string) {
	t.prompts.Add(ctx, 1, metric.WithAttributes(KeyClientID.String(clientID)))
}
