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

package metrics_test

import (
	"context"
	"testing"

	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ oauth2.Metrics = (*metrics.TokenInstruments)(nil)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			for _, dp := range data.DataPoints {
				sums[m.Name] += dp.Value
			}
		}
	}
	return sums
}

// TestPurpose: Verifies that token outcomes are counted.
// Scope: Unit Test
// Expected: two issued, one rejected, one consent prompt.
func TestMetrics_TokenInstruments(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := metrics.NewTokenInstruments(metrics.NewWithProvider(provider, "tokenscope"))
	require.NoError(t, err)

	inst.TokenIssued(ctx, oauth2.GrantAuthorizationCode)
	inst.TokenIssued(ctx, oauth2.GrantRefreshToken)
	inst.TokenRejected(ctx, oauth2.GrantRefreshToken, oauth2.ErrInvalidToken)
	inst.ConsentPrompted(ctx, "third-party")

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["tokenscope.tokens.issued"])
	assert.Equal(t, int64(1), sums["tokenscope.tokens.rejected"])
	assert.Equal(t, int64(1), sums["tokenscope.consent.prompts"])
}

// TestPurpose: Verifies that a disabled meter still yields usable instruments.
// Scope: Unit Test
// Expected: no error and no panic.
func TestMetrics_Disabled(t *testing.T) {
	inst, err := metrics.NewTokenInstruments(metrics.New(metrics.Config{Enabled: false, ServiceName: "tokenscope"}))
	require.NoError(t, err)
	assert.NotPanics(t, func() { inst.TokenIssued(context.Background(), oauth2.GrantAuthorizationCode) })
}
