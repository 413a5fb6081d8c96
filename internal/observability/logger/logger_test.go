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

package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/opentrusty/tokenscope/internal/observability/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// TestPurpose: Verifies that records logged inside a span carry its identifiers.
// Scope: Unit Test
// Expected: trace_id and span_id match the span context; service attribute present.
func TestLogger_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "json", ServiceName: "tokenscope", Output: &buf, DisableOTel: true})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	log.InfoContext(ctx, "token issued", logger.ClientID("test-app"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, sc.TraceID().String(), rec["trace_id"])
	assert.Equal(t, sc.SpanID().String(), rec["span_id"])
	assert.Equal(t, "test-app", rec["client_id"])
	assert.Equal(t, "tokenscope", rec["service"])
}

// TestPurpose: Verifies level filtering and that records without a span carry no trace ids.
// Scope: Unit Test
// Expected: debug dropped at warn level; no trace_id on plain records.
func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "warn", Format: "json", Output: &buf, DisableOTel: true})

	log.Debug("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept", logger.Revoked(3))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "trace_id")
	assert.EqualValues(t, 3, rec["revoked_count"])

	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("ERROR"))
}

// TestPurpose: Verifies that credential-bearing attributes are redacted.
// Scope: Unit Test
// Security: Secrets and bearer tokens must never appear in log output
// Expected: refresh_token and client_secret values replaced; other attributes untouched.
func TestLogger_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Format: "json", Output: &buf, DisableOTel: true})

	log.Info("token request",
		slog.String("refresh_token", "rt-secret-value"),
		slog.String("client_secret", "s3cr3t"),
		logger.GrantType("refresh_token"),
	)

	assert.NotContains(t, buf.String(), "rt-secret-value")
	assert.NotContains(t, buf.String(), "s3cr3t")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "[REDACTED]", rec["refresh_token"])
	assert.Equal(t, "[REDACTED]", rec["client_secret"])
	assert.Equal(t, "refresh_token", rec["grant_type"])
}
