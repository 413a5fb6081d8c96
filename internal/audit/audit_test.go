package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
// Test Case ID: AUD-01
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"refresh_token", true},
		{"client_secret", true},
		{"api_key", true},
		{"code_hash", true},
		{"credential", true},
		{"client_id", false},
		{"scope", false},
		{"grant_type", false},
		{"session_id", false},
		{"pending_scopes", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

// TestPurpose: Verifies that audit records are emitted with redacted secret metadata.
// Scope: Unit Test
// Security: Token material never reaches the log stream
// Expected: The refresh_token metadata value is replaced by [REDACTED]; scope is kept.
func TestAudit_SlogLogger_RedactsMetadata(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	NewSlogLogger().Log(context.Background(), Event{
		Type:     TypeTokenRefreshed,
		ActorID:  "john",
		Resource: ResourceToken,
		Metadata: map[string]any{
			"refresh_token": "raw-value",
			AttrScope:       "openid profile",
		},
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "AUDIT_EVENT", record["msg"])
	meta, ok := record["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", meta["refresh_token"])
	assert.Equal(t, "openid profile", meta["scope"])
}
