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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeLoginSuccess    = "login_success"
	TypeLoginFailed     = "login_failed"
	TypeUserLocked      = "user_locked"
	TypeUserCreated     = "user_created"
	TypeLogout          = "logout"
	TypeRoleAssigned    = "role_assigned"
	TypeRoleRevoked     = "role_revoked"
	TypeClientCreated   = "client_created"
	TypeScopeRegistered = "scope_registered"
	TypeScopeBound      = "scope_bound"
	TypeScopeUnbound    = "scope_unbound"
	TypeConsentPrompted = "consent_prompted"
	TypeConsentGranted  = "consent_granted"
	TypeConsentRevoked  = "consent_revoked"
	TypeCodeIssued      = "code_issued"
	TypeTokenIssued     = "token_issued"
	TypeTokenRefreshed  = "token_refreshed"
	TypeTokenRejected   = "token_rejected"
	TypeTokenRevoked    = "token_revoked"
)

// Resources
const (
	ResourceToken   = "token"
	ResourceConsent = "consent"
	ResourceSession = "session"
	ResourceScope   = "client_scope"
	ResourceClient  = "client"
	ResourceLogin   = "login"
)

// Metadata keys
const (
	AttrClientID  = "client_id"
	AttrScope     = "scope"
	AttrGrantType = "grant_type"
	AttrSessionID = "session_id"
	AttrReason    = "reason"
	AttrAttempts  = "attempts"
	AttrRole      = "role"
	AttrRevoked   = "revoked_count"
	AttrBinding   = "binding"
	AttrPending   = "pending_scopes"
)

// ActorSystem is the actor recorded for seed and maintenance operations.
const ActorSystem = "system"

// Event represents an auditable action
type Event struct {
	Type      string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
