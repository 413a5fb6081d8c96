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

package oauth2

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/id"
)

// CreateClient registers a new OAuth2 client. An empty secret creates a
// public client.
func (s *Service) CreateClient(ctx context.Context, client *Client, secret string) error {
	if client.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	for _, name := range append(append([]string(nil), client.DefaultScopes...), client.OptionalScopes...) {
		if _, err := s.scopes.Get(ctx, name); err != nil {
			return fmt.Errorf("scope %s: %w", name, err)
		}
	}
	for _, name := range client.DefaultScopes {
		if contains(client.OptionalScopes, name) {
			return fmt.Errorf("%w: %s is bound as default and optional", ErrInvalidBinding, name)
		}
	}

	now := time.Now()
	client.ID = id.NewUUIDv7()
	if secret != "" {
		client.ClientSecretHash = HashToken(secret)
	}
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{GrantAuthorizationCode, GrantRefreshToken}
	}
	client.CreatedAt = now
	client.UpdatedAt = now

	if err := s.clients.Create(ctx, client); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientCreated,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{audit.AttrClientID: client.ClientID},
	})
	return nil
}

// GetClient retrieves a client by client_id
func (s *Service) GetClient(ctx context.Context, clientID string) (*Client, error) {
	return s.clients.GetByClientID(ctx, clientID)
}

// ListClients returns every registered client
func (s *Service) ListClients(ctx context.Context) ([]*Client, error) {
	return s.clients.List(ctx)
}

// BindScope binds a catalog scope to a client, moving it between default and
// optional when it is already bound the other way.
func (s *Service) BindScope(ctx context.Context, clientID, scope string, kind BindingKind) error {
	if kind != BindingDefault && kind != BindingOptional {
		return fmt.Errorf("%w: unknown binding %q", ErrInvalidBinding, kind)
	}
	if _, err := s.scopes.Get(ctx, scope); err != nil {
		return err
	}
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}

	client.DefaultScopes = without(client.DefaultScopes, scope)
	client.OptionalScopes = without(client.OptionalScopes, scope)
	if kind == BindingDefault {
		client.DefaultScopes = append(client.DefaultScopes, scope)
	} else {
		client.OptionalScopes = append(client.OptionalScopes, scope)
	}
	client.UpdatedAt = time.Now()
	if err := s.clients.Update(ctx, client); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeScopeBound,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{
			audit.AttrClientID: clientID,
			audit.AttrScope:    scope,
			audit.AttrBinding:  string(kind),
		},
	})
	return nil
}

// UnbindScope removes a scope binding from a client.
func (s *Service) UnbindScope(ctx context.Context, clientID, scope string) error {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}
	if _, bound := client.Binding(scope); !bound {
		return fmt.Errorf("%w: %s is not bound to %s", ErrInvalidBinding, scope, clientID)
	}
	client.DefaultScopes = without(client.DefaultScopes, scope)
	client.OptionalScopes = without(client.OptionalScopes, scope)
	client.UpdatedAt = time.Now()
	if err := s.clients.Update(ctx, client); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeScopeUnbound,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{
			audit.AttrClientID: clientID,
			audit.AttrScope:    scope,
		},
	})
	return nil
}

// ValidateClientCredentials validates client credentials (RFC 6749 Section 3.2.1)
func (s *Service) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	if clientID == "" {
		return nil, NewError(ErrInvalidClient, "client authentication required")
	}
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}
	if !client.IsActive {
		return nil, NewError(ErrInvalidClient, "client is disabled")
	}

	// Public clients (RFC 6749 Section 2.1)
	if client.ClientSecretHash == "" {
		return client, nil
	}

	if subtle.ConstantTimeCompare([]byte(HashToken(clientSecret)), []byte(client.ClientSecretHash)) != 1 {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}
	return client, nil
}

func without(values []string, v string) []string {
	out := make([]string, 0, len(values))
	for _, x := range values {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
