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

package clientscope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/tokenscope/internal/authz"
)

// Domain errors
var (
	ErrScopeNotFound       = errors.New("client scope not found")
	ErrScopeAlreadyExists  = errors.New("client scope already exists")
	ErrInvalidScopeName    = errors.New("invalid client scope name")
	ErrInvalidMapping      = errors.New("invalid claim mapping")
	ErrRoleMappingNotFound = errors.New("role mapping not found")
)

// ProtocolOIDC is the only protocol scopes are issued for.
const ProtocolOIDC = "openid-connect"

// Built-in scope names
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
	ScopeAddress = "address"
	ScopePhone   = "phone"
)

// ClientScope is a named bundle of claim mappings and role mappings that
// clients bind as default or optional scopes.
type ClientScope struct {
	ID          string
	Name        string
	Protocol    string
	Description string
	Attributes  Attributes
	Mappings    []ClaimMapping
	Roles       []authz.RoleRef

	// Position is the registration order; claim mappings are applied in
	// ascending Position. Assigned by the repository on Create.
	Position int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether ref is mapped to this scope.
func (s *ClientScope) HasRole(ref authz.RoleRef) bool {
	for _, r := range s.Roles {
		if r == ref {
			return true
		}
	}
	return false
}

// Validate checks name, protocol and every mapping.
func (s *ClientScope) Validate() error {
	if s.Name == "" || strings.ContainsAny(s.Name, " \t\r\n") {
		return ErrInvalidScopeName
	}
	if s.Protocol != "" && s.Protocol != ProtocolOIDC {
		return fmt.Errorf("unsupported protocol %q", s.Protocol)
	}
	seen := make(map[string]struct{}, len(s.Mappings))
	for _, m := range s.Mappings {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("%w: duplicate mapping name %q", ErrInvalidMapping, m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

// MapperType identifies how a claim mapping produces its value.
type MapperType string

const (
	// MapperUserProperty copies a built-in user property (username, email ...).
	MapperUserProperty MapperType = "user-property"

	// MapperUserAttribute copies a custom user attribute.
	MapperUserAttribute MapperType = "user-attribute"

	// MapperFullName joins given and family name.
	MapperFullName MapperType = "full-name"

	// MapperAddress builds the OIDC address claim from address attributes.
	MapperAddress MapperType = "address"

	// MapperHardcoded emits a fixed value.
	MapperHardcoded MapperType = "hardcoded-claim"
)

// Claim value types for attribute and hardcoded mappings
const (
	ValueString  = "string"
	ValueBoolean = "boolean"
	ValueLong    = "long"
)

// ClaimMapping is a single claim-producing rule attached to a scope.
type ClaimMapping struct {
	Name        string     `json:"name" yaml:"name"`
	Type        MapperType `json:"type" yaml:"type"`
	Source      string     `json:"source,omitempty" yaml:"source,omitempty"`
	Claim       string     `json:"claim" yaml:"claim"`
	ValueType   string     `json:"value_type,omitempty" yaml:"value_type,omitempty"`
	Value       string     `json:"value,omitempty" yaml:"value,omitempty"`
	Override    bool       `json:"override,omitempty" yaml:"override,omitempty"`
	IDToken     bool       `json:"id_token" yaml:"id_token"`
	AccessToken bool       `json:"access_token" yaml:"access_token"`
}

// Validate checks that the mapping is complete for its type.
func (m ClaimMapping) Validate() error {
	if m.Name == "" || m.Claim == "" {
		return fmt.Errorf("%w: name and claim are required", ErrInvalidMapping)
	}
	switch m.Type {
	case MapperUserProperty, MapperUserAttribute:
		if m.Source == "" {
			return fmt.Errorf("%w: %s requires a source", ErrInvalidMapping, m.Name)
		}
	case MapperFullName, MapperAddress:
	case MapperHardcoded:
		if m.Value == "" {
			return fmt.Errorf("%w: %s requires a value", ErrInvalidMapping, m.Name)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMapping, m.Type)
	}
	switch m.ValueType {
	case "", ValueString, ValueBoolean, ValueLong:
	default:
		return fmt.Errorf("%w: unknown value type %q", ErrInvalidMapping, m.ValueType)
	}
	return nil
}

// Repository defines the interface for client scope persistence
type Repository interface {
	// Create stores a new scope and assigns its Position
	Create(ctx context.Context, scope *ClientScope) error

	// GetByName retrieves a scope by name
	GetByName(ctx context.Context, name string) (*ClientScope, error)

	// Update replaces attributes, mappings and role mappings of a scope
	Update(ctx context.Context, scope *ClientScope) error

	// Delete removes a scope
	Delete(ctx context.Context, name string) error

	// List returns all scopes ordered by Position
	List(ctx context.Context) ([]*ClientScope, error)

	// ListByNames returns the scopes that exist among names, ordered by Position
	ListByNames(ctx context.Context, names []string) ([]*ClientScope, error)
}
