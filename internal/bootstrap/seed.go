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

package bootstrap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/identity"
)

// Seed describes the scopes, roles, clients and users to provision.
type Seed struct {
	// Builtins registers the standard OIDC scopes before Scopes are applied.
	Builtins bool         `yaml:"builtin_scopes"`
	Scopes   []ScopeSeed  `yaml:"scopes"`
	Roles    []RoleSeed   `yaml:"roles"`
	Clients  []ClientSeed `yaml:"clients"`
	Users    []UserSeed   `yaml:"users"`
}

// ScopeSeed registers a scope or, if it already exists, adjusts it.
type ScopeSeed struct {
	Name            string                     `yaml:"name"`
	Description     string                     `yaml:"description"`
	ConsentRequired *bool                      `yaml:"consent_required"`
	ConsentText     string                     `yaml:"consent_text"`
	Attributes      map[string]string          `yaml:"attributes"`
	Mappings        []clientscope.ClaimMapping `yaml:"mappings"`
	Roles           []string                   `yaml:"roles"`
}

// RoleSeed creates a realm role or, with Client set, a client role.
type RoleSeed struct {
	Client      string `yaml:"client"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ClientSeed registers an OAuth2 client.
type ClientSeed struct {
	ClientID               string   `yaml:"client_id"`
	Name                   string   `yaml:"name"`
	Secret                 string   `yaml:"secret"`
	RedirectURIs           []string `yaml:"redirect_uris"`
	GrantTypes             []string `yaml:"grant_types"`
	DefaultScopes          []string `yaml:"default_scopes"`
	OptionalScopes         []string `yaml:"optional_scopes"`
	FullScopeAllowed       bool     `yaml:"full_scope_allowed"`
	ConsentRequired        bool     `yaml:"consent_required"`
	DisplayOnConsentScreen bool     `yaml:"display_on_consent_screen"`
	ConsentText            string   `yaml:"consent_text"`
	RefreshTokenLifetime   int      `yaml:"refresh_token_lifetime"`
}

// UserSeed provisions a user with a password and role assignments.
// Roles use the "name" or "client/name" form.
type UserSeed struct {
	Username      string              `yaml:"username"`
	Email         string              `yaml:"email"`
	EmailVerified bool                `yaml:"email_verified"`
	Password      string              `yaml:"password"`
	Profile       identity.Profile    `yaml:"profile"`
	Attributes    map[string][]string `yaml:"attributes"`
	Roles         []string            `yaml:"roles"`
}

// Parse decodes a YAML seed document.
func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

// LoadFile reads and decodes a seed file.
func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}
