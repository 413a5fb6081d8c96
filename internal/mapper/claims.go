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

package mapper

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/identity"
)

// ErrInvalidClaimValue is returned when a source value cannot be converted
// to the mapping's value type.
var ErrInvalidClaimValue = errors.New("invalid claim value")

// Address attribute names read by the address mapper.
var addressAttributes = []struct{ attribute, claim string }{
	{"formatted", "formatted"},
	{"street", "street_address"},
	{"locality", "locality"},
	{"region", "region"},
	{"postal_code", "postal_code"},
	{"country", "country"},
}

// reserved holds registered claims that mappings can never write.
var reserved = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {},
	"sid": {}, "azp": {}, "nonce": {}, "scope": {}, "typ": {}, "at_hash": {}, "auth_time": {},
	"realm_access": {}, "resource_access": {},
}

// IsReserved reports whether claim is owned by the token issuer.
func IsReserved(claim string) bool {
	_, ok := reserved[claim]
	return ok
}

// Claims is the output of mapping a snapshot against a user.
type Claims struct {
	IDToken     map[string]any
	AccessToken map[string]any
}

// MapClaims applies every mapping of every scope in snap, in scope
// registration order. The first mapping to write a claim wins unless a later
// mapping sets Override. Any conversion error aborts the whole mapping.
func MapClaims(user *identity.User, snap clientscope.Snapshot) (*Claims, error) {
	out := &Claims{
		IDToken:     make(map[string]any),
		AccessToken: make(map[string]any),
	}
	for _, scope := range snap.Scopes {
		for _, m := range scope.Mappings {
			if IsReserved(m.Claim) {
				continue
			}
			value, ok, err := resolve(user, m)
			if err != nil {
				return nil, fmt.Errorf("scope %s mapping %s: %w", scope.Name, m.Name, err)
			}
			if !ok {
				continue
			}
			if m.IDToken {
				put(out.IDToken, m, value)
			}
			if m.AccessToken {
				put(out.AccessToken, m, value)
			}
		}
	}
	return out, nil
}

func put(claims map[string]any, m clientscope.ClaimMapping, value any) {
	if _, exists := claims[m.Claim]; exists && !m.Override {
		return
	}
	claims[m.Claim] = value
}

func resolve(user *identity.User, m clientscope.ClaimMapping) (any, bool, error) {
	switch m.Type {
	case clientscope.MapperUserProperty:
		v, ok := user.Property(m.Source)
		if !ok {
			return nil, false, nil
		}
		return convert(v, m.ValueType)
	case clientscope.MapperUserAttribute:
		v, ok := user.Attribute(m.Source)
		if !ok {
			return nil, false, nil
		}
		return convert(v, m.ValueType)
	case clientscope.MapperFullName:
		name := user.FullName()
		return name, name != "", nil
	case clientscope.MapperAddress:
		addr := make(map[string]any)
		for _, a := range addressAttributes {
			if v, ok := user.Attribute(a.attribute); ok {
				addr[a.claim] = v
			}
		}
		return addr, len(addr) > 0, nil
	case clientscope.MapperHardcoded:
		return convert(m.Value, m.ValueType)
	}
	return nil, false, fmt.Errorf("%w: unknown mapper type %q", ErrInvalidClaimValue, m.Type)
}

func convert(v any, valueType string) (any, bool, error) {
	switch t := v.(type) {
	case bool:
		if valueType == clientscope.ValueString {
			return strconv.FormatBool(t), true, nil
		}
		return t, true, nil
	case string:
		switch valueType {
		case clientscope.ValueBoolean:
			b, err := ParseBool(t)
			if err != nil {
				return nil, false, err
			}
			return b, true, nil
		case clientscope.ValueLong:
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %q is not a number", ErrInvalidClaimValue, t)
			}
			return n, true, nil
		}
		return t, true, nil
	}
	return nil, false, fmt.Errorf("%w: unsupported source type %T", ErrInvalidClaimValue, v)
}

// ParseBool accepts the boolean spellings stored in user attributes.
func ParseBool(s string) (bool, error) {
	switch s {
	case "true", "TRUE", "True", "1", "yes", "on":
		return true, nil
	case "false", "FALSE", "False", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidClaimValue, s)
}
