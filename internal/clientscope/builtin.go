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

func userProperty(name, property, claim string) ClaimMapping {
	return ClaimMapping{
		Name:        name,
		Type:        MapperUserProperty,
		Source:      property,
		Claim:       claim,
		ValueType:   ValueString,
		IDToken:     true,
		AccessToken: true,
	}
}

func userAttribute(name, attribute, claim, valueType string) ClaimMapping {
	return ClaimMapping{
		Name:        name,
		Type:        MapperUserAttribute,
		Source:      attribute,
		Claim:       claim,
		ValueType:   valueType,
		IDToken:     true,
		AccessToken: true,
	}
}

// Builtins returns the standard OIDC scopes in registration order.
func Builtins() []*ClientScope {
	return []*ClientScope{
		{
			Name:        ScopeOpenID,
			Protocol:    ProtocolOIDC,
			Description: "OpenID Connect built-in scope: openid",
		},
		{
			Name:        ScopeProfile,
			Protocol:    ProtocolOIDC,
			Description: "OpenID Connect built-in scope: profile",
			Attributes:  Attributes{ConsentRequired: true, ConsentText: "User profile"},
			Mappings: []ClaimMapping{
				userProperty("username", "username", "preferred_username"),
				userProperty("given name", "firstName", "given_name"),
				userProperty("family name", "lastName", "family_name"),
				{Name: "full name", Type: MapperFullName, Claim: "name", IDToken: true, AccessToken: true},
				userProperty("locale", "locale", "locale"),
			},
		},
		{
			Name:        ScopeEmail,
			Protocol:    ProtocolOIDC,
			Description: "OpenID Connect built-in scope: email",
			Attributes:  Attributes{ConsentRequired: true, ConsentText: "Email address"},
			Mappings: []ClaimMapping{
				userProperty("email", "email", "email"),
				{
					Name:        "email verified",
					Type:        MapperUserProperty,
					Source:      "emailVerified",
					Claim:       "email_verified",
					ValueType:   ValueBoolean,
					IDToken:     true,
					AccessToken: true,
				},
			},
		},
		{
			Name:        ScopeAddress,
			Protocol:    ProtocolOIDC,
			Description: "OpenID Connect built-in scope: address",
			Attributes:  Attributes{ConsentRequired: true, ConsentText: "Address"},
			Mappings: []ClaimMapping{
				{Name: "address", Type: MapperAddress, Claim: "address", IDToken: true, AccessToken: true},
			},
		},
		{
			Name:        ScopePhone,
			Protocol:    ProtocolOIDC,
			Description: "OpenID Connect built-in scope: phone",
			Attributes:  Attributes{ConsentRequired: true, ConsentText: "Phone number"},
			Mappings: []ClaimMapping{
				userAttribute("phone number", "phoneNumber", "phone_number", ValueString),
				userAttribute("phone number verified", "phoneNumberVerified", "phone_number_verified", ValueBoolean),
			},
		},
	}
}
