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
	"encoding/json"
	"strconv"
)

// Storage keys of recognized attributes.
const (
	AttrConsentRequired = "display.on.consent.screen"
	AttrConsentText     = "consent.screen.text"
)

// Attributes is the typed view of a scope's display options. Keys the
// service does not recognize are preserved in Extra and written back
// unchanged.
type Attributes struct {
	ConsentRequired bool
	ConsentText     string
	Extra           map[string]string
}

// AttributesFromMap parses the flat storage form.
func AttributesFromMap(m map[string]string) Attributes {
	var a Attributes
	for k, v := range m {
		switch k {
		case AttrConsentRequired:
			a.ConsentRequired, _ = strconv.ParseBool(v)
		case AttrConsentText:
			a.ConsentText = v
		default:
			if a.Extra == nil {
				a.Extra = make(map[string]string)
			}
			a.Extra[k] = v
		}
	}
	return a
}

// Map returns the flat storage form.
func (a Attributes) Map() map[string]string {
	m := make(map[string]string, len(a.Extra)+2)
	for k, v := range a.Extra {
		m[k] = v
	}
	m[AttrConsentRequired] = strconv.FormatBool(a.ConsentRequired)
	if a.ConsentText != "" {
		m[AttrConsentText] = a.ConsentText
	}
	return m
}

// DisplayText is the text shown for the scope on the consent screen,
// falling back to the scope name.
func (a Attributes) DisplayText(scopeName string) string {
	if a.ConsentText != "" {
		return a.ConsentText
	}
	return scopeName
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*a = AttributesFromMap(m)
	return nil
}
