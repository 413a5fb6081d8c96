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

package http

import (
	"log/slog"
	"net/http"

	"github.com/opentrusty/tokenscope/internal/observability/logger"
)

// Discovery returns the OpenID Connect metadata (OIDC Discovery Section 4)
// @Summary OIDC Discovery
// @Description Returns OpenID Connect configuration metadata
// @Tags OIDC
// @Produce json
// @Success 200 {object} oidc.DiscoveryMetadata
// @Router /.well-known/openid-configuration [get]
func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.catalog.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list scopes", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load scopes")
		return
	}
	names := make([]string, 0, len(scopes))
	for _, s := range scopes {
		names = append(names, s.Name)
	}

	respondJSON(w, http.StatusOK, h.oidcService.GetDiscoveryMetadata(names))
}

// JWKS returns the JSON Web Key Set (RFC 7517)
// @Summary JWKS
// @Description Returns the JSON Web Key Set used to verify tokens
// @Tags OIDC
// @Produce json
// @Success 200 {object} oidc.JWKS
// @Router /jwks.json [get]
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	respondJSON(w, http.StatusOK, h.oidcService.GetJWKS())
}
