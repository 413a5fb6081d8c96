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
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/observability/logger"
)

// ListConsents returns the consents held by the current user
// @Summary List Consents
// @Tags Account
// @Produce json
// @Security CookieAuth
// @Success 200 {array} consent.Consent
// @Router /api/v1/account/consents [get]
func (h *Handler) ListConsents(w http.ResponseWriter, r *http.Request) {
	consents, err := h.consentManager.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list consents", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list consents")
		return
	}
	if consents == nil {
		consents = []*consent.Consent{}
	}
	respondJSON(w, http.StatusOK, consents)
}

// RevokeConsent deletes the consent for a client and every refresh token
// that depends on it
// @Summary Revoke Consent
// @Tags Account
// @Produce json
// @Security CookieAuth
// @Param clientID path string true "Client ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/v1/account/consents/{clientID} [delete]
func (h *Handler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	revoked, err := h.consentManager.Revoke(r.Context(), GetUserID(r.Context()), clientID)
	if err != nil {
		if errors.Is(err, consent.ErrConsentNotFound) {
			respondError(w, http.StatusNotFound, "consent not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to revoke consent", logger.Error(err), logger.ClientID(clientID))
		respondError(w, http.StatusInternalServerError, "failed to revoke consent")
		return
	}
	slog.InfoContext(r.Context(), "consent revoked",
		logger.UserID(GetUserID(r.Context())),
		logger.ClientID(clientID),
		logger.Revoked(revoked),
	)
	respondJSON(w, http.StatusOK, map[string]any{"client_id": clientID, "revoked_tokens": revoked})
}
