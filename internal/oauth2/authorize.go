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
	"net/url"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/id"
	"github.com/opentrusty/tokenscope/internal/session"
)

// AuthorizeRequest represents an OAuth2 authorization request
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
	Nonce        string
}

// AuthorizeResult is either an issued code or a consent continuation.
type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
	Scope       string
	Prompt      *consent.Prompt
}

// ConsentRequired reports whether the user must approve scopes first.
func (r *AuthorizeResult) ConsentRequired() bool {
	return r.Prompt != nil && r.Prompt.Required()
}

// RedirectLocation builds the client callback for an issued code.
func (r *AuthorizeResult) RedirectLocation() string {
	q := url.Values{}
	q.Set("code", r.Code)
	if r.State != "" {
		q.Set("state", r.State)
	}
	return appendQuery(r.RedirectURI, q)
}

// ErrorLocation builds the client callback for a redirectable error.
func ErrorLocation(e *Error) string {
	q := url.Values{}
	q.Set("error", e.Code)
	if e.Description != "" {
		q.Set("error_description", e.Description)
	}
	if e.State != "" {
		q.Set("state", e.State)
	}
	return appendQuery(e.RedirectURI, q)
}

func appendQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	existing := u.Query()
	for k, v := range q {
		existing[k] = v
	}
	u.RawQuery = existing.Encode()
	return u.String()
}

// ValidateAuthorizeRequest validates an authorization request (RFC 6749 Section 4.1.1)
func (s *Service) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*Client, error) {
	client, err := s.clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, NewError(ErrInvalidRequest, "invalid client_id")
	}
	if !client.IsActive {
		return nil, NewError(ErrInvalidRequest, "client is disabled")
	}

	// Exact match (RFC 6749 Section 3.1.2); errors before this point are
	// never redirected.
	if !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, NewError(ErrInvalidRequest, "invalid redirect_uri")
	}
	if req.ResponseType != "code" {
		return nil, NewError(ErrInvalidRequest, "response_type must be 'code'").WithRedirect(req.RedirectURI, req.State)
	}
	if !client.AllowsGrant(GrantAuthorizationCode) {
		return nil, NewError(ErrUnauthorizedClient, "client may not use the authorization code grant").WithRedirect(req.RedirectURI, req.State)
	}
	return client, nil
}

// Authorize resolves the effective scope set for an authenticated session and
// either returns a consent prompt or issues an authorization code.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest, sess *session.Session) (*AuthorizeResult, error) {
	client, snap, prompt, err := s.prepare(ctx, req, sess)
	if err != nil {
		return nil, err
	}
	if prompt.Required() {
		s.metrics.ConsentPrompted(ctx, client.ClientID)
		return &AuthorizeResult{
			State:       req.State,
			RedirectURI: req.RedirectURI,
			Scope:       snap.String(),
			Prompt:      prompt,
		}, nil
	}
	return s.issueCode(ctx, req, client, sess, snap, prompt.ConsentID)
}

// ApproveConsent records approval of the pending scopes of req and issues
// the authorization code in the same step.
func (s *Service) ApproveConsent(ctx context.Context, req *AuthorizeRequest, sess *session.Session) (*AuthorizeResult, error) {
	client, snap, prompt, err := s.prepare(ctx, req, sess)
	if err != nil {
		return nil, err
	}

	consentID := prompt.ConsentID
	if client.ConsentRequired {
		c, err := s.consents.RecordConsent(ctx, sess.UserID, client.ClientID, prompt.ScopeNames())
		if err != nil {
			return nil, NewError(ErrServerError, "failed to record consent").WithRedirect(req.RedirectURI, req.State)
		}
		consentID = c.ID
	}
	return s.issueCode(ctx, req, client, sess, snap, consentID)
}

// DenyConsent returns the access_denied error for the client callback.
func (s *Service) DenyConsent(ctx context.Context, req *AuthorizeRequest) error {
	if _, err := s.ValidateAuthorizeRequest(ctx, req); err != nil {
		return err
	}
	return NewError(ErrAccessDenied, "user denied consent").WithRedirect(req.RedirectURI, req.State)
}

func (s *Service) prepare(ctx context.Context, req *AuthorizeRequest, sess *session.Session) (*Client, clientscope.Snapshot, *consent.Prompt, error) {
	client, err := s.ValidateAuthorizeRequest(ctx, req)
	if err != nil {
		return nil, clientscope.Snapshot{}, nil, err
	}

	snap, err := s.ResolveScopes(ctx, client, req.Scope)
	if err != nil {
		return nil, clientscope.Snapshot{}, nil, AsError(err).WithRedirect(req.RedirectURI, req.State)
	}

	prompt, err := s.consents.ScopesNeedingConsent(ctx, sess.UserID, client.ConsentPolicy(), snap)
	if err != nil {
		return nil, clientscope.Snapshot{}, nil, NewError(ErrServerError, "failed to evaluate consent").WithRedirect(req.RedirectURI, req.State)
	}
	return client, snap, prompt, nil
}

func (s *Service) issueCode(ctx context.Context, req *AuthorizeRequest, client *Client, sess *session.Session, snap clientscope.Snapshot, consentID string) (*AuthorizeResult, error) {
	code := generateToken()
	now := time.Now()
	as := &AuthorizationSession{
		ID:          id.NewUUIDv7(),
		CodeHash:    HashToken(code),
		ClientID:    client.ClientID,
		UserID:      sess.UserID,
		SessionID:   sess.ID,
		RedirectURI: req.RedirectURI,
		Nonce:       req.Nonce,
		State:       req.State,
		Scope:       snap,
		ConsentID:   consentID,
		ExpiresAt:   now.Add(s.authCodeLifetime),
		CreatedAt:   now,
	}
	if err := s.codes.Create(ctx, as); err != nil {
		return nil, NewError(ErrServerError, "failed to persist authorization code").WithRedirect(req.RedirectURI, req.State)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCodeIssued,
		ActorID:  sess.UserID,
		Resource: audit.ResourceToken,
		Metadata: map[string]any{
			audit.AttrClientID:  client.ClientID,
			audit.AttrScope:     snap.String(),
			audit.AttrSessionID: sess.ID,
		},
	})

	return &AuthorizeResult{
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
		Scope:       snap.String(),
	}, nil
}
