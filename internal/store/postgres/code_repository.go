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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tokenscope/internal/oauth2"
)

// AuthorizationSessionRepository implements oauth2.AuthorizationSessionRepository
type AuthorizationSessionRepository struct {
	db *DB
}

// NewAuthorizationSessionRepository creates a new authorization code repository
func NewAuthorizationSessionRepository(db *DB) *AuthorizationSessionRepository {
	return &AuthorizationSessionRepository{db: db}
}

// Create stores a new authorization session
func (r *AuthorizationSessionRepository) Create(ctx context.Context, as *oauth2.AuthorizationSession) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO authorization_sessions (
			id, code_hash, client_id, user_id, session_id, redirect_uri,
			nonce, state, scope, consent_id, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		as.ID, as.CodeHash, as.ClientID, as.UserID, as.SessionID, as.RedirectURI,
		as.Nonce, as.State, as.Scope, as.ConsentID, as.ExpiresAt, as.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization session: %w", err)
	}
	return nil
}

// Consume deletes and returns the session in one statement, so concurrent
// exchanges of the same code see exactly one row.
func (r *AuthorizationSessionRepository) Consume(ctx context.Context, codeHash string) (*oauth2.AuthorizationSession, error) {
	var as oauth2.AuthorizationSession
	err := r.db.pool.QueryRow(ctx, `
		DELETE FROM authorization_sessions WHERE code_hash = $1
		RETURNING id, code_hash, client_id, user_id, session_id, redirect_uri,
			nonce, state, scope, consent_id, expires_at, created_at
	`, codeHash).Scan(
		&as.ID, &as.CodeHash, &as.ClientID, &as.UserID, &as.SessionID, &as.RedirectURI,
		&as.Nonce, &as.State, &as.Scope, &as.ConsentID, &as.ExpiresAt, &as.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization session: %w", err)
	}
	return &as, nil
}

// DeleteExpired deletes all expired authorization sessions
func (r *AuthorizationSessionRepository) DeleteExpired(ctx context.Context) error {
	return r.db.deleteExpired(ctx, "authorization_sessions")
}
