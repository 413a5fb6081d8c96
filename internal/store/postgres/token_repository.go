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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentrusty/tokenscope/internal/oauth2"
)

// RefreshTokenRepository implements oauth2.RefreshTokenRepository
type RefreshTokenRepository struct {
	db *DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshColumns = `
	id, token_hash, client_id, user_id, session_id, scope, consent_id, rotated_from,
	expires_at, last_used_at, revoked_at, is_revoked, created_at`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, q execer, token *oauth2.RefreshToken) error {
	_, err := q.Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		token.ID, token.TokenHash, token.ClientID, token.UserID, token.SessionID,
		token.Scope, token.ConsentID, token.RotatedFrom,
		token.ExpiresAt, token.LastUsedAt, token.RevokedAt, token.IsRevoked, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// Create creates a new refresh token
func (r *RefreshTokenRepository) Create(ctx context.Context, token *oauth2.RefreshToken) error {
	return insertRefreshToken(ctx, r.db.pool, token)
}

// GetByTokenHash retrieves a refresh token
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*oauth2.RefreshToken, error) {
	var t oauth2.RefreshToken
	err := r.db.pool.QueryRow(ctx, `
		SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1
	`, tokenHash).Scan(
		&t.ID, &t.TokenHash, &t.ClientID, &t.UserID, &t.SessionID, &t.Scope, &t.ConsentID, &t.RotatedFrom,
		&t.ExpiresAt, &t.LastUsedAt, &t.RevokedAt, &t.IsRevoked, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &t, nil
}

// Rotate locks the token row, checks it is still active and that its consent
// is still the current one, then marks it used or replaces it with next.
// The consent row is read FOR SHARE so a concurrent consent deletion either
// waits for this transaction (and then revokes next too) or wins and makes
// this call fail.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID string, next *oauth2.RefreshToken) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var userID, clientID, consentID string
		var revoked bool
		err := tx.QueryRow(ctx, `
			SELECT user_id, client_id, consent_id, is_revoked FROM refresh_tokens WHERE id = $1 FOR UPDATE
		`, oldID).Scan(&userID, &clientID, &consentID, &revoked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return oauth2.ErrTokenNotFound
			}
			return fmt.Errorf("failed to lock refresh token: %w", err)
		}
		if revoked {
			return oauth2.ErrTokenRevoked
		}

		if consentID != "" {
			var id string
			err := tx.QueryRow(ctx, `
				SELECT id FROM user_consents WHERE user_id = $1 AND client_id = $2 AND id = $3 FOR SHARE
			`, userID, clientID, consentID).Scan(&id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return oauth2.ErrConsentRevoked
				}
				return fmt.Errorf("failed to check consent: %w", err)
			}
		}

		now := time.Now()
		if next == nil {
			_, err = tx.Exec(ctx, `UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`, oldID, now)
			if err != nil {
				return fmt.Errorf("failed to touch refresh token: %w", err)
			}
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE refresh_tokens SET last_used_at = $2, is_revoked = true, revoked_at = $2 WHERE id = $1
		`, oldID, now)
		if err != nil {
			return fmt.Errorf("failed to revoke rotated refresh token: %w", err)
		}
		return insertRefreshToken(ctx, tx, next)
	})
}

// Revoke revokes a single refresh token
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}
	return nil
}

// RevokeBySession revokes every token of an SSO session
func (r *RefreshTokenRepository) RevokeBySession(ctx context.Context, sessionID string) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, revoked_at = $2
		WHERE session_id = $1 AND NOT is_revoked
	`, sessionID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke session refresh tokens: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// RevokeByConsent revokes every token issued to a user for a client
func (r *RefreshTokenRepository) RevokeByConsent(ctx context.Context, userID, clientID string) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, revoked_at = $3
		WHERE user_id = $1 AND client_id = $2 AND NOT is_revoked
	`, userID, clientID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke consent refresh tokens: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// DeleteExpired deletes all expired refresh tokens
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	return r.db.deleteExpired(ctx, "refresh_tokens")
}
