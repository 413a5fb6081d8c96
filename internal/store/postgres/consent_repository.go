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
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tokenscope/internal/consent"
)

// ConsentRepository implements consent.Repository
type ConsentRepository struct {
	db *DB
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `id, user_id, client_id, granted_scopes, created_at, updated_at`

func scanConsent(row pgx.Row) (*consent.Consent, error) {
	var c consent.Consent
	if err := row.Scan(&c.ID, &c.UserID, &c.ClientID, &c.GrantedScopes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	sort.Strings(c.GrantedScopes)
	return &c, nil
}

// Get retrieves the consent of a user for a client
func (r *ConsentRepository) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	c, err := scanConsent(r.db.pool.QueryRow(ctx, `
		SELECT `+consentColumns+` FROM user_consents WHERE user_id = $1 AND client_id = $2
	`, userID, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consent.ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

// Grant upserts the consent, merging scopes into the stored set. The merge
// happens in the conflict clause so concurrent grants never lose scopes.
func (r *ConsentRepository) Grant(ctx context.Context, grant *consent.Consent) (*consent.Consent, error) {
	c, err := scanConsent(r.db.pool.QueryRow(ctx, `
		INSERT INTO user_consents (id, user_id, client_id, granted_scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, client_id) DO UPDATE SET
			granted_scopes = ARRAY(
				SELECT DISTINCT x
				FROM UNNEST(user_consents.granted_scopes || EXCLUDED.granted_scopes) AS t(x)
				ORDER BY x
			),
			updated_at = CASE
				WHEN EXCLUDED.granted_scopes <@ user_consents.granted_scopes THEN user_consents.updated_at
				ELSE EXCLUDED.updated_at
			END
		RETURNING `+consentColumns,
		grant.ID, grant.UserID, grant.ClientID, stringsOrEmpty(grant.GrantedScopes), grant.CreatedAt, grant.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert consent: %w", err)
	}
	return c, nil
}

// Delete removes the consent record
func (r *ConsentRepository) Delete(ctx context.Context, userID, clientID string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM user_consents WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete consent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return consent.ErrConsentNotFound
	}
	return nil
}

// ListByUser returns every consent held by a user
func (r *ConsentRepository) ListByUser(ctx context.Context, userID string) ([]*consent.Consent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+consentColumns+` FROM user_consents WHERE user_id = $1 ORDER BY client_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var consents []*consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}
