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

// ClientRepository implements oauth2.ClientRepository
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `
	id, client_id, client_secret_hash, client_name,
	redirect_uris, grant_types, default_scopes, optional_scopes,
	full_scope_allowed, consent_required, display_on_consent_screen, consent_screen_text,
	refresh_token_lifetime, is_active, created_at, updated_at`

func scanClient(row pgx.Row) (*oauth2.Client, error) {
	var c oauth2.Client
	err := row.Scan(
		&c.ID, &c.ClientID, &c.ClientSecretHash, &c.ClientName,
		&c.RedirectURIs, &c.GrantTypes, &c.DefaultScopes, &c.OptionalScopes,
		&c.FullScopeAllowed, &c.ConsentRequired, &c.DisplayOnConsentScreen, &c.ConsentScreenText,
		&c.RefreshTokenLifetime, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Create creates a new OAuth2 client
func (r *ClientRepository) Create(ctx context.Context, c *oauth2.Client) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		c.ID, c.ClientID, c.ClientSecretHash, c.ClientName,
		stringsOrEmpty(c.RedirectURIs), stringsOrEmpty(c.GrantTypes),
		stringsOrEmpty(c.DefaultScopes), stringsOrEmpty(c.OptionalScopes),
		c.FullScopeAllowed, c.ConsentRequired, c.DisplayOnConsentScreen, c.ConsentScreenText,
		c.RefreshTokenLifetime, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oauth2.ErrClientAlreadyExists
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetByClientID retrieves a client by client_id
func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	c, err := scanClient(r.db.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = $1`, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// Update updates client information
func (r *ClientRepository) Update(ctx context.Context, c *oauth2.Client) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET
			client_secret_hash = $2, client_name = $3,
			redirect_uris = $4, grant_types = $5, default_scopes = $6, optional_scopes = $7,
			full_scope_allowed = $8, consent_required = $9, display_on_consent_screen = $10,
			consent_screen_text = $11, refresh_token_lifetime = $12, is_active = $13, updated_at = $14
		WHERE client_id = $1
	`,
		c.ClientID, c.ClientSecretHash, c.ClientName,
		stringsOrEmpty(c.RedirectURIs), stringsOrEmpty(c.GrantTypes),
		stringsOrEmpty(c.DefaultScopes), stringsOrEmpty(c.OptionalScopes),
		c.FullScopeAllowed, c.ConsentRequired, c.DisplayOnConsentScreen,
		c.ConsentScreenText, c.RefreshTokenLifetime, c.IsActive, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// Delete removes a client
func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM oauth2_clients WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// List returns every client
func (r *ClientRepository) List(ctx context.Context) ([]*oauth2.Client, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT `+clientColumns+` FROM oauth2_clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*oauth2.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
