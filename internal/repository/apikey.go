package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
)

// apiKeySelect joins projects so every key carries its owning team.
const apiKeySelect = `
	SELECT k.id, k.project_id, p.team_id, k.created_by, k.name, k.key_prefix, k.key_hash,
	       k.scopes, k.revoked_at, k.last_used_at, k.created_at
	FROM api_keys k
	JOIN projects p ON p.id = k.project_id
`

// CreateAPIKey inserts a new API key into the database.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, project_id, created_by, name, key_prefix, key_hash, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.ProjectID,
		key.CreatedBy,
		key.Name,
		key.KeyPrefix,
		key.KeyHash,
		pq.Array(key.Scopes),
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetAPIKeyByID retrieves an API key by its ID within a team.
func (r *Repository) GetAPIKeyByID(ctx context.Context, teamID, id string) (*model.APIKey, error) {
	key, err := scanAPIKey(r.pool.QueryRow(ctx, apiKeySelect+` WHERE k.id = $1 AND p.team_id = $2`, id, teamID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	return key, err
}

// GetAPIKeysByPrefix retrieves all active API keys matching a prefix.
// Used during authentication to find candidate keys for verification.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, apiKeySelect+` WHERE k.key_prefix = $1 AND k.revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get API keys by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

// ListAPIKeysByTeam retrieves every key of every project in a team.
func (r *Repository) ListAPIKeysByTeam(ctx context.Context, teamID string) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, apiKeySelect+` WHERE p.team_id = $1 ORDER BY k.created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return collectAPIKeys(rows)
}

// RevokeAPIKey revokes an API key by setting revoked_at.
// Keys outside the team or already revoked report ErrAPIKeyNotFound.
func (r *Repository) RevokeAPIKey(ctx context.Context, teamID, id string) error {
	query := `
		UPDATE api_keys k
		SET revoked_at = $3
		FROM projects p
		WHERE k.id = $1 AND p.id = k.project_id AND p.team_id = $2 AND k.revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, teamID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp.
// Should be called asynchronously after successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}

	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*model.APIKey, error) {
	defer rows.Close()

	keys := []*model.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// scanAPIKey scans one row into an APIKey. pgx.ErrNoRows is returned unwrapped.
func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	var scopes []string

	err := row.Scan(
		&key.ID,
		&key.ProjectID,
		&key.TeamID,
		&key.CreatedBy,
		&key.Name,
		&key.KeyPrefix,
		&key.KeyHash,
		pq.Array(&scopes),
		&key.RevokedAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}

	key.Scopes = scopes
	return &key, nil
}
