package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lintagent/lintagent/models"
)

// apiKeyColumns mirrors models.APIKey field order for positional Get scans.
const apiKeyColumns = "id, key_hash, team, created_by, is_active, created_at, expires_at, last_used"

// InsertAPIKey persists a new key record. KeyHash must already be the
// SHA-256 hex digest of the raw key.
func (s *Store) InsertAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	id, err := s.db.Insert(ctx, "api_keys", key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKey looks up a key by its hash.
func (s *Store) GetAPIKey(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.Get(ctx, &key, "SELECT "+apiKeyColumns+" FROM api_keys WHERE key_hash = ?", keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// TouchAPIKey stamps last_used. Best effort; callers ignore the error.
func (s *Store) TouchAPIKey(ctx context.Context, id int64) error {
	return s.db.Exec(ctx, "UPDATE api_keys SET last_used = ? WHERE id = ?", time.Now().UTC(), id)
}

// RevokeAPIKey deactivates a key by hash.
func (s *Store) RevokeAPIKey(ctx context.Context, keyHash string) error {
	if _, err := s.GetAPIKey(ctx, keyHash); err != nil {
		return err
	}
	return s.db.Exec(ctx, "UPDATE api_keys SET is_active = 0 WHERE key_hash = ?", keyHash)
}

// ListAPIKeys returns all key records, newest first. Hashes are included;
// raw keys are never stored.
func (s *Store) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.Select(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}
