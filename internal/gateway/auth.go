package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/models"
)

// apiKeyHashKey carries the authenticated key hash in the request context.
type apiKeyHashKey struct{}

const keyCacheTTL = 60 * time.Second

// keyCache memoises API key lookups so every request does not hit the
// database. Revocation takes effect within keyCacheTTL.
type keyCache struct {
	store *store.Store
	mu    sync.Mutex
	keys  map[string]cachedKey
}

type cachedKey struct {
	key     *models.APIKey
	fetched time.Time
}

func newKeyCache(st *store.Store) *keyCache {
	return &keyCache{store: st, keys: make(map[string]cachedKey)}
}

func (c *keyCache) lookup(ctx context.Context, hash string) (*models.APIKey, error) {
	c.mu.Lock()
	if e, ok := c.keys[hash]; ok && time.Since(e.fetched) < keyCacheTTL {
		c.mu.Unlock()
		return e.key, nil
	}
	c.mu.Unlock()

	key, err := c.store.GetAPIKey(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.keys[hash] = cachedKey{key: key, fetched: time.Now()}
	c.mu.Unlock()
	return key, nil
}

func (c *keyCache) invalidate(hash string) {
	c.mu.Lock()
	delete(c.keys, hash)
	c.mu.Unlock()
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// extractKey pulls the raw API key from X-API-Key or a Bearer token.
func extractKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// requireAPIKey authenticates /api/v1 requests when auth is enabled. The
// key hash is stashed in the context for rate-limit identity either way.
func (gw *Gateway) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := extractKey(r)
		if raw == "" {
			if gw.cfg.Server.AuthRequired {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			next(w, r)
			return
		}

		hash := hashKey(raw)
		key, err := gw.keys.lookup(r.Context(), hash)
		if err != nil {
			if gw.cfg.Server.AuthRequired {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "unknown API key")
				} else {
					writeError(w, http.StatusInternalServerError, "key lookup failed")
				}
				return
			}
			next(w, r)
			return
		}
		if !key.IsActive {
			writeError(w, http.StatusUnauthorized, "API key has been revoked")
			return
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			writeError(w, http.StatusUnauthorized, "API key has expired")
			return
		}

		// Best effort; a failed stamp never blocks the request.
		_ = gw.store.TouchAPIKey(r.Context(), key.ID)

		next(w, r.WithContext(context.WithValue(r.Context(), apiKeyHashKey{}, hash)))
	}
}

// --- API key management handlers ---

type createKeyRequest struct {
	Team      string `json:"team"`
	CreatedBy string `json:"created_by"`
	// ExpiresInDays of 0 means the key never expires.
	ExpiresInDays int `json:"expires_in_days,omitempty"`
}

func (gw *Gateway) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Team) == "" {
		writeError(w, http.StatusBadRequest, "team is required")
		return
	}
	if req.ExpiresInDays < 0 {
		writeError(w, http.StatusBadRequest, "expires_in_days must not be negative")
		return
	}

	raw := fmt.Sprintf("la_%s%s", uuid.NewString(), uuid.NewString())
	raw = strings.ReplaceAll(raw, "-", "")

	key := &models.APIKey{
		KeyHash:   hashKey(raw),
		Team:      strings.TrimSpace(req.Team),
		CreatedBy: strings.TrimSpace(req.CreatedBy),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if req.ExpiresInDays > 0 {
		exp := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		key.ExpiresAt = &exp
	}
	if err := gw.store.InsertAPIKey(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The raw key appears exactly once, in this response.
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":        raw,
		"key_hash":   key.KeyHash,
		"team":       key.Team,
		"expires_at": key.ExpiresAt,
	})
}

func (gw *Gateway) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := gw.store.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (gw *Gateway) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing key hash")
		return
	}
	if err := gw.store.RevokeAPIKey(r.Context(), hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown API key")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	gw.keys.invalidate(hash)
	writeJSON(w, http.StatusOK, map[string]any{"key_hash": hash, "revoked": true})
}
