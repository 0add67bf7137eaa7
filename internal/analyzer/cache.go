package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/models"
)

// CacheEntry is the cached analysis result for one file content hash.
type CacheEntry struct {
	Findings  []models.Finding `json:"findings"`
	Language  string           `json:"language"`
	SizeBytes int64            `json:"size_bytes"`
}

// Cache stores per-file analysis results keyed by content hash. Lookups
// past the TTL miss; Prune removes expired rows where the backend does not
// expire them itself.
type Cache interface {
	Get(ctx context.Context, hash string) (*CacheEntry, bool)
	Put(ctx context.Context, hash string, entry *CacheEntry)
	Prune(ctx context.Context) error
}

// NewCache picks the cache backend: Redis when a client is supplied,
// otherwise the database.
func NewCache(db database.DB, rdb *redis.Client, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if rdb != nil {
		return &redisCache{client: rdb, ttl: ttl}
	}
	return &dbCache{db: db, ttl: ttl}
}

// dbCache persists entries in the file_cache table.
type dbCache struct {
	db  database.DB
	ttl time.Duration
}

// cacheRow mirrors the file_cache schema. Field order matches the SELECT
// column order in Get.
type cacheRow struct {
	FileHash   string    `db:"file_hash"`
	Language   string    `db:"language"`
	SizeBytes  int64     `db:"size_bytes"`
	Findings   string    `db:"findings"`
	AnalyzedAt time.Time `db:"analyzed_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

func (c *dbCache) Get(ctx context.Context, hash string) (*CacheEntry, bool) {
	var row cacheRow
	err := c.db.Get(ctx, &row,
		"SELECT file_hash, language, size_bytes, findings, analyzed_at, expires_at FROM file_cache WHERE file_hash = ?",
		hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Cache lookup failed", "hash", hash, "error", err)
		return nil, false
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		return nil, false
	}
	var findings []models.Finding
	if err := json.Unmarshal([]byte(row.Findings), &findings); err != nil {
		return nil, false
	}
	return &CacheEntry{Findings: findings, Language: row.Language, SizeBytes: row.SizeBytes}, true
}

func (c *dbCache) Put(ctx context.Context, hash string, entry *CacheEntry) {
	data, err := json.Marshal(entry.Findings)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	err = c.db.Exec(ctx,
		"REPLACE INTO file_cache (file_hash, language, size_bytes, findings, analyzed_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		hash, entry.Language, entry.SizeBytes, string(data), now, now.Add(c.ttl))
	if err != nil {
		slog.Warn("Cache write failed", "hash", hash, "error", err)
	}
}

func (c *dbCache) Prune(ctx context.Context) error {
	return c.db.Exec(ctx, "DELETE FROM file_cache WHERE expires_at < ?", time.Now().UTC())
}

// redisCache stores entries as JSON values with a native TTL.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func cacheKey(hash string) string { return "lintagent:filecache:" + hash }

func (c *redisCache) Get(ctx context.Context, hash string) (*CacheEntry, bool) {
	data, err := c.client.Get(ctx, cacheKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Redis cache lookup failed", "hash", hash, "error", err)
		return nil, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (c *redisCache) Put(ctx context.Context, hash string, entry *CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(hash), data, c.ttl).Err(); err != nil {
		slog.Warn("Redis cache write failed", "hash", hash, "error", err)
	}
}

// Prune is a no-op: Redis expires keys itself.
func (c *redisCache) Prune(ctx context.Context) error { return nil }
