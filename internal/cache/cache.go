// Package cache provides a small SQLite-backed byte cache. It fronts the
// feed endpoints, which rebuild identical XML for every crawler hit.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"go-research-cms/internal/config"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Cache stores rendered payloads with a per-entry expiry.
type Cache struct {
	db         *sqlx.DB
	defaultTTL time.Duration
}

// New opens the SQLite cache at the configured path and ensures its schema.
func New(cfg config.CacheConfig) (*Cache, error) {
	db, err := sqlx.Connect("sqlite", cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite cache: %w", err)
	}

	// WAL mode keeps readers from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode on sqlite cache: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB,
		content_type TEXT NOT NULL DEFAULT '',
		expires_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_expires_at ON cache (expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	ttl := cfg.FeedTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{db: db, defaultTTL: ttl}, nil
}

// Get returns the cached payload and its content type. A miss or an expired
// entry returns nil with no error.
func (c *Cache) Get(key string) ([]byte, string, error) {
	var item struct {
		Value       []byte `db:"value"`
		ContentType string `db:"content_type"`
		ExpiresAt   int64  `db:"expires_at"`
	}
	query := `SELECT value, content_type, expires_at FROM cache WHERE key = ?`
	if err := c.db.Get(&item, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to get item from cache: %w", err)
	}

	if time.Now().Unix() > item.ExpiresAt {
		// Expired entries are deleted lazily, best effort.
		_ = c.Delete(key)
		return nil, "", nil
	}
	return item.Value, item.ContentType, nil
}

// Set stores a payload under the cache's default TTL.
func (c *Cache) Set(key string, value []byte, contentType string) error {
	return c.SetWithTTL(key, value, contentType, c.defaultTTL)
}

// SetWithTTL stores a payload with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value []byte, contentType string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	query := `INSERT OR REPLACE INTO cache (key, value, content_type, expires_at) VALUES (?, ?, ?, ?)`
	if _, err := c.db.Exec(query, key, value, contentType, expiresAt); err != nil {
		return fmt.Errorf("failed to set item in cache: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(key string) error {
	if _, err := c.db.Exec(`DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete item from cache: %w", err)
	}
	return nil
}

// Purge drops every expired entry.
func (c *Cache) Purge() error {
	if _, err := c.db.Exec(`DELETE FROM cache WHERE expires_at < ?`, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
