package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// CompressThreshold is the payload size at which values are stored zstd-compressed.
const CompressThreshold = 4 * 1024

const (
	encodingIdentity = "identity"
	encodingZstd     = "zstd"
)

// CacheStats summarizes the response cache.
type CacheStats struct {
	Path        string         `json:"path" yaml:"path"`
	Entries     int            `json:"entries" yaml:"entries"`
	Expired     int            `json:"expired" yaml:"expired"`
	RawBytes    int64          `json:"rawBytes" yaml:"rawBytes"`
	StoredBytes int64          `json:"storedBytes" yaml:"storedBytes"`
	Hits        int64          `json:"hits" yaml:"hits"`
	ByFunction  map[string]int `json:"byFunction" yaml:"byFunction"`
}

// Cache stores raw upstream payloads keyed by request fingerprint.
type Cache struct {
	db  *DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// NewCache creates a new cache instance
func NewCache(db *DB) (*Cache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Cache{db: db, enc: enc, dec: dec, now: time.Now}, nil
}

// Close releases the codec resources. It does not close the database.
func (c *Cache) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

// Get returns the payload stored under key.
// An expired entry is deleted and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		encoding  string
		expiresAt int64
	)

	err := c.db.QueryRowContext(ctx, `
		SELECT value, encoding, expires_at
		FROM response_cache
		WHERE key = ?
	`, key).Scan(&value, &encoding, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("response cache lookup failed: %w", err)
	}

	if c.now().UnixMilli() >= expiresAt {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM response_cache WHERE key = ?", key); err != nil {
			c.db.logger.Debug("failed to delete expired cache entry", "error", err.Error())
		}
		return nil, false, nil
	}

	if encoding == encodingZstd {
		value, err = c.dec.DecodeAll(value, nil)
		if err != nil {
			return nil, false, fmt.Errorf("failed to decompress cache entry: %w", err)
		}
	}

	if _, err := c.db.ExecContext(ctx, "UPDATE response_cache SET hits = hits + 1 WHERE key = ?", key); err != nil {
		c.db.logger.Debug("failed to record cache hit", "error", err.Error())
	}

	return value, true, nil
}

// Set upserts a payload with the given time to live.
func (c *Cache) Set(ctx context.Context, key, function string, value []byte, ttl time.Duration) error {
	now := c.now()
	stored := value
	encoding := encodingIdentity
	if len(value) >= CompressThreshold {
		stored = c.enc.EncodeAll(value, make([]byte, 0, len(value)/2))
		encoding = encodingZstd
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO response_cache (key, function, value, encoding, size, expires_at, created_at, hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, key, function, stored, encoding, len(value), now.Add(ttl).UnixMilli(), now.UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to set response cache: %w", err)
	}

	return nil
}

// PurgeExpired removes expired entries and returns how many were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM response_cache WHERE expires_at <= ?", c.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge response cache: %w", err)
	}
	n, _ := res.RowsAffected()
	c.db.logger.Debug("Purged expired cache entries", "removed", n)
	return n, nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM response_cache")
	if err != nil {
		return 0, fmt.Errorf("failed to clear response cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats returns statistics about cache usage
func (c *Cache) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Path:       c.db.Path(),
		ByFunction: make(map[string]int),
	}

	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(size), 0),
			COALESCE(SUM(LENGTH(value)), 0),
			COALESCE(SUM(hits), 0)
		FROM response_cache
	`, c.now().UnixMilli()).Scan(&stats.Entries, &stats.Expired, &stats.RawBytes, &stats.StoredBytes, &stats.Hits)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT function, COUNT(*)
		FROM response_cache
		GROUP BY function
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get per-function cache stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var function string
		var count int
		if err := rows.Scan(&function, &count); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		stats.ByFunction[function] = count
	}

	return stats, rows.Err()
}
