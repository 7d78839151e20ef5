package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/openvault/vaultsync/internal/db"
)

const hashCacheSchema = `
CREATE TABLE IF NOT EXISTS hash_cache (
    path TEXT PRIMARY KEY,
    size INTEGER NOT NULL,
    mtime INTEGER NOT NULL, -- unix nanoseconds
    digest TEXT NOT NULL
);
`

type cacheRow struct {
	Path   string `db:"path"`
	Size   int64  `db:"size"`
	MTime  int64  `db:"mtime"`
	Digest string `db:"digest"`
}

// HashCache memoizes content digests keyed by path, invalidated by size
// or mtime change, so unchanged files are not rehashed on every pass.
// Hit/miss counters exist for diagnostics only; correctness never
// depends on the cache.
type HashCache struct {
	db     *sqlx.DB
	dbPath string
	hits   atomic.Int64
	misses atomic.Int64
}

func NewHashCache(dbPath string) *HashCache {
	return &HashCache{dbPath: dbPath}
}

// Open the cache and the underlying database.
func (c *HashCache) Open() error {
	if c.db != nil {
		return fmt.Errorf("hash cache already open")
	}

	conn, err := db.NewSqliteDb(db.WithPath(c.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open hash cache: %w", err)
	}

	if _, err := conn.Exec(hashCacheSchema); err != nil {
		conn.Close()
		return fmt.Errorf("init hash cache schema: %w", err)
	}

	c.db = conn
	return nil
}

func (c *HashCache) Close() error {
	if c.db == nil {
		return fmt.Errorf("hash cache not open")
	}
	if err := c.db.Close(); err != nil {
		return err
	}
	c.db = nil
	slog.Debug("hash cache closed", "hits", c.hits.Load(), "misses", c.misses.Load())
	return nil
}

// Lookup returns the cached digest for path when size and mtime still
// match. A stale or missing row counts as a miss.
func (c *HashCache) Lookup(path string, size int64, mtimeNanos int64) (Digest, bool) {
	var row cacheRow
	err := c.db.Get(&row, "SELECT path, size, mtime, digest FROM hash_cache WHERE path = ?", path)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("hash cache lookup", "path", path, "error", err)
		}
		c.misses.Add(1)
		return "", false
	}

	if row.Size != size || row.MTime != mtimeNanos {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return row.Digest, true
}

// Store inserts or replaces the cached digest for path.
func (c *HashCache) Store(path string, size int64, mtimeNanos int64, digest Digest) error {
	row := cacheRow{Path: path, Size: size, MTime: mtimeNanos, Digest: digest}
	_, err := c.db.NamedExec(
		`INSERT OR REPLACE INTO hash_cache (path, size, mtime, digest) VALUES (:path, :size, :mtime, :digest)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("hash cache store %s: %w", path, err)
	}
	return nil
}

// Delete drops the cached entry for path.
func (c *HashCache) Delete(path string) error {
	_, err := c.db.Exec("DELETE FROM hash_cache WHERE path = ?", path)
	return err
}

// Stats returns the hit and miss counters.
func (c *HashCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
