// Package sqlitecache provides a SQLite-backed persistent cache
// manager: one row per variant, keyed by (slot, variant). A single
// writer mutex serializes writes, which SQLite requires anyway.
package sqlitecache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Cache is a SQLite-backed cache.Manager.
type Cache struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// New opens (or creates) the cache database at filename. An empty
// filename opens a shared in-memory database, which is handy in tests.
func New(filename string) (*Cache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT NOT NULL,
			variant TEXT NOT NULL,
			data BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			PRIMARY KEY (key, variant)
		)`,
		"CREATE INDEX IF NOT EXISTS entries_key_idx ON entries (key)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize cache database: %w", err)
		}
	}
	return &Cache{db: db}, nil
}

// Get returns every encoded variant stored under the slot.
func (c *Cache) Get(ctx context.Context, key string) ([][]byte, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT data FROM entries WHERE key = ?", key)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// Put stores an encoded variant, replacing a previous row with the same
// (slot, variant) pair.
func (c *Cache) Put(ctx context.Context, key, variant string, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (key, variant, data, stored_at) VALUES (?, ?, ?, ?)",
		key, variant, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Delete removes the slot and all its variants.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
