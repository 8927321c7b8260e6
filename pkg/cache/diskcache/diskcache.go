// Package diskcache provides a content-addressable persistent cache
// manager. Each variant lives in its own file named by the SHA-256 of
// the slot key and the Vary sub-key, sharded into subdirectories by hash
// prefix. Entries survive process restarts; writes are atomic via a
// temp file plus rename.
package diskcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".entry"

// Cache is a content-addressable on-disk cache.Manager.
type Cache struct {
	root string
}

// New creates a disk cache rooted at dir, creating it if needed.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{root: dir}, nil
}

// Get returns every encoded variant stored under the slot.
func (c *Cache) Get(ctx context.Context, key string) ([][]byte, error) {
	matches, err := filepath.Glob(c.slotGlob(key))
	if err != nil {
		return nil, fmt.Errorf("scan cache directory: %w", err)
	}
	var out [][]byte
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				// Concurrent delete between glob and read.
				continue
			}
			return nil, fmt.Errorf("read cache file: %w", err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Put stores an encoded variant atomically: write to a temp file in the
// same directory, then rename over the final name.
func (c *Cache) Put(ctx context.Context, key, variant string, data []byte) error {
	path := c.variantPath(key, variant)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit cache file: %w", err)
	}
	return nil
}

// Delete removes the slot and all its variants.
func (c *Cache) Delete(ctx context.Context, key string) error {
	matches, err := filepath.Glob(c.slotGlob(key))
	if err != nil {
		return fmt.Errorf("scan cache directory: %w", err)
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cache file: %w", err)
		}
	}
	return nil
}

// variantPath returns root/<kk>/<keyhash>-<varianthash>.entry where kk
// is the first two hex digits of the key hash.
func (c *Cache) variantPath(key, variant string) string {
	kh := hashHex(key)
	vh := hashHex(variant)
	return filepath.Join(c.root, kh[:2], kh+"-"+vh+fileExt)
}

func (c *Cache) slotGlob(key string) string {
	kh := hashHex(key)
	return filepath.Join(c.root, kh[:2], kh+"-*"+fileExt)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}
