// Package cache provides a pluggable embedding cache for C3: an in-memory
// LRU tier (github.com/hashicorp/golang-lru/v2) backed by an optional
// file-backed overflow tier, keyed by a caller-supplied request identifier
// (typically a hash of the input text plus model name).
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores embedding vectors keyed by an opaque request id.
type Cache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vector []float32)
}

// LRU is an in-memory-only cache with a fixed capacity; the least recently
// used entry is evicted on overflow.
type LRU struct {
	inner *lru.Cache[string, []float32]
}

// NewLRU builds an in-memory cache holding up to size entries.
func NewLRU(size int) (*LRU, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRU{inner: c}, nil
}

func (c *LRU) Get(key string) ([]float32, bool) { return c.inner.Get(key) }
func (c *LRU) Put(key string, vector []float32) { c.inner.Add(key, vector) }

// FileBacked wraps an LRU tier with a directory-backed overflow tier: a
// miss in the LRU falls through to a JSON file per key; a hit there is
// promoted back into the LRU so hot keys stay fast.
type FileBacked struct {
	mu  sync.Mutex
	lru *LRU
	dir string
}

// NewFileBacked builds a two-tier cache: size entries held in memory, with
// every entry also durably mirrored under dir.
func NewFileBacked(dir string, size int) (*FileBacked, error) {
	l, err := NewLRU(size)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBacked{lru: l, dir: dir}, nil
}

func (c *FileBacked) Get(key string) ([]float32, bool) {
	if v, ok := c.lru.Get(key); ok {
		return v, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	c.lru.Put(key, vec)
	return vec, true
}

func (c *FileBacked) Put(key string, vector []float32) {
	c.lru.Put(key, vector)
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path(key), data, 0o644)
}

func (c *FileBacked) path(key string) string {
	return filepath.Join(c.dir, sanitize(key)+".json")
}

func sanitize(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		b := key[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '-', b == '_':
			out = append(out, b)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
