package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/agentscope-go/core/model"
)

// CachedEmbedder wraps a model.Embedder with a Cache, keyed by a SHA-256
// digest of each input text so identical texts never hit the provider
// twice within the cache's retention window.
type CachedEmbedder struct {
	inner model.Embedder
	cache Cache
}

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner model.Embedder, cache Cache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) Dimension() int      { return c.inner.Dimension() }
func (c *CachedEmbedder) MaxInputTokens() int { return c.inner.MaxInputTokens() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		key := digest(t)
		if v, ok := c.cache.Get(key); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.cache.Put(digest(texts[idx]), vecs[j])
	}
	return out, nil
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
