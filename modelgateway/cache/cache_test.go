package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	vec   []float32
}

func (e *countingEmbedder) Dimension() int      { return len(e.vec) }
func (e *countingEmbedder) MaxInputTokens() int { return 1000 }
func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func TestCachedEmbedderSkipsRepeatedText(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	lru, err := NewLRU(10)
	require.NoError(t, err)
	cached := NewCachedEmbedder(inner, lru)

	out1, err := cached.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	out2, err := cached.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)

	require.Equal(t, out1, out2)
	require.Equal(t, 1, inner.calls)
}

func TestFileBackedCachePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "embcache")
	fb, err := NewFileBacked(dir, 1)
	require.NoError(t, err)

	fb.Put("k", []float32{9, 9})
	v, ok := fb.Get("k")
	require.True(t, ok)
	require.Equal(t, []float32{9, 9}, v)

	fb2, err := NewFileBacked(dir, 1)
	require.NoError(t, err)
	v2, ok := fb2.Get("k")
	require.True(t, ok)
	require.Equal(t, []float32{9, 9}, v2)
}
