package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryInsertGetSearch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(3)

	err := store.Insert(ctx, []string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}, []map[string]any{{"role": "user"}, {"role": "assistant"}})
	require.NoError(t, err)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "user", rec.Payload["role"])

	results, err := store.Search(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestInMemoryUpdateUnknownID(t *testing.T) {
	store := NewInMemory(2)
	err := store.Update(context.Background(), "missing", []float32{1, 1}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryFilterSearch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(2)
	require.NoError(t, store.Insert(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {1, 0}}, []map[string]any{{"tag": "x"}, {"tag": "y"}}))

	results, err := store.Search(ctx, []float32{1, 0}, 5, Filter{"tag": "y"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].ID)
}
