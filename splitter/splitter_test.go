package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitShortTextReturnsSingleChunk(t *testing.T) {
	s := New(100, 10)
	chunks := s.Split("hello world")
	require.Equal(t, []string{"hello world"}, chunks)
}

func TestSplitLongTextRespectsBudget(t *testing.T) {
	s := New(10, 0)
	text := strings.Repeat("word ", 200)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, s.Counter.Count(c), s.ChunkSizeTokens*2) // hard-split bound, generous
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := New(10, 0)
	require.Empty(t, s.Split(""))
}
