package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessageRejectsInvalidRole(t *testing.T) {
	_, err := NewMessage("bob", Role("rogue"), Text("hi"))
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestValidateTurnAcceptsCrossMessagePairing(t *testing.T) {
	a, err := NewMessage("agent", RoleAssistant, Blocks(ToolUseBlock{ID: "u1", Name: "search"}))
	require.NoError(t, err)
	b, err := NewMessage("tool", RoleUser, Blocks(TextBlock{Text: "ok"}, ToolResultBlock{ID: "u1", Output: "results"}))
	require.NoError(t, err)

	require.NoError(t, ValidateTurn([]Message{a, b}))
}

func TestValidateTurnRejectsDanglingToolResult(t *testing.T) {
	b, err := NewMessage("tool", RoleUser, Blocks(ToolResultBlock{ID: "missing", Output: "x"}))
	require.NoError(t, err)

	require.ErrorIs(t, ValidateTurn([]Message{b}), ErrDanglingToolResult)
}

func TestContentTextAndBlocksRoundtrip(t *testing.T) {
	c := Text("hello")
	require.True(t, c.IsText())
	require.Equal(t, "hello", c.AsText())
	require.Equal(t, []Block{TextBlock{Text: "hello"}}, c.AsBlocks())

	blocks := Blocks(TextBlock{Text: "a"}, ThinkingBlock{Text: "b"})
	require.False(t, blocks.IsText())
	require.Equal(t, "ab", blocks.AsText())
}
