package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentscope-go/core/model"
	"github.com/agentscope-go/core/vectorstore"
)

type stubEmbedder struct{ dim int }

func (e stubEmbedder) Dimension() int      { return e.dim }
func (e stubEmbedder) MaxInputTokens() int { return 100000 }
func (e stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		for j, r := range t {
			v[j%e.dim] += float32(r % 7)
		}
		out[i] = v
	}
	return out, nil
}

type stubChatModel struct {
	responseText func(req model.Request) string
}

func (c stubChatModel) Complete(_ context.Context, req model.Request) (model.Response, error) {
	text := "[]"
	if c.responseText != nil {
		text = c.responseText(req)
	}
	msg, err := model.NewMessage("assistant", model.RoleAssistant, model.Text(text))
	return model.Response{Message: msg}, err
}
func (c stubChatModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func newTestManager(t *testing.T, processWithLLM bool) *Manager {
	t.Helper()
	vs := vectorstore.NewInMemory(4)
	m, err := New(Config{
		ProcessWithLLM: processWithLLM,
		Embedder:       stubEmbedder{dim: 4},
		ChatModel:      stubChatModel{},
		VectorStore:    vs,
		MaxChatLen:     40,
		MaxMemoryLen:   100000,
	})
	require.NoError(t, err)
	return m
}

func textMsg(role model.Role, name, text string) model.Message {
	msg, _ := model.NewMessage(name, role, model.Text(text))
	return msg
}

// Property 4: chat_history equals the concatenation of inputs in order.
func TestChatHistoryPreservation(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()

	first := []model.Message{textMsg(model.RoleUser, "user", "hello")}
	second := []model.Message{textMsg(model.RoleAssistant, "assistant", "hi there")}

	require.NoError(t, m.Add(ctx, first))
	require.NoError(t, m.Add(ctx, second))

	got := m.ChatHistory()
	require.Len(t, got, 2)
	require.Equal(t, "hello", got[0].Content().AsText())
	require.Equal(t, "hi there", got[1].Content().AsText())
}

// Property 3: memory records are non-decreasing by last_modified_at.
func TestMemoryOrderingNonDecreasing(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Add(ctx, []model.Message{textMsg(model.RoleUser, "user", fmt.Sprintf("msg %d", i))}))
	}

	records := m.MemoryRecords()
	for i := 1; i < len(records); i++ {
		require.False(t, records[i].LastModifiedAt.Before(records[i-1].LastModifiedAt))
	}
}

// Property 5: auto retrieval threshold.
func TestAutoRetrievalThreshold(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, []model.Message{textMsg(model.RoleUser, "user", "short")}))
	out := m.GetMemory(GetMemoryOptions{Mode: ModeAuto, RecentN: 10})
	require.Len(t, out, 1)

	long := make([]model.Message, 0)
	for i := 0; i < 20; i++ {
		long = append(long, textMsg(model.RoleUser, "user", "this is a long padded message to exceed max chat len threshold"))
	}
	require.NoError(t, m.Add(ctx, long))

	out = m.GetMemory(GetMemoryOptions{Mode: ModeAuto, RecentN: 1000})
	// Once chat history exceeds MaxChatLen, auto mode switches to processed.
	require.Equal(t, len(m.MemoryRecords()), len(out))
}

// Property 6: tool-pair merging — a tool_use followed later by its
// tool_result becomes one concerned message starting with tool_use then
// tool_result.
func TestToolPairMerging(t *testing.T) {
	m := newTestManager(t, true)

	useMsg, _ := model.NewMessage("assistant", model.RoleAssistant, model.Blocks(
		model.ToolUseBlock{ID: "call-1", Name: "search", Input: []byte(`{}`)},
	))
	resultMsg, _ := model.NewMessage("tool", model.RoleUser, model.Blocks(
		model.ToolResultBlock{ID: "call-1", Name: "search", Output: "found it"},
	))

	concerned := m.extractConcerned([]model.Message{useMsg})
	require.Empty(t, concerned, "a lone tool_use must be buffered, not concerned yet")

	concerned = m.extractConcerned([]model.Message{resultMsg})
	require.Len(t, concerned, 1)
	blocks := concerned[0].source.ContentBlocks()
	require.Len(t, blocks, 2)
	tu, ok := blocks[0].(model.ToolUseBlock)
	require.True(t, ok)
	require.Equal(t, "call-1", tu.ID)
	tr, ok := blocks[1].(model.ToolResultBlock)
	require.True(t, ok)
	require.Equal(t, "call-1", tr.ID)
}

// S3/S6-adjacent: recent_n truncation always keeps the root record.
func TestGetMemoryKeepsRootRecordUnderTruncation(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Add(ctx, []model.Message{textMsg(model.RoleUser, "user", fmt.Sprintf("msg %d", i))}))
	}

	out := m.GetMemory(GetMemoryOptions{Mode: ModeProcessed, RecentN: 3})
	require.Len(t, out, 3)
	require.True(t, out[0].IsRoot)
	require.Equal(t, "msg 0", out[0].Content.AsText())
}

func TestAddWithLLMProcessingAppendsToVectorStore(t *testing.T) {
	m := newTestManager(t, true)
	m.cfg.ChatModel = stubChatModel{responseText: func(model.Request) string {
		return `[{"type": "ADD", "role": "user", "content": "remember this fact"}]`
	}}
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, []model.Message{textMsg(model.RoleUser, "user", "remember this fact")}))
	records := m.MemoryRecords()
	require.Len(t, records, 1)
	require.Equal(t, "remember this fact", records[0].Content.AsText())
}
