package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/agentscope-go/core/model"
)

// LongContextDir is where long-context processing and global summarization
// offload original content too large to keep inline. Callers MAY override
// this before the first Add.
var LongContextDir = os.TempDir()

// longContextProcess implements §4.2 step 4: oversized tool_result blocks
// are saved to a side file and replaced with a short summary reference;
// if the whole message is still too large, every text block is offloaded
// and summarized, retried up to 3 times, then truncated as a last resort.
func (m *Manager) longContextProcess(ctx context.Context, c concernedMessage) (concernedMessage, error) {
	blocks := c.source.ContentBlocks()
	var paths []string
	changed := false

	out := make([]model.Block, len(blocks))
	copy(out, blocks)
	for i, b := range out {
		tr, ok := b.(model.ToolResultBlock)
		if !ok {
			continue
		}
		if m.cfg.Counter.Count(tr.Output) <= m.cfg.MaxToolResultTokens {
			continue
		}
		path, err := m.offload(tr.Output)
		if err != nil {
			return c, err
		}
		summary, err := m.sequentialSummarize(ctx, tr.Output, "")
		if err != nil {
			return c, err
		}
		out[i] = model.ToolResultBlock{
			ID:    tr.ID,
			Name:  tr.Name,
			Output: fmt.Sprintf("%s … original saved in %s.", summary, path),
			IsErr: tr.IsErr,
		}
		paths = append(paths, path)
		changed = true
	}

	for attempt := 0; attempt < 3 && m.cfg.Counter.Count(renderBlocks(out)) > m.cfg.ChunkSizeTokens; attempt++ {
		for i, b := range out {
			tb, ok := b.(model.TextBlock)
			if !ok || tb.Text == "" {
				continue
			}
			path, err := m.offload(tb.Text)
			if err != nil {
				return c, err
			}
			summary, err := m.sequentialSummarize(ctx, tb.Text, "")
			if err != nil {
				return c, err
			}
			out[i] = model.TextBlock{Text: fmt.Sprintf("%s … original saved in %s.", summary, path)}
			paths = append(paths, path)
			changed = true
		}
	}

	if m.cfg.Counter.Count(renderBlocks(out)) > m.cfg.ChunkSizeTokens {
		for i, b := range out {
			tb, ok := b.(model.TextBlock)
			if !ok {
				continue
			}
			out[i] = model.TextBlock{Text: truncateToTokens(tb.Text, m.cfg.ChunkSizeTokens/2, m.cfg.Counter)}
		}
		changed = true
	}

	if !changed {
		return c, nil
	}
	if len(paths) > 0 {
		out = append(out, model.SourceFileBlock{Paths: paths})
	}
	msg, err := model.NewMessage(c.source.Name(), c.source.Role(), model.Blocks(out...), model.WithCreatedAt(c.source.CreatedAt()))
	if err != nil {
		return c, err
	}
	return concernedMessage{source: msg}, nil
}

func (m *Manager) offload(text string) (string, error) {
	path := filepath.Join(LongContextDir, fmt.Sprintf("memory-offload-%s.txt", uuid.NewString()))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("memory: offload original content: %w", err)
	}
	return path, nil
}

func renderBlocks(blocks []model.Block) string {
	out := ""
	for _, b := range blocks {
		switch v := b.(type) {
		case model.TextBlock:
			out += v.Text
		case model.ToolResultBlock:
			out += v.Output
		case model.ThinkingBlock:
			out += v.Text
		}
	}
	return out
}

func truncateToTokens(text string, tokens int, counter model.TokenCounter) string {
	runes := []rune(text)
	width := tokens * 4
	if width <= 0 || width >= len(runes) {
		return text
	}
	return string(runes[:width])
}

// sequentialSummarize splits body into chunks bounded by MaxChatModelTokens
// with a fixed overlap and folds them left-to-right into a single running
// summary (§4.2 "Sequential summarization"). When query is non-empty, each
// step refines the summary as a note toward that query instead of a plain
// recap (the query-aware variant).
func (m *Manager) sequentialSummarize(ctx context.Context, body, query string) (string, error) {
	chunks := m.cfg.Splitter.Split(body)
	if len(chunks) == 0 {
		return "", nil
	}
	summary := ""
	for _, chunk := range chunks {
		prompt := summarizePrompt(chunk, summary, query)
		resp, err := m.cfg.ChatModel.Complete(ctx, model.Request{
			Messages: []model.Message{mustSystemMessage(prompt)},
			MaxTokens: 1024,
		})
		if err != nil {
			return "", fmt.Errorf("memory: sequential summarize: %w", err)
		}
		summary = resp.Message.Content().AsText()
	}
	return summary, nil
}

func summarizePrompt(chunk, previousSummary, query string) string {
	if query != "" {
		return fmt.Sprintf(
			"Refine the running note toward the query %q given the previous note and this new chunk.\nPrevious note: %s\nChunk: %s",
			query, previousSummary, chunk,
		)
	}
	return fmt.Sprintf(
		"Continue summarizing given the previous summary and this new chunk.\nPrevious summary: %s\nChunk: %s",
		previousSummary, chunk,
	)
}

func mustSystemMessage(text string) model.Message {
	msg, _ := model.NewMessage("system", model.RoleSystem, model.Text(text))
	return msg
}
