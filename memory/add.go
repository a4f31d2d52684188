package memory

import (
	"context"

	"github.com/agentscope-go/core/model"
	"github.com/agentscope-go/core/telemetry"
)

// Add runs the add protocol (§4.2): append to chat_history, then either
// append verbatim to memory (process_with_llm disabled) or run concerned-
// message extraction, long-context processing, retrieval, the update-memory
// model call, and action execution.
func (m *Manager) Add(ctx context.Context, messages []model.Message) error {
	m.mu.Lock()
	for _, msg := range messages {
		m.chatHistory = append(m.chatHistory, msg)
		m.chatHistoryTok += m.cfg.Counter.Count(msg.Content().AsText())
	}
	processWithLLM := m.cfg.ProcessWithLLM
	m.mu.Unlock()

	if !processWithLLM {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, msg := range messages {
			m.appendRecordLocked(Record{
				Role:           msg.Role(),
				Name:           msg.Name(),
				Content:        msg.Content(),
				CreatedAt:      msg.CreatedAt(),
				LastModifiedAt: msg.CreatedAt(),
			})
		}
		return nil
	}

	concerned := m.extractConcerned(messages)
	if len(concerned) == 0 {
		return nil
	}

	for i := range concerned {
		processed, err := m.longContextProcess(ctx, concerned[i])
		if err != nil {
			m.cfg.Logger.Error(ctx, "long-context processing failed", telemetry.Field("error", err.Error()))
			continue
		}
		concerned[i] = processed
	}

	related, updateEligible, err := m.retrieveRelated(ctx, concerned)
	if err != nil {
		m.cfg.Logger.Error(ctx, "related-memory retrieval failed", telemetry.Field("error", err.Error()))
	}

	actions, err := m.decideActions(ctx, related, concerned, updateEligible)
	if err != nil {
		m.cfg.Logger.Error(ctx, "update-memory decoding failed, falling back to ADD", telemetry.Field("error", err.Error()))
		actions = fallbackAdds(concerned)
	}

	for _, action := range actions {
		if err := m.executeAction(ctx, action); err != nil {
			m.cfg.Logger.Error(ctx, "memory action failed", telemetry.Field("error", err.Error()))
		}
	}

	m.mu.Lock()
	needsSummarization := m.memoryTok > m.cfg.MaxMemoryLen
	m.mu.Unlock()
	if needsSummarization {
		if err := m.GlobalSummarize(ctx); err != nil {
			m.cfg.Logger.Error(ctx, "global summarization failed", telemetry.Field("error", err.Error()))
		}
	}
	return nil
}

// appendRecordLocked inserts a record at the end of memory, updates the
// token estimate, and stamps IsRoot on the very first record this manager
// ever sees. Caller must hold m.mu.
func (m *Manager) appendRecordLocked(r Record) Record {
	if r.ID == "" {
		r.ID = newRecordID()
	}
	if !m.hasRoot {
		r.IsRoot = true
		m.hasRoot = true
	}
	m.memory = append(m.memory, r)
	m.memoryTok += m.cfg.Counter.Count(r.Content.AsText())
	return r
}

// concernedMessage is one unit of the concerned-message extraction pass: a
// message whose buffered tool_use was merged with its matching tool_result,
// or an as-is plain-content message.
type concernedMessage struct {
	source model.Message
}

// extractConcerned implements §4.2 step 3: plain-text messages pass through
// as-is; a message carrying an unmatched tool_use is buffered; when a later
// message supplies the matching tool_result, the buffered tool_use blocks
// are merged first, then the original message's text blocks, then the new
// content (property 6).
func (m *Manager) extractConcerned(messages []model.Message) []concernedMessage {
	var out []concernedMessage
	for _, msg := range messages {
		blocks := msg.ContentBlocks()

		var unmatchedUse []model.Block
		var toolResultIDs = map[string]bool{}
		for _, b := range blocks {
			if tr, ok := b.(model.ToolResultBlock); ok {
				toolResultIDs[tr.ID] = true
			}
		}

		var mergedFromPending []model.Block
		var pendingText []model.Block
		for id, pending := range m.pendingToolUse {
			if toolResultIDs[id] {
				mergedFromPending = append(mergedFromPending, pending.blocks...)
				for _, b := range pending.msg.ContentBlocks() {
					if _, ok := b.(model.ToolUseBlock); !ok {
						pendingText = append(pendingText, b)
					}
				}
				delete(m.pendingToolUse, id)
			}
		}

		if len(mergedFromPending) > 0 {
			var merged []model.Block
			merged = append(merged, mergedFromPending...)
			merged = append(merged, pendingText...)
			merged = append(merged, blocks...)
			newContent, _ := model.NewMessage(msg.Name(), msg.Role(), model.Blocks(merged...),
				model.WithCreatedAt(msg.CreatedAt()))
			out = append(out, concernedMessage{source: newContent})
			continue
		}

		for _, b := range blocks {
			if tu, ok := b.(model.ToolUseBlock); ok {
				if !toolResultIDs[tu.ID] {
					unmatchedUse = append(unmatchedUse, b)
				}
			}
		}
		if len(unmatchedUse) > 0 {
			m.pendingToolUse[unmatchedUse[0].(model.ToolUseBlock).ID] = pendingUse{msg: msg, blocks: unmatchedUse}
			continue
		}

		out = append(out, concernedMessage{source: msg})
	}
	return out
}

func fallbackAdds(concerned []concernedMessage) []memoryAction {
	actions := make([]memoryAction, 0, len(concerned))
	for _, c := range concerned {
		actions = append(actions, memoryAction{
			Type:    actionAdd,
			Role:    c.source.Role(),
			Name:    c.source.Name(),
			Content: c.source.Content(),
		})
	}
	return actions
}
