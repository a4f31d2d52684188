package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentscope-go/core/model"
)

type actionType string

const (
	actionAdd    actionType = "ADD"
	actionUpdate actionType = "UPDATE"
)

type memoryAction struct {
	Type    actionType
	Role    model.Role
	Name    string
	ID      string
	Content model.Content
}

// retrieveRelated fetches up to 5 related records from the vector store for
// the concerned batch (§4.2 step 5); updateEligible is true only when the
// tail of memory is among the retrieved records and global updates are
// permitted.
func (m *Manager) retrieveRelated(ctx context.Context, concerned []concernedMessage) ([]Record, bool, error) {
	if m.cfg.VectorStore == nil || m.cfg.Embedder == nil {
		return nil, false, nil
	}
	query := ""
	for _, c := range concerned {
		query += c.source.Content().AsText() + "\n"
	}
	vecs, err := m.cfg.Embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return nil, false, err
	}
	hits, err := m.cfg.VectorStore.Search(ctx, vecs[0], 5, nil)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	byID := map[string]Record{}
	for _, r := range m.memory {
		byID[r.ID] = r
	}
	var related []Record
	mostRecentRetrieved := false
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok {
			continue
		}
		related = append(related, r)
		if len(m.memory) > 0 && m.memory[len(m.memory)-1].ID == r.ID {
			mostRecentRetrieved = true
		}
	}
	updateEligible := mostRecentRetrieved && m.cfg.GlobalUpdateAllowed
	return related, updateEligible, nil
}

// decideActions calls the chat model with the update-memory prompt and
// tolerantly decodes its JSON action array (§4.2 step 6), retrying up to 3
// times before the caller falls back to a plain ADD per concerned message.
func (m *Manager) decideActions(ctx context.Context, related []Record, concerned []concernedMessage, updateAllowed bool) ([]memoryAction, error) {
	prompt := updateMemoryPrompt(m.cfg.UpdateMemoryPrompt, related, concerned, updateAllowed)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := m.cfg.ChatModel.Complete(ctx, model.Request{
			Messages:  []model.Message{mustSystemMessage(prompt)},
			MaxTokens: 2048,
		})
		if err != nil {
			lastErr = err
			continue
		}
		actions, err := decodeActions(resp.Message.Content().AsText(), related)
		if err != nil {
			lastErr = err
			continue
		}
		return sanitizeUpdates(actions, related, updateAllowed), nil
	}
	return nil, fmt.Errorf("memory: update-memory decoding failed after 3 attempts: %w", lastErr)
}

// sanitizeUpdates downgrades any UPDATE action whose referenced index is not
// the most-recent related record into an ADD of the same content (Open
// Question, decided in DESIGN.md): re-running the whole update-memory prompt
// for one rejected action would be wasteful, and the record's content is
// already in hand.
func sanitizeUpdates(actions []memoryAction, related []Record, updateAllowed bool) []memoryAction {
	lastIdx := -1
	for i, r := range related {
		if lastIdx < 0 || !r.LastModifiedAt.Before(related[lastIdx].LastModifiedAt) {
			lastIdx = i
		}
	}
	out := make([]memoryAction, 0, len(actions))
	for _, a := range actions {
		if a.Type == actionUpdate {
			idx := indexOfRelated(related, a.ID)
			if !updateAllowed || idx != lastIdx || idx < 0 {
				a = memoryAction{Type: actionAdd, Role: a.Role, Name: a.Name, Content: a.Content}
			}
		}
		out = append(out, a)
	}
	return out
}

func indexOfRelated(related []Record, id string) int {
	for i, r := range related {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// decodeActions tolerantly parses a model's JSON array response, stripping
// markdown code fences first.
func decodeActions(raw string, related []Record) ([]memoryAction, error) {
	cleaned := stripCodeFence(raw)
	result := gjson.Parse(cleaned)
	if !result.IsArray() {
		return nil, fmt.Errorf("memory: update-memory response is not a JSON array")
	}
	var actions []memoryAction
	var parseErr error
	result.ForEach(func(_, value gjson.Result) bool {
		typ := actionType(strings.ToUpper(value.Get("type").String()))
		if typ != actionAdd && typ != actionUpdate {
			parseErr = fmt.Errorf("memory: unknown action type %q", value.Get("type").String())
			return false
		}
		role := model.Role(value.Get("role").String())
		content := model.Text(value.Get("content").String())
		a := memoryAction{Type: typ, Role: role, Content: content}
		if typ == actionUpdate {
			idxOrID := value.Get("id").String()
			if idx := parseIndexOrID(idxOrID, related); idx >= 0 {
				a.ID = related[idx].ID
			} else {
				a.ID = idxOrID
			}
		}
		actions = append(actions, a)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return actions, nil
}

func parseIndexOrID(s string, related []Record) int {
	for i := range related {
		if fmt.Sprintf("%d", i) == s {
			return i
		}
	}
	return -1
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 1 {
			lines = lines[1:]
		}
		s = strings.Join(lines, "\n")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// executeAction performs an ADD or UPDATE against the vector store and the
// in-memory record list (§4.2 step 7), retrying up to 3 times on embedding
// or storage errors.
func (m *Manager) executeAction(ctx context.Context, action memoryAction) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := m.executeActionOnce(ctx, action)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (m *Manager) executeActionOnce(ctx context.Context, action memoryAction) error {
	vecs, err := m.cfg.Embedder.Embed(ctx, []string{action.Content.AsText()})
	if err != nil || len(vecs) == 0 {
		if err == nil {
			err = fmt.Errorf("memory: embedder returned no vectors")
		}
		return err
	}
	now := time.Now()

	switch action.Type {
	case actionAdd:
		m.mu.Lock()
		r := m.appendRecordLocked(Record{
			Role:           action.Role,
			Name:           action.Name,
			Content:        action.Content,
			CreatedAt:      now,
			LastModifiedAt: now,
		})
		m.mu.Unlock()
		payload := map[string]any{
			"data":             action.Content.AsText(),
			"role":             string(action.Role),
			"name":             action.Name,
			"created_at":       now,
			"last_modified_at": now,
		}
		return m.cfg.VectorStore.Insert(ctx, []string{r.ID}, [][]float32{vecs[0]}, []map[string]any{payload})

	case actionUpdate:
		m.mu.Lock()
		idx := -1
		for i, r := range m.memory {
			if r.ID == action.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.mu.Unlock()
			return fmt.Errorf("memory: update references unknown record %q", action.ID)
		}
		updated := m.memory[idx]
		updated.Content = action.Content
		updated.LastModifiedAt = now
		m.memory = append(m.memory[:idx], m.memory[idx+1:]...)
		m.memory = append(m.memory, updated)
		m.mu.Unlock()
		payload := map[string]any{
			"data":             action.Content.AsText(),
			"role":             string(updated.Role),
			"name":             updated.Name,
			"created_at":       updated.CreatedAt,
			"last_modified_at": now,
		}
		return m.cfg.VectorStore.Update(ctx, action.ID, vecs[0], payload)
	}
	return fmt.Errorf("memory: unknown action type %q", action.Type)
}

func updateMemoryPrompt(template string, related []Record, concerned []concernedMessage, updateAllowed bool) string {
	if template == "" {
		template = defaultUpdateMemoryPrompt
	}
	var relatedBlock strings.Builder
	for i, r := range related {
		fmt.Fprintf(&relatedBlock, "%d: %s\n", i, r.Content.AsText())
	}
	var newBlock strings.Builder
	for _, c := range concerned {
		newBlock.WriteString(c.source.Content().AsText())
		newBlock.WriteString("\n")
	}
	prompt := strings.ReplaceAll(template, "{related_memories}", relatedBlock.String())
	prompt = strings.ReplaceAll(prompt, "{new_messages}", newBlock.String())
	prompt = strings.ReplaceAll(prompt, "{update_allowed}", fmt.Sprintf("%v", updateAllowed))
	return prompt
}

const defaultUpdateMemoryPrompt = `Given the related memories (numbered 0..k-1):
{related_memories}

And these new messages:
{new_messages}

UPDATE_ALLOWED={update_allowed}

Return a JSON array of actions, each shaped {"type": "ADD"|"UPDATE", "role": "...", "id": "<index, UPDATE only>", "content": "..."}.
Only use UPDATE when UPDATE_ALLOWED is true and the id refers to the most recent related memory.`
