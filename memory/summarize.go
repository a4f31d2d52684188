package memory

import (
	"context"
	"fmt"

	"github.com/agentscope-go/core/model"
)

// GlobalSummarize replaces processed-memory records with summaries until the
// records it has summarized total at least CompressedRatio of the current
// token estimate (§4.2 "Global summarization"): records are
// walked in order, user-role records are skipped by default, the rest are
// packed into groups bounded by MaxChatModelTokens, each group is collapsed
// into one system-role summary record carrying a source_file block, and the
// summary is spliced in at the position of the last record it replaces.
func (m *Manager) GlobalSummarize(ctx context.Context) error {
	m.mu.Lock()
	records := make([]Record, len(m.memory))
	copy(records, m.memory)
	target := int(float64(m.memoryTok) * m.cfg.CompressedRatio)
	m.mu.Unlock()

	groups := packGroups(records, m.cfg.MaxChatModelTokens, m.cfg.Counter)

	var newRecords []Record
	removedTok := 0
	reachedTarget := false
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		if reachedTarget || len(group) == 1 {
			newRecords = append(newRecords, group...)
			continue
		}

		tracingPath, err := m.traceGroup(group)
		if err != nil {
			return err
		}
		var body string
		for _, r := range group {
			body += r.Content.AsText() + "\n"
		}
		summaryText, err := m.sequentialSummarize(ctx, body, "")
		if err != nil {
			return err
		}
		last := group[len(group)-1]
		isRoot := false
		for _, r := range group {
			isRoot = isRoot || r.IsRoot
		}
		summary := Record{
			ID:             newRecordID(),
			Role:           model.RoleSystem,
			Name:           "memory-summary",
			Content:        model.Blocks(model.TextBlock{Text: summaryText}, model.SourceFileBlock{Paths: []string{tracingPath}}),
			CreatedAt:      last.CreatedAt,
			LastModifiedAt: last.LastModifiedAt,
			IsRoot:         isRoot,
		}
		newRecords = append(newRecords, summary)

		if err := m.replaceInVectorStore(ctx, group, summary); err != nil {
			return err
		}

		for _, r := range group {
			removedTok += m.cfg.Counter.Count(r.Content.AsText())
		}
		if removedTok >= target {
			reachedTarget = true
		}
	}

	m.mu.Lock()
	m.memory = newRecords
	tok := 0
	for _, r := range m.memory {
		tok += m.cfg.Counter.Count(r.Content.AsText())
	}
	m.memoryTok = tok
	m.mu.Unlock()
	return nil
}

// replaceInVectorStore mirrors the ADD path (actions.go's executeActionOnce):
// each original record's vector is deleted and the summary is embedded and
// inserted in its place, keeping C2 in sync with the processed store.
func (m *Manager) replaceInVectorStore(ctx context.Context, group []Record, summary Record) error {
	if m.cfg.VectorStore == nil || m.cfg.Embedder == nil {
		return nil
	}
	for _, r := range group {
		if err := m.cfg.VectorStore.Delete(ctx, r.ID); err != nil {
			return fmt.Errorf("memory: delete summarized record %q: %w", r.ID, err)
		}
	}
	vecs, err := m.cfg.Embedder.Embed(ctx, []string{summary.Content.AsText()})
	if err != nil || len(vecs) == 0 {
		if err == nil {
			err = fmt.Errorf("memory: embedder returned no vectors for summary")
		}
		return err
	}
	payload := map[string]any{
		"data":             summary.Content.AsText(),
		"role":             string(summary.Role),
		"name":             summary.Name,
		"created_at":       summary.CreatedAt,
		"last_modified_at": summary.LastModifiedAt,
	}
	return m.cfg.VectorStore.Insert(ctx, []string{summary.ID}, [][]float32{vecs[0]}, []map[string]any{payload})
}

func (m *Manager) memoryTokenEstimate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memoryTok
}

// packGroups walks records in order and accumulates them into groups whose
// total token count stays within limit; user-role records are skipped
// (left as singleton groups, i.e. untouched) by default.
func packGroups(records []Record, limit int, counter model.TokenCounter) [][]Record {
	var groups [][]Record
	var current []Record
	currentTok := 0
	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
			currentTok = 0
		}
	}
	for _, r := range records {
		if r.Role == model.RoleUser {
			flush()
			groups = append(groups, []Record{r})
			continue
		}
		tok := counter.Count(r.Content.AsText())
		if tok > limit {
			flush()
			groups = append(groups, []Record{r})
			continue
		}
		if currentTok+tok > limit {
			flush()
		}
		current = append(current, r)
		currentTok += tok
	}
	flush()
	return groups
}

func (m *Manager) traceGroup(group []Record) (string, error) {
	var body string
	for _, r := range group {
		body += fmt.Sprintf("[%s] %s\n", r.Role, r.Content.AsText())
	}
	return m.offload(body)
}
