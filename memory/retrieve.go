package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentscope-go/core/model"
	"github.com/agentscope-go/core/telemetry"
)

// RetrievalMode selects which store get_memory reads from.
type RetrievalMode string

const (
	// ModeSource returns the tail of chat_history.
	ModeSource RetrievalMode = "source"
	// ModeProcessed returns the tail of the processed memory.
	ModeProcessed RetrievalMode = "processed"
	// ModeAuto picks processed iff chat-history exceeds MaxChatLen, else
	// source (property 5).
	ModeAuto RetrievalMode = "auto"
)

// GetMemoryOptions parameterizes GetMemory (§4.2 "Retrieval").
type GetMemoryOptions struct {
	RecentN int
	Mode    RetrievalMode
	Filter  func(Record) bool
}

// GetMemory returns up to RecentN records from the selected store. If
// filtering/truncation would drop the very first record this manager ever
// appended (IsRoot), that record is always kept and the tail RecentN-1
// items are appended after it (Open Question, decided in DESIGN.md: the
// root item is tracked via an explicit flag rather than assumed to sit at
// index 0, since summarization and updates can move or remove the earliest
// slot in the ordered list).
func (m *Manager) GetMemory(opts GetMemoryOptions) []Record {
	m.mu.Lock()
	chatTok := m.chatHistoryTok
	maxChatLen := m.cfg.MaxChatLen
	records := make([]Record, len(m.memory))
	copy(records, m.memory)
	chatRecords := chatHistoryAsRecords(m.chatHistory)
	m.mu.Unlock()

	mode := opts.Mode
	if mode == "" || mode == ModeAuto {
		if chatTok > maxChatLen {
			mode = ModeProcessed
		} else {
			mode = ModeSource
		}
	}

	var source []Record
	switch mode {
	case ModeProcessed:
		source = records
	default:
		source = chatRecords
	}

	if opts.Filter != nil {
		filtered := source[:0:0]
		for _, r := range source {
			if opts.Filter(r) {
				filtered = append(filtered, r)
			}
		}
		source = filtered
	}

	if opts.RecentN <= 0 || opts.RecentN >= len(source) {
		return source
	}

	var root *Record
	for i := range source {
		if source[i].IsRoot {
			root = &source[i]
			break
		}
	}
	if root == nil {
		return append([]Record{}, source[len(source)-opts.RecentN:]...)
	}
	tailN := opts.RecentN - 1
	tail := source[len(source)-tailN:]
	out := make([]Record, 0, opts.RecentN)
	out = append(out, *root)
	for _, r := range tail {
		if r.ID != root.ID {
			out = append(out, r)
		}
	}
	return out
}

func chatHistoryAsRecords(history []model.Message) []Record {
	out := make([]Record, 0, len(history))
	for i, msg := range history {
		out = append(out, Record{
			ID:             msg.ID(),
			Role:           msg.Role(),
			Name:           msg.Name(),
			Content:        msg.Content(),
			CreatedAt:      msg.CreatedAt(),
			LastModifiedAt: msg.CreatedAt(),
			IsRoot:         i == 0,
		})
	}
	return out
}

// Query is anything retrieve_from_vector_store can derive an embedding
// from: a plain string, a Message, a Record, or a raw embedding vector.
type Query struct {
	Text      string
	Message   *model.Message
	Record    *Record
	Embedding []float32
}

func QueryText(s string) Query             { return Query{Text: s} }
func QueryMessage(m model.Message) Query   { return Query{Message: &m} }
func QueryRecord(r Record) Query           { return Query{Record: &r} }
func QueryEmbedding(v []float32) Query     { return Query{Embedding: v} }

func (q Query) text() string {
	switch {
	case q.Message != nil:
		return q.Message.Content().AsText()
	case q.Record != nil:
		return q.Record.Content.AsText()
	default:
		return q.Text
	}
}

// RetrieveFromVectorStore derives an embedding for each query (truncating to
// the embedder's token cap if necessary), searches C2 with limit=topK,
// merges hits across queries by unique id, and returns them sorted by
// last_modified_at ascending.
func (m *Manager) RetrieveFromVectorStore(ctx context.Context, queries []Query, topK int) ([]Record, error) {
	if m.cfg.VectorStore == nil || m.cfg.Embedder == nil {
		return nil, fmt.Errorf("memory: vector store retrieval requires process_with_llm to be enabled")
	}
	maxTok := m.cfg.Embedder.MaxInputTokens()

	merged := map[string]Record{}
	for _, q := range queries {
		var vec []float32
		if q.Embedding != nil {
			vec = q.Embedding
		} else {
			text := truncateToTokens(q.text(), maxTok, m.cfg.Counter)
			vecs, err := m.cfg.Embedder.Embed(ctx, []string{text})
			if err != nil {
				m.cfg.Logger.Error(ctx, "embedding failed for retrieval query", telemetry.Field("error", err.Error()))
				continue
			}
			if len(vecs) == 0 {
				continue
			}
			vec = vecs[0]
		}
		hits, err := m.cfg.VectorStore.Search(ctx, vec, topK, nil)
		if err != nil {
			m.cfg.Logger.Error(ctx, "vector store search failed", telemetry.Field("error", err.Error()))
			continue
		}
		for _, h := range hits {
			merged[h.ID] = recordFromSearchHit(h.ID, h.Payload)
		}
	}

	out := make([]Record, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModifiedAt.Before(out[j].LastModifiedAt) })
	return out, nil
}

func recordFromSearchHit(id string, payload map[string]any) Record {
	r := Record{ID: id}
	if data, ok := payload["data"].(string); ok {
		r.Content = model.Text(data)
	}
	if role, ok := payload["role"].(string); ok {
		r.Role = model.Role(role)
	}
	if name, ok := payload["name"].(string); ok {
		r.Name = name
	}
	for key, dst := range map[string]*time.Time{"created_at": &r.CreatedAt, "last_modified_at": &r.LastModifiedAt} {
		switch v := payload[key].(type) {
		case time.Time:
			*dst = v
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				*dst = t
			}
		}
	}
	return r
}
