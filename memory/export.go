package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentscope-go/core/model"
)

const rfc3339nano = time.RFC3339Nano

func parseTime(s string) (time.Time, error) { return time.Parse(rfc3339nano, s) }

func roleOrDefault(s string) model.Role {
	r := model.Role(s)
	if r.Valid() {
		return r
	}
	return model.RoleUser
}

func textContent(s string) model.Content { return model.Text(s) }

// ExportType selects which store Export/Load targets.
type ExportType string

const (
	ExportSource    ExportType = "source"
	ExportProcessed ExportType = "processed"
)

type exportedRecord struct {
	ID             string `json:"id"`
	Role           string `json:"role"`
	Name           string `json:"name"`
	Text           string `json:"text"`
	CreatedAt      string `json:"created_at"`
	LastModifiedAt string `json:"last_modified_at"`
	IsRoot         bool   `json:"is_root"`
}

// Export serializes the chosen store to JSON bytes.
func (m *Manager) Export(typ ExportType) ([]byte, error) {
	var records []Record
	switch typ {
	case ExportSource:
		m.mu.Lock()
		records = chatHistoryAsRecords(m.chatHistory)
		m.mu.Unlock()
	case ExportProcessed:
		records = m.MemoryRecords()
	default:
		return nil, fmt.Errorf("memory: unknown export type %q", typ)
	}
	out := make([]exportedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, exportedRecord{
			ID:             r.ID,
			Role:           string(r.Role),
			Name:           r.Name,
			Text:           r.Content.AsText(),
			CreatedAt:      r.CreatedAt.Format(rfc3339nano),
			LastModifiedAt: r.LastModifiedAt.Format(rfc3339nano),
			IsRoot:         r.IsRoot,
		})
	}
	return json.Marshal(out)
}

// ExportToFile serializes the chosen store directly to a file.
func (m *Manager) ExportToFile(typ ExportType, path string) error {
	data, err := m.Export(typ)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load deserializes data produced by Export and either replaces or appends
// to the processed memory store, depending on overwrite.
func (m *Manager) Load(data []byte, overwrite bool) error {
	var in []exportedRecord
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("memory: decode export: %w", err)
	}
	records := make([]Record, 0, len(in))
	for _, r := range in {
		created, _ := parseTime(r.CreatedAt)
		modified, _ := parseTime(r.LastModifiedAt)
		records = append(records, Record{
			ID:             r.ID,
			Role:           roleOrDefault(r.Role),
			Name:           r.Name,
			Content:        textContent(r.Text),
			CreatedAt:      created,
			LastModifiedAt: modified,
			IsRoot:         r.IsRoot,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if overwrite {
		m.memory = records
	} else {
		m.memory = append(m.memory, records...)
	}
	tok := 0
	hasRoot := false
	for _, r := range m.memory {
		tok += m.cfg.Counter.Count(r.Content.AsText())
		if r.IsRoot {
			hasRoot = true
		}
	}
	m.memoryTok = tok
	m.hasRoot = hasRoot
	return nil
}
