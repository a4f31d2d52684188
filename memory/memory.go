// Package memory is the two-tier memory manager (C7): every incoming
// Message is appended verbatim to chat_history, and optionally distilled by
// an LLM into MemoryRecords held in a vector store (C2). The design mirrors
// agents/runtime/memory's Store/Snapshot contract (immutable snapshots,
// thread-safe appends) but replaces its flat event log with the richer
// add/retrieve/summarize protocol of the original Python memory manager.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentscope-go/core/model"
	"github.com/agentscope-go/core/splitter"
	"github.com/agentscope-go/core/telemetry"
	"github.com/agentscope-go/core/vectorstore"
)

// Record is a vector-store-backed entry derived from a Message (§3).
type Record struct {
	ID             string
	Role           model.Role
	Name           string
	Content        model.Content
	CreatedAt      time.Time
	LastModifiedAt time.Time
	// IsRoot marks the very first record ever appended to this manager's
	// memory store. recent_n truncation always keeps this record regardless
	// of where summarization or updates have since moved it in the ordered
	// list (Open Question, decided in DESIGN.md: track this flag explicitly
	// rather than assuming index 0).
	IsRoot bool
}

// Config tunes the manager's thresholds and dependencies.
type Config struct {
	Embedder   model.Embedder
	ChatModel  model.Client
	VectorStore vectorstore.Store
	Splitter   *splitter.Splitter
	Counter    model.TokenCounter
	Logger     telemetry.Logger

	// ProcessWithLLM disables the concerned-message extraction/update-memory
	// pipeline when false: messages are appended to memory as-is.
	ProcessWithLLM bool
	// GlobalUpdateAllowed permits the update-memory prompt to UPDATE the
	// most recently retrieved record instead of only ADDing.
	GlobalUpdateAllowed bool

	MaxChatLen           int
	MaxMemoryLen         int
	MaxToolResultTokens  int
	ChunkSizeTokens      int
	MaxChatModelTokens   int
	CompressedRatio      float64
	UpdateMemoryPrompt   string
}

func (c *Config) setDefaults() {
	if c.Counter == nil {
		c.Counter = model.ApproxTokenCounter
	}
	if c.Logger == nil {
		c.Logger = telemetry.NopLogger{}
	}
	if c.MaxChatLen <= 0 {
		c.MaxChatLen = 32000
	}
	if c.MaxMemoryLen <= 0 {
		c.MaxMemoryLen = 16000
	}
	if c.MaxToolResultTokens <= 0 {
		c.MaxToolResultTokens = 2000
	}
	if c.ChunkSizeTokens <= 0 {
		c.ChunkSizeTokens = 7000
	}
	if c.MaxChatModelTokens <= 0 {
		c.MaxChatModelTokens = 7000
	}
	if c.CompressedRatio <= 0 {
		c.CompressedRatio = 0.5
	}
}

// Manager implements the two-tier memory protocol for a single agent.
type Manager struct {
	mu sync.Mutex

	cfg Config

	chatHistory     []model.Message
	chatHistoryTok  int
	memory          []Record
	memoryTok       int
	hasRoot         bool

	// pendingToolUse buffers a tool_use-only message until its matching
	// tool_result arrives in a later message (§4.2 step 3).
	pendingToolUse map[string]pendingUse
}

type pendingUse struct {
	msg    model.Message
	blocks []model.Block
}

// New builds a Manager. cfg.VectorStore and cfg.ChatModel are required only
// when cfg.ProcessWithLLM is true.
func New(cfg Config) (*Manager, error) {
	cfg.setDefaults()
	if cfg.ProcessWithLLM {
		if cfg.VectorStore == nil {
			return nil, errors.New("memory: vector store is required when process_with_llm is enabled")
		}
		if cfg.Embedder == nil {
			return nil, errors.New("memory: embedder is required when process_with_llm is enabled")
		}
		if cfg.ChatModel == nil {
			return nil, errors.New("memory: chat model is required when process_with_llm is enabled")
		}
	}
	if cfg.Splitter == nil {
		cfg.Splitter = splitter.New(cfg.MaxChatModelTokens, cfg.MaxChatModelTokens/10)
	}
	return &Manager{cfg: cfg, pendingToolUse: map[string]pendingUse{}}, nil
}

// ChatHistoryTokens reports the running token estimate of chat_history.
func (m *Manager) ChatHistoryTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatHistoryTok
}

// MemoryTokens reports the running token estimate of the processed memory.
func (m *Manager) MemoryTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memoryTok
}

// ChatHistory returns a copy of every message ever added, in order (property
// 4: chat_history is never touched by summarization).
func (m *Manager) ChatHistory() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, len(m.chatHistory))
	copy(out, m.chatHistory)
	return out
}

// MemoryRecords returns a copy of the processed memory, ordered by
// last_modified_at ascending (property 3).
func (m *Manager) MemoryRecords() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.memory))
	copy(out, m.memory)
	return out
}

func newRecordID() string { return uuid.NewString() }
