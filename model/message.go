package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is the speaker of a Message; exactly one of the three values below.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is immutable once built: content is never mutated after
// NewMessage returns. Content that needs revision is expressed by a new
// Message.
type Message struct {
	id            string
	name          string
	role          Role
	content       Content
	meta          map[string]any
	createdAt     time.Time
	correlationID string
}

// ErrInvalidRole is returned by NewMessage when role is not one of the three
// allowed values.
var ErrInvalidRole = errors.New("model: invalid role")

// ErrDanglingToolResult is returned by ValidateTurn when a tool_result
// block's id does not match any preceding tool_use block's id within the
// same turn (a turn may span several Messages — see memory's buffering
// protocol, which pairs a tool_use in one Message with a tool_result in a
// later one).
var ErrDanglingToolResult = errors.New("model: tool_result references no preceding tool_use in this turn")

// NewMessage builds an immutable Message, validating role is one of the
// three allowed values. Tool-use/tool-result pairing is a turn-level (not
// single-message) invariant; check it with ValidateTurn.
func NewMessage(name string, role Role, content Content, opts ...MessageOption) (Message, error) {
	if !role.Valid() {
		return Message{}, ErrInvalidRole
	}
	m := Message{
		id:        uuid.NewString(),
		name:      name,
		role:      role,
		content:   content,
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m, nil
}

// ValidateTurn checks the §3 invariant that every tool_result id matches a
// preceding tool_use id somewhere earlier in the same turn, where a turn is
// the ordered slice of Messages passed in.
func ValidateTurn(turn []Message) error {
	seen := map[string]bool{}
	for _, m := range turn {
		for _, b := range m.ContentBlocks() {
			switch v := b.(type) {
			case ToolUseBlock:
				seen[v.ID] = true
			case ToolResultBlock:
				if !seen[v.ID] {
					return ErrDanglingToolResult
				}
			}
		}
	}
	return nil
}

// MessageOption mutates an in-construction Message; applied only inside
// NewMessage, never after.
type MessageOption func(*Message)

func WithID(id string) MessageOption             { return func(m *Message) { m.id = id } }
func WithMeta(meta map[string]any) MessageOption { return func(m *Message) { m.meta = meta } }
func WithCorrelationID(id string) MessageOption  { return func(m *Message) { m.correlationID = id } }
func WithCreatedAt(t time.Time) MessageOption    { return func(m *Message) { m.createdAt = t } }

func (m Message) ID() string             { return m.id }
func (m Message) Name() string           { return m.name }
func (m Message) Role() Role             { return m.role }
func (m Message) Content() Content       { return m.content }
func (m Message) Meta() map[string]any   { return m.meta }
func (m Message) CreatedAt() time.Time   { return m.createdAt }
func (m Message) CorrelationID() string  { return m.correlationID }

// ContentBlocks returns the message's blocks, rendering plain-string content
// as a single TextBlock — the centralised helper §9 requires.
func (m Message) ContentBlocks() []Block { return m.content.AsBlocks() }

// ToolUseIDs returns the ids of every tool_use block in the message, in
// order.
func (m Message) ToolUseIDs() []string {
	var ids []string
	for _, b := range m.ContentBlocks() {
		if tu, ok := b.(ToolUseBlock); ok {
			ids = append(ids, tu.ID)
		}
	}
	return ids
}

// ToolResultIDs returns the ids referenced by every tool_result block in the
// message, in order.
func (m Message) ToolResultIDs() []string {
	var ids []string
	for _, b := range m.ContentBlocks() {
		if tr, ok := b.(ToolResultBlock); ok {
			ids = append(ids, tr.ID)
		}
	}
	return ids
}
