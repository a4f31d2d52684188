package model

import (
	"encoding/json"
	"fmt"
)

// taggedBlock is the wire shape of a Block: its own fields flattened
// alongside a "type" discriminator, matching the tagged-union encoding the
// original content blocks use on the wire.
type taggedBlock struct {
	Type BlockType `json:"type"`
}

// MarshalBlock encodes a Block as {"type": ..., <block fields>}.
func MarshalBlock(b Block) ([]byte, error) {
	fields, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, err
	}
	typeRaw, err := json.Marshal(b.Type())
	if err != nil {
		return nil, err
	}
	m["type"] = typeRaw
	return json.Marshal(m)
}

// UnmarshalBlock decodes a tagged block produced by MarshalBlock back into
// its concrete Block type.
func UnmarshalBlock(data []byte) (Block, error) {
	var tag taggedBlock
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case BlockText:
		var v TextBlock
		return v, json.Unmarshal(data, &v)
	case BlockThinking:
		var v ThinkingBlock
		return v, json.Unmarshal(data, &v)
	case BlockToolUse:
		var v ToolUseBlock
		return v, json.Unmarshal(data, &v)
	case BlockToolResult:
		var v ToolResultBlock
		return v, json.Unmarshal(data, &v)
	case BlockImage:
		var v ImageBlock
		return v, json.Unmarshal(data, &v)
	case BlockAudio:
		var v AudioBlock
		return v, json.Unmarshal(data, &v)
	case BlockVideo:
		var v VideoBlock
		return v, json.Unmarshal(data, &v)
	case BlockSourceFile:
		var v SourceFileBlock
		return v, json.Unmarshal(data, &v)
	default:
		return nil, fmt.Errorf("model: unknown block type %q", tag.Type)
	}
}
