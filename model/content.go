// Package model defines the shared content/message data model (§3) and the
// chat/embedding gateway interfaces (C3) that the memory manager, the
// evaluation driver's solution trajectories, and the RPC layer all build on.
// The content model is a tagged union adapted from runtime/agent/model's
// Part hierarchy, narrowed to the block types this spec names.
package model

import "encoding/json"

// BlockType discriminates the tagged union of content blocks.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
	BlockAudio      BlockType = "audio"
	BlockVideo      BlockType = "video"
	BlockSourceFile BlockType = "source_file"
)

// Block is the marker interface implemented by every content block variant.
// Centralising the Type() accessor here keeps callers from re-deriving the
// discriminator with a type switch at every call site.
type Block interface {
	Type() BlockType
}

// TextBlock is plain text content, used both for ordinary messages and for
// the free-form text an agent prints.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) Type() BlockType { return BlockText }

// ThinkingBlock carries a model's chain-of-thought content.
type ThinkingBlock struct {
	Text string `json:"text"`
}

func (ThinkingBlock) Type() BlockType { return BlockThinking }

// ToolUseBlock is an invocation of a tool by name with JSON input.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) Type() BlockType { return BlockToolUse }

// ToolResultBlock is the result of a prior ToolUseBlock; ID MUST match the
// id of a tool_use block earlier in the same turn.
type ToolResultBlock struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Output string `json:"output"`
	IsErr  bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) Type() BlockType { return BlockToolResult }

// MediaSource is either inline base64 data or a remote/local URL.
type MediaSource struct {
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func (s MediaSource) IsURL() bool { return s.URL != "" }

// ImageBlock, AudioBlock, and VideoBlock wrap a MediaSource under their own
// discriminator.
type (
	ImageBlock struct {
		Source MediaSource `json:"source"`
	}
	AudioBlock struct {
		Source MediaSource `json:"source"`
	}
	VideoBlock struct {
		Source MediaSource `json:"source"`
	}
)

func (ImageBlock) Type() BlockType { return BlockImage }
func (AudioBlock) Type() BlockType { return BlockAudio }
func (VideoBlock) Type() BlockType { return BlockVideo }

// SourceFileBlock references files a long-context processing pass offloaded
// original content to (§4.2 step 4).
type SourceFileBlock struct {
	Paths []string `json:"paths"`
}

func (SourceFileBlock) Type() BlockType { return BlockSourceFile }

// Content is the sum type `Text(string) | Blocks([]Block)` from §9: a
// message's content is either a plain string or an ordered block sequence,
// never both, and every helper that accepts either form funnels through
// this type instead of re-handling the distinction at call sites.
type Content struct {
	text   string
	blocks []Block
	isText bool
}

// Text wraps a plain string as Content.
func Text(s string) Content { return Content{text: s, isText: true} }

// Blocks wraps an ordered block sequence as Content.
func Blocks(blocks ...Block) Content { return Content{blocks: blocks} }

// IsText reports whether this Content is the plain-string variant.
func (c Content) IsText() bool { return c.isText }

// AsText returns the plain string, or its block-rendered form if this
// Content is a block sequence (concatenating every TextBlock/ThinkingBlock).
func (c Content) AsText() string {
	if c.isText {
		return c.text
	}
	out := ""
	for _, b := range c.blocks {
		switch v := b.(type) {
		case TextBlock:
			out += v.Text
		case ThinkingBlock:
			out += v.Text
		}
	}
	return out
}

// AsBlocks returns the block sequence, wrapping a plain string as a single
// TextBlock if this Content is the text variant.
func (c Content) AsBlocks() []Block {
	if !c.isText {
		return c.blocks
	}
	if c.text == "" {
		return nil
	}
	return []Block{TextBlock{Text: c.text}}
}

// Len reports the number of blocks (1 for text content, unless empty).
func (c Content) Len() int { return len(c.AsBlocks()) }
