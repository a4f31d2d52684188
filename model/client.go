package model

import (
	"context"
	"errors"
)

// ErrStreamingUnsupported is returned by Client.Stream when the underlying
// provider has no incremental-output mode.
var ErrStreamingUnsupported = errors.New("model: streaming unsupported by this client")

// ErrRateLimited is a sentinel a Client implementation can wrap so callers
// (and retry.IsRetryable-style checks) can recognize a provider rate limit.
var ErrRateLimited = errors.New("model: rate limited")

// Request is a chat completion request: an ordered message turn plus
// optional generation controls.
type Request struct {
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
	Tools       []ToolDefinition
}

// ToolDefinition describes a callable tool a chat model may invoke via a
// ToolUseBlock.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema any
}

// TokenUsage reports provider-side token accounting for a single call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a whole (non-streamed) chat completion.
type Response struct {
	Message Message
	Usage   TokenUsage
}

// Chunk is one incremental piece of a streamed completion.
type Chunk struct {
	Delta Block
	Done  bool
	Usage TokenUsage
}

// Streamer yields Chunks for an in-flight streamed completion.
type Streamer interface {
	Recv(ctx context.Context) (Chunk, error)
	Close() error
}

// Client is the chat-model half of C3: produce chat completions, whole or
// streamed.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (Streamer, error)
}

// Embedder is the embedding half of C3: produce vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the embedding width this Embedder produces.
	Dimension() int
	// MaxInputTokens caps how much text a single embedding call accepts;
	// callers (notably the memory manager's query derivation) truncate to
	// this before calling Embed.
	MaxInputTokens() int
}

// TokenCounter estimates a token count for a string; the memory manager and
// text splitter are built against this rather than any one tokenizer so the
// spec's "estimate, not exact count" accounting (§9) holds for any
// provider's tokenizer.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a plain function to TokenCounter.
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int { return f(text) }

// ApproxTokenCounter estimates tokens at roughly 4 bytes/token, a
// provider-agnostic fallback used when no real tokenizer is wired.
var ApproxTokenCounter TokenCounter = TokenCounterFunc(func(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
})
