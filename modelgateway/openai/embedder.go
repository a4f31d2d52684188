// Package openai implements model.Embedder on top of the OpenAI embeddings
// API, used as C3's default embedding provider.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentscope-go/core/model"
)

// EmbeddingsClient captures the subset of the OpenAI SDK used here.
type EmbeddingsClient interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// Embedder implements model.Embedder.
type Embedder struct {
	client    EmbeddingsClient
	model     string
	dimension int
	maxTokens int
}

// Options configures Embedder.
type Options struct {
	Model          string
	Dimension      int
	MaxInputTokens int
}

// New builds an Embedder from an explicit client (real or fake).
func New(client EmbeddingsClient, opts Options) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("openai: embeddings client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	return &Embedder{client: client, model: opts.Model, dimension: opts.Dimension, maxTokens: opts.MaxInputTokens}, nil
}

// NewFromAPIKey constructs an Embedder authenticated with the given apiKey,
// which must be non-empty.
func NewFromAPIKey(apiKey, modelName string, dimension int) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Embeddings, Options{Model: modelName, Dimension: dimension, MaxInputTokens: 8191})
}

func (e *Embedder) Dimension() int       { return e.dimension }
func (e *Embedder) MaxInputTokens() int  { return e.maxTokens }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings.new: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}
