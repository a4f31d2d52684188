// Package anthropic implements model.Client on top of the Anthropic Claude
// Messages API, adapted from features/model/anthropic/client.go: the same
// MessagesClient seam (so tests can substitute a fake), the same
// rate-limit-to-model.ErrRateLimited translation, narrowed to this spec's
// Message/Content model instead of goa-ai's richer planner types.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentscope-go/core/model"
)

// MessagesClient captures the subset of the Anthropic SDK used here so
// tests can substitute a fake instead of a live API client.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter's defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements model.Client.
type Client struct {
	msg   MessagesClient
	model string
	opts  Options
}

// New builds a Client from an explicit MessagesClient (real or fake).
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{msg: msg, model: opts.Model, opts: opts}, nil
}

// NewFromAPIKey constructs a Client authenticated with the given apiKey,
// which must be non-empty.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: defaultModel, MaxTokens: 4096})
}

func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return model.Response{}, err
	}
	resp, err := c.msg.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return model.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(resp)
}

func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(req model.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: messages are required")
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	if maxTokens <= 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.opts.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	return params, nil
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
