// Package bedrock implements model.Client against AWS Bedrock's Converse
// API, wiring the aws-sdk-go-v2 bedrockruntime client as a second chat-model
// provider alongside anthropic (openai supplies embeddings only), so the embedding/chat-model
// gateway (C3) is not hard-coded to a single vendor.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/agentscope-go/core/model"
)

// ConverseClient captures the subset of the Bedrock runtime SDK used here.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements model.Client against a Bedrock model id (e.g.
// "anthropic.claude-3-sonnet-20240229-v1:0").
type Client struct {
	rt      ConverseClient
	modelID string
}

// New builds a Client from an explicit ConverseClient (real or fake).
func New(rt ConverseClient, modelID string) (*Client, error) {
	if rt == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if modelID == "" {
		return nil, errors.New("bedrock: model id is required")
	}
	return &Client{rt: rt, modelID: modelID}, nil
}

func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return model.Response{}, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  &c.modelID,
		Messages: messages,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &types.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			mt := int32(req.MaxTokens)
			cfg.MaxTokens = &mt
		}
		if req.Temperature > 0 {
			temp := float32(req.Temperature)
			cfg.Temperature = &temp
		}
		input.InferenceConfig = cfg
	}
	out, err := c.rt.Converse(ctx, input)
	if err != nil {
		if isThrottled(err) {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return model.Response{}, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translateResponse(out)
}

func (c *Client) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ThrottlingException"
	}
	return false
}
