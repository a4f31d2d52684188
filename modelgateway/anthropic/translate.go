package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/agentscope-go/core/model"
)

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var role sdk.MessageParamRole
		switch m.Role() {
		case model.RoleUser:
			role = sdk.MessageParamRoleUser
		case model.RoleAssistant:
			role = sdk.MessageParamRoleAssistant
		default:
			continue // system messages are passed via Request.System, not the turn
		}
		blocks, err := encodeBlocks(m.ContentBlocks())
		if err != nil {
			return nil, err
		}
		out = append(out, sdk.MessageParam{Role: role, Content: blocks})
	}
	return out, nil
}

func encodeBlocks(blocks []model.Block) ([]sdk.ContentBlockParamUnion, error) {
	out := make([]sdk.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case model.TextBlock:
			out = append(out, sdk.NewTextBlock(v.Text))
		case model.ToolUseBlock:
			var input any
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &input); err != nil {
					return nil, err
				}
			}
			out = append(out, sdk.NewToolUseBlock(v.ID, input, v.Name))
		case model.ToolResultBlock:
			out = append(out, sdk.NewToolResultBlock(v.ID, v.Output, v.IsErr))
		}
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) (model.Response, error) {
	var blocks []model.Block
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			blocks = append(blocks, model.TextBlock{Text: b.Text})
		case sdk.ThinkingBlock:
			blocks = append(blocks, model.ThinkingBlock{Text: b.Thinking})
		case sdk.ToolUseBlock:
			input, _ := json.Marshal(b.Input)
			blocks = append(blocks, model.ToolUseBlock{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	out, err := model.NewMessage("assistant", model.RoleAssistant, model.Blocks(blocks...))
	if err != nil {
		return model.Response{}, err
	}
	return model.Response{
		Message: out,
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
