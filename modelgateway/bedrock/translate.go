package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentscope-go/core/model"
)

func encodeMessages(msgs []model.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		var role types.ConversationRole
		switch m.Role() {
		case model.RoleUser:
			role = types.ConversationRoleUser
		case model.RoleAssistant:
			role = types.ConversationRoleAssistant
		default:
			continue
		}
		var blocks []types.ContentBlock
		for _, b := range m.ContentBlocks() {
			if tb, ok := b.(model.TextBlock); ok {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: tb.Text})
			}
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out, nil
}

func translateResponse(out *bedrockruntime.ConverseOutput) (model.Response, error) {
	msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return model.Response{}, nil
	}
	var blocks []model.Block
	for _, block := range msgOut.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			blocks = append(blocks, model.TextBlock{Text: tb.Value})
		}
	}
	message, err := model.NewMessage("assistant", model.RoleAssistant, model.Blocks(blocks...))
	if err != nil {
		return model.Response{}, err
	}
	resp := model.Response{Message: message}
	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			resp.Usage.InputTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			resp.Usage.OutputTokens = int(*out.Usage.OutputTokens)
		}
	}
	return resp, nil
}
