package projector

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// ToAnthropic converts projected turns into Anthropic message parameters.
// Tool turns become user messages carrying tool_result blocks, the shape the
// Messages API requires.
func ToAnthropic(turns []Turn) ([]anthropic.MessageParam, error) {
	params := []anthropic.MessageParam{}

	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, block := range turn.Content {
				if block.Type == BlockText {
					blocks = append(blocks, anthropic.NewTextBlock(block.Text))
				}
			}
			if len(blocks) > 0 {
				params = append(params, anthropic.NewUserMessage(blocks...))
			}

		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, block := range turn.Content {
				switch block.Type {
				case BlockText:
					blocks = append(blocks, anthropic.NewTextBlock(block.Text))
				case BlockToolCall:
					blocks = append(blocks, anthropic.NewToolUseBlock(block.ToolCallID, block.Input, block.ToolName))
				}
			}
			if len(blocks) > 0 {
				params = append(params, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}

		case RoleTool:
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, block := range turn.Content {
				if block.Type != BlockToolResult || block.Output == nil {
					continue
				}
				content, err := outputText(block.Output)
				if err != nil {
					return nil, fmt.Errorf("failed to encode tool result %s: %w", block.ToolCallID, err)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolCallID, content, false))
			}
			if len(blocks) > 0 {
				params = append(params, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	return params, nil
}

func outputText(output *ToolOutput) (string, error) {
	if output.Type == "text" {
		if s, ok := output.Value.(string); ok {
			return s, nil
		}
	}
	encoded, err := json.Marshal(output.Value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
