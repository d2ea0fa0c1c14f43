package projector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// ToOpenAI converts projected turns into OpenAI chat completion parameters.
// Each tool-result block becomes its own tool message, the shape the Chat
// Completions API requires.
func ToOpenAI(turns []Turn) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			text := joinText(turn.Content)
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}

		case RoleAssistant:
			toolCalls := []openai.ChatCompletionMessageToolCall{}
			for _, block := range turn.Content {
				if block.Type != BlockToolCall {
					continue
				}
				args, err := json.Marshal(block.Input)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool input %s: %w", block.ToolCallID, err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   block.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      block.ToolName,
						Arguments: string(args),
					},
				})
			}

			text := joinText(turn.Content)
			if len(toolCalls) > 0 {
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   text,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else if text != "" {
				messages = append(messages, openai.AssistantMessage(text))
			}

		case RoleTool:
			for _, block := range turn.Content {
				if block.Type != BlockToolResult || block.Output == nil {
					continue
				}
				content, err := outputText(block.Output)
				if err != nil {
					return nil, fmt.Errorf("failed to encode tool result %s: %w", block.ToolCallID, err)
				}
				messages = append(messages, openai.ToolMessage(content, block.ToolCallID))
			}
		}
	}

	return messages, nil
}

func joinText(blocks []ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
