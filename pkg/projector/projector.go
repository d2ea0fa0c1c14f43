// Package projector reconstructs a provider-neutral ordered conversation from
// a session's finalized message list, for use as model input on the next turn.
package projector

import (
	"github.com/openbrowser-ai/opensession/pkg/message"
)

// Role attributes one projected turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType tags one content block of a turn.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolCall   BlockType = "tool-call"
	BlockToolResult BlockType = "tool-result"
)

// ToolOutput is a tool result payload, either plain text or structured JSON.
type ToolOutput struct {
	Type  string `json:"type"` // "text" | "json"
	Value any    `json:"value"`
}

// ContentBlock is one unit of turn content.
type ContentBlock struct {
	Type       BlockType      `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     *ToolOutput    `json:"output,omitempty"`
}

// Turn is one role-attributed unit of projected conversation.
type Turn struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Project walks finalized messages in order and emits conversation turns. A
// user message becomes one user turn. An assistant message is split: leading
// text items become the assistant turn's text content (thinking is
// presentation-only and excluded), tool items become tool-call blocks in
// arrival order, and all tool-result items of the message form one tool turn
// immediately after. Text appearing after the first tool call is dropped. A
// message with no projectable content produces no turn.
func Project(messages []message.Message) []Turn {
	turns := []Turn{}

	for _, msg := range messages {
		switch msg.Role {
		case message.RoleUser:
			turns = append(turns, Turn{
				Role:    RoleUser,
				Content: []ContentBlock{{Type: BlockText, Text: msg.Text}},
			})

		case message.RoleAssistant:
			assistant, toolResults := projectAssistant(msg)
			if len(assistant) > 0 {
				turns = append(turns, Turn{Role: RoleAssistant, Content: assistant})
			}
			if len(toolResults) > 0 {
				turns = append(turns, Turn{Role: RoleTool, Content: toolResults})
			}
		}
	}

	return turns
}

func projectAssistant(msg message.Message) (assistant, toolResults []ContentBlock) {
	sawToolCall := false

	for _, item := range msg.Items {
		switch item.Type {
		case message.ItemText:
			if !sawToolCall && item.Text != "" {
				assistant = append(assistant, ContentBlock{Type: BlockText, Text: item.Text})
			}

		case message.ItemTool:
			// A tool item without an id never received its tool_use
			// confirmation and cannot be paired with a result.
			if item.ToolID == "" || item.ToolName == "" {
				continue
			}
			input := item.Params
			if input == nil {
				input = map[string]any{}
			}
			assistant = append(assistant, ContentBlock{
				Type:       BlockToolCall,
				ToolCallID: item.ToolID,
				ToolName:   item.ToolName,
				Input:      input,
			})
			sawToolCall = true

		case message.ItemToolResult:
			if item.ToolID == "" {
				continue
			}
			toolResults = append(toolResults, ContentBlock{
				Type:       BlockToolResult,
				ToolCallID: item.ToolID,
				ToolName:   item.ToolName,
				Output:     toolOutput(item.ToolResult),
			})
		}
	}

	return assistant, toolResults
}

func toolOutput(result any) *ToolOutput {
	if text, ok := result.(string); ok {
		return &ToolOutput{Type: "text", Value: text}
	}
	return &ToolOutput{Type: "json", Value: result}
}
