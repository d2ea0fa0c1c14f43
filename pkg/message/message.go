// Package message defines the durable conversation data model shared by the
// stream aggregator, the history store, and the context projector.
package message

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/openbrowser-ai/opensession/pkg/workflow"
)

// Role discriminates the two message kinds.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ItemType tags one unit of assistant output.
type ItemType string

const (
	ItemText       ItemType = "text"
	ItemThinking   ItemType = "thinking"
	ItemTool       ItemType = "tool"
	ItemToolResult ItemType = "tool-result"
	ItemFile       ItemType = "file"
)

// Item is one durable unit of output. Items is an append-only sequence; the
// arrival order is a correctness invariant and must never be rewritten.
type Item struct {
	Type       ItemType       `json:"type"`
	Text       string         `json:"text,omitempty"`
	AgentName  string         `json:"agentName,omitempty"`
	ToolID     string         `json:"toolId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	ToolResult any            `json:"result,omitempty"`
	Data       []byte         `json:"data,omitempty"`
	MimeType   string         `json:"mimeType,omitempty"`
}

// Result is the final outcome reported at the end of an assistant turn.
type Result struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
}

// Message is a single finalized (or in-progress) conversation entry. User
// messages carry Text only; assistant messages carry Workflow, Items, Result
// and Error. Timestamp is milliseconds since the Unix epoch.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"type"`
	SessionID string         `json:"sessionId"`
	Timestamp int64          `json:"timestamp"`
	Text      string         `json:"text,omitempty"`
	Workflow  *workflow.Plan `json:"workflow,omitempty"`
	Items     []Item         `json:"items,omitempty"`
	Result    *Result        `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewID mints a sortable message id: role prefix, millisecond timestamp and a
// random suffix so that timestamp collisions still order deterministically.
func NewID(role Role, now int64) string {
	suffix, err := gonanoid.New(8)
	if err != nil {
		// gonanoid only fails when the OS entropy source does
		suffix = fmt.Sprintf("%08x", now)
	}
	return fmt.Sprintf("%s-%d-%s", role, now, suffix)
}

// NewUserMessage creates a finalized user message stamped with the current time.
func NewUserMessage(sessionID, text string) Message {
	now := time.Now().UnixMilli()
	return Message{
		ID:        NewID(RoleUser, now),
		Role:      RoleUser,
		SessionID: sessionID,
		Timestamp: now,
		Text:      text,
	}
}

// NewAssistantMessage creates an empty in-progress assistant message.
func NewAssistantMessage(sessionID string, now int64) Message {
	return Message{
		ID:        NewID(RoleAssistant, now),
		Role:      RoleAssistant,
		SessionID: sessionID,
		Timestamp: now,
		Items:     []Item{},
	}
}

const maxTitleRunes = 50

// TruncateTitle derives a session title from free text, capped at 50 runes
// with an ellipsis.
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:maxTitleRunes]) + "…"
}
