package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrDecode wraps every decode failure so callers can drop the event without
// inspecting the cause.
var ErrDecode = errors.New("malformed event envelope")

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func envelopeSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(EnvelopeSchema))
	})
	return schema, schemaErr
}

// envelope mirrors the wire shape of a raw runtime event.
type envelope struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"sessionId"`
	MessageType string         `json:"messageType"`
	Text        string         `json:"text"`
	StreamDone  *bool          `json:"streamDone"`
	Workflow    string         `json:"workflow"`
	AgentName   string         `json:"agentName"`
	ToolID      string         `json:"toolId"`
	ToolName    string         `json:"toolName"`
	Params      map[string]any `json:"params"`
	ToolResult  any            `json:"toolResult"`
	Success     bool           `json:"success"`
}

// Decode validates one raw envelope and returns its typed session event.
// It never panics; anything that does not match a known shape comes back as
// an ErrDecode-wrapped error for the caller to drop and log.
func Decode(raw []byte) (SessionEvent, error) {
	s, err := envelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: schema: %v", ErrDecode, err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrDecode, strings.Join(details, "; "))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch env.Type {
	case "stop":
		return StopEvent{}, nil

	case "tool_result":
		if env.ToolID == "" || env.ToolName == "" {
			return nil, fmt.Errorf("%w: tool_result requires toolId and toolName", ErrDecode)
		}
		return ToolResultEvent{
			Session:  env.SessionID,
			ToolID:   env.ToolID,
			ToolName: env.ToolName,
			Params:   env.Params,
			Result:   env.ToolResult,
		}, nil

	case "message":
		return decodeMessage(env)
	}

	return nil, fmt.Errorf("%w: unknown type %q", ErrDecode, env.Type)
}

func decodeMessage(env envelope) (SessionEvent, error) {
	switch env.MessageType {
	case "text":
		return TextEvent{Session: env.SessionID, Text: env.Text, StreamDone: streamDone(env.StreamDone)}, nil

	case "thinking":
		return ThinkingEvent{Session: env.SessionID, Text: env.Text, StreamDone: streamDone(env.StreamDone)}, nil

	case "tool_use":
		if env.ToolName == "" {
			return nil, fmt.Errorf("%w: tool_use requires toolName", ErrDecode)
		}
		return ToolUseEvent{
			Session:   env.SessionID,
			AgentName: env.AgentName,
			ToolID:    env.ToolID,
			ToolName:  env.ToolName,
			Params:    env.Params,
		}, nil

	case "workflow":
		if env.Workflow == "" {
			return nil, fmt.Errorf("%w: workflow payload is empty", ErrDecode)
		}
		return WorkflowEvent{Session: env.SessionID, XML: env.Workflow}, nil

	case "result":
		return ResultEvent{Session: env.SessionID, Text: env.Text, Success: env.Success}, nil

	case "error":
		if env.Text == "" {
			return nil, fmt.Errorf("%w: error message requires text", ErrDecode)
		}
		return ErrorEvent{Session: env.SessionID, Text: env.Text}, nil
	}

	return nil, fmt.Errorf("%w: unknown messageType %q", ErrDecode, env.MessageType)
}

// streamDone treats an absent flag as settled; only an explicit false marks an
// intermediate delta.
func streamDone(v *bool) bool {
	return v == nil || *v
}
