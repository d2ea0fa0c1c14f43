package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Stop(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"stop"}`))
	require.NoError(t, err)
	assert.IsType(t, StopEvent{}, ev)
	assert.Empty(t, ev.SessionID())
}

func TestDecode_Text(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"hello","streamDone":true}`))
	require.NoError(t, err)

	text, ok := ev.(TextEvent)
	require.True(t, ok)
	assert.Equal(t, "s1", text.Session)
	assert.Equal(t, "hello", text.Text)
	assert.True(t, text.StreamDone)
}

func TestDecode_TextDeltaNotDone(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"hel","streamDone":false}`))
	require.NoError(t, err)
	assert.False(t, ev.(TextEvent).StreamDone)
}

func TestDecode_TextMissingStreamDoneMeansSettled(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","messageType":"text","sessionId":"s1","text":"done"}`))
	require.NoError(t, err)
	assert.True(t, ev.(TextEvent).StreamDone)
}

func TestDecode_Thinking(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","messageType":"thinking","sessionId":"s1","text":"hm","streamDone":true}`))
	require.NoError(t, err)
	assert.IsType(t, ThinkingEvent{}, ev)
}

func TestDecode_ToolUse(t *testing.T) {
	raw := `{"type":"message","messageType":"tool_use","sessionId":"s1","agentName":"browser","toolName":"click","toolId":"t1","params":{"selector":"#go"}}`
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)

	tool, ok := ev.(ToolUseEvent)
	require.True(t, ok)
	assert.Equal(t, "browser", tool.AgentName)
	assert.Equal(t, "click", tool.ToolName)
	assert.Equal(t, "t1", tool.ToolID)
	assert.Equal(t, "#go", tool.Params["selector"])
}

func TestDecode_ToolResult(t *testing.T) {
	raw := `{"type":"tool_result","sessionId":"s1","toolId":"t1","toolName":"click","toolResult":{"ok":true}}`
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)

	result, ok := ev.(ToolResultEvent)
	require.True(t, ok)
	assert.Equal(t, "t1", result.ToolID)
	assert.Equal(t, map[string]any{"ok": true}, result.Result)
}

func TestDecode_Workflow(t *testing.T) {
	raw := `{"type":"message","messageType":"workflow","sessionId":"s1","workflow":"<name>plan</name>"}`
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "<name>plan</name>", ev.(WorkflowEvent).XML)
}

func TestDecode_Result(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","messageType":"result","sessionId":"s1","text":"done","success":true}`))
	require.NoError(t, err)

	result := ev.(ResultEvent)
	assert.Equal(t, "done", result.Text)
	assert.True(t, result.Success)
}

func TestDecode_Error(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","messageType":"error","sessionId":"s1","text":"boom"}`))
	require.NoError(t, err)
	assert.Equal(t, "boom", ev.(ErrorEvent).Text)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"sessionId":"s1"}`},
		{"unknown type", `{"type":"nope"}`},
		{"unknown messageType", `{"type":"message","messageType":"nope"}`},
		{"tool_result without toolId", `{"type":"tool_result","toolName":"click"}`},
		{"tool_use without toolName", `{"type":"message","messageType":"tool_use","sessionId":"s1"}`},
		{"workflow without payload", `{"type":"message","messageType":"workflow","sessionId":"s1"}`},
		{"error without text", `{"type":"message","messageType":"error","sessionId":"s1"}`},
		{"wrong field type", `{"type":"message","messageType":"text","text":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			require.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, ev)
		})
	}
}
