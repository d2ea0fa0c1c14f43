package projector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbrowser-ai/opensession/pkg/message"
)

func projectedFixture() []Turn {
	return Project([]message.Message{
		userMsg("open the store page"),
		assistantMsg(
			message.Item{Type: message.ItemText, Text: "navigating"},
			message.Item{Type: message.ItemTool, ToolID: "t1", ToolName: "navigate", Params: map[string]any{"url": "https://example.com"}},
			message.Item{Type: message.ItemToolResult, ToolID: "t1", ToolName: "navigate", ToolResult: map[string]any{"status": "ok"}},
		),
		assistantMsg(message.Item{Type: message.ItemText, Text: "the page is open"}),
	})
}

func TestToAnthropic(t *testing.T) {
	params, err := ToAnthropic(projectedFixture())
	require.NoError(t, err)

	// user, assistant with tool call, tool results as user, final assistant
	require.Len(t, params, 4)
	assert.Equal(t, "user", string(params[0].Role))
	assert.Equal(t, "assistant", string(params[1].Role))
	assert.Len(t, params[1].Content, 2)
	assert.Equal(t, "user", string(params[2].Role), "tool results ride in a user message")
	assert.Equal(t, "assistant", string(params[3].Role))
}

func TestToAnthropic_Empty(t *testing.T) {
	params, err := ToAnthropic(nil)
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestToAnthropic_SkipsEmptyTurns(t *testing.T) {
	params, err := ToAnthropic([]Turn{{Role: RoleTool, Content: []ContentBlock{}}})
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestToOpenAI(t *testing.T) {
	msgs, err := ToOpenAI(projectedFixture())
	require.NoError(t, err)

	// user, assistant with tool calls, one tool message, final assistant
	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfUser)
	require.NotNil(t, msgs[1].OfAssistant)
	assert.Len(t, msgs[1].OfAssistant.ToolCalls, 1)
	require.NotNil(t, msgs[2].OfTool)
	assert.Equal(t, "t1", msgs[2].OfTool.ToolCallID)
	assert.NotNil(t, msgs[3].OfAssistant)
}

func TestToOpenAI_EachResultOwnMessage(t *testing.T) {
	turns := []Turn{{
		Role: RoleTool,
		Content: []ContentBlock{
			{Type: BlockToolResult, ToolCallID: "t1", Output: &ToolOutput{Type: "text", Value: "a"}},
			{Type: BlockToolResult, ToolCallID: "t2", Output: &ToolOutput{Type: "text", Value: "b"}},
		},
	}}

	msgs, err := ToOpenAI(turns)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "t1", msgs[0].OfTool.ToolCallID)
	assert.Equal(t, "t2", msgs[1].OfTool.ToolCallID)
}
