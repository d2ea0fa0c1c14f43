package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agent(id string, preds ...string) AgentNode {
	return AgentNode{ID: id, Name: id, Task: "task " + id, Nodes: preds}
}

func TestPlanStages_Empty(t *testing.T) {
	stages, err := PlanStages(nil)
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestPlanStages_SingleAgent(t *testing.T) {
	stages, err := PlanStages([]AgentNode{agent("A")})
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, StageSingle, stages[0].Kind)
	assert.Equal(t, "A", stages[0].Agent().ID)
}

func TestPlanStages_ParallelRootsThenJoin(t *testing.T) {
	stages, err := PlanStages([]AgentNode{
		agent("A"),
		agent("B"),
		agent("C", "A", "B"),
	})
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.Equal(t, StageParallel, stages[0].Kind)
	require.Len(t, stages[0].Agents, 2)
	assert.Equal(t, "A", stages[0].Agents[0].ID)
	assert.Equal(t, "B", stages[0].Agents[1].ID)

	assert.Equal(t, StageSingle, stages[1].Kind)
	assert.Equal(t, "C", stages[1].Agent().ID)
}

func TestPlanStages_DifferingPredecessorSetsSplitWithinWave(t *testing.T) {
	// D and E become ready in the same wave but depend on different agents,
	// so they form two separate stages in original list order.
	stages, err := PlanStages([]AgentNode{
		agent("A"),
		agent("B"),
		agent("D", "A"),
		agent("E", "B"),
	})
	require.NoError(t, err)
	require.Len(t, stages, 3)

	assert.Equal(t, StageParallel, stages[0].Kind)
	assert.Equal(t, StageSingle, stages[1].Kind)
	assert.Equal(t, "D", stages[1].Agent().ID)
	assert.Equal(t, StageSingle, stages[2].Kind)
	assert.Equal(t, "E", stages[2].Agent().ID)
}

func TestPlanStages_IdenticalPredecessorSetsGroup(t *testing.T) {
	stages, err := PlanStages([]AgentNode{
		agent("A"),
		agent("B", "A"),
		agent("C", "A"),
		agent("D", "B", "C"),
	})
	require.NoError(t, err)
	require.Len(t, stages, 3)

	assert.Equal(t, StageSingle, stages[0].Kind)
	assert.Equal(t, StageParallel, stages[1].Kind)
	require.Len(t, stages[1].Agents, 2)
	assert.Equal(t, "B", stages[1].Agents[0].ID)
	assert.Equal(t, "C", stages[1].Agents[1].ID)
	assert.Equal(t, StageSingle, stages[2].Kind)
	assert.Equal(t, "D", stages[2].Agent().ID)
}

func TestPlanStages_PredecessorOrderDoesNotSplitGroups(t *testing.T) {
	stages, err := PlanStages([]AgentNode{
		agent("A"),
		agent("B"),
		agent("C", "A", "B"),
		agent("D", "B", "A"),
	})
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, StageParallel, stages[1].Kind)
	assert.Len(t, stages[1].Agents, 2)
}

func TestPlanStages_Cycle(t *testing.T) {
	stages, err := PlanStages([]AgentNode{
		agent("A", "B"),
		agent("B", "A"),
	})
	require.ErrorIs(t, err, ErrCycle)
	assert.Nil(t, stages)
}

func TestPlanStages_UnknownPredecessor(t *testing.T) {
	stages, err := PlanStages([]AgentNode{
		agent("A"),
		agent("B", "missing"),
	})
	require.ErrorIs(t, err, ErrCycle)
	assert.Nil(t, stages)
}

func TestPlanStages_Deterministic(t *testing.T) {
	input := []AgentNode{
		agent("A"),
		agent("B"),
		agent("C", "A"),
		agent("D", "A"),
		agent("E", "C", "D"),
	}

	first, err := PlanStages(input)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := PlanStages(input)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPlanStages_DoesNotMutateInput(t *testing.T) {
	input := []AgentNode{agent("A"), agent("B", "A")}
	_, err := PlanStages(input)
	require.NoError(t, err)
	assert.Equal(t, "A", input[0].ID)
	assert.Equal(t, []string{"A"}, input[1].Nodes)
}
