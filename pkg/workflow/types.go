package workflow

// AgentStatus represents the execution status of a workflow agent
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
)

// AgentNode is one sub-agent in a workflow plan. Nodes holds the ids of the
// agents that must complete before this one may start.
type AgentNode struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Task   string      `json:"task"`
	Nodes  []string    `json:"nodes,omitempty"`
	Status AgentStatus `json:"status,omitempty"`
}

// Plan is a decoded workflow payload
type Plan struct {
	Name    string      `json:"name,omitempty"`
	Thought string      `json:"thought,omitempty"`
	Agents  []AgentNode `json:"agents"`
	Answer  string      `json:"answer,omitempty"`
}

// StageKind distinguishes singleton stages from parallel groups
type StageKind string

const (
	StageSingle   StageKind = "single"
	StageParallel StageKind = "parallel"
)

// Stage is one step of a workflow's execution order. A single stage carries
// exactly one agent; a parallel stage carries agents runnable concurrently.
type Stage struct {
	Kind   StageKind   `json:"kind"`
	Agents []AgentNode `json:"agents"`
}

// Agent returns the sole agent of a single stage.
func (s Stage) Agent() AgentNode {
	return s.Agents[0]
}
