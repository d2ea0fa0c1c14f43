package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle indicates the dependency set can never be satisfied, either because
// of a cycle or because an agent references an unknown predecessor id.
var ErrCycle = errors.New("unsatisfiable agent dependencies")

// PlanStages linearizes a flat set of agents into execution stages. Agents are
// placed in waves: a wave contains every not-yet-placed agent whose full
// predecessor set was placed in strictly earlier waves. Within a wave, agents
// sharing an identical predecessor set form one parallel stage; groups are
// emitted in original list order. A pure function over its input.
func PlanStages(agents []AgentNode) ([]Stage, error) {
	if len(agents) == 0 {
		return []Stage{}, nil
	}

	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.ID] = true
	}

	placed := make(map[string]bool, len(agents))
	var stages []Stage
	remaining := len(agents)

	for remaining > 0 {
		// Collect the current wave: every unplaced agent whose predecessors
		// are all already placed.
		type group struct {
			key     string
			members []AgentNode
		}
		var order []string
		groups := make(map[string]*group)

		for _, a := range agents {
			if placed[a.ID] {
				continue
			}
			ready := true
			for _, dep := range a.Nodes {
				if !known[dep] || !placed[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			key := predecessorKey(a.Nodes)
			g, ok := groups[key]
			if !ok {
				g = &group{key: key}
				groups[key] = g
				order = append(order, key)
			}
			g.members = append(g.members, a)
		}

		if len(order) == 0 {
			return nil, fmt.Errorf("%w: %d agent(s) cannot be scheduled", ErrCycle, remaining)
		}

		for _, key := range order {
			g := groups[key]
			kind := StageParallel
			if len(g.members) == 1 {
				kind = StageSingle
			}
			stages = append(stages, Stage{Kind: kind, Agents: g.members})
			for _, a := range g.members {
				placed[a.ID] = true
				remaining--
			}
		}
	}

	return stages, nil
}

// predecessorKey canonicalizes a predecessor id set for grouping.
func predecessorKey(nodes []string) string {
	if len(nodes) == 0 {
		return ""
	}
	sorted := make([]string, len(nodes))
	copy(sorted, nodes)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
