package workflow

import (
	"encoding/xml"
	"strings"

	"github.com/rs/zerolog/log"
)

type xmlAgent struct {
	ID    string   `xml:"id,attr"`
	Name  string   `xml:"name,attr"`
	Task  string   `xml:"task"`
	Nodes []string `xml:"node"`
}

type xmlWorkflow struct {
	Name    string     `xml:"name"`
	Thought string     `xml:"thought"`
	Answer  string     `xml:"answer"`
	Agents  []xmlAgent `xml:"agent"`
}

// DecodePlan parses a workflow XML payload into a Plan. Malformed XML yields
// (nil, false) rather than an error; the caller treats it as an absent plan.
func DecodePlan(payload string) (*Plan, bool) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, false
	}

	var doc xmlWorkflow
	if err := xml.Unmarshal([]byte(wrapDocument(trimmed)), &doc); err != nil {
		log.Warn().Err(err).Msg("Failed to parse workflow XML")
		return nil, false
	}

	plan := &Plan{
		Name:    strings.TrimSpace(doc.Name),
		Thought: strings.TrimSpace(doc.Thought),
		Answer:  strings.TrimSpace(doc.Answer),
	}

	for _, a := range doc.Agents {
		id := a.ID
		if id == "" {
			id = a.Name
		}
		nodes := make([]string, 0, len(a.Nodes))
		for _, n := range a.Nodes {
			if trimmedNode := strings.TrimSpace(n); trimmedNode != "" {
				nodes = append(nodes, trimmedNode)
			}
		}
		plan.Agents = append(plan.Agents, AgentNode{
			ID:     id,
			Name:   a.Name,
			Task:   strings.TrimSpace(a.Task),
			Nodes:  nodes,
			Status: AgentStatusPending,
		})
	}

	return plan, true
}

// wrapDocument ensures the payload has a single root element. Producers emit
// sibling top-level elements (<name>, <agent>, ...) without a wrapper.
func wrapDocument(payload string) string {
	if strings.HasPrefix(payload, "<workflow") {
		return payload
	}
	return "<workflow>" + payload + "</workflow>"
}
