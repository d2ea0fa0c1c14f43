// Package stream folds the per-session event feed into a coherent in-progress
// assistant message and finalizes it on end-of-turn.
package stream

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/openbrowser-ai/opensession/pkg/event"
	"github.com/openbrowser-ai/opensession/pkg/message"
	"github.com/openbrowser-ai/opensession/pkg/workflow"
)

// Aggregator is a per-session state machine. It holds at most one in-progress
// assistant message at a time and is driven by a single ordered event source;
// Apply runs to completion without suspension, so callers never observe a
// half-applied transition.
type Aggregator struct {
	sessionID string
	current   *message.Message
	logger    zerolog.Logger
	now       func() int64
}

// Config holds aggregator configuration
type Config struct {
	SessionID string
	Logger    zerolog.Logger
	// Now overrides the message timestamp source; nil means wall clock.
	Now func() int64
}

// New creates an aggregator scoped to one session id.
func New(cfg Config) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Aggregator{
		sessionID: cfg.SessionID,
		logger:    cfg.Logger.With().Str("session_id", cfg.SessionID).Logger(),
		now:       now,
	}
}

// Current returns the in-progress assistant message, or nil.
func (a *Aggregator) Current() *message.Message {
	return a.current
}

// Apply consumes one decoded event. When the event finalizes the turn, the
// finished message is returned and the in-progress state is cleared; a stop
// with no current message is an idempotent no-op.
func (a *Aggregator) Apply(ev event.SessionEvent) *message.Message {
	switch e := ev.(type) {
	case event.StopEvent:
		return a.finalize()

	case event.TextEvent:
		// Intermediate deltas are display-only; only the settled chunk of a
		// logical text block becomes a durable item.
		if !e.StreamDone {
			return nil
		}
		a.appendItem(e.Session, message.Item{Type: message.ItemText, Text: e.Text})

	case event.ThinkingEvent:
		if !e.StreamDone {
			return nil
		}
		a.appendItem(e.Session, message.Item{Type: message.ItemThinking, Text: e.Text})

	case event.ToolUseEvent:
		a.appendItem(e.Session, message.Item{
			Type:      message.ItemTool,
			AgentName: e.AgentName,
			ToolID:    e.ToolID,
			ToolName:  e.ToolName,
			Params:    e.Params,
		})

	case event.ToolResultEvent:
		// The matching tool item is left untouched; pairing by ToolID is the
		// reader's job.
		a.appendItem(e.Session, message.Item{
			Type:       message.ItemToolResult,
			ToolID:     e.ToolID,
			ToolName:   e.ToolName,
			Params:     e.Params,
			ToolResult: e.Result,
		})

	case event.WorkflowEvent:
		plan, ok := workflow.DecodePlan(e.XML)
		if !ok {
			a.logger.Warn().Msg("Dropping undecodable workflow payload")
			return nil
		}
		a.ensure(e.Session).Workflow = plan

	case event.ResultEvent:
		a.ensure(e.Session).Result = &message.Result{Text: e.Text, Success: e.Success}

	case event.ErrorEvent:
		a.ensure(e.Session).Error = e.Text

	default:
		a.logger.Warn().Type("event", ev).Msg("Dropping unhandled event type")
	}

	return nil
}

// ensure returns the current message, creating one when the first event of a
// turn arrives. The event's session id wins over the aggregator's scope.
func (a *Aggregator) ensure(eventSession string) *message.Message {
	if a.current != nil {
		return a.current
	}
	sessionID := eventSession
	if sessionID == "" {
		sessionID = a.sessionID
	}
	msg := message.NewAssistantMessage(sessionID, a.now())
	a.current = &msg
	a.logger.Debug().Str("message_id", msg.ID).Msg("Assistant message opened")
	return a.current
}

func (a *Aggregator) appendItem(eventSession string, item message.Item) {
	msg := a.ensure(eventSession)
	msg.Items = append(msg.Items, item)
}

func (a *Aggregator) finalize() *message.Message {
	if a.current == nil {
		return nil
	}
	finished := a.current
	a.current = nil
	a.logger.Debug().
		Str("message_id", finished.ID).
		Int("items", len(finished.Items)).
		Msg("Assistant message finalized")
	return finished
}
