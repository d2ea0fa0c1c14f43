// Package event decodes raw runtime envelopes into typed session events. The
// codec is the trust boundary: everything downstream only ever sees validated
// variants.
package event

// SessionEvent is a closed union of decoded runtime events. Exactly the types
// in this package implement it.
type SessionEvent interface {
	sessionEvent()
	// SessionID returns the session the event belongs to; empty for events
	// that are scoped by the receiving aggregator (stop).
	SessionID() string
}

// StopEvent signals end of turn. It is the only cancellation signal and may be
// delivered more than once.
type StopEvent struct{}

// TextEvent is a streamed text block. StreamDone=false marks an intermediate
// delta that must not become a durable item.
type TextEvent struct {
	Session    string
	Text       string
	StreamDone bool
}

// ThinkingEvent mirrors TextEvent for model reasoning output.
type ThinkingEvent struct {
	Session    string
	Text       string
	StreamDone bool
}

// ToolUseEvent records a tool invocation announced by an agent.
type ToolUseEvent struct {
	Session   string
	AgentName string
	ToolID    string
	ToolName  string
	Params    map[string]any
}

// ToolResultEvent carries the output of a completed tool call.
type ToolResultEvent struct {
	Session  string
	ToolID   string
	ToolName string
	Params   map[string]any
	Result   any
}

// WorkflowEvent carries an undecoded workflow XML payload.
type WorkflowEvent struct {
	Session string
	XML     string
}

// ResultEvent is the final outcome of an assistant turn.
type ResultEvent struct {
	Session string
	Text    string
	Success bool
}

// ErrorEvent reports a turn-level failure.
type ErrorEvent struct {
	Session string
	Text    string
}

func (StopEvent) sessionEvent()       {}
func (TextEvent) sessionEvent()       {}
func (ThinkingEvent) sessionEvent()   {}
func (ToolUseEvent) sessionEvent()    {}
func (ToolResultEvent) sessionEvent() {}
func (WorkflowEvent) sessionEvent()   {}
func (ResultEvent) sessionEvent()     {}
func (ErrorEvent) sessionEvent()      {}

func (StopEvent) SessionID() string         { return "" }
func (e TextEvent) SessionID() string       { return e.Session }
func (e ThinkingEvent) SessionID() string   { return e.Session }
func (e ToolUseEvent) SessionID() string    { return e.Session }
func (e ToolResultEvent) SessionID() string { return e.Session }
func (e WorkflowEvent) SessionID() string   { return e.Session }
func (e ResultEvent) SessionID() string     { return e.Session }
func (e ErrorEvent) SessionID() string      { return e.Session }
