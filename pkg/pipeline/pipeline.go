// Package pipeline wires the event codec, the per-session stream aggregators
// and the history store into the agent session pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openbrowser-ai/opensession/internal/observability"
	"github.com/openbrowser-ai/opensession/internal/tracing"
	"github.com/openbrowser-ai/opensession/pkg/event"
	"github.com/openbrowser-ai/opensession/pkg/history"
	"github.com/openbrowser-ai/opensession/pkg/message"
	"github.com/openbrowser-ai/opensession/pkg/stream"
	"github.com/openbrowser-ai/opensession/pkg/taskqueue"
)

// storeLane serializes all persistence work against the shared store.
const storeLane = "store"

// FinalizeHook is invoked after a turn finalizes, before persistence lands.
// Renderers use it to swap the in-progress view for the durable message.
type FinalizeHook func(msg message.Message)

// Pipeline turns raw runtime envelopes into durable, replayable session state.
// Events for one session are applied synchronously in arrival order; the
// persistence that finalization triggers is enqueued and never blocks event
// processing.
type Pipeline struct {
	log        *history.MessageLog
	dir        *history.Directory
	queue      *taskqueue.Queue
	logger     zerolog.Logger
	onFinalize FinalizeHook

	mu          sync.Mutex
	aggregators map[string]*stream.Aggregator
	// finalized messages whose append failed, kept for caller-driven retry
	pending []message.Message
}

// Config holds pipeline configuration
type Config struct {
	MessageLog *history.MessageLog
	Directory  *history.Directory
	Queue      *taskqueue.Queue
	Logger     zerolog.Logger
	OnFinalize FinalizeHook
}

// New creates a pipeline over an open history store.
func New(cfg Config) (*Pipeline, error) {
	if cfg.MessageLog == nil {
		return nil, errors.New("message log is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("session directory is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("task queue is required")
	}
	observability.EnsureRegistered()

	return &Pipeline{
		log:         cfg.MessageLog,
		dir:         cfg.Directory,
		queue:       cfg.Queue,
		logger:      cfg.Logger,
		onFinalize:  cfg.OnFinalize,
		aggregators: make(map[string]*stream.Aggregator),
	}, nil
}

// Process decodes and applies one raw envelope. Malformed envelopes are
// dropped with a diagnostic; they never corrupt aggregator state. The default
// session scopes events that carry no session id of their own.
func (p *Pipeline) Process(ctx context.Context, defaultSession string, raw []byte) {
	ev, err := event.Decode(raw)
	if err != nil {
		observability.IncDecodeFailure()
		p.logger.Warn().Err(err).Msg("Dropping malformed event")
		return
	}
	p.Apply(ctx, defaultSession, ev)
}

// Apply routes one decoded event to the aggregator scoped to the delivering
// channel's session and, on finalization, enqueues the append and directory
// touch. The finalized message persists under its own session id, which may
// differ from the scope when the turn was started for another session.
func (p *Pipeline) Apply(ctx context.Context, defaultSession string, ev event.SessionEvent) {
	agg := p.aggregator(defaultSession)

	p.mu.Lock()
	finalized := agg.Apply(ev)
	p.mu.Unlock()

	if finalized == nil {
		return
	}

	observability.IncTurnFinalized()
	if p.onFinalize != nil {
		p.onFinalize(*finalized)
	}
	p.persist(ctx, *finalized, "")
}

// SubmitUser records a user message immediately. The session title, when the
// session is new, derives from the message text.
func (p *Pipeline) SubmitUser(ctx context.Context, sessionID, text string, attachments []message.Item) (message.Message, error) {
	if sessionID == "" {
		return message.Message{}, errors.New("session id is required")
	}
	if text == "" && len(attachments) == 0 {
		return message.Message{}, errors.New("message is empty")
	}

	msg := message.NewUserMessage(sessionID, text)
	for _, item := range attachments {
		if item.Type != message.ItemFile {
			return message.Message{}, fmt.Errorf("unsupported attachment type %q", item.Type)
		}
		msg.Items = append(msg.Items, item)
	}

	p.persist(ctx, msg, message.TruncateTitle(text))
	return msg, nil
}

// persist enqueues the append and the directory touch on the store lane. The
// two are separate store transactions; a crash between them self-heals on the
// next append.
func (p *Pipeline) persist(ctx context.Context, msg message.Message, titleIfNew string) {
	traceID := tracing.GetTraceID(ctx)

	err := p.queue.Enqueue(storeLane, "append:"+msg.ID, func(taskCtx context.Context) error {
		if traceID != "" {
			taskCtx = tracing.WithTraceID(taskCtx, traceID)
		}
		if err := p.log.Append(taskCtx, msg); err != nil {
			p.stash(msg)
			return fmt.Errorf("append %s: %w", msg.ID, err)
		}
		if err := p.dir.Touch(taskCtx, msg.SessionID, titleIfNew); err != nil {
			return fmt.Errorf("touch %s: %w", msg.SessionID, err)
		}
		return nil
	})
	if err != nil {
		// Queue already shut down; keep the message so a restart can retry.
		p.stash(msg)
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to enqueue persistence")
	}
}

func (p *Pipeline) stash(msg message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, msg)
}

// Pending returns finalized messages whose persistence failed.
func (p *Pipeline) Pending() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]message.Message, len(p.pending))
	copy(out, p.pending)
	return out
}

// RetryPending synchronously replays failed appends, keeping whatever still
// fails.
func (p *Pipeline) RetryPending(ctx context.Context) error {
	p.mu.Lock()
	retry := p.pending
	p.pending = nil
	p.mu.Unlock()

	var firstErr error
	for _, msg := range retry {
		if err := p.log.Append(ctx, msg); err != nil {
			p.stash(msg)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := p.dir.Touch(ctx, msg.SessionID, ""); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Current returns the in-progress assistant message for a session, or nil.
func (p *Pipeline) Current(sessionID string) *message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if agg, ok := p.aggregators[sessionID]; ok {
		return agg.Current()
	}
	return nil
}

// aggregator returns the session's aggregator, creating it lazily. One
// aggregator is live per session id at a time.
func (p *Pipeline) aggregator(sessionID string) *stream.Aggregator {
	p.mu.Lock()
	defer p.mu.Unlock()
	if agg, ok := p.aggregators[sessionID]; ok {
		return agg
	}
	agg := stream.New(stream.Config{
		SessionID: sessionID,
		Logger:    p.logger,
	})
	p.aggregators[sessionID] = agg
	return agg
}
