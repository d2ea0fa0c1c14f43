package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openbrowser-ai/opensession/internal/observability"
	"github.com/openbrowser-ai/opensession/internal/tracing"
	"github.com/openbrowser-ai/opensession/pkg/message"
)

// MessageLog is the append-only, capacity-bounded store of finalized messages.
type MessageLog struct {
	store *Store
}

// NewMessageLog creates a message log over an open store.
func NewMessageLog(store *Store) *MessageLog {
	observability.EnsureRegistered()
	return &MessageLog{store: store}
}

// Page is one paginated read result. Messages are in ascending timestamp
// order; HasMore reports whether older messages remain beyond this page.
type Page struct {
	Messages []message.Message
	HasMore  bool
}

// Append upserts a finalized message keyed by its id, then enforces the
// storage cap by evicting the globally-oldest messages. The upsert makes
// at-least-once delivery from the event source safe. On failure no partial
// state is left behind.
func (l *MessageLog) Append(ctx context.Context, msg message.Message) error {
	ctx = tracing.WithSessionID(ctx, msg.SessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"opensession.history",
		"history.append",
		attribute.String("message_id", msg.ID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, l.store.logger)

	start := time.Now()
	err := l.append(ctx, msg)
	observability.RecordMessageAppend(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Debug().
		Str("message_id", msg.ID).
		Str("role", string(msg.Role)).
		Msg("Message appended")
	return nil
}

func (l *MessageLog) append(ctx context.Context, msg message.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id cannot be empty")
	}
	if msg.SessionID == "" {
		return fmt.Errorf("message session id cannot be empty")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, timestamp, role, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			timestamp = excluded.timestamp,
			role = excluded.role,
			payload = excluded.payload
	`, msg.ID, msg.SessionID, msg.Timestamp, string(msg.Role), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&total); err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}

	evicted := 0
	if overflow := total - l.store.maxMessages; overflow > 0 {
		// Evict the globally-oldest messages across all sessions; ties order
		// by id so the outcome is deterministic.
		res, err := tx.ExecContext(ctx, `
			DELETE FROM messages WHERE id IN (
				SELECT id FROM messages ORDER BY timestamp ASC, id ASC LIMIT ?
			)
		`, overflow)
		if err != nil {
			return fmt.Errorf("failed to evict oldest messages: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			evicted = int(n)
		}
		total -= evicted
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}

	observability.AddEvictions(evicted)
	observability.SetStoredMessages(total)
	if evicted > 0 {
		l.store.logger.Debug().Int("evicted", evicted).Msg("Storage cap enforced")
	}
	return nil
}

// LoadPage returns the `limit` most recent messages of a session, optionally
// restricted to timestamps strictly before beforeTS (0 means unbounded), in
// ascending timestamp order. HasMore reports whether the filtered set held
// more than one page.
func (l *MessageLog) LoadPage(ctx context.Context, sessionID string, limit int, beforeTS int64) (Page, error) {
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"opensession.history",
		"history.load_page",
		attribute.Int("limit", limit),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordPageLoad(time.Since(start))
	}()

	if limit <= 0 {
		return Page{Messages: []message.Message{}}, nil
	}

	var filtered int
	err := l.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE session_id = ? AND (? = 0 OR timestamp < ?)
	`, sessionID, beforeTS, beforeTS).Scan(&filtered)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, fmt.Errorf("failed to count session messages: %w", err)
	}

	rows, err := l.store.db.QueryContext(ctx, `
		SELECT payload FROM messages
		WHERE session_id = ? AND (? = 0 OR timestamp < ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, sessionID, beforeTS, beforeTS, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, fmt.Errorf("failed to load page: %w", err)
	}
	defer rows.Close()

	var newestFirst []message.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return Page{}, fmt.Errorf("failed to scan message: %w", err)
		}
		var msg message.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			l.store.logger.Warn().Err(err).Msg("Skipping undecodable message payload")
			continue
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("failed to read page: %w", err)
	}

	// Reverse into chronological order for display.
	ascending := make([]message.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		ascending = append(ascending, newestFirst[i])
	}

	return Page{
		Messages: ascending,
		HasMore:  filtered > limit,
	}, nil
}

// LoadAll returns the full message list of a session in ascending order.
func (l *MessageLog) LoadAll(ctx context.Context, sessionID string) ([]message.Message, error) {
	page, err := l.LoadPage(ctx, sessionID, int(^uint(0)>>1), 0)
	if err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// Clear deletes all messages of one session.
func (l *MessageLog) Clear(ctx context.Context, sessionID string) error {
	_, err := l.store.db.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear session messages: %w", err)
	}
	return nil
}

// ClearAll deletes the entire message store.
func (l *MessageLog) ClearAll(ctx context.Context) error {
	if _, err := l.store.db.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	observability.SetStoredMessages(0)
	return nil
}

// Count returns the total number of stored messages across all sessions.
func (l *MessageLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// CountBySession returns the number of stored messages for one session.
func (l *MessageLog) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := l.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count session messages: %w", err)
	}
	return n, nil
}
