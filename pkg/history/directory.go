package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openbrowser-ai/opensession/internal/observability"
	"github.com/openbrowser-ai/opensession/internal/tracing"
	"github.com/openbrowser-ai/opensession/pkg/message"
)

// Session is one conversation thread's metadata record.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Directory is the persistent store of session metadata. Sessions are created
// lazily on first touch; titles are immutable after creation.
type Directory struct {
	store *Store
}

// NewDirectory creates a session directory over an open store.
func NewDirectory(store *Store) *Directory {
	observability.EnsureRegistered()
	return &Directory{store: store}
}

// Touch bumps a session's updated_at, creating the record when it does not
// exist yet. titleIfNew only applies on creation; an existing title is never
// modified. updated_at is strictly increasing across touches.
func (d *Directory) Touch(ctx context.Context, sessionID, titleIfNew string) error {
	if sessionID == "" {
		return errors.New("session id cannot be empty")
	}

	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(ctx, "opensession.history", "session.touch")
	defer span.End()

	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	var existing int64
	err = tx.QueryRowContext(ctx,
		"SELECT updated_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&existing)
	switch {
	case err == nil:
		if now <= existing {
			now = existing + 1
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID,
		); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to update session: %w", err)
		}

	case errors.Is(err, sql.ErrNoRows):
		title := titleIfNew
		if title == "" {
			title = sessionID
		}
		title = message.TruncateTitle(title)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sessions (id, title, updated_at) VALUES (?, ?, ?)",
			sessionID, title, now,
		); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create session: %w", err)
		}

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to read session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit touch: %w", err)
	}

	d.updateSessionMetric(ctx)
	return nil
}

// Get returns one session record, or nil when it does not exist.
func (d *Directory) Get(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := d.store.db.QueryRowContext(ctx,
		"SELECT id, title, updated_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&s.ID, &s.Title, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &s, nil
}

// List returns all sessions, most recently active first.
func (d *Directory) List(ctx context.Context) ([]Session, error) {
	rows, err := d.store.db.QueryContext(ctx,
		"SELECT id, title, updated_at FROM sessions ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

// Latest returns the most recently active session, or nil when none exist.
func (d *Directory) Latest(ctx context.Context) (*Session, error) {
	var s Session
	err := d.store.db.QueryRowContext(ctx,
		"SELECT id, title, updated_at FROM sessions ORDER BY updated_at DESC LIMIT 1",
	).Scan(&s.ID, &s.Title, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest session: %w", err)
	}
	return &s, nil
}

// Remove deletes a session record and all of its messages in one transaction,
// messages first so a failure can never leave a session pointing at deleted
// history. Removing an unknown session is a no-op.
func (d *Directory) Remove(ctx context.Context, sessionID string) error {
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"opensession.history",
		"session.remove",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, d.store.logger)

	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE session_id = ?", sessionID,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete session messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions WHERE id = ?", sessionID,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remove: %w", err)
	}

	d.updateSessionMetric(ctx)
	logger.Info().Msg("Session removed")
	return nil
}

func (d *Directory) updateSessionMetric(ctx context.Context) {
	var n int
	if err := d.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return
	}
	observability.SetActiveSessions(n)
}
