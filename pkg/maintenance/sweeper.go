// Package maintenance runs scheduled housekeeping over the history store.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/openbrowser-ai/opensession/internal/observability"
	"github.com/openbrowser-ai/opensession/pkg/history"
)

// DefaultRetention is how long an idle session survives before the sweeper
// removes it together with its messages.
const DefaultRetention = 30 * 24 * time.Hour

// DefaultSchedule runs the sweep nightly.
const DefaultSchedule = "0 3 * * *"

// Sweeper removes idle sessions on a cron schedule.
type Sweeper struct {
	dir       *history.Directory
	log       *history.MessageLog
	retention time.Duration
	schedule  string
	logger    zerolog.Logger
	cron      *cron.Cron
}

// Config holds sweeper configuration
type Config struct {
	Directory  *history.Directory
	MessageLog *history.MessageLog
	Retention  time.Duration
	Schedule   string
	Logger     zerolog.Logger
}

// NewSweeper creates a sweeper; Start schedules it.
func NewSweeper(cfg Config) (*Sweeper, error) {
	if cfg.Directory == nil {
		return nil, errors.New("session directory is required")
	}
	if cfg.MessageLog == nil {
		return nil, errors.New("message log is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}

	return &Sweeper{
		dir:       cfg.Directory,
		log:       cfg.MessageLog,
		retention: cfg.Retention,
		schedule:  cfg.Schedule,
		logger:    cfg.Logger,
	}, nil
}

// Start registers the cron entry and begins the schedule.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return errors.New("sweeper is already running")
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info().
		Str("schedule", s.schedule).
		Dur("retention", s.retention).
		Msg("Maintenance sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info().Msg("Maintenance sweeper stopped")
}

// RunOnce sweeps immediately: sessions idle past the retention window are
// removed, messages first.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).UnixMilli()

	sessions, err := s.dir.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	removed := 0
	for _, session := range sessions {
		if session.UpdatedAt >= cutoff {
			continue
		}
		if err := s.dir.Remove(ctx, session.ID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to remove idle session")
			continue
		}
		removed++
	}

	total, err := s.log.Count(ctx)
	if err == nil {
		observability.SetStoredMessages(total)
	}

	s.logger.Info().
		Int("sessions_removed", removed).
		Int("messages_stored", total).
		Msg("Sweep completed")
	return nil
}
