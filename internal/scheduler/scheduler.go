// Package scheduler runs the bridge's periodic maintenance: pruning relay
// history once a day and logging relay counters.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/config"
)

// Pruner removes history older than a given age.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StatsFunc returns the fields of the periodic stats line.
type StatsFunc func() map[string]interface{}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	db            config.DatabaseConfig
	pruner        Pruner
	stats         StatsFunc
	statsInterval time.Duration
	now           func() time.Time
}

// NewScheduler creates a scheduler. A nil pruner disables the daily prune
// and a nil stats func disables the stats line.
func NewScheduler(db config.DatabaseConfig, pruner Pruner, stats StatsFunc) *Scheduler {
	return &Scheduler{
		db:            db,
		pruner:        pruner,
		stats:         stats,
		statsInterval: time.Hour,
		now:           time.Now,
	}
}

// Start runs the scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.pruner != nil && s.db.RetentionDays > 0 {
		go s.runPruneLoop(ctx)
	}
	if s.stats != nil {
		go s.runStatsLoop(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runPruneLoop(ctx context.Context) {
	for {
		nextRun := calculateNextRun(s.now(), s.db.CleanupTime)
		sleep := nextRun.Sub(s.now())

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleep).
			Msg("relay log prune scheduled")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.prune(ctx)
		}
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	retention := time.Duration(s.db.RetentionDays) * 24 * time.Hour
	removed, err := s.pruner.Prune(ctx, retention)
	if err != nil {
		log.Warn().Err(err).Msg("relay log prune failed")
		return
	}
	log.Info().
		Int64("removed", removed).
		Int("retention_days", s.db.RetentionDays).
		Msg("relay log prune completed")
}

func (s *Scheduler) runStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Fields(s.stats()).Msg("relay stats")
		}
	}
}

// calculateNextRun returns the next occurrence of clock ("HH:MM") strictly
// after now. An unparsable clock falls back to 04:00.
func calculateNextRun(now time.Time, clock string) time.Time {
	hour, minute := 4, 0
	var h, m int
	if n, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err == nil && n == 2 &&
		h >= 0 && h < 24 && m >= 0 && m < 60 {
		hour, minute = h, m
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
