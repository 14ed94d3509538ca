package core

// scheduler.go runs background housekeeping for import sessions.
//
// The sweeper removes sessions idle for longer than the session TTL so
// abandoned wizards do not hold parsed files in memory. A session with a
// commit in flight or waiting for a commit slot is never removed.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often StartSweeper runs when given a
// non-positive interval.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper removes expired sessions every interval until ctx is
// cancelled. It runs once immediately. Call it in its own goroutine.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session sweeper started",
		"interval", interval.String(),
		"session_ttl", s.opts.SessionTTL.String(),
	)

	s.runSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *Service) runSweep() {
	start := time.Now()
	removed := s.Sweep(s.opts.Now())
	if removed > 0 {
		slog.Info("expired import sessions removed",
			"removed", removed,
			"remaining", s.SessionCount(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Sweep removes sessions last updated more than the session TTL before now
// and returns how many were removed. Sessions in the importing stage and
// sessions with a transition in progress are kept.
func (s *Service) Sweep(now time.Time) int {
	cutoff := now.Add(-s.opts.SessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		// A locked entry is mid-transition, possibly a commit waiting for
		// a slot while still in preview.
		if !e.mu.TryLock() {
			continue
		}
		sess := e.load()
		if sess.Stage != StageImporting && sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}
