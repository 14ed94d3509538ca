package core

// limiter.go bounds how many gateway commits run at once across all
// sessions.
//
// A commit waits up to maxWait for a slot and then fails with
// ErrTooManyCommits; the session stays in preview so the user can retry.
// WaitForDrain lets shutdown block until in-flight commits finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyCommits is returned when every commit slot stays busy for the
// whole wait period.
var ErrTooManyCommits = errors.New("too many concurrent commits, please try again later")

const (
	DefaultMaxConcurrentCommits = 4
	DefaultCommitWaitTime       = 15 * time.Second
)

// CommitLimiter is a counting semaphore for gateway calls.
type CommitLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewCommitLimiter allows at most maxConcurrent commits. Non-positive
// arguments fall back to the defaults.
func NewCommitLimiter(maxConcurrent int, maxWait time.Duration) *CommitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCommits
	}
	if maxWait <= 0 {
		maxWait = DefaultCommitWaitTime
	}

	return &CommitLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait. The caller must call
// Release once the commit finishes.
func (l *CommitLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrTooManyCommits
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *CommitLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of commits holding a slot.
func (l *CommitLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *CommitLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no commit holds a slot or ctx ends.
func (l *CommitLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *CommitLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
