package store

import (
	"sync"
	"time"
)

// Scheduler defers a flush callback. The store schedules at most one flush at
// a time; a Scheduler may delay it to coalesce bursts of mutations.
type Scheduler interface {
	Schedule(fn func())
	Stop()
}

// TimerScheduler runs the callback after a fixed delay. Calls made while a
// flush is already pending are absorbed; the pending flush covers them.
type TimerScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	stopped bool
}

// NewTimerScheduler creates a scheduler with the given coalescing window.
func NewTimerScheduler(delay time.Duration) *TimerScheduler {
	return &TimerScheduler{delay: delay}
}

// Schedule arms the flush timer if one is not already pending.
func (s *TimerScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.timer = nil
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Stop cancels any pending flush and rejects future schedules.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SyncScheduler runs the callback immediately. Used in tests so notification
// timing never depends on real timers.
type SyncScheduler struct{}

func (SyncScheduler) Schedule(fn func()) { fn() }
func (SyncScheduler) Stop()              {}
