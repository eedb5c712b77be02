package viewer

import (
	"sync"
	"time"
)

// Slot holds at most one delayed action; triggering again cancels and replaces it
type Slot struct {
	mu    sync.Mutex
	name  string
	delay time.Duration
	timer *time.Timer
	seq   uint64
}

// NewSlot creates a latest-wins slot that fires after delay of quiet
func NewSlot(name string, delay time.Duration) *Slot {
	return &Slot{name: name, delay: delay}
}

// Name identifies the trigger class
func (s *Slot) Name() string {
	return s.name
}

// Trigger schedules fn, replacing whatever was pending
func (s *Slot) Trigger(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		// a timer that fired while being replaced must not run
		if s.seq != seq {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending action, reporting whether there was one
func (s *Slot) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.seq++
	return true
}

// Pending reports whether an action is waiting to fire
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
