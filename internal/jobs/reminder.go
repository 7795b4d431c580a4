package jobs

import (
	"sync"
	"time"
)

// ReminderScheduler arms at most one timer per sender. Scheduling again
// replaces the pending timer, so the reminder clock restarts with the
// newest payment link.
type ReminderScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewReminderScheduler() *ReminderScheduler {
	return &ReminderScheduler{timers: make(map[string]*time.Timer)}
}

func (s *ReminderScheduler) Schedule(senderID string, after time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if t, ok := s.timers[senderID]; ok {
		t.Stop()
	}

	var tm *time.Timer
	tm = time.AfterFunc(after, func() {
		s.mu.Lock()
		// A replacement timer may already sit in the slot.
		if s.timers[senderID] == tm {
			delete(s.timers, senderID)
		}
		s.mu.Unlock()
		fire()
	})
	s.timers[senderID] = tm
}

func (s *ReminderScheduler) Cancel(senderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[senderID]; ok {
		t.Stop()
		delete(s.timers, senderID)
	}
}

// Stop disarms every pending timer and rejects further scheduling.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports the number of armed timers.
func (s *ReminderScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
