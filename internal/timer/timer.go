// Package timer implements the named one-shot timer service the core relies
// on. Arming a name that is already armed replaces the pending timer; expired
// callbacks are marshaled onto a serial executor so they never race transport
// callbacks.
package timer

import (
	"sync"
	"time"
)

// Service implements remote.TimerService. One instance per device session;
// names are scoped to the instance.
type Service struct {
	exec func(func())

	mu     sync.Mutex
	seq    map[string]uint64
	timers map[string]*time.Timer
}

// NewService creates a timer service whose callbacks run via exec (typically
// runloop.Loop.Post). A nil exec runs callbacks inline on the timer
// goroutine.
func NewService(exec func(func())) *Service {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Service{
		exec:   exec,
		seq:    make(map[string]uint64),
		timers: make(map[string]*time.Timer),
	}
}

// Arm schedules fn after delay under the given name, replacing any pending
// timer with that name.
func (s *Service) Arm(name string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[name]++
	gen := s.seq[name]

	if t, ok := s.timers[name]; ok {
		t.Stop()
	}

	s.timers[name] = time.AfterFunc(delay, func() {
		// The generation check catches a timer that fired while a re-arm or
		// cancel was in flight.
		s.mu.Lock()
		if s.seq[name] != gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, name)
		s.mu.Unlock()

		s.exec(fn)
	})
}

// Cancel stops the named timer if pending. A no-op for unknown names.
func (s *Service) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[name]++
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// CancelAll stops every pending timer. Called on shutdown.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, t := range s.timers {
		s.seq[name]++
		t.Stop()
		delete(s.timers, name)
	}
}
