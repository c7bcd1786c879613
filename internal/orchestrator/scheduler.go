package orchestrator

import (
	"sync"
	"time"
)

// taskScheduler holds at most one pending timer per task id. Scheduling a
// task that already has a timer replaces it, so a task can never have two
// concurrent attempts queued.
type taskScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(taskID string)
	closed bool
}

func newTaskScheduler(fire func(taskID string)) *taskScheduler {
	return &taskScheduler{
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

func (s *taskScheduler) Schedule(taskID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if t, ok := s.timers[taskID]; ok {
		t.Stop()
	}
	s.timers[taskID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, taskID)
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.fire(taskID)
		}
	})
}

func (s *taskScheduler) Cancel(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[taskID]; ok {
		t.Stop()
		delete(s.timers, taskID)
	}
}

// Stop cancels every pending timer and rejects further scheduling.
func (s *taskScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
