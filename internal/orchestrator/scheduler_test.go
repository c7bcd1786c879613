package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type firedRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *firedRecorder) record(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, taskID)
}

func (r *firedRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func TestTaskScheduler_FiresAfterDelay(t *testing.T) {
	rec := &firedRecorder{}
	s := newTaskScheduler(rec.record)
	defer s.Stop()

	s.Schedule("task-1", 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"task-1"}, rec.snapshot())
}

func TestTaskScheduler_ReschedulingReplacesTimer(t *testing.T) {
	rec := &firedRecorder{}
	s := newTaskScheduler(rec.record)
	defer s.Stop()

	// The second Schedule supersedes the first; only one fire happens.
	s.Schedule("task-1", 20*time.Millisecond)
	s.Schedule("task-1", 40*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"task-1"}, rec.snapshot())
}

func TestTaskScheduler_CancelPreventsFiring(t *testing.T) {
	rec := &firedRecorder{}
	s := newTaskScheduler(rec.record)
	defer s.Stop()

	s.Schedule("task-1", 20*time.Millisecond)
	s.Cancel("task-1")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestTaskScheduler_StopCancelsEverything(t *testing.T) {
	rec := &firedRecorder{}
	s := newTaskScheduler(rec.record)

	s.Schedule("task-1", 20*time.Millisecond)
	s.Schedule("task-2", 20*time.Millisecond)
	s.Stop()

	// Scheduling after Stop is a no-op.
	s.Schedule("task-3", time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
