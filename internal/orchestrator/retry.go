package orchestrator

import (
	"math"
	"math/rand"
	"time"

	"submission-engine/internal/common/errors"
	"submission-engine/internal/models"
)

const (
	baseRetryDelay = 5 * time.Second
	maxRetryDelay  = 300 * time.Second
	jitterFraction = 0.3
)

// RetryStrategy decides whether a failed attempt is retried, how long to wait
// before the next attempt, and how many attempts each priority is allowed.
type RetryStrategy struct {
	rand *rand.Rand
}

func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// CalculateDelay returns the wait before attempt retryCount+1: exponential
// backoff from the base delay, capped, then widened by up to 30% jitter.
// The cap applies before jitter, so the result never exceeds 390s.
func (r *RetryStrategy) CalculateDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := float64(baseRetryDelay) * math.Pow(2, float64(retryCount-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}

	jitter := 1 + r.rand.Float64()*jitterFraction
	return time.Duration(delay * jitter)
}

// ShouldRetry reports whether a failed task gets another attempt. Budget
// exhaustion and non-transient error classes both stop the retry loop.
func (r *RetryStrategy) ShouldRetry(task *models.SubmissionTask, err error) bool {
	if task.RetryCount >= task.MaxRetries {
		return false
	}
	return errors.IsRetryableCategory(errors.Classify(err))
}

// MaxRetriesFor returns the retry budget for a priority.
func (r *RetryStrategy) MaxRetriesFor(priority models.Priority) int {
	switch priority {
	case models.PriorityUrgent:
		return 5
	case models.PriorityHigh:
		return 4
	case models.PriorityLow:
		return 2
	default:
		return 3
	}
}

// InitialDelay returns how long a freshly accepted task waits before its
// first attempt. Urgent and high run immediately on submission; the scheduler
// still honors high's delay when a high task arrives through the queue path.
func (r *RetryStrategy) InitialDelay(priority models.Priority) time.Duration {
	switch priority {
	case models.PriorityUrgent:
		return 0
	case models.PriorityHigh:
		return 5 * time.Minute
	case models.PriorityLow:
		return 60 * time.Minute
	default:
		return 30 * time.Minute
	}
}
