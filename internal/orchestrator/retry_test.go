package orchestrator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"submission-engine/internal/common/errors"
	"submission-engine/internal/models"
)

// ==========================
// Backoff Delay Tests
// ==========================

func TestRetryStrategy_CalculateDelay_Ranges(t *testing.T) {
	strategy := NewRetryStrategy()

	tests := []struct {
		retryCount int
		minDelay   time.Duration
		maxDelay   time.Duration
	}{
		{retryCount: 1, minDelay: 5 * time.Second, maxDelay: 6500 * time.Millisecond},
		{retryCount: 2, minDelay: 10 * time.Second, maxDelay: 13 * time.Second},
		{retryCount: 3, minDelay: 20 * time.Second, maxDelay: 26 * time.Second},
		{retryCount: 4, minDelay: 40 * time.Second, maxDelay: 52 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry_%d", tt.retryCount), func(t *testing.T) {
			for i := 0; i < 50; i++ {
				delay := strategy.CalculateDelay(tt.retryCount)
				assert.GreaterOrEqual(t, delay, tt.minDelay)
				assert.LessOrEqual(t, delay, tt.maxDelay)
			}
		})
	}
}

func TestRetryStrategy_CalculateDelay_CapsAtMaximum(t *testing.T) {
	strategy := NewRetryStrategy()

	// Past the cap the base stays at 300s, so even with full jitter the
	// delay cannot exceed 390s.
	for i := 0; i < 50; i++ {
		delay := strategy.CalculateDelay(10)
		assert.GreaterOrEqual(t, delay, 300*time.Second)
		assert.LessOrEqual(t, delay, 390*time.Second)
	}
}

func TestRetryStrategy_CalculateDelay_LowerBoundGrows(t *testing.T) {
	strategy := NewRetryStrategy()

	// Successive retries never shrink the guaranteed minimum wait.
	prevMin := time.Duration(0)
	for retry := 1; retry <= 7; retry++ {
		min := strategy.CalculateDelay(retry)
		for i := 0; i < 20; i++ {
			if d := strategy.CalculateDelay(retry); d < min {
				min = d
			}
		}
		assert.GreaterOrEqual(t, min, prevMin)
		prevMin = min
	}
}

// ==========================
// Retry Decision Tests
// ==========================

func TestRetryStrategy_ShouldRetry(t *testing.T) {
	strategy := NewRetryStrategy()

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		err        error
		expected   bool
	}{
		{
			name:       "transient error with budget remaining",
			retryCount: 1,
			maxRetries: 3,
			err:        errors.NewServicerUnavailableError("chase", "503"),
			expected:   true,
		},
		{
			name:       "budget exhausted",
			retryCount: 3,
			maxRetries: 3,
			err:        errors.NewServicerUnavailableError("chase", "503"),
			expected:   false,
		},
		{
			name:       "authentication error stops immediately",
			retryCount: 0,
			maxRetries: 5,
			err:        errors.NewAuthenticationError("chase", "bad api key"),
			expected:   false,
		},
		{
			name:       "validation error stops immediately",
			retryCount: 0,
			maxRetries: 5,
			err:        errors.NewValidationError("missing document"),
			expected:   false,
		},
		{
			name:       "circuit open is retryable",
			retryCount: 1,
			maxRetries: 3,
			err:        errors.NewCircuitOpenError("chase"),
			expected:   true,
		},
		{
			name:       "raw transport text classified as transient",
			retryCount: 0,
			maxRetries: 3,
			err:        fmt.Errorf("connection reset by peer"),
			expected:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &models.SubmissionTask{
				RetryCount: tt.retryCount,
				MaxRetries: tt.maxRetries,
			}
			assert.Equal(t, tt.expected, strategy.ShouldRetry(task, tt.err))
		})
	}
}

// ==========================
// Priority Policy Tests
// ==========================

func TestRetryStrategy_MaxRetriesFor(t *testing.T) {
	strategy := NewRetryStrategy()

	assert.Equal(t, 5, strategy.MaxRetriesFor(models.PriorityUrgent))
	assert.Equal(t, 4, strategy.MaxRetriesFor(models.PriorityHigh))
	assert.Equal(t, 3, strategy.MaxRetriesFor(models.PriorityNormal))
	assert.Equal(t, 2, strategy.MaxRetriesFor(models.PriorityLow))
}

func TestRetryStrategy_InitialDelay(t *testing.T) {
	strategy := NewRetryStrategy()

	assert.Equal(t, time.Duration(0), strategy.InitialDelay(models.PriorityUrgent))
	assert.Equal(t, 5*time.Minute, strategy.InitialDelay(models.PriorityHigh))
	assert.Equal(t, 30*time.Minute, strategy.InitialDelay(models.PriorityNormal))
	assert.Equal(t, 60*time.Minute, strategy.InitialDelay(models.PriorityLow))
}
