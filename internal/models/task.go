package models

import (
	"time"
)

// Priority controls scheduling delay and retry budget for a task.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for scheduling, lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether the priority is one of the known levels.
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// TaskStatus is the lifecycle state of a submission task. Transitions are
// monotonic except pending<->in_progress within a single processing attempt;
// completed/failed/escalated are terminal.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusEscalated  TaskStatus = "escalated"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusEscalated
}

// Channel is the transport used to reach a servicer.
type Channel string

const (
	ChannelAPI    Channel = "api"
	ChannelPortal Channel = "portal"
	ChannelEmail  Channel = "email"
	ChannelManual Channel = "manual"
)

// AllChannels lists every channel in a stable order.
var AllChannels = []Channel{ChannelAPI, ChannelPortal, ChannelEmail, ChannelManual}

// ErrorRecord is one entry in a task's error history.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
}

// SubmissionTask is the unit of work driven by the orchestrator. It is created
// by SubmitDocument, mutated only during processing, and survives restarts via
// the task store.
type SubmissionTask struct {
	ID            string                 `json:"id"`
	TransactionID string                 `json:"transactionId"`
	ServicerID    string                 `json:"servicerId"`
	DocumentType  string                 `json:"documentType"`
	Priority      Priority               `json:"priority"`
	RetryCount    int                    `json:"retryCount"`
	MaxRetries    int                    `json:"maxRetries"`
	Status        TaskStatus             `json:"status"`
	LastAttempt   *time.Time             `json:"lastAttempt,omitempty"`
	NextRetry     *time.Time             `json:"nextRetry,omitempty"`
	Channel       Channel                `json:"submissionChannel,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	ErrorHistory  []ErrorRecord          `json:"errorHistory,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`

	// Application is the in-memory document package for this task. It is not
	// persisted with the task row; after a restart it is reloaded from the
	// document-preparation side on demand.
	Application *PreparedApplication `json:"-"`
}

// RecordError appends an entry to the task's error history.
func (t *SubmissionTask) RecordError(msg, context string, at time.Time) {
	t.ErrorHistory = append(t.ErrorHistory, ErrorRecord{
		Timestamp: at,
		Message:   msg,
		Context:   context,
	})
}

// LastErrorsIdentical reports whether the most recent n history entries exist
// and share an identical error string. Repeated identical failure signals a
// systemic problem rather than a transient one.
func (t *SubmissionTask) LastErrorsIdentical(n int) bool {
	if n <= 0 || len(t.ErrorHistory) < n {
		return false
	}
	recent := t.ErrorHistory[len(t.ErrorHistory)-n:]
	first := recent[0].Message
	for _, rec := range recent[1:] {
		if rec.Message != first {
			return false
		}
	}
	return true
}

// Deadline extracts the optional submission deadline from task metadata.
// Accepts a time.Time or an RFC3339 string under the "deadline" key.
func (t *SubmissionTask) Deadline() (time.Time, bool) {
	if t.Metadata == nil {
		return time.Time{}, false
	}
	raw, ok := t.Metadata["deadline"]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// TrackingNumber returns the tracking number recorded on a completed task.
func (t *SubmissionTask) TrackingNumber() (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	v, ok := t.Metadata["trackingNumber"].(string)
	return v, ok && v != ""
}

// SetTrackingNumber records the servicer-issued tracking number in metadata.
func (t *SubmissionTask) SetTrackingNumber(trackingNumber string) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]interface{})
	}
	t.Metadata["trackingNumber"] = trackingNumber
}
