// Package orchestrator drives submission tasks through validation,
// transformation, delivery, retry and escalation.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"submission-engine/internal/adapters"
	"submission-engine/internal/common/errors"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/common/metrics"
	"submission-engine/internal/common/observability"
	"submission-engine/internal/intelligence"
	"submission-engine/internal/models"
	"submission-engine/internal/notify"
	"submission-engine/internal/store"
)

// defaultChannel is used when no interaction history favors another channel.
const defaultChannel = models.ChannelPortal

const escalationDeadlineWindow = 24 * time.Hour

// ApplicationSource reloads a prepared document package for a task whose
// in-memory copy was lost, typically after a restart.
type ApplicationSource interface {
	Load(ctx context.Context, transactionID, documentType string) (*models.PreparedApplication, error)
}

// SubmitRequest is the input to SubmitDocument.
type SubmitRequest struct {
	TransactionID string
	ServicerID    string
	DocumentType  string
	Priority      models.Priority
	Application   *models.PreparedApplication
	Metadata      map[string]interface{}
}

// SubmitResponse reports what happened to a submission request: either the
// outcome of an immediate attempt or the queued task's identity.
type SubmitResponse struct {
	TaskID string                   `json:"taskId"`
	Queued bool                     `json:"queued"`
	Result *models.SubmissionResult `json:"result,omitempty"`
}

// QueueStats is a point-in-time summary of the in-memory queue.
type QueueStats struct {
	QueueSize      int                       `json:"queueSize"`
	ByStatus       map[models.TaskStatus]int `json:"byStatus"`
	ByPriority     map[models.Priority]int   `json:"byPriority"`
	ByServicer     map[string]int            `json:"byServicer"`
	AverageRetries float64                   `json:"averageRetries"`
	SuccessRate    float64                   `json:"successRate"`
}

// Options tunes timing behavior; zero values fall back to defaults.
type Options struct {
	SubmitTimeout        time.Duration
	HealthCheckInterval  time.Duration
	PendingWarnThreshold int
	StalePendingAge      time.Duration
}

func (o *Options) applyDefaults() {
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 30 * time.Second
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = 60 * time.Second
	}
	if o.PendingWarnThreshold <= 0 {
		o.PendingWarnThreshold = 50
	}
	if o.StalePendingAge <= 0 {
		o.StalePendingAge = 2 * time.Hour
	}
}

// Orchestrator owns the task registry, per-servicer circuit breakers and the
// retry timers. All durable state changes go through the task store before a
// timer advances the task.
type Orchestrator struct {
	store     store.TaskStore
	adapters  *adapters.Registry
	intel     intelligence.Service
	notifier  notify.EscalationNotifier
	appSource ApplicationSource
	retry     *RetryStrategy
	scheduler *taskScheduler
	monitor   *healthMonitor
	obs       *observability.Observability
	logger    logger.Logger
	opts      Options

	// tasksMu guards the registry map and the mutable fields of every
	// registered task. Writers hold the write lock for each field mutation so
	// stats and health readers never see a half-written record.
	tasksMu sync.RWMutex
	tasks   map[string]*models.SubmissionTask

	breakersMu sync.Mutex
	breakers   map[string]*CircuitBreaker

	now func() time.Time
}

func New(
	taskStore store.TaskStore,
	registry *adapters.Registry,
	intel intelligence.Service,
	notifier notify.EscalationNotifier,
	appSource ApplicationSource,
	obs *observability.Observability,
	log logger.Logger,
	opts Options,
) *Orchestrator {
	opts.applyDefaults()

	o := &Orchestrator{
		store:     taskStore,
		adapters:  registry,
		intel:     intel,
		notifier:  notifier,
		appSource: appSource,
		retry:     NewRetryStrategy(),
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		opts:      opts,
		tasks:     make(map[string]*models.SubmissionTask),
		breakers:  make(map[string]*CircuitBreaker),
		now:       time.Now,
	}
	o.scheduler = newTaskScheduler(o.processScheduled)
	o.monitor = newHealthMonitor(o, opts, o.logger)
	return o
}

// Start resumes persisted work and begins health monitoring.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.Resume(ctx); err != nil {
		return fmt.Errorf("resume tasks: %w", err)
	}
	o.monitor.Start()
	return nil
}

// Stop cancels all pending timers and the health monitor. In-flight attempts
// finish; their follow-up scheduling becomes a no-op.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()
	o.monitor.Stop()
}

// SubmitDocument accepts a submission request. Urgent and high priority tasks
// are attempted inline; normal and low are queued with their priority delay.
// Infrastructure faults surface as errors; servicer-side attempt failures are
// reported inside the result and drive the retry loop.
func (o *Orchestrator) SubmitDocument(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown priority %q", req.Priority))
	}
	if req.TransactionID == "" || req.ServicerID == "" {
		return nil, errors.NewValidationError("transactionId and servicerId are required")
	}

	now := o.now().UTC()
	task := &models.SubmissionTask{
		ID:            uuid.New().String(),
		TransactionID: req.TransactionID,
		ServicerID:    req.ServicerID,
		DocumentType:  req.DocumentType,
		Priority:      req.Priority,
		MaxRetries:    o.retry.MaxRetriesFor(req.Priority),
		Status:        models.TaskStatusPending,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
		Application:   req.Application,
	}

	if err := o.store.Insert(ctx, task); err != nil {
		return nil, errors.NewDatabaseInsertFailedError(err)
	}
	o.registerTask(task)

	o.logger.Info("submission task accepted", map[string]interface{}{
		"taskId":        task.ID,
		"transactionId": task.TransactionID,
		"servicerId":    task.ServicerID,
		"priority":      string(task.Priority),
	})

	switch task.Priority {
	case models.PriorityUrgent, models.PriorityHigh:
		result := o.ProcessTask(ctx, task.ID)
		return &SubmitResponse{TaskID: task.ID, Result: result}, nil
	default:
		o.scheduler.Schedule(task.ID, o.retry.InitialDelay(task.Priority))
		return &SubmitResponse{TaskID: task.ID, Queued: true}, nil
	}
}

// processScheduled is the timer callback. The task id is the only state a
// timer carries; everything else is looked up fresh.
func (o *Orchestrator) processScheduled(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.SubmitTimeout+30*time.Second)
	defer cancel()
	o.ProcessTask(ctx, taskID)
}

// ProcessTask runs one submission attempt for a task and handles the outcome.
// The returned result describes this attempt; a nil result means the task was
// not in a processable state.
func (o *Orchestrator) ProcessTask(ctx context.Context, taskID string) *models.SubmissionResult {
	task := o.lookupTask(ctx, taskID)
	if task == nil {
		o.logger.Warn("task not found for processing", map[string]interface{}{"taskId": taskID})
		return nil
	}
	started := o.now()
	attemptTime := started.UTC()

	o.tasksMu.Lock()
	if task.Status.Terminal() {
		status := string(task.Status)
		o.tasksMu.Unlock()
		o.logger.Debug("skipping terminal task", map[string]interface{}{
			"taskId": task.ID,
			"status": status,
		})
		return nil
	}
	task.Status = models.TaskStatusInProgress
	task.LastAttempt = &attemptTime
	task.NextRetry = nil
	o.tasksMu.Unlock()

	if err := o.store.Update(ctx, task); err != nil {
		o.persistFailure(task.ID, "attempt_start", err)
	}

	result, attemptErr := o.attempt(ctx, task)

	if o.obs != nil {
		outcome := "success"
		if attemptErr != nil {
			outcome = "failure"
		}
		o.obs.RecordAttempt(ctx, task.ServicerID, outcome)
		o.obs.RecordAttemptDuration(ctx, o.now().Sub(started), task.ServicerID)
	}
	o.tasksMu.RLock()
	channel := string(task.Channel)
	o.tasksMu.RUnlock()
	metrics.AttemptDuration.WithLabelValues(task.ServicerID, channel).
		Observe(o.now().Sub(started).Seconds())

	if attemptErr != nil {
		o.handleFailure(ctx, task, attemptErr)
		o.tasksMu.RLock()
		escalated := task.Status == models.TaskStatusEscalated
		o.tasksMu.RUnlock()
		return &models.SubmissionResult{
			Success:            false,
			Errors:             []string{attemptErr.Error()},
			RequiresEscalation: escalated,
		}
	}

	o.handleSuccess(ctx, task, result)
	return result
}

// attempt performs the breaker gate, adapter pipeline and outcome recording
// for a single try.
func (o *Orchestrator) attempt(ctx context.Context, task *models.SubmissionTask) (*models.SubmissionResult, error) {
	breaker := o.breakerFor(task.ServicerID)
	if breaker.IsOpen() {
		metrics.CircuitBreakerOpen.WithLabelValues(task.ServicerID).Set(1)
		return nil, errors.NewCircuitOpenError(task.ServicerID)
	}
	metrics.CircuitBreakerOpen.WithLabelValues(task.ServicerID).Set(0)

	adapter, err := o.adapters.GetAdapter(task.ServicerID)
	if err != nil {
		return nil, err
	}

	if task.Application == nil {
		if o.appSource == nil {
			return nil, errors.NewSubmissionFailedError(task.ServicerID,
				fmt.Errorf("document package unavailable and no application source configured"))
		}
		app, err := o.appSource.Load(ctx, task.TransactionID, task.DocumentType)
		if err != nil {
			return nil, errors.NewSubmissionFailedError(task.ServicerID,
				fmt.Errorf("reload document package: %w", err))
		}
		o.tasksMu.Lock()
		task.Application = app
		o.tasksMu.Unlock()
	}

	// Selection runs fresh on every attempt so a retry follows whatever the
	// accumulated outcome data now favors, not the channel it started on.
	channel := o.SelectSubmissionChannel(ctx, task.ServicerID)
	o.tasksMu.Lock()
	task.Channel = channel
	o.tasksMu.Unlock()

	validation, err := adapter.ValidateRequirements(ctx, task.Application)
	if err != nil {
		return nil, errors.NewSubmissionFailedError(task.ServicerID, err)
	}
	if !validation.Valid {
		return nil, errors.NewValidationError(joinStrings(validation.Errors))
	}

	transformed, err := adapter.Transform(ctx, task.Application)
	if err != nil {
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, o.opts.SubmitTimeout)
	defer cancel()
	result, err := adapter.Submit(submitCtx, transformed)
	if err != nil {
		breaker.RecordFailure()
		o.recordOutcome(ctx, task, false)
		return nil, err
	}
	if !result.Success {
		breaker.RecordFailure()
		o.recordOutcome(ctx, task, false)
		return nil, errors.NewSubmissionFailedError(task.ServicerID,
			fmt.Errorf("%s", joinStrings(result.Errors)))
	}

	breaker.RecordSuccess()
	o.recordOutcome(ctx, task, true)
	return result, nil
}

func (o *Orchestrator) handleSuccess(ctx context.Context, task *models.SubmissionTask, result *models.SubmissionResult) {
	o.tasksMu.Lock()
	task.Status = models.TaskStatusCompleted
	if result.TrackingNumber != "" {
		task.SetTrackingNumber(result.TrackingNumber)
	}
	channel := string(task.Channel)
	retryCount := task.RetryCount
	o.tasksMu.Unlock()

	if err := o.store.Update(ctx, task); err != nil {
		o.persistFailure(task.ID, "completion", err)
	}

	metrics.SubmissionsCompleted.WithLabelValues(task.ServicerID, channel).Inc()
	o.logger.Info("submission completed", map[string]interface{}{
		"taskId":         task.ID,
		"servicerId":     task.ServicerID,
		"channel":        channel,
		"trackingNumber": result.TrackingNumber,
		"retryCount":     retryCount,
	})
}

// handleFailure records the error, then either schedules a retry or finishes
// the task as failed or escalated.
func (o *Orchestrator) handleFailure(ctx context.Context, task *models.SubmissionTask, attemptErr error) {
	now := o.now().UTC()

	o.tasksMu.Lock()
	task.RecordError(attemptErr.Error(), "submission attempt", now)
	retrying := o.retry.ShouldRetry(task, attemptErr)
	var delay time.Duration
	var escalate bool
	var reason string
	if retrying {
		task.RetryCount++
		delay = o.retry.CalculateDelay(task.RetryCount)
		next := now.Add(delay)
		task.NextRetry = &next
		task.Status = models.TaskStatusPending
	} else {
		escalate, reason = o.checkEscalationCriteria(task)
		if escalate {
			task.Status = models.TaskStatusEscalated
		} else {
			task.Status = models.TaskStatusFailed
		}
		task.NextRetry = nil
	}
	retryCount := task.RetryCount
	status := string(task.Status)
	o.tasksMu.Unlock()

	if retrying {
		if err := o.store.Update(ctx, task); err != nil {
			o.persistFailure(task.ID, "retry_state", err)
		}

		metrics.SubmissionRetries.WithLabelValues(task.ServicerID).Inc()
		o.logger.Warn("submission attempt failed, retry scheduled", map[string]interface{}{
			"taskId":     task.ID,
			"servicerId": task.ServicerID,
			"retryCount": retryCount,
			"maxRetries": task.MaxRetries,
			"delayMs":    delay.Milliseconds(),
			"error":      attemptErr.Error(),
		})
		o.scheduler.Schedule(task.ID, delay)
		return
	}

	if err := o.store.Update(ctx, task); err != nil {
		o.persistFailure(task.ID, "terminal_state", err)
	}
	o.scheduler.Cancel(task.ID)

	errCode := "UNKNOWN"
	if stdErr, ok := attemptErr.(*errors.StandardError); ok {
		errCode = string(stdErr.Code)
	}
	metrics.SubmissionsFailed.WithLabelValues(task.ServicerID, errCode).Inc()

	if escalate {
		metrics.SubmissionsEscalated.WithLabelValues(task.ServicerID).Inc()
		if err := o.notifier.NotifyEscalation(ctx, task, reason); err != nil {
			// The task is already marked escalated; a lost alert must not
			// change its state.
			o.logger.Error("failed to deliver escalation alert", map[string]interface{}{
				"taskId": task.ID,
				"error":  err.Error(),
			})
		}
	}

	o.logger.Error("submission task finished unsuccessfully", map[string]interface{}{
		"taskId":     task.ID,
		"servicerId": task.ServicerID,
		"status":     status,
		"retryCount": retryCount,
		"error":      attemptErr.Error(),
	})
}

// checkEscalationCriteria reports whether a terminally failed task needs a
// human, and why.
func (o *Orchestrator) checkEscalationCriteria(task *models.SubmissionTask) (bool, string) {
	if task.Priority == models.PriorityUrgent || task.Priority == models.PriorityHigh {
		return true, fmt.Sprintf("%s priority task exhausted retries", task.Priority)
	}
	if task.LastErrorsIdentical(3) {
		return true, "repeated identical failures indicate a systemic problem"
	}
	if deadline, ok := task.Deadline(); ok {
		if deadline.Sub(o.now()) < escalationDeadlineWindow {
			return true, "submission deadline within 24 hours"
		}
	}
	return false, ""
}

// SelectSubmissionChannel picks the channel with the best historical success
// rate for a servicer; ties break on channel name for determinism. Without
// history the portal channel is assumed, as the most widely supported.
func (o *Orchestrator) SelectSubmissionChannel(ctx context.Context, servicerID string) models.Channel {
	if o.intel == nil {
		return defaultChannel
	}

	intel, err := o.intel.GetServicerIntelligence(ctx, servicerID)
	if err != nil {
		o.logger.Warn("intelligence lookup failed, using default channel", map[string]interface{}{
			"servicerId": servicerID,
			"error":      err.Error(),
		})
		return defaultChannel
	}
	if intel == nil || len(intel.Patterns.SubmissionChannels) == 0 {
		return defaultChannel
	}

	channels := make([]models.Channel, 0, len(intel.Patterns.SubmissionChannels))
	for ch := range intel.Patterns.SubmissionChannels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	best := defaultChannel
	bestRate := -1.0
	for _, ch := range channels {
		if rate := intel.Patterns.SubmissionChannels[ch].SuccessRate; rate > bestRate {
			best = ch
			bestRate = rate
		}
	}
	return best
}

// recordOutcome feeds the attempt result back into the intelligence store.
// Intelligence failures never affect task flow.
func (o *Orchestrator) recordOutcome(ctx context.Context, task *models.SubmissionTask, success bool) {
	if o.intel == nil {
		return
	}
	err := o.intel.RecordInteraction(ctx, intelligence.Interaction{
		Type:          "submission_attempt",
		TransactionID: task.TransactionID,
		ServicerID:    task.ServicerID,
		Data: map[string]interface{}{
			"channel":    task.Channel,
			"success":    success,
			"retryCount": task.RetryCount,
			"priority":   string(task.Priority),
		},
		Timestamp: o.now().UTC(),
	})
	if err != nil {
		o.logger.Warn("failed to record interaction", map[string]interface{}{
			"taskId": task.ID,
			"error":  err.Error(),
		})
	}
}

// Resume reloads unfinished tasks from the store after a restart and puts
// them back on timers, most urgent first. Tasks already registered in memory
// are left untouched, so Resume is safe to call more than once.
func (o *Orchestrator) Resume(ctx context.Context) error {
	tasks, err := o.store.ListByStatus(ctx, models.TaskStatusPending, models.TaskStatusInProgress)
	if err != nil {
		return err
	}

	resumed := 0
	for i, task := range tasks {
		if o.knownTask(task.ID) {
			continue
		}

		// An in_progress row means the process died mid-attempt. The attempt's
		// outcome is unknown, so it goes back to pending for another try.
		if task.Status == models.TaskStatusInProgress {
			task.Status = models.TaskStatusPending
			if err := o.store.Update(ctx, task); err != nil {
				o.persistFailure(task.ID, "resume_reset", err)
				continue
			}
		}

		o.registerTask(task)

		// Staggered so a large backlog does not slam the servicers at once;
		// an already-scheduled retry keeps its later slot.
		delay := time.Duration(i+1) * time.Second
		if task.NextRetry != nil {
			if until := task.NextRetry.Sub(o.now()); until > delay {
				delay = until
			}
		}
		o.scheduler.Schedule(task.ID, delay)
		resumed++
	}

	if resumed > 0 {
		o.logger.Info("resumed persisted submission tasks", map[string]interface{}{
			"count": resumed,
		})
	}
	return nil
}

// CheckSubmissionStatus queries the servicer for the current state of a
// submitted package.
func (o *Orchestrator) CheckSubmissionStatus(ctx context.Context, taskID string) (*models.StatusResult, error) {
	task := o.lookupTask(ctx, taskID)
	if task == nil {
		return nil, errors.NewTaskNotFoundError(taskID)
	}

	o.tasksMu.RLock()
	tracking, ok := task.TrackingNumber()
	o.tasksMu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError("task has no tracking number; it has not been submitted successfully")
	}

	adapter, err := o.adapters.GetAdapter(task.ServicerID)
	if err != nil {
		return nil, err
	}
	return adapter.CheckStatus(ctx, tracking)
}

// TestServicerConnections probes every registered adapter.
func (o *Orchestrator) TestServicerConnections(ctx context.Context) map[string]*models.ConnectionResult {
	results := make(map[string]*models.ConnectionResult)
	for _, adapter := range o.adapters.All() {
		res, err := adapter.TestConnection(ctx)
		if err != nil {
			res = &models.ConnectionResult{Success: false, Message: err.Error()}
		}
		results[adapter.ServicerID()] = res
	}
	return results
}

// GetTask returns a snapshot of the task, falling back to the store. Callers
// get a copy; the registered record stays private to the orchestrator.
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (*models.SubmissionTask, error) {
	task := o.lookupTask(ctx, taskID)
	if task == nil {
		return nil, errors.NewTaskNotFoundError(taskID)
	}
	o.tasksMu.RLock()
	copied := *task
	o.tasksMu.RUnlock()
	return &copied, nil
}

// GetQueueStats summarizes the registered tasks.
func (o *Orchestrator) GetQueueStats() QueueStats {
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()

	stats := QueueStats{
		ByStatus:   make(map[models.TaskStatus]int),
		ByPriority: make(map[models.Priority]int),
		ByServicer: make(map[string]int),
	}

	var totalRetries, terminal, completed int
	for _, task := range o.tasks {
		stats.ByStatus[task.Status]++
		stats.ByPriority[task.Priority]++
		stats.ByServicer[task.ServicerID]++
		totalRetries += task.RetryCount

		if !task.Status.Terminal() {
			stats.QueueSize++
		} else {
			terminal++
			if task.Status == models.TaskStatusCompleted {
				completed++
			}
		}
	}

	if len(o.tasks) > 0 {
		stats.AverageRetries = float64(totalRetries) / float64(len(o.tasks))
	}
	if terminal > 0 {
		stats.SuccessRate = float64(completed) / float64(terminal)
	}
	return stats
}

// BreakerState exposes the current breaker state for a servicer, mostly for
// operational visibility.
func (o *Orchestrator) BreakerState(servicerID string) BreakerState {
	return o.breakerFor(servicerID).State()
}

func (o *Orchestrator) breakerFor(servicerID string) *CircuitBreaker {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()

	breaker, ok := o.breakers[servicerID]
	if !ok {
		breaker = NewCircuitBreaker()
		o.breakers[servicerID] = breaker
	}
	return breaker
}

// persistFailure counts and logs a failed state write. The in-memory task is
// still authoritative; the health metric is what surfaces a dying store.
func (o *Orchestrator) persistFailure(taskID, operation string, err error) {
	metrics.PersistenceFailures.WithLabelValues(operation).Inc()
	o.logger.Error("failed to persist task state", map[string]interface{}{
		"taskId":    taskID,
		"operation": operation,
		"error":     err.Error(),
	})
}

func (o *Orchestrator) registerTask(task *models.SubmissionTask) {
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	o.tasks[task.ID] = task
}

func (o *Orchestrator) knownTask(taskID string) bool {
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()
	_, ok := o.tasks[taskID]
	return ok
}

func (o *Orchestrator) lookupTask(ctx context.Context, taskID string) *models.SubmissionTask {
	o.tasksMu.RLock()
	task, ok := o.tasks[taskID]
	o.tasksMu.RUnlock()
	if ok {
		return task
	}

	task, err := o.store.GetByID(ctx, taskID)
	if err != nil {
		return nil
	}
	o.registerTask(task)
	return task
}

// pendingHealth reports the pending depth and the oldest last-attempt age for
// health checks, computed in one pass under the registry lock.
func (o *Orchestrator) pendingHealth(now time.Time) (int, time.Duration) {
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()

	var count int
	var oldestAge time.Duration
	for _, task := range o.tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}
		count++
		if task.LastAttempt == nil {
			continue
		}
		if age := now.Sub(*task.LastAttempt); age > oldestAge {
			oldestAge = age
		}
	}
	return count, oldestAge
}

func joinStrings(items []string) string {
	switch len(items) {
	case 0:
		return "unspecified error"
	case 1:
		return items[0]
	default:
		out := items[0]
		for _, s := range items[1:] {
			out += "; " + s
		}
		return out
	}
}
