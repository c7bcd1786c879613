package orchestrator

import (
	"sync"
	"time"

	"submission-engine/internal/common/logger"
	"submission-engine/internal/common/metrics"
)

// healthMonitor periodically inspects the queue and warns when it backs up:
// too many pending tasks, or a pending task whose last attempt is stale.
type healthMonitor struct {
	orch     *Orchestrator
	opts     Options
	logger   logger.Logger
	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

func newHealthMonitor(orch *Orchestrator, opts Options, log logger.Logger) *healthMonitor {
	return &healthMonitor{
		orch:   orch,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "health-monitor"}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *healthMonitor) Start() {
	m.started = true
	go m.run()
}

func (m *healthMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.started {
			<-m.done
		}
	})
}

func (m *healthMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *healthMonitor) check() {
	pending, oldestAge := m.orch.pendingHealth(m.orch.now())

	metrics.TasksPending.Set(float64(pending))
	metrics.OldestPendingAge.Set(oldestAge.Seconds())

	if pending > m.opts.PendingWarnThreshold {
		m.logger.Warn("submission queue backing up", map[string]interface{}{
			"pendingTasks": pending,
			"threshold":    m.opts.PendingWarnThreshold,
		})
	}
	if oldestAge > m.opts.StalePendingAge {
		m.logger.Warn("stale pending submission task detected", map[string]interface{}{
			"oldestAttemptAge": oldestAge.String(),
			"staleThreshold":   m.opts.StalePendingAge.String(),
		})
	}
}
