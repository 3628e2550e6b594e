package metrics

import (
	"sync"
)

// Metrics tracks submission counters for the /metrics endpoint.
type Metrics struct {
	mu sync.RWMutex

	enqueuedJobs  int64
	submittedJobs int64
	succeededJobs int64
	retriedJobs   int64
	exhaustedJobs int64
	rejectedEnq   int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementEnqueued counts a job accepted into the queue.
func (m *Metrics) IncrementEnqueued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueuedJobs++
}

// IncrementSubmitted counts one submission attempt against the authority.
func (m *Metrics) IncrementSubmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submittedJobs++
}

// IncrementSucceeded counts a job that reached Completed.
func (m *Metrics) IncrementSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeededJobs++
}

// IncrementRetried counts a retryable failure that requeued the job.
func (m *Metrics) IncrementRetried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retriedJobs++
}

// IncrementExhausted counts a job that terminated as Failed.
func (m *Metrics) IncrementExhausted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhaustedJobs++
}

// IncrementRejectedEnqueue counts an enqueue refused by the guard.
func (m *Metrics) IncrementRejectedEnqueue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectedEnq++
}

// GetSnapshot returns a snapshot of all counters.
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"enqueued_jobs":     m.enqueuedJobs,
		"submitted_jobs":    m.submittedJobs,
		"succeeded_jobs":    m.succeededJobs,
		"retried_jobs":      m.retriedJobs,
		"exhausted_jobs":    m.exhaustedJobs,
		"rejected_enqueues": m.rejectedEnq,
	}
}
