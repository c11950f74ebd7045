package metrics

import (
	"sync"
)

// Metrics tracks per-process worker counters. Counters are advisory: the
// durable truth lives in the job tables, these exist for shutdown logging
// and tests.
type Metrics struct {
	mu sync.RWMutex

	executedJobs   int64
	completedJobs  int64
	retriedJobs    int64
	deadLetterJobs int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementExecutedJobs increments the executed jobs counter
func (m *Metrics) IncrementExecutedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executedJobs++
}

// IncrementCompletedJobs increments the completed jobs counter
func (m *Metrics) IncrementCompletedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedJobs++
}

// IncrementRetriedJobs increments the retried jobs counter
func (m *Metrics) IncrementRetriedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retriedJobs++
}

// IncrementDeadLetterJobs increments the dead-lettered jobs counter
func (m *Metrics) IncrementDeadLetterJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetterJobs++
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"executed_jobs":    m.executedJobs,
		"completed_jobs":   m.completedJobs,
		"retried_jobs":     m.retriedJobs,
		"dead_letter_jobs": m.deadLetterJobs,
	}
}
