package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobState represents the state of a job
type JobState string

const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateDead       JobState = "dead"
)

// DefaultMaxRetries is applied when a job is created without an explicit limit.
const DefaultMaxRetries = 3

// ValidStates lists every state a job record may carry, in lifecycle order.
var ValidStates = []JobState{StatePending, StateProcessing, StateCompleted, StateFailed, StateDead}

// IsValidState reports whether s names a known job state.
func IsValidState(s JobState) bool {
	for _, v := range ValidStates {
		if s == v {
			return true
		}
	}
	return false
}

// Job represents a single shell command tracked by the queue.
// A job lives in exactly one of the two tables at any time: the Active
// table (pending/processing/failed/completed) or the DeadLetter table (dead).
type Job struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	State       JobState   `json:"state"`
	Attempts    int        `json:"attempts"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastError   string     `json:"error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// ValidationError reports invalid job input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid job: " + e.Field + " " + e.Reason
}

// NewJob creates a pending job for command. A negative maxRetries selects
// DefaultMaxRetries. The id is generated; timestamps are set to now.
func NewJob(command string, maxRetries int) (*Job, error) {
	if strings.TrimSpace(command) == "" {
		return nil, &ValidationError{Field: "command", Reason: "must not be empty"}
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	now := time.Now().UTC()
	return &Job{
		ID:         uuid.New().String(),
		Command:    command,
		State:      StatePending,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CanRetry reports whether the job failed with retry budget remaining.
func (j *Job) CanRetry() bool {
	return j.State == StateFailed && j.Attempts < j.MaxRetries
}

// IsDueForRetry reports whether the job's backoff delay has elapsed at now.
// A job without a scheduled retry time is always due.
func (j *Job) IsDueForRetry(now time.Time) bool {
	if j.NextRetryAt == nil {
		return true
	}
	return !now.Before(*j.NextRetryAt)
}

// NextRetryDelay returns base^attempts seconds. Pure; callers decide which
// attempt count to feed in.
func NextRetryDelay(base float64, attempts int) time.Duration {
	secs := math.Pow(base, float64(attempts))
	return time.Duration(secs * float64(time.Second))
}
