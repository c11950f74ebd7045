package repository

import (
	"queuectl/internal/models"
)

// JobRepository defines the interface for job persistence.
//
// Mutating operations reload the on-disk tables and run under the shared
// file lock, so their outcome reflects every process using the data
// directory. Read operations (ListByState, ListDeadLetter, Stats) serve
// the in-memory cache without forcing a reload: listings taken right
// after another process's write may be stale. Only the dequeue/update
// critical sections guarantee strict consistency.
type JobRepository interface {
	// Enqueue validates and inserts a new job into the Active table.
	Enqueue(job *models.Job) error

	// DequeuePending hands out at most one pending job, transitioned to
	// processing before it is returned. A nil job means none was
	// available this cycle — including when the lock stayed contended.
	DequeuePending() (*models.Job, error)

	// Complete marks a processing job completed and clears its error.
	Complete(job *models.Job) error

	// Fail records a failed execution: attempts is incremented, and the
	// job either becomes failed with a backoff schedule or moves to the
	// DeadLetter table when the retry budget is exhausted.
	Fail(job *models.Job, errMsg string, backoffBase float64) error

	// PromoteForRetry moves a failed, due job back to pending. It returns
	// (nil, nil) when the job was claimed or changed by another process
	// between selection and the critical section.
	PromoteForRetry(id string) (*models.Job, error)

	// RetryFromDeadLetter moves a dead job back to the Active table as
	// pending with attempts reset to zero.
	RetryFromDeadLetter(id string) (*models.Job, error)

	// GetJob returns the job with the given id from either table.
	GetJob(id string) (*models.Job, error)

	// ListByState returns Active-table jobs in the given state, plus
	// DeadLetter jobs when state is dead.
	ListByState(state models.JobState) ([]*models.Job, error)

	// ListDeadLetter returns every job in the DeadLetter table.
	ListDeadLetter() ([]*models.Job, error)

	// Stats returns job counts per state across both tables.
	Stats() (map[models.JobState]int, error)

	// Close releases resources held by the repository.
	Close() error
}
