package service

import (
	"context"
	"log/slog"
	"time"

	"queuectl/internal/executor"
	"queuectl/internal/metrics"
	"queuectl/internal/models"
	"queuectl/internal/repository"
)

// defaultPollInterval is the fixed idle delay ending every worker cycle.
const defaultPollInterval = 1 * time.Second

// Worker is one sequential poll/execute/report loop. Workers share only
// the repository; everything else is loop-local.
type Worker struct {
	id           int
	repo         repository.JobRepository
	runner       executor.Runner
	backoffBase  float64
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewWorker creates a worker loop.
func NewWorker(id int, repo repository.JobRepository, runner executor.Runner, backoffBase float64, m *metrics.Metrics) *Worker {
	return &Worker{
		id:           id,
		repo:         repo,
		runner:       runner,
		backoffBase:  backoffBase,
		pollInterval: defaultPollInterval,
		metrics:      m,
		logger:       slog.Default().With("worker_id", id),
	}
}

// Run polls for jobs until ctx is cancelled. The stop signal is observed
// between cycles only: an in-flight command is never killed, the loop
// finishes it and reports the outcome before exiting.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		default:
		}

		if job := w.nextJob(); job != nil {
			w.execute(job)
		}

		// Fixed idle delay, whether or not work was found.
		idle := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			idle.Stop()
			w.logger.Info("worker stopped")
			return
		case <-idle.C:
		}
	}
}

// nextJob dequeues one pending job. When none is pending it tries to
// promote the oldest due retry and dequeues again within the same cycle,
// so a promoted job does not wait out another poll interval.
func (w *Worker) nextJob() *models.Job {
	job, err := w.repo.DequeuePending()
	if err != nil {
		w.logger.Error("dequeue failed", "error", err)
		return nil
	}
	if job != nil {
		return job
	}

	if !w.promoteDueRetry() {
		return nil
	}
	job, err = w.repo.DequeuePending()
	if err != nil {
		w.logger.Error("dequeue after promotion failed", "error", err)
		return nil
	}
	return job
}

// promoteDueRetry scans failed jobs for one with retry budget whose
// backoff has elapsed and promotes the oldest by updated_at. Reports
// whether a job was promoted.
func (w *Worker) promoteDueRetry() bool {
	failed, err := w.repo.ListByState(models.StateFailed)
	if err != nil {
		w.logger.Error("list failed jobs", "error", err)
		return false
	}

	now := time.Now().UTC()
	var candidate *models.Job
	for _, j := range failed {
		if !j.CanRetry() || !j.IsDueForRetry(now) {
			continue
		}
		if candidate == nil || j.UpdatedAt.Before(candidate.UpdatedAt) {
			candidate = j
		}
	}
	if candidate == nil {
		return false
	}

	promoted, err := w.repo.PromoteForRetry(candidate.ID)
	if err != nil {
		w.logger.Error("promote retry failed", "job_id", candidate.ID, "error", err)
		return false
	}
	if promoted == nil {
		// Claimed or changed by another process between scan and lock.
		return false
	}

	w.metrics.IncrementRetriedJobs()
	w.logger.Info("retry promoted", "job_id", promoted.ID, "attempts", promoted.Attempts)
	return true
}

// execute runs the job's command and reports the outcome. Execution
// failure is data on the job record, never an error out of the loop.
func (w *Worker) execute(job *models.Job) {
	w.logger.Info("executing job", "job_id", job.ID, "command", job.Command, "attempts", job.Attempts)

	res := w.runner.Run(job.Command)
	w.metrics.IncrementExecutedJobs()

	if res.Success() {
		if err := w.repo.Complete(job); err != nil {
			w.logger.Error("complete failed", "job_id", job.ID, "error", err)
			return
		}
		w.metrics.IncrementCompletedJobs()
		w.logger.Info("job completed", "job_id", job.ID)
		return
	}

	if err := w.repo.Fail(job, res.Message(), w.backoffBase); err != nil {
		w.logger.Error("fail report failed", "job_id", job.ID, "error", err)
		return
	}
	if job.State == models.StateDead {
		w.metrics.IncrementDeadLetterJobs()
		w.logger.Warn("job dead-lettered", "job_id", job.ID, "attempts", job.Attempts, "error", job.LastError)
		return
	}
	w.logger.Warn("job failed, retry scheduled",
		"job_id", job.ID, "attempts", job.Attempts, "next_retry_at", job.NextRetryAt)
}
