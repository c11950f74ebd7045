package service

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"queuectl/internal/models"
	"queuectl/internal/repository"
)

// ErrRateLimitExceeded is returned when enqueues outpace the configured
// submission budget.
var ErrRateLimitExceeded = errors.New("enqueue rate limit exceeded")

// JobService handles job business logic on top of the repository:
// validation, submission rate limiting, and the DLQ operations the CLI
// exposes.
type JobService struct {
	repo    repository.JobRepository
	limiter *rate.Limiter
}

// NewJobService creates a job service. ratePerMin bounds enqueues per
// minute; zero or negative means unlimited.
func NewJobService(repo repository.JobRepository, ratePerMin int) *JobService {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin)
	}
	return &JobService{
		repo:    repo,
		limiter: limiter,
	}
}

// Enqueue validates and stores a new pending job. A non-positive
// maxRetries override keeps the given value only when zero (a legitimate
// die-on-first-failure budget); negative selects the default.
func (s *JobService) Enqueue(command string, maxRetries int) (*models.Job, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimitExceeded
	}

	job, err := models.NewJob(command, maxRetries)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Enqueue(job); err != nil {
		return nil, err
	}

	slog.Info("job enqueued", "job_id", job.ID, "command", job.Command, "max_retries", job.MaxRetries)
	return job, nil
}

// GetJob returns the job with the given id.
func (s *JobService) GetJob(id string) (*models.Job, error) {
	return s.repo.GetJob(id)
}

// ListByState returns jobs in the given state, oldest first.
func (s *JobService) ListByState(state models.JobState) ([]*models.Job, error) {
	return s.repo.ListByState(state)
}

// ListDeadLetter returns every dead-lettered job, oldest first.
func (s *JobService) ListDeadLetter() ([]*models.Job, error) {
	return s.repo.ListDeadLetter()
}

// Stats returns job counts per state across both tables.
func (s *JobService) Stats() (map[models.JobState]int, error) {
	return s.repo.Stats()
}

// RetryFromDeadLetter moves a dead job back to pending with attempts
// reset to zero.
func (s *JobService) RetryFromDeadLetter(id string) (*models.Job, error) {
	job, err := s.repo.RetryFromDeadLetter(id)
	if err != nil {
		return nil, fmt.Errorf("retry from dead letter: %w", err)
	}
	slog.Info("job moved from dead letter to pending", "job_id", job.ID)
	return job, nil
}
