package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuectl/internal/executor"
	"queuectl/internal/metrics"
	"queuectl/internal/models"
	"queuectl/internal/repository"
)

// stubRunner scripts execution outcomes per command and records calls.
type stubRunner struct {
	mu      sync.Mutex
	outcome func(command string) executor.Result
	calls   []string
}

func (s *stubRunner) Run(command string) executor.Result {
	s.mu.Lock()
	s.calls = append(s.calls, command)
	s.mu.Unlock()
	return s.outcome(command)
}

func succeedAll(string) executor.Result { return executor.Result{ExitCode: 0} }
func failAll(string) executor.Result    { return executor.Result{ExitCode: 1, Stderr: "boom"} }

func newWorkerHarness(t *testing.T, outcome func(string) executor.Result) (*Worker, *repository.FileRepository) {
	t.Helper()
	repo, err := repository.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	w := NewWorker(1, repo, &stubRunner{outcome: outcome}, 2, metrics.NewMetrics())
	w.pollInterval = 5 * time.Millisecond
	return w, repo
}

func enqueue(t *testing.T, repo repository.JobRepository, command string, maxRetries int) *models.Job {
	t.Helper()
	job, err := models.NewJob(command, maxRetries)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(job))
	return job
}

func TestWorker_SuccessfulCycleCompletesJob(t *testing.T) {
	w, repo := newWorkerHarness(t, succeedAll)
	queued := enqueue(t, repo, "echo ok", 3)

	job := w.nextJob()
	require.NotNil(t, job)
	w.execute(job)

	got, err := repo.GetJob(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, got.State)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 0, got.Attempts)
}

func TestWorker_FailureExhaustsBudgetToDeadLetter(t *testing.T) {
	w, repo := newWorkerHarness(t, failAll)
	queued := enqueue(t, repo, "exit 1", 1)

	job := w.nextJob()
	require.NotNil(t, job)
	w.execute(job)

	dead, err := repo.ListDeadLetter()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, queued.ID, dead[0].ID)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Contains(t, dead[0].LastError, "exit status 1")

	pending, err := repo.ListByState(models.StatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorker_PromotesDueRetryWithinSameCycle(t *testing.T) {
	w, repo := newWorkerHarness(t, succeedAll)
	// Zero backoff base makes the retry due immediately after failure.
	w.backoffBase = 0
	queued := enqueue(t, repo, "flaky", 3)

	job, err := repo.DequeuePending()
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.Fail(job, "exit status 1", 0))

	// No pending job exists, so nextJob must promote the failed one and
	// dequeue it in the same call.
	job = w.nextJob()
	require.NotNil(t, job)
	assert.Equal(t, queued.ID, job.ID)
	assert.Equal(t, models.StateProcessing, job.State)
}

func TestWorker_DoesNotPromoteBeforeBackoffElapses(t *testing.T) {
	w, repo := newWorkerHarness(t, succeedAll)
	enqueue(t, repo, "flaky", 3)

	job, err := repo.DequeuePending()
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.Fail(job, "exit status 1", 60))

	assert.Nil(t, w.nextJob())
	failed, err := repo.ListByState(models.StateFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestWorker_RetrySucceedsAfterDeadLetterRevival(t *testing.T) {
	w, repo := newWorkerHarness(t, succeedAll)
	queued := enqueue(t, repo, "flaky", 1)

	job, err := repo.DequeuePending()
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.Fail(job, "exit status 1", 2))

	revived, err := repo.RetryFromDeadLetter(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, revived.Attempts)

	job = w.nextJob()
	require.NotNil(t, job)
	w.execute(job)

	got, err := repo.GetJob(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, got.State)
}

func TestWorker_ConcurrentWorkersDrainQueue(t *testing.T) {
	const jobs = 5
	const workers = 3

	repo, err := repository.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	for i := 0; i < jobs; i++ {
		enqueue(t, repo, fmt.Sprintf("echo %d", i), 3)
	}

	m := metrics.NewMetrics()
	runner := &stubRunner{outcome: succeedAll}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		w := NewWorker(i, repo, runner, 2, m)
		w.pollInterval = 5 * time.Millisecond
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool {
		stats, err := repo.Stats()
		if err != nil {
			return false
		}
		return stats[models.StateCompleted] == jobs
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	wg.Wait()

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, jobs, stats[models.StateCompleted])
	assert.Equal(t, 0, stats[models.StateProcessing])

	// Every job executed exactly once.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Len(t, runner.calls, jobs)
}

func TestWorker_RunStopsBetweenCycles(t *testing.T) {
	w, _ := newWorkerHarness(t, succeedAll)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorker_DequeueErrorDoesNotCrashLoop(t *testing.T) {
	w, _ := newWorkerHarness(t, succeedAll)
	w.repo = &erroringRepo{}
	assert.Nil(t, w.nextJob())
}

// erroringRepo fails every operation; it stands in for a corrupted store.
type erroringRepo struct{}

var errStore = errors.New("store broken")

func (e *erroringRepo) Enqueue(*models.Job) error                 { return errStore }
func (e *erroringRepo) DequeuePending() (*models.Job, error)      { return nil, errStore }
func (e *erroringRepo) Complete(*models.Job) error                { return errStore }
func (e *erroringRepo) Fail(*models.Job, string, float64) error   { return errStore }
func (e *erroringRepo) PromoteForRetry(string) (*models.Job, error) {
	return nil, errStore
}
func (e *erroringRepo) RetryFromDeadLetter(string) (*models.Job, error) {
	return nil, errStore
}
func (e *erroringRepo) GetJob(string) (*models.Job, error) { return nil, errStore }
func (e *erroringRepo) ListByState(models.JobState) ([]*models.Job, error) {
	return nil, errStore
}
func (e *erroringRepo) ListDeadLetter() ([]*models.Job, error) { return nil, errStore }
func (e *erroringRepo) Stats() (map[models.JobState]int, error) {
	return nil, errStore
}
func (e *erroringRepo) Close() error { return nil }
