package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"queuectl/internal/executor"
	"queuectl/internal/metrics"
	"queuectl/internal/repository"
)

const (
	// livenessFileName marks a running pool inside the data directory.
	livenessFileName = "worker.status"

	// drainTimeout bounds how long Stop waits for in-flight commands.
	drainTimeout = 30 * time.Second
)

// PoolStatus is the on-disk liveness marker for a running worker pool.
type PoolStatus struct {
	PID       int       `json:"pid"`
	Count     int       `json:"count"`
	StartedAt time.Time `json:"started_at"`
}

// Alive reports whether the recorded owner process still exists.
func (s *PoolStatus) Alive() bool {
	return repository.ProcessAlive(s.PID)
}

// ReadPoolStatus reads the liveness marker from dataDir. A missing marker
// yields (nil, nil).
func ReadPoolStatus(dataDir string) (*PoolStatus, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, livenessFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pool status: %w", err)
	}
	var status PoolStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse pool status: %w", err)
	}
	return &status, nil
}

// Pool starts and stops N worker loops over one repository and owns the
// pool liveness marker.
type Pool struct {
	repo        repository.JobRepository
	runner      executor.Runner
	metrics     *metrics.Metrics
	backoffBase float64
	dataDir     string
	count       int
	logger      *slog.Logger
}

// NewPool creates a pool of count workers.
func NewPool(repo repository.JobRepository, runner executor.Runner, dataDir string, backoffBase float64, count int, m *metrics.Metrics) *Pool {
	return &Pool{
		repo:        repo,
		runner:      runner,
		metrics:     m,
		backoffBase: backoffBase,
		dataDir:     dataDir,
		count:       count,
		logger:      slog.Default().With("pool_pid", os.Getpid()),
	}
}

// Start claims the liveness marker, runs the workers, and blocks until
// ctx is cancelled. Shutdown waits for the loops bounded by drainTimeout,
// then clears the marker. A second pool over the same data directory is
// refused while the marker names a live process.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.claimLiveness(); err != nil {
		return err
	}
	defer p.clearLiveness()

	p.logger.Info("worker pool started", "count", p.count)

	var wg sync.WaitGroup
	for i := 1; i <= p.count; i++ {
		w := NewWorker(i, p.repo, p.runner, p.backoffBase, p.metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.logger.Warn("drain timeout exceeded, abandoning worker wait")
	}

	p.logger.Info("worker pool stopped", "metrics", p.metrics.GetSnapshot())
	return nil
}

// claimLiveness writes the marker, clearing a stale one whose owner died.
func (p *Pool) claimLiveness() error {
	existing, err := ReadPoolStatus(p.dataDir)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Alive() {
			return fmt.Errorf("worker pool already running (pid %d, started %s)",
				existing.PID, existing.StartedAt.Format(time.RFC3339))
		}
		p.logger.Warn("clearing stale pool marker", "stale_pid", existing.PID)
		if err := os.Remove(p.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale pool marker: %w", err)
		}
	}

	status := PoolStatus{PID: os.Getpid(), Count: p.count, StartedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pool status: %w", err)
	}
	if err := os.WriteFile(p.markerPath(), data, 0o644); err != nil {
		return fmt.Errorf("write pool status: %w", err)
	}
	return nil
}

func (p *Pool) clearLiveness() {
	if err := os.Remove(p.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Error("remove pool marker", "error", err)
	}
}

func (p *Pool) markerPath() string {
	return filepath.Join(p.dataDir, livenessFileName)
}
