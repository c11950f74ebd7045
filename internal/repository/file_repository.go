package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"queuectl/internal/models"
)

const (
	activeFileName = "active.json"
	deadFileName   = "dead_letter.json"
	lockFileName   = "queue.lock"

	// lockAcquireTimeout bounds how long any single operation waits for
	// the shared file lock before giving up.
	lockAcquireTimeout = 2 * time.Second
)

// ErrLockBusy is returned by mutating operations when the shared lock
// stayed contended for the whole acquisition window. DequeuePending and
// PromoteForRetry never return it; for them contention degrades to "no
// job available this cycle".
var ErrLockBusy = errors.New("queue lock busy")

// FileRepository implements JobRepository on two JSON table files inside a
// data directory, shared by any number of concurrent processes. Cross-
// process mutual exclusion comes from a FileLock marker in the same
// directory; in-process callers are additionally serialized by a mutex.
type FileRepository struct {
	dir        string
	activePath string
	deadPath   string
	lock       *FileLock
	lockWait   time.Duration

	mu     sync.Mutex
	active map[string]*models.Job
	dead   map[string]*models.Job
}

// NewFileRepository creates the data directory if needed and loads both
// tables into the cache.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "create data directory", Err: err}
	}

	r := &FileRepository{
		dir:        dir,
		activePath: filepath.Join(dir, activeFileName),
		deadPath:   filepath.Join(dir, deadFileName),
		lock:       NewFileLock(filepath.Join(dir, lockFileName)),
		lockWait:   lockAcquireTimeout,
		active:     make(map[string]*models.Job),
		dead:       make(map[string]*models.Job),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases resources. The file tables need no teardown; Close exists
// to satisfy JobRepository and to guard against a leaked lock.
func (r *FileRepository) Close() error {
	if r.lock.IsHeld() {
		return r.lock.Release()
	}
	return nil
}

// reload replaces the cache with the current on-disk tables. Callers hold r.mu.
func (r *FileRepository) reload() error {
	active, err := readTable(r.activePath)
	if err != nil {
		return err
	}
	dead, err := readTable(r.deadPath)
	if err != nil {
		return err
	}
	r.active = active
	r.dead = dead
	return nil
}

func readTable(path string) (map[string]*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*models.Job), nil
		}
		return nil, &StorageError{Op: "read " + filepath.Base(path), Err: err}
	}
	table := make(map[string]*models.Job)
	if len(data) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, &StorageError{Op: "parse " + filepath.Base(path), Err: err}
	}
	return table, nil
}

// writeTable persists a table atomically: write a temp file in the same
// directory, then rename over the target.
func writeTable(path string, table map[string]*models.Job) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode " + filepath.Base(path), Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &StorageError{Op: "create temp table", Err: err}
	}
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return &StorageError{Op: "write " + filepath.Base(path), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &StorageError{Op: "replace " + filepath.Base(path), Err: err}
	}
	return nil
}

func (r *FileRepository) persistActive() error { return writeTable(r.activePath, r.active) }
func (r *FileRepository) persistDead() error   { return writeTable(r.deadPath, r.dead) }

// withLock runs fn inside the cross-process critical section: lock
// acquired, cache freshly reloaded. fn persists whatever it mutates.
func (r *FileRepository) withLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.lock.TryAcquire(r.lockWait)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	defer r.lock.Release()

	if err := r.reload(); err != nil {
		return err
	}
	return fn()
}

// Enqueue validates job, assigns an id when missing, and inserts it into
// the Active table. The insert serializes against the shared lock because
// this process's cache may be stale relative to concurrent enqueuers.
func (r *FileRepository) Enqueue(job *models.Job) error {
	if strings.TrimSpace(job.Command) == "" {
		return &models.ValidationError{Field: "command", Reason: "must not be empty"}
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.State = models.StatePending
	job.UpdatedAt = now

	return r.withLock(func() error {
		if _, exists := r.active[job.ID]; exists {
			return &models.ValidationError{Field: "id", Reason: "already enqueued"}
		}
		stored := *job
		r.active[job.ID] = &stored
		return r.persistActive()
	})
}

// DequeuePending hands out at most one pending job. Protocol: reload and
// look for a candidate without the lock (cheap rejection when the queue is
// idle), acquire the lock with bounded retries, reload again, and
// re-verify a pending job exists — another process may have claimed the
// candidate between selection and acquisition. Lock exhaustion is a soft
// outcome: nil job, nil error.
func (r *FileRepository) DequeuePending() (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reload(); err != nil {
		return nil, err
	}
	if r.oldestPending() == nil {
		return nil, nil
	}

	ok, err := r.lock.TryAcquire(r.lockWait)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	defer r.lock.Release()

	if err := r.reload(); err != nil {
		return nil, err
	}
	job := r.oldestPending()
	if job == nil {
		return nil, nil
	}
	job.State = models.StateProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := r.persistActive(); err != nil {
		return nil, err
	}
	claimed := *job
	return &claimed, nil
}

// oldestPending returns the pending job with the earliest created_at,
// ties broken by id. Callers hold r.mu.
func (r *FileRepository) oldestPending() *models.Job {
	var oldest *models.Job
	for _, j := range r.active {
		if j.State != models.StatePending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) ||
			(j.CreatedAt.Equal(oldest.CreatedAt) && j.ID < oldest.ID) {
			oldest = j
		}
	}
	return oldest
}

// Complete transitions a processing job to completed and clears its error.
func (r *FileRepository) Complete(job *models.Job) error {
	return r.withLock(func() error {
		cur, ok := r.active[job.ID]
		if !ok {
			return &NotFoundError{ID: job.ID, Table: "active"}
		}
		cur.State = models.StateCompleted
		cur.LastError = ""
		cur.NextRetryAt = nil
		cur.UpdatedAt = time.Now().UTC()
		if err := r.persistActive(); err != nil {
			return err
		}
		*job = *cur
		return nil
	})
}

// Fail records a failed execution. Attempts is incremented once per
// failure; reaching the retry budget moves the record to the DeadLetter
// table in the same step, with no intermediate pending hop. Otherwise the
// job becomes failed with next_retry_at = now + backoffBase^attempts.
func (r *FileRepository) Fail(job *models.Job, errMsg string, backoffBase float64) error {
	return r.withLock(func() error {
		cur, ok := r.active[job.ID]
		if !ok {
			return &NotFoundError{ID: job.ID, Table: "active"}
		}
		now := time.Now().UTC()
		cur.Attempts++
		cur.LastError = errMsg
		cur.UpdatedAt = now

		if cur.Attempts >= cur.MaxRetries {
			cur.State = models.StateDead
			cur.NextRetryAt = nil
			delete(r.active, cur.ID)
			r.dead[cur.ID] = cur
			if err := r.persistActive(); err != nil {
				return err
			}
			if err := r.persistDead(); err != nil {
				return err
			}
			*job = *cur
			return nil
		}

		cur.State = models.StateFailed
		due := now.Add(models.NextRetryDelay(backoffBase, cur.Attempts))
		cur.NextRetryAt = &due
		if err := r.persistActive(); err != nil {
			return err
		}
		*job = *cur
		return nil
	})
}

// PromoteForRetry moves a failed, due job back to pending so the promoting
// worker can dequeue it in the same cycle. The due/failed check repeats
// under the lock; a job that was already claimed, promoted, or retired by
// another process yields (nil, nil).
func (r *FileRepository) PromoteForRetry(id string) (*models.Job, error) {
	var promoted *models.Job
	err := r.withLock(func() error {
		cur, ok := r.active[id]
		if !ok || !cur.CanRetry() || !cur.IsDueForRetry(time.Now().UTC()) {
			return nil
		}
		cur.State = models.StatePending
		cur.NextRetryAt = nil
		cur.UpdatedAt = time.Now().UTC()
		if err := r.persistActive(); err != nil {
			return err
		}
		p := *cur
		promoted = &p
		return nil
	})
	if errors.Is(err, ErrLockBusy) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// RetryFromDeadLetter moves a dead job back to the Active table as pending
// with attempts reset to zero.
func (r *FileRepository) RetryFromDeadLetter(id string) (*models.Job, error) {
	var revived *models.Job
	err := r.withLock(func() error {
		cur, ok := r.dead[id]
		if !ok {
			return &NotFoundError{ID: id, Table: "dead_letter"}
		}
		cur.State = models.StatePending
		cur.Attempts = 0
		cur.LastError = ""
		cur.NextRetryAt = nil
		cur.UpdatedAt = time.Now().UTC()
		delete(r.dead, id)
		r.active[id] = cur
		if err := r.persistDead(); err != nil {
			return err
		}
		if err := r.persistActive(); err != nil {
			return err
		}
		p := *cur
		revived = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revived, nil
}

// GetJob returns the job with the given id from either table, served from
// the cache.
func (r *FileRepository) GetJob(id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.active[id]; ok {
		cp := *j
		return &cp, nil
	}
	if j, ok := r.dead[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, &NotFoundError{ID: id, Table: "active or dead_letter"}
}

// ListByState returns jobs in the given state, oldest first. Served from
// the cache without a reload.
func (r *FileRepository) ListByState(state models.JobState) ([]*models.Job, error) {
	if !models.IsValidState(state) {
		return nil, fmt.Errorf("unknown job state %q", state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	source := r.active
	if state == models.StateDead {
		source = r.dead
	}
	var jobs []*models.Job
	for _, j := range source {
		if j.State == state {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	sortJobs(jobs)
	return jobs, nil
}

// ListDeadLetter returns every DeadLetter-table job, oldest first.
func (r *FileRepository) ListDeadLetter() ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]*models.Job, 0, len(r.dead))
	for _, j := range r.dead {
		cp := *j
		jobs = append(jobs, &cp)
	}
	sortJobs(jobs)
	return jobs, nil
}

// Stats returns job counts per state across both tables, from the cache.
func (r *FileRepository) Stats() (map[models.JobState]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[models.JobState]int)
	for _, j := range r.active {
		stats[j.State]++
	}
	stats[models.StateDead] += len(r.dead)
	return stats, nil
}

func sortJobs(jobs []*models.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
