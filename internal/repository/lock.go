package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// lockRetryInterval is the fixed sleep between acquisition attempts.
const lockRetryInterval = 50 * time.Millisecond

// lockMarker is the on-disk record identifying the lock holder.
type lockMarker struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// FileLock is a mutual-exclusion token shared by every process using one
// data directory. It is materialized as a marker file created with
// O_CREATE|O_EXCL: creation succeeding means the lock is held. A marker
// whose recorded pid is no longer alive is stale and removed by the next
// acquirer.
//
// The liveness policy lives entirely in processAlive so the whole scheme
// can be swapped for an OS advisory lock without touching callers.
type FileLock struct {
	path string
	held bool
}

// NewFileLock returns a lock backed by the marker file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryAcquire attempts to create the marker file, retrying at a fixed
// interval until timeout. It returns false without error when the lock
// stayed contended for the whole window; callers treat that as a soft
// "try again next cycle" outcome.
func (l *FileLock) TryAcquire(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.tryOnce()
		if err != nil {
			return false, err
		}
		if ok {
			l.held = true
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(lockRetryInterval)
	}
}

func (l *FileLock) tryOnce() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		marker := lockMarker{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
		marker.Hostname, _ = os.Hostname()
		encErr := json.NewEncoder(f).Encode(marker)
		if closeErr := f.Close(); encErr == nil {
			encErr = closeErr
		}
		if encErr != nil {
			os.Remove(l.path)
			return false, &StorageError{Op: "write lock marker", Err: encErr}
		}
		return true, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return false, &StorageError{Op: "create lock marker", Err: err}
	}

	// Marker exists. If its holder died, clear it and retry immediately;
	// a racing remover is harmless because the next create is exclusive.
	stale, err := l.markerStale()
	if err != nil {
		return false, err
	}
	if stale {
		os.Remove(l.path)
	}
	return false, nil
}

// markerStale reports whether the current marker names a dead holder.
// A marker that vanished or cannot be parsed counts as stale contention,
// not an error.
func (l *FileLock) markerStale() (bool, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &StorageError{Op: "read lock marker", Err: err}
	}
	var marker lockMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return true, nil
	}
	return !ProcessAlive(marker.PID), nil
}

// Release removes the marker file. Releasing a lock that is not held is an
// error; it would delete another process's marker.
func (l *FileLock) Release() error {
	if !l.held {
		return fmt.Errorf("release: lock %s not held", l.path)
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove lock marker", Err: err}
	}
	return nil
}

// IsHeld reports whether this instance currently holds the lock.
func (l *FileLock) IsHeld() bool {
	return l.held
}

// ProcessAlive probes pid with signal 0. It is the single place the
// staleness policy lives; the pool liveness marker shares it.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}
