package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuectl/internal/metrics"
	"queuectl/internal/repository"
)

func newTestPool(t *testing.T, dir string, count int) *Pool {
	t.Helper()
	repo, err := repository.NewFileRepository(dir)
	require.NoError(t, err)
	return NewPool(repo, &stubRunner{outcome: succeedAll}, dir, 2, count, metrics.NewMetrics())
}

func writePoolMarker(t *testing.T, dir string, pid int) {
	t.Helper()
	data, err := json.Marshal(PoolStatus{PID: pid, Count: 2, StartedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, livenessFileName), data, 0o644))
}

func TestPool_StartWritesAndClearsMarker(t *testing.T) {
	dir := t.TempDir()
	pool := newTestPool(t, dir, 2)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- pool.Start(ctx)
	}()
	<-started

	require.Eventually(t, func() bool {
		status, err := ReadPoolStatus(dir)
		return err == nil && status != nil && status.PID == os.Getpid() && status.Count == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	status, err := ReadPoolStatus(dir)
	require.NoError(t, err)
	assert.Nil(t, status, "marker must be cleared after stop")
}

func TestPool_RefusesSecondPoolWhileOwnerAlive(t *testing.T) {
	dir := t.TempDir()
	// A marker naming this test process is indistinguishable from a live pool.
	writePoolMarker(t, dir, os.Getpid())

	pool := newTestPool(t, dir, 1)
	err := pool.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestPool_OverridesStaleMarker(t *testing.T) {
	dir := t.TempDir()
	writePoolMarker(t, dir, 99999999)

	pool := newTestPool(t, dir, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, pool.Start(ctx))

	status, err := ReadPoolStatus(dir)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestReadPoolStatus_MissingMarker(t *testing.T) {
	status, err := ReadPoolStatus(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestPoolStatus_Alive(t *testing.T) {
	alive := &PoolStatus{PID: os.Getpid()}
	assert.True(t, alive.Alive())

	gone := &PoolStatus{PID: 99999999}
	assert.False(t, gone.Alive())
}
