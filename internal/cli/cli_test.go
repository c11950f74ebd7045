package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes one queuectl invocation against dataDir, the way a
// user runs successive CLI processes over one data directory.
func runCommand(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--data-dir", dataDir))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_EnqueueAndList(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, dir, "enqueue", "echo hello")
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued ")

	out, err = runCommand(t, dir, "list", "--state", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "echo hello")
	assert.Contains(t, out, "pending")
}

func TestCLI_EnqueueEmptyCommandFails(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, dir, "enqueue", "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")
}

func TestCLI_EnqueueMultipleCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, dir, "enqueue", "echo one", "echo two", "echo three")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "enqueued "))
}

func TestCLI_StatusShowsCountsAndStoppedWorkers(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, dir, "enqueue", "true")
	require.NoError(t, err)

	out, err := runCommand(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "Workers: stopped")
}

func TestCLI_DlqListEmpty(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, dir, "dlq", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Dead letter queue is empty.")
}

func TestCLI_DlqRetryUnknownJob(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, dir, "dlq", "retry", "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCLI_ConfigShowAndSet(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, dir, "config", "set", "max-retries", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "max-retries = 5")

	out, err = runCommand(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"max_retries": 5`)
}

func TestCLI_ConfigSetRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, dir, "config", "set", "bogus", "1")
	require.Error(t, err)
}

func TestCLI_ListRequiresState(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, dir, "list")
	require.Error(t, err)
}
