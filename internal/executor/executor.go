// Package executor spawns job commands through the host shell and reports
// the outcome as data. Execution failure is never an error to the caller:
// a nonzero exit or spawn failure is recorded in the Result and drives the
// job's retry transition.
package executor

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// stderrTailLimit bounds how much captured stderr is attached to a
// failure message.
const stderrTailLimit = 512

// Result is the outcome of one command execution.
type Result struct {
	// ExitCode is the command's exit status. -1 when the command never ran.
	ExitCode int
	// SpawnError is set when the process could not be started at all.
	SpawnError error
	// Stderr holds the tail of the command's standard error output.
	Stderr string
}

// Success reports whether the command ran and exited zero.
func (r Result) Success() bool {
	return r.SpawnError == nil && r.ExitCode == 0
}

// Message renders the failure for storage on the job record. Empty on
// success.
func (r Result) Message() string {
	if r.Success() {
		return ""
	}
	if r.SpawnError != nil {
		return fmt.Sprintf("spawn failed: %v", r.SpawnError)
	}
	msg := fmt.Sprintf("exit status %d", r.ExitCode)
	if r.Stderr != "" {
		msg += ": " + r.Stderr
	}
	return msg
}

// Runner executes a shell command to completion.
type Runner interface {
	Run(command string) Result
}

// ShellRunner runs commands through the platform shell, inheriting this
// process's environment. It blocks until the command finishes; callers own
// the decision never to kill an in-flight command.
type ShellRunner struct{}

// NewShellRunner returns a Runner backed by the host shell.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes command and returns its outcome.
func (s *ShellRunner) Run(command string) Result {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stderr: tail(stderr.String())}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	res.SpawnError = err
	return res
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return s
}
