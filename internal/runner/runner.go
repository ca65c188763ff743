// Package runner executes external commands with a bounded timeout and
// captured output, backing the verification stage's test runs.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devloop/internal/logging"
)

const defaultTimeout = 2 * time.Minute

// Result captures a single command execution.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
	TimedOut bool
	Duration time.Duration
}

// CombinedOutput returns stdout and stderr joined for reporting.
func (r *Result) CombinedOutput() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner runs commands in a working directory with a per-call timeout.
type Runner struct {
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a Runner. A zero timeout falls back to the default bound.
func New(timeout time.Duration, logger *logging.Logger) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes name with args in dir. A non-zero exit or a timeout is
// reported through the Result, not as an error; errors are reserved for
// failures to start the command at all.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	display := strings.Join(append([]string{name}, args...), " ")
	r.logger.Debug(ctx, "running command",
		zap.String("command", display),
		zap.String("dir", dir),
		zap.Duration("timeout", r.timeout))

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Command:  display,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		result.Stderr = strings.TrimSpace(result.Stderr + "\n" + fmt.Sprintf("command timed out after %s", r.timeout))
		r.logger.Warn(ctx, "command timed out",
			zap.String("command", display),
			zap.Duration("timeout", r.timeout))
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug(ctx, "command exited non-zero",
				zap.String("command", display),
				zap.Int("exit_code", result.ExitCode))
			return result, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", display, err)
	}

	result.Success = true
	return result, nil
}
