package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Errors returned by Exec.Run. Use errors.Is to check them.
var (
	// ErrNotFound means the binary is not installed or not on PATH.
	ErrNotFound = errors.New("process: executable not found")

	// ErrTimeout means the per-call timeout expired and the process group
	// was killed.
	ErrTimeout = errors.New("process: timed out")

	// ErrExit means the process ran but exited with a non-zero status.
	ErrExit = errors.New("process: non-zero exit")
)

const (
	// defaultTimeout bounds a call when Exec.Timeout is zero.
	defaultTimeout = 10 * time.Second

	// terminateGrace is how long a process group gets between SIGTERM and SIGKILL.
	terminateGrace = 500 * time.Millisecond

	// maxStderrInError caps the stderr text carried in an ExitError.
	maxStderrInError = 512
)

// Logger defines the logging interface used by Exec.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Output is the captured result of one command.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExitError describes a command that exited non-zero. It unwraps to ErrExit.
type ExitError struct {
	Binary string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Binary, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Binary, e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return ErrExit
}

// Runner runs one external command to completion.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) (Output, error)
}

// Exec runs commands with os/exec.
//
// Each command gets its own process group so that a timeout or cancellation
// terminates any helpers it spawned, not just the direct child.
type Exec struct {
	Timeout time.Duration
	logger  Logger
}

// NewExec creates a runner with the given per-call timeout.
func NewExec(timeout time.Duration) *Exec {
	return &Exec{Timeout: timeout, logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (e *Exec) SetLogger(logger Logger) {
	e.logger = logger
}

// Run executes binary with args and waits for it to exit.
//
// A non-zero exit returns the captured Output together with an *ExitError.
func (e *Exec) Run(ctx context.Context, binary string, args ...string) (Output, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, args...) //nolint:gosec // Binary comes from validated config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Signal the whole group (negative pid), then let WaitDelay escalate.
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
		go func(pid int) {
			time.Sleep(terminateGrace)
			_ = syscall.Kill(-pid, syscall.SIGKILL) //nolint:errcheck // Group may already be gone
		}(cmd.Process.Pid)
		return nil
	}
	cmd.WaitDelay = 2 * terminateGrace

	start := time.Now()
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	e.logger.Debug("command finished",
		"binary", binary,
		"args", strings.Join(args, " "),
		"exit_code", out.ExitCode,
		"duration", time.Since(start),
	)

	if err == nil {
		return out, nil
	}

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return out, fmt.Errorf("%w: %s", ErrNotFound, binary)
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return out, fmt.Errorf("%w: %s after %s", ErrTimeout, binary, timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{
			Binary: binary,
			Code:   exitErr.ExitCode(),
			Stderr: truncate(strings.TrimSpace(stderr.String()), maxStderrInError),
		}
	}
	return out, fmt.Errorf("running %s: %w", binary, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
