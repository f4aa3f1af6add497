// Package ffmpeg runs the external ffmpeg/ffplay binaries used for merging and desktop playback.
package ffmpeg

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Status is the engine's completion signal.
type Status int

const (
	StatusSuccess   Status = iota // Engine finished and wrote its output
	StatusCancelled               // Run was cancelled by the caller or interrupted
	StatusFailed                  // Engine reported an error
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Command describes one engine invocation.
type Command struct {
	Args    []string      // Arguments after the binary
	Timeout time.Duration // Per-run deadline (0 = none)
}

// String renders the command line for logging.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Completion is the result of one engine run.
type Completion struct {
	Status      Status
	ExitCode    int
	Diagnostics string // Tail of stderr
	Duration    time.Duration
	Err         error // Underlying process error, if any
}

// Config holds runner configuration.
type Config struct {
	BinaryPath string        // ffmpeg binary (name or path)
	WaitDelay  time.Duration // Grace period after SIGINT before the process is killed
}

// interruptedExitCode is what ffmpeg exits with after handling SIGINT/SIGTERM.
const interruptedExitCode = 255

// diagnosticsLimit bounds the stderr tail kept in a Completion.
const diagnosticsLimit = 4096

// Runner executes ffmpeg commands on the local system.
type Runner struct {
	config Config
}

// NewRunner creates a new Runner.
func NewRunner(config Config) *Runner {
	if config.BinaryPath == "" {
		config.BinaryPath = "ffmpeg"
	}
	if config.WaitDelay <= 0 {
		config.WaitDelay = 5 * time.Second
	}
	return &Runner{config: config}
}

// BinaryPath returns the configured binary.
func (r *Runner) BinaryPath() string {
	return r.config.BinaryPath
}

// Run executes cmd and maps the outcome to a completion status.
// Cancelling ctx interrupts ffmpeg gracefully and yields StatusCancelled.
// A per-command timeout yields StatusFailed.
func (r *Runner) Run(ctx context.Context, cmd Command) Completion {
	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, cmd.Timeout)
		defer cancelTimeout()
	}

	c := exec.CommandContext(runCtx, r.config.BinaryPath, cmd.Args...)
	c.Cancel = func() error {
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = r.config.WaitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	zlog.Debug().Msgf("ffmpeg: executing: %s %s", r.config.BinaryPath, cmd.String())

	start := time.Now()
	err := c.Run()
	completion := Completion{
		ExitCode:    exitCode(err),
		Diagnostics: tail(stderr.String(), diagnosticsLimit),
		Duration:    time.Since(start),
		Err:         err,
	}

	switch {
	case err == nil:
		completion.Status = StatusSuccess
	case ctx.Err() != nil:
		// Caller cancelled
		completion.Status = StatusCancelled
	case runCtx.Err() == context.DeadlineExceeded:
		completion.Status = StatusFailed
		completion.Err = errors.Wrapf(err, "ffmpeg timed out after %v", cmd.Timeout)
	case completion.ExitCode == interruptedExitCode && strings.Contains(stderr.String(), "received signal"):
		// Interrupted from outside (e.g. operator Ctrl+C)
		completion.Status = StatusCancelled
	default:
		completion.Status = StatusFailed
	}

	zlog.Debug().Msgf("ffmpeg: finished: status=%s exit_code=%d duration=%v",
		completion.Status, completion.ExitCode, completion.Duration)
	return completion
}

// HealthCheck verifies that the configured binary is available.
func (r *Runner) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(r.config.BinaryPath); err != nil {
		return errors.Wrapf(err, "ffmpeg not available at %s", r.config.BinaryPath)
	}
	return nil
}

// exitCode extracts the exit code from a process error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// tail returns at most the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
