// Package merge concatenates recorded audio fragments into one file with an external engine.
package merge

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/quranload/audiocore/internal/infra/ffmpeg"
	"github.com/quranload/audiocore/internal/infra/metrics"
)

// Errors
var (
	ErrNoFragments     = errors.New("no fragments to merge")
	ErrInvalidFragment = errors.New("invalid fragment")
	ErrMergeFailed     = errors.New("merge failed")
	ErrCancelled       = errors.New("merge cancelled")
)

// Status is the outcome of a merge.
type Status int

const (
	StatusSuccess   Status = iota // Output written
	StatusCancelled               // Abandoned on purpose, no output
	StatusFailed                  // Invalid input or engine failure
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

// Result is the settled outcome of one merge.
type Result struct {
	Status      Status
	Path        string // Output path, set on success
	Err         error  // nil on success
	Diagnostics string // Engine stderr tail on failure
}

// OK reports whether the merge produced an output file.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Engine runs a merge command and reports how it completed.
type Engine interface {
	Run(ctx context.Context, cmd ffmpeg.Command) ffmpeg.Completion
}

// Config holds concatenator configuration.
type Config struct {
	Profile           Profile
	Timeout           time.Duration // Per-run engine deadline (0 = none)
	VerifyInputs      bool          // Run the fragment check chain before the engine
	AllowedExtensions []string      // Empty allows any extension
	FragmentRoot      string        // Fragments must live under this directory (empty = anywhere)
}

// maxPathAttempts bounds how often a colliding output name is regenerated.
const maxPathAttempts = 3

// Concatenator merges ordered fragments into a single re-encoded file.
// It is stateless between calls and never retries a failed run.
type Concatenator struct {
	engine    Engine
	config    Config
	checks    *CheckChain
	newSuffix func() string
}

// NewConcatenator creates a new concatenator.
func NewConcatenator(engine Engine, config Config) *Concatenator {
	checks := NewCheckChain(NonEmptyPathCheck{})
	if config.FragmentRoot != "" {
		checks.Add(NewWithinRootCheck(config.FragmentRoot))
	}
	if config.VerifyInputs {
		checks.Add(RegularFileCheck{})
		checks.Add(NewExtensionCheck(config.AllowedExtensions))
	}

	names := make([]string, 0, len(checks.Checks()))
	for _, check := range checks.Checks() {
		names = append(names, check.Name())
	}
	zlog.Debug().Msgf("merge: fragment checks: %s", strings.Join(names, ","))

	return &Concatenator{
		engine: engine,
		config: config,
		checks: checks,
		newSuffix: func() string {
			return uuid.New().String()
		},
	}
}

// Plan validates fragments and returns the command and output path a merge would use.
func (c *Concatenator) Plan(fragments []string) (ffmpeg.Command, string, error) {
	if len(fragments) == 0 {
		return ffmpeg.Command{}, "", ErrNoFragments
	}
	if i, result := c.checks.Execute(fragments); !result.Accepted {
		return ffmpeg.Command{}, "", errors.Wrapf(ErrInvalidFragment, "fragment %d (%s): %s", i, fragments[i], result.Code)
	}

	output, err := c.freshOutputPath(fragments)
	if err != nil {
		return ffmpeg.Command{}, "", err
	}

	cmd := BuildCommand(fragments, output, c.config.Profile)
	cmd.Timeout = c.config.Timeout
	return cmd, output, nil
}

// Concatenate merges fragments and returns the settled result.
// Every path through this method settles: success, cancelled, or failed.
func (c *Concatenator) Concatenate(ctx context.Context, fragments []string) Result {
	cmd, output, err := c.Plan(fragments)
	if err != nil {
		metrics.RecordMerge(StatusFailed.String(), len(fragments), 0)
		zlog.Warn().Msgf("merge: rejected: fragments=%d error=%v", len(fragments), err)
		return Result{Status: StatusFailed, Err: err}
	}
	return c.run(ctx, fragments, cmd, output)
}

// Submit starts a merge in the background. The job settles exactly once.
func (c *Concatenator) Submit(ctx context.Context, fragments []string) *Job {
	cmd, output, err := c.Plan(fragments)
	if err != nil {
		metrics.RecordMerge(StatusFailed.String(), len(fragments), 0)
		return settledJob(Result{Status: StatusFailed, Err: err})
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := newJob(output, cancel)
	go func() {
		defer cancel()
		job.settle(c.run(jobCtx, fragments, cmd, output))
	}()
	return job
}

// run invokes the engine and maps its completion signal to a Result.
func (c *Concatenator) run(ctx context.Context, fragments []string, cmd ffmpeg.Command, output string) Result {
	// Someone else created the output after it was planned; leave their file alone
	if _, err := os.Stat(output); err == nil {
		err := errors.Mark(errors.Newf("output %s already exists", output), ErrMergeFailed)
		metrics.RecordMerge(StatusFailed.String(), len(fragments), 0)
		zlog.Error().Msgf("merge: failed: error=%v", err)
		return Result{Status: StatusFailed, Err: err}
	}

	zlog.Info().Msgf("merge: started: fragments=%d output=%s", len(fragments), output)

	completion := c.engine.Run(ctx, cmd)

	var result Result
	switch completion.Status {
	case ffmpeg.StatusSuccess:
		result = Result{Status: StatusSuccess, Path: output}
		zlog.Info().Msgf("merge: finished: output=%s duration=%v", output, completion.Duration)

	case ffmpeg.StatusCancelled:
		removePartial(output, completion)
		result = Result{Status: StatusCancelled, Err: ErrCancelled}
		zlog.Info().Msgf("merge: cancelled: output=%s", output)

	default:
		removePartial(output, completion)
		result = Result{
			Status:      StatusFailed,
			Err:         engineError(completion),
			Diagnostics: completion.Diagnostics,
		}
		zlog.Error().Msgf("merge: failed: exit_code=%d error=%v", completion.ExitCode, result.Err)
	}

	metrics.RecordMerge(result.Status.String(), len(fragments), completion.Duration.Seconds())
	return result
}

// freshOutputPath picks an output name that does not exist yet.
func (c *Concatenator) freshOutputPath(fragments []string) (string, error) {
	for attempt := 0; attempt < maxPathAttempts; attempt++ {
		output := OutputPath(fragments, c.newSuffix(), c.config.Profile.Extension)
		if _, err := os.Stat(output); os.IsNotExist(err) {
			return output, nil
		}
	}
	return "", errors.Newf("could not find a free output name after %d attempts", maxPathAttempts)
}

// engineError builds the failure error, carrying the engine's stderr as detail.
func engineError(completion ffmpeg.Completion) error {
	cause := completion.Err
	if cause == nil {
		cause = errors.New("engine reported failure")
	}
	err := errors.Mark(errors.Wrapf(cause, "ffmpeg exited with code %d", completion.ExitCode), ErrMergeFailed)
	if completion.Diagnostics != "" {
		err = errors.WithDetail(err, completion.Diagnostics)
	}
	return err
}

// outputCollisionMarker is what ffmpeg prints when -n finds the output already present.
const outputCollisionMarker = "already exists"

// removePartial deletes an incomplete output file. Input fragments are never touched,
// and neither is an output the engine refused to overwrite.
func removePartial(output string, completion ffmpeg.Completion) {
	if strings.Contains(completion.Diagnostics, outputCollisionMarker) {
		zlog.Warn().Msgf("merge: output created by another writer, left in place: path=%s", output)
		return
	}
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		zlog.Warn().Msgf("merge: failed to remove partial output: path=%s error=%v", output, err)
	}
}
