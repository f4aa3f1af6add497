package ffmpeg

import (
	"context"
	"os/exec"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quranload/audiocore/internal/domain/audio"
)

// Errors
var (
	ErrPlayerReleased = errors.New("player has been released")
	ErrUnsupported    = errors.New("ffplay playback is not supported on this platform")
)

// Verify implementations at compile time.
var (
	_ audio.Player  = (*FFplayPlayer)(nil)
	_ audio.Session = (*FFplaySession)(nil)
)

// playerArgs builds the ffplay arguments for headless playback of path.
func playerArgs(path string) []string {
	return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
}

// FFplaySession stands in for the platform audio session on desktops.
// SetMode only confirms that the player binary is available.
type FFplaySession struct {
	binaryPath string
}

// NewFFplaySession creates a session for the given ffplay binary.
func NewFFplaySession(binaryPath string) *FFplaySession {
	if binaryPath == "" {
		binaryPath = "ffplay"
	}
	return &FFplaySession{binaryPath: binaryPath}
}

// SetMode checks that ffplay can be started.
func (s *FFplaySession) SetMode(ctx context.Context, mode audio.SessionMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := exec.LookPath(s.binaryPath); err != nil {
		return errors.Wrapf(err, "ffplay not available at %s", s.binaryPath)
	}
	if mode.AllowsRecording {
		zlog.Debug().Msg("ffplay: session mode requests simultaneous recording, ignored on desktop")
	}
	return nil
}
