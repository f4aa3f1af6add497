//go:build unix

package ffmpeg

import (
	"os/exec"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// FFplayPlayer plays one file through an ffplay subprocess.
// Pause stops the process with SIGSTOP and Play resumes it with SIGCONT.
type FFplayPlayer struct {
	mu         sync.Mutex
	binaryPath string
	path       string

	cmd      *exec.Cmd
	done     chan struct{}
	paused   bool
	released bool
}

// NewFFplayPlayer creates a player for path. Nothing runs until Play.
func NewFFplayPlayer(binaryPath, path string) *FFplayPlayer {
	if binaryPath == "" {
		binaryPath = "ffplay"
	}
	return &FFplayPlayer{binaryPath: binaryPath, path: path}
}

// Play starts playback, resumes a paused process, or restarts a finished one.
func (p *FFplayPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return ErrPlayerReleased
	}

	if p.runningLocked() {
		if p.paused {
			if err := p.cmd.Process.Signal(syscall.SIGCONT); err != nil {
				return errors.Wrap(err, "failed to resume ffplay")
			}
			p.paused = false
		}
		return nil
	}

	cmd := exec.Command(p.binaryPath, playerArgs(p.path)...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start ffplay for %s", p.path)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	p.cmd = cmd
	p.done = done
	p.paused = false
	zlog.Debug().Msgf("ffplay: started: path=%s pid=%d", p.path, cmd.Process.Pid)
	return nil
}

// Pause suspends the ffplay process. Pausing an idle player is a no-op.
func (p *FFplayPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released || !p.runningLocked() || p.paused {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return errors.Wrap(err, "failed to pause ffplay")
	}
	p.paused = true
	return nil
}

// Release terminates the process and waits for it to exit.
func (p *FFplayPlayer) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	running := p.runningLocked()
	cmd, done := p.cmd, p.done
	p.mu.Unlock()

	if !running {
		return nil
	}

	// A stopped process has to be continued before it can handle the kill
	_ = cmd.Process.Signal(syscall.SIGCONT)
	if err := cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "failed to stop ffplay")
	}
	<-done
	return nil
}

// Done returns a channel closed when the current playback process exits.
// It returns nil before the first Play.
func (p *FFplayPlayer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// runningLocked reports whether a process was started and has not exited.
// Must be called with p.mu held.
func (p *FFplayPlayer) runningLocked() bool {
	if p.cmd == nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
