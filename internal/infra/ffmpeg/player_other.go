//go:build !unix

package ffmpeg

// FFplayPlayer is unavailable on this platform.
type FFplayPlayer struct{}

// NewFFplayPlayer returns a player whose operations fail with ErrUnsupported.
func NewFFplayPlayer(binaryPath, path string) *FFplayPlayer {
	return &FFplayPlayer{}
}

// Play returns ErrUnsupported.
func (p *FFplayPlayer) Play() error { return ErrUnsupported }

// Pause returns ErrUnsupported.
func (p *FFplayPlayer) Pause() error { return ErrUnsupported }

// Release is a no-op.
func (p *FFplayPlayer) Release() error { return nil }

// Done returns nil.
func (p *FFplayPlayer) Done() <-chan struct{} { return nil }
