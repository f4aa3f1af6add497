package playback

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/quranload/audiocore/internal/domain/audio"
)

// Handle is a caller-owned reference to a loaded audio resource.
// The coordinator only observes handles; Release is the caller's job.
//
// Lock order: Coordinator.mu before Handle.mu. Release never holds both.
type Handle struct {
	id     string
	player audio.Player
	coord  *Coordinator

	// mu serializes hardware calls so none reaches a released player
	mu          sync.Mutex
	releaseOnce sync.Once
	released    atomic.Bool
	releaseErr  error
}

// ID returns the handle identity.
func (h *Handle) ID() string {
	return h.id
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Release clears the coordinator's active slot if it points at h and then
// releases the underlying player. Safe to call more than once; intended for defer.
func (h *Handle) Release() error {
	h.releaseOnce.Do(func() {
		h.coord.forget(h)

		h.mu.Lock()
		defer h.mu.Unlock()
		h.releaseErr = h.player.Release()
	})
	return h.releaseErr
}

// play starts the player unless the handle has been released.
func (h *Handle) play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Released() {
		return ErrHandleReleased
	}
	return h.player.Play()
}

// pause pauses the player. A released handle is left alone.
func (h *Handle) pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Released() {
		return nil
	}
	return h.player.Pause()
}

func newHandle(c *Coordinator, p audio.Player) *Handle {
	return &Handle{
		id:     uuid.New().String(),
		player: p,
		coord:  c,
	}
}
