package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quranload/audiocore/internal/app/notification"
	"github.com/quranload/audiocore/internal/domain/audio"
	"github.com/quranload/audiocore/internal/infra/metrics"
)

// Errors
var (
	ErrHandleReleased      = errors.New("handle has been released")
	ErrForeignHandle       = errors.New("handle belongs to another coordinator")
	ErrPlaybackUnavailable = errors.New("playback unavailable")
)

// Config holds coordinator configuration.
type Config struct {
	Mode           audio.SessionMode // Session mode applied before every start
	SessionTimeout time.Duration     // Deadline for session reconfiguration (0 = none)
}

// Coordinator keeps at most one handle playing across the process.
// It holds a non-owning reference to the active handle and never releases it.
type Coordinator struct {
	mu     sync.Mutex
	active *Handle

	session   audio.Session
	listeners *notification.Manager
	config    Config
}

// NewCoordinator creates a new playback coordinator.
func NewCoordinator(session audio.Session, config Config) *Coordinator {
	return &Coordinator{
		session:   session,
		listeners: notification.NewManager(),
		config:    config,
	}
}

// NewHandle wraps a caller-owned player. The caller must Release the handle.
func (c *Coordinator) NewHandle(p audio.Player) *Handle {
	return newHandle(c, p)
}

// Play makes h the only active handle and starts it.
// A nil handle is a no-op. Any other active handle is paused first, listeners are
// notified, and the audio session is switched to playback mode before h starts.
func (c *Coordinator) Play(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if h.coord != c {
		return ErrForeignHandle
	}
	if h.Released() {
		return ErrHandleReleased
	}

	c.mu.Lock()
	if c.active != nil && c.active != h {
		if err := c.preempt(c.active); err != nil {
			c.mu.Unlock()
			return err
		}
		c.active = nil
	}
	c.mu.Unlock()

	seq := c.listeners.Broadcast()
	zlog.Debug().Msgf("playback: session started: handle=%s seq=%d listeners=%d",
		h.ID(), seq, c.listeners.SubscriberCount())

	if err := c.configureSession(ctx); err != nil {
		metrics.RecordPlaybackSessionError()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h.Released() {
		return ErrHandleReleased
	}

	// Another Play may have committed while the session was being configured
	if c.active != nil && c.active != h {
		if err := c.preempt(c.active); err != nil {
			return err
		}
	}

	c.active = h
	if err := h.play(); err != nil {
		c.active = nil
		return errors.Wrapf(err, "failed to start handle %s", h.ID())
	}

	metrics.RecordPlaybackStart()
	zlog.Debug().Msgf("playback: handle active: handle=%s", h.ID())
	return nil
}

// Pause clears the active slot if it holds h, then pauses h.
// Pausing a released handle or nil is a no-op.
func (c *Coordinator) Pause(h *Handle) error {
	if h == nil {
		return nil
	}
	if h.coord != c {
		return ErrForeignHandle
	}

	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()

	if err := h.pause(); err != nil {
		return errors.Wrapf(err, "failed to pause handle %s", h.ID())
	}
	return nil
}

// Subscribe registers l for playback-started notifications.
// The returned function removes the registration and is safe to call more than once.
func (c *Coordinator) Subscribe(l notification.Listener) (unsubscribe func()) {
	return c.unsubscriber(c.listeners.Subscribe(l))
}

// OnPlayback registers fn for playback-started notifications.
// Every call is a separate registration.
func (c *Coordinator) OnPlayback(fn func()) (unsubscribe func()) {
	return c.unsubscriber(c.listeners.SubscribeFunc(fn))
}

func (c *Coordinator) unsubscriber(id string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { c.listeners.Unsubscribe(id) })
	}
}

// Broadcasts returns how many playback-started notifications have been sent.
func (c *Coordinator) Broadcasts() uint64 {
	return c.listeners.SequenceNo()
}

// Active returns the active handle.
func (c *Coordinator) Active() (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil, false
	}
	return c.active, true
}

// GetState returns the current coordinator state.
func (c *Coordinator) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return StateIdle
	}
	return StatePlaying
}

// ListenerCount returns the number of registered listeners.
func (c *Coordinator) ListenerCount() int {
	return c.listeners.SubscriberCount()
}

// Close drops every listener and the active reference. Handles are left to their owners.
func (c *Coordinator) Close() {
	c.listeners.Close()
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// preempt pauses a handle that is losing the active slot.
// Must be called with c.mu held.
func (c *Coordinator) preempt(prev *Handle) error {
	if prev.Released() {
		return nil
	}
	if err := prev.pause(); err != nil {
		return errors.Wrapf(err, "failed to pause previous handle %s", prev.ID())
	}
	metrics.RecordPlaybackPreemption()
	zlog.Debug().Msgf("playback: paused previous handle: handle=%s", prev.ID())
	return nil
}

// configureSession switches the audio session to playback mode.
func (c *Coordinator) configureSession(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	if c.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.SessionTimeout)
		defer cancel()
	}
	if err := c.session.SetMode(ctx, c.config.Mode); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to configure audio session"), ErrPlaybackUnavailable)
	}
	return nil
}

// forget marks h released and clears the active slot if it points at h.
func (c *Coordinator) forget(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h.released.Store(true)
	if c.active == h {
		c.active = nil
		zlog.Debug().Msgf("playback: active handle released: handle=%s", h.ID())
	}
}
