package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quranload/audiocore/internal/domain/audio"
)

// ============================================================================
// Test Doubles (Fakes)
// ============================================================================

// callLog records hardware calls across players in the order they happened.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// fakePlayer is a test double for audio.Player.
type fakePlayer struct {
	name string
	log  *callLog

	PlayErr    error
	PauseErr   error
	ReleaseErr error

	plays    atomic.Int32
	pauses   atomic.Int32
	releases atomic.Int32
}

func newFakePlayer(name string, log *callLog) *fakePlayer {
	return &fakePlayer{name: name, log: log}
}

func (p *fakePlayer) Play() error {
	p.plays.Add(1)
	p.log.add(p.name + ".play")
	return p.PlayErr
}

func (p *fakePlayer) Pause() error {
	p.pauses.Add(1)
	p.log.add(p.name + ".pause")
	return p.PauseErr
}

func (p *fakePlayer) Release() error {
	p.releases.Add(1)
	p.log.add(p.name + ".release")
	return p.ReleaseErr
}

// fakeSession is a test double for audio.Session.
type fakeSession struct {
	log *callLog

	ErrorToReturn error
	// Gate, when set, blocks SetMode until it is closed or ctx is done.
	Gate chan struct{}
	// Entered receives a value each time SetMode starts waiting on Gate.
	Entered chan struct{}

	mu    sync.Mutex
	modes []audio.SessionMode
}

func (s *fakeSession) SetMode(ctx context.Context, mode audio.SessionMode) error {
	s.mu.Lock()
	s.modes = append(s.modes, mode)
	s.mu.Unlock()
	if s.log != nil {
		s.log.add("session")
	}
	if s.Gate != nil {
		if s.Entered != nil {
			s.Entered <- struct{}{}
		}
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.ErrorToReturn
}

func (s *fakeSession) Modes() []audio.SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.SessionMode, len(s.modes))
	copy(out, s.modes)
	return out
}

func newTestCoordinator(session audio.Session) *Coordinator {
	return NewCoordinator(session, Config{Mode: audio.PlaybackMode()})
}

// ============================================================================
// Coordinator Tests
// ============================================================================

func TestCoordinator_PlayPausesPreviousBeforeStartingNext(t *testing.T) {
	log := &callLog{}
	c := newTestCoordinator(&fakeSession{log: log})
	a := c.NewHandle(newFakePlayer("a", log))
	b := c.NewHandle(newFakePlayer("b", log))

	require.NoError(t, c.Play(context.Background(), a))
	require.NoError(t, c.Play(context.Background(), b))

	assert.Equal(t, []string{
		"session", "a.play",
		"a.pause", "session", "b.play",
	}, log.snapshot())

	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, b, active)
	assert.Equal(t, StatePlaying, c.GetState())
}

func TestCoordinator_AtMostOneActiveHandle(t *testing.T) {
	log := &callLog{}
	c := newTestCoordinator(&fakeSession{})

	players := make([]*fakePlayer, 5)
	handles := make([]*Handle, 5)
	for i := range handles {
		players[i] = newFakePlayer(string(rune('a'+i)), log)
		handles[i] = c.NewHandle(players[i])
	}

	for round := 0; round < 3; round++ {
		for i, h := range handles {
			require.NoError(t, c.Play(context.Background(), h))
			active, ok := c.Active()
			require.True(t, ok)
			assert.Same(t, h, active, "round %d handle %d", round, i)

			// Every other handle must have been paused at least as often as it was played
			for j, p := range players {
				if j == i {
					continue
				}
				assert.GreaterOrEqual(t, p.pauses.Load(), p.plays.Load(),
					"handle %d still playing while %d is active", j, i)
			}
		}
	}
}

func TestCoordinator_PlayingSameHandleAgainDoesNotPauseIt(t *testing.T) {
	log := &callLog{}
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", log)
	h := c.NewHandle(p)

	require.NoError(t, c.Play(context.Background(), h))
	require.NoError(t, c.Play(context.Background(), h))

	assert.Equal(t, int32(0), p.pauses.Load())
	assert.Equal(t, int32(2), p.plays.Load())
}

func TestCoordinator_ListenersNotifiedOncePerPlay(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	h := c.NewHandle(newFakePlayer("a", &callLog{}))

	const n = 4
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		i := i
		unsubscribe := c.OnPlayback(func() { counts[i]++ })
		defer unsubscribe()
	}

	require.NoError(t, c.Play(context.Background(), h))
	require.NoError(t, c.Play(context.Background(), h))

	for i, got := range counts {
		assert.Equal(t, 2, got, "listener %d", i)
	}
}

func TestCoordinator_PlayNilIsNoop(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)

	var notified int
	unsubscribe := c.OnPlayback(func() { notified++ })
	defer unsubscribe()

	assert.NoError(t, c.Play(context.Background(), nil))
	assert.Equal(t, 0, notified)
	assert.Empty(t, session.Modes())
	assert.Equal(t, StateIdle, c.GetState())
}

func TestCoordinator_UnsubscribeStopsNotifications(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	h := c.NewHandle(newFakePlayer("a", &callLog{}))

	var notified int
	unsubscribe := c.OnPlayback(func() { notified++ })
	require.Equal(t, 1, c.ListenerCount())

	unsubscribe()
	unsubscribe()

	require.NoError(t, c.Play(context.Background(), h))
	assert.Equal(t, 0, notified)
	assert.Equal(t, 0, c.ListenerCount())
}

type stopIndicator struct {
	stopped atomic.Int32
}

func (s *stopIndicator) PlaybackStarted() {
	s.stopped.Add(1)
}

func TestCoordinator_SubscribeSameListenerTwiceIsIdempotent(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	h := c.NewHandle(newFakePlayer("a", &callLog{}))
	l := &stopIndicator{}

	unsubscribe1 := c.Subscribe(l)
	unsubscribe2 := c.Subscribe(l)
	defer unsubscribe1()
	defer unsubscribe2()

	require.NoError(t, c.Play(context.Background(), h))
	assert.Equal(t, int32(1), l.stopped.Load())
	assert.Equal(t, 1, c.ListenerCount())
}

func TestCoordinator_SessionConfiguredBeforePlayback(t *testing.T) {
	log := &callLog{}
	session := &fakeSession{log: log}
	c := newTestCoordinator(session)
	h := c.NewHandle(newFakePlayer("a", log))

	require.NoError(t, c.Play(context.Background(), h))

	assert.Equal(t, []string{"session", "a.play"}, log.snapshot())
	require.Len(t, session.Modes(), 1)
	assert.False(t, session.Modes()[0].AllowsRecording)
}

func TestCoordinator_SessionFailureIsPlaybackUnavailable(t *testing.T) {
	session := &fakeSession{ErrorToReturn: errors.New("audio session busy")}
	c := newTestCoordinator(session)
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	err := c.Play(context.Background(), h)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlaybackUnavailable))
	assert.Contains(t, err.Error(), "audio session busy")
	assert.Equal(t, int32(0), p.plays.Load(), "playback must not start without a session")
	assert.Equal(t, StateIdle, c.GetState())
}

func TestCoordinator_SessionTimeout(t *testing.T) {
	session := &fakeSession{Gate: make(chan struct{})}
	c := NewCoordinator(session, Config{Mode: audio.PlaybackMode(), SessionTimeout: 20 * time.Millisecond})
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	err := c.Play(context.Background(), h)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlaybackUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(0), p.plays.Load())
}

func TestCoordinator_HardwarePlayFailureClearsSlot(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})
	p.PlayErr = errors.New("device unavailable")
	h := c.NewHandle(p)

	err := c.Play(context.Background(), h)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unavailable")
	_, ok := c.Active()
	assert.False(t, ok)
}

func TestCoordinator_PauseClearsActiveSlot(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	require.NoError(t, c.Play(context.Background(), h))
	require.NoError(t, c.Pause(h))

	assert.Equal(t, StateIdle, c.GetState())
	assert.Equal(t, int32(1), p.pauses.Load())

	// Pausing again is harmless
	require.NoError(t, c.Pause(h))
	assert.Equal(t, int32(2), p.pauses.Load())
}

func TestCoordinator_PauseOfInactiveHandleKeepsActiveSlot(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	a := c.NewHandle(newFakePlayer("a", &callLog{}))
	b := c.NewHandle(newFakePlayer("b", &callLog{}))

	require.NoError(t, c.Play(context.Background(), a))
	require.NoError(t, c.Pause(b))

	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, a, active)
}

func TestCoordinator_PauseNilIsNoop(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	assert.NoError(t, c.Pause(nil))
}

func TestCoordinator_PauseErrorPropagates(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})
	p.PauseErr = errors.New("pause failed")
	h := c.NewHandle(p)

	require.NoError(t, c.Play(context.Background(), h))
	err := c.Pause(h)

	require.Error(t, err)
	assert.Equal(t, StateIdle, c.GetState(), "slot is cleared even when the hardware pause fails")
}

func TestCoordinator_PreemptionFailureAbortsPlay(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	pa := newFakePlayer("a", &callLog{})
	pa.PauseErr = errors.New("stuck")
	pb := newFakePlayer("b", &callLog{})
	a := c.NewHandle(pa)
	b := c.NewHandle(pb)

	require.NoError(t, c.Play(context.Background(), a))
	err := c.Play(context.Background(), b)

	require.Error(t, err)
	assert.Equal(t, int32(0), pb.plays.Load())
	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, a, active)
}

func TestCoordinator_Close(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)
	c.OnPlayback(func() {})

	require.NoError(t, c.Play(context.Background(), h))
	c.Close()

	assert.Equal(t, StateIdle, c.GetState())
	assert.Equal(t, 0, c.ListenerCount())
	assert.Equal(t, int32(0), p.releases.Load(), "coordinator never releases handles")
}

func TestCoordinator_NilSessionSkipsConfiguration(t *testing.T) {
	c := NewCoordinator(nil, Config{})
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	require.NoError(t, c.Play(context.Background(), h))
	assert.Equal(t, int32(1), p.plays.Load())
}

// ============================================================================
// Release Tests
// ============================================================================

func TestHandle_ReleaseInvalidatesActiveSlot(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	require.NoError(t, c.Play(context.Background(), h))
	require.NoError(t, h.Release())

	assert.True(t, h.Released())
	assert.Equal(t, StateIdle, c.GetState())

	// Subsequent pause is a safe no-op
	require.NoError(t, c.Pause(h))
	assert.Equal(t, int32(0), p.pauses.Load())
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})
	p.ReleaseErr = errors.New("already unloaded")
	h := c.NewHandle(p)

	err1 := h.Release()
	err2 := h.Release()

	assert.Equal(t, int32(1), p.releases.Load())
	assert.Error(t, err1)
	assert.Equal(t, err1, err2)
}

func TestHandle_ReleaseOfInactiveHandleKeepsActiveSlot(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	a := c.NewHandle(newFakePlayer("a", &callLog{}))
	b := c.NewHandle(newFakePlayer("b", &callLog{}))

	require.NoError(t, c.Play(context.Background(), a))
	require.NoError(t, b.Release())

	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, a, active)
}

func TestHandle_DeferredReleaseRunsOnEarlyReturn(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	p := newFakePlayer("a", &callLog{})

	play := func() error {
		h := c.NewHandle(p)
		defer h.Release()
		if err := c.Play(context.Background(), h); err != nil {
			return err
		}
		return errors.New("component failed")
	}

	require.Error(t, play())
	assert.Equal(t, int32(1), p.releases.Load())
	assert.Equal(t, StateIdle, c.GetState())
}

func TestCoordinator_PlayReleasedHandleFailsFast(t *testing.T) {
	session := &fakeSession{}
	c := newTestCoordinator(session)
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)
	require.NoError(t, h.Release())

	err := c.Play(context.Background(), h)

	assert.True(t, errors.Is(err, ErrHandleReleased))
	assert.Empty(t, session.Modes())
	assert.Equal(t, int32(0), p.plays.Load())
}

func TestHandle_IDsAreUnique(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	a := c.NewHandle(newFakePlayer("a", &callLog{}))
	b := c.NewHandle(newFakePlayer("b", &callLog{}))

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

// ============================================================================
// Suspension Tests
// ============================================================================

func TestCoordinator_PauseDuringSessionSetupIsNoop(t *testing.T) {
	session := &fakeSession{Gate: make(chan struct{}), Entered: make(chan struct{}, 1)}
	c := newTestCoordinator(session)
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	done := make(chan error, 1)
	go func() { done <- c.Play(context.Background(), h) }()

	<-session.Entered
	// Slot is not set yet; pausing has no target in the coordinator
	assert.Equal(t, StateIdle, c.GetState())
	require.NoError(t, c.Pause(h))

	close(session.Gate)
	require.NoError(t, <-done)

	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, h, active)
}

func TestCoordinator_ReleaseDuringSessionSetupAbortsPlay(t *testing.T) {
	session := &fakeSession{Gate: make(chan struct{}), Entered: make(chan struct{}, 1)}
	c := newTestCoordinator(session)
	p := newFakePlayer("a", &callLog{})
	h := c.NewHandle(p)

	done := make(chan error, 1)
	go func() { done <- c.Play(context.Background(), h) }()

	<-session.Entered
	require.NoError(t, h.Release())
	close(session.Gate)

	err := <-done
	assert.True(t, errors.Is(err, ErrHandleReleased))
	assert.Equal(t, int32(0), p.plays.Load())
	assert.Equal(t, StateIdle, c.GetState())
}

func TestCoordinator_OverlappingPlaysLeaveOneActive(t *testing.T) {
	session := &fakeSession{Gate: make(chan struct{}), Entered: make(chan struct{}, 2)}
	c := newTestCoordinator(session)
	pa := newFakePlayer("a", &callLog{})
	pb := newFakePlayer("b", &callLog{})
	a := c.NewHandle(pa)
	b := c.NewHandle(pb)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); assert.NoError(t, c.Play(context.Background(), a)) }()
	go func() { defer wg.Done(); assert.NoError(t, c.Play(context.Background(), b)) }()

	<-session.Entered
	<-session.Entered
	close(session.Gate)
	wg.Wait()

	active, ok := c.Active()
	require.True(t, ok)

	// The handle that lost the slot was paused after it started
	loser := pa
	if active == a {
		loser = pb
	}
	assert.Equal(t, int32(1), loser.plays.Load())
	assert.Equal(t, int32(1), loser.pauses.Load())
}

func TestCoordinator_ListenerMayPauseOwnHandle(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})
	pa := newFakePlayer("a", &callLog{})
	a := c.NewHandle(pa)
	b := c.NewHandle(newFakePlayer("b", &callLog{}))

	// A UI element that pauses its own handle when something else starts
	unsubscribe := c.OnPlayback(func() {
		if active, ok := c.Active(); ok && active == a {
			_ = c.Pause(a)
		}
	})
	defer unsubscribe()

	require.NoError(t, c.Play(context.Background(), a))
	require.NoError(t, c.Play(context.Background(), b))

	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, b, active)
}

// strictPlayer flags any hardware call made after Release.
type strictPlayer struct {
	released  atomic.Bool
	lateCalls atomic.Int32
}

func (p *strictPlayer) Play() error {
	if p.released.Load() {
		p.lateCalls.Add(1)
	}
	return nil
}

func (p *strictPlayer) Pause() error {
	if p.released.Load() {
		p.lateCalls.Add(1)
	}
	// Widen the window between the released check and the call
	time.Sleep(time.Microsecond)
	if p.released.Load() {
		p.lateCalls.Add(1)
	}
	return nil
}

func (p *strictPlayer) Release() error {
	p.released.Store(true)
	return nil
}

func TestCoordinator_RejectsForeignHandle(t *testing.T) {
	log := &callLog{}
	owner := newTestCoordinator(&fakeSession{})
	other := newTestCoordinator(&fakeSession{})
	player := newFakePlayer("a", log)
	h := owner.NewHandle(player)

	err := other.Play(context.Background(), h)
	assert.True(t, errors.Is(err, ErrForeignHandle))
	assert.True(t, errors.Is(other.Pause(h), ErrForeignHandle))
	assert.Equal(t, int32(0), player.plays.Load())
	assert.Equal(t, int32(0), player.pauses.Load())

	_, ok := other.Active()
	assert.False(t, ok)

	require.NoError(t, h.Release())
	assert.Equal(t, StateIdle, other.GetState())
	assert.Equal(t, StateIdle, owner.GetState())
}

func TestCoordinator_ZeroHandleIsForeign(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})

	assert.True(t, errors.Is(c.Play(context.Background(), &Handle{}), ErrForeignHandle))
	assert.True(t, errors.Is(c.Pause(&Handle{}), ErrForeignHandle))
}

func TestCoordinator_PauseRacingReleaseNeverReachesReleasedPlayer(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})

	for i := 0; i < 200; i++ {
		player := &strictPlayer{}
		h := c.NewHandle(player)
		require.NoError(t, c.Play(context.Background(), h))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Pause(h))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Release())
		}()
		wg.Wait()

		require.Equal(t, int32(0), player.lateCalls.Load(), "iteration %d", i)
		assert.Equal(t, StateIdle, c.GetState())
	}
}

func TestCoordinator_PlayRacingReleaseNeverReachesReleasedPlayer(t *testing.T) {
	c := newTestCoordinator(&fakeSession{})

	for i := 0; i < 200; i++ {
		prevPlayer := &strictPlayer{}
		prev := c.NewHandle(prevPlayer)
		require.NoError(t, c.Play(context.Background(), prev))

		player := &strictPlayer{}
		h := c.NewHandle(player)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			err := c.Play(context.Background(), h)
			if err != nil {
				assert.True(t, errors.Is(err, ErrHandleReleased))
			}
		}()
		go func() {
			defer wg.Done()
			_ = h.Release()
		}()
		go func() {
			defer wg.Done()
			_ = prev.Release()
		}()
		wg.Wait()

		require.Equal(t, int32(0), player.lateCalls.Load(), "iteration %d", i)
		require.Equal(t, int32(0), prevPlayer.lateCalls.Load(), "iteration %d", i)
		_, ok := c.Active()
		assert.False(t, ok, "released handles never stay active")
	}
}

func TestCoordinator_BroadcastsCountsNotifications(t *testing.T) {
	log := &callLog{}
	c := newTestCoordinator(&fakeSession{})
	a := c.NewHandle(newFakePlayer("a", log))

	assert.Equal(t, uint64(0), c.Broadcasts())
	require.NoError(t, c.Play(context.Background(), a))
	require.NoError(t, c.Play(context.Background(), nil))
	require.NoError(t, c.Play(context.Background(), a))

	assert.Equal(t, uint64(2), c.Broadcasts(), "Play(nil) does not notify")
}
