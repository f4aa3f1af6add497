// Package notification provides the listener registry for "playback started" broadcasts.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Listener is notified whenever a new playback session begins.
type Listener interface {
	PlaybackStarted()
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func()

// PlaybackStarted calls f.
func (f ListenerFunc) PlaybackStarted() {
	f()
}

// subscription represents a registered listener.
type subscription struct {
	id       string
	listener Listener
	keyed    bool // listener is indexed in byListener
}

// Manager manages listener subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	byListener    map[Listener]string // hashable listeners only
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		byListener:    make(map[Listener]string),
	}
}

// Subscribe adds a listener and returns its subscription ID.
// Subscribing the same hashable listener again returns the existing ID.
// Listeners that cannot be used as a map key always get a new subscription.
func (m *Manager) Subscribe(l Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found, keyed := m.lookupLocked(l)
	if found {
		return existing
	}

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:       id,
		listener: l,
		keyed:    keyed,
	}
	if keyed {
		m.byListener[l] = id
	}
	return id
}

// lookupLocked finds the subscription of l. keyed is false when l is nil or
// its dynamic value is not hashable (e.g. a struct holding a func in an interface field).
// Must be called with m.mu held.
func (m *Manager) lookupLocked(l Listener) (id string, found, keyed bool) {
	if l == nil {
		return "", false, false
	}
	defer func() {
		if r := recover(); r != nil {
			id, found, keyed = "", false, false
		}
	}()
	id, found = m.byListener[l]
	return id, found, true
}

// SubscribeFunc registers fn. Each call creates a distinct subscription.
func (m *Manager) SubscribeFunc(fn func()) string {
	return m.Subscribe(ListenerFunc(fn))
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return
	}
	delete(m.subscriptions, subscriptionID)
	if sub.keyed {
		delete(m.byListener, sub.listener)
	}
}

// Broadcast notifies every subscriber synchronously and returns the sequence number
// of this broadcast. Delivery order is unspecified.
// Listeners are called without the lock held, so they may subscribe or unsubscribe.
func (m *Manager) Broadcast() uint64 {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	currentSequenceNo := m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during delivery
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, currentSequenceNo)
	}
	return currentSequenceNo
}

// deliver calls one listener; a panicking listener does not stop the broadcast.
func deliver(sub *subscription, seq uint64) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("notification: listener panicked: subscription=%s seq=%d panic=%v", sub.id, seq, r)
		}
	}()
	sub.listener.PlaybackStarted()
}

// SequenceNo returns the number of broadcasts sent so far.
func (m *Manager) SequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	return m.sequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
	m.byListener = make(map[Listener]string)
}
