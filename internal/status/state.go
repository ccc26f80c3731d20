package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/store"
)

// validTransitions defines the allowed connection lifecycle moves. The
// transport drives the machine; anything outside this table is a bug in the
// caller, not a recoverable condition.
var validTransitions = map[store.ConnectionState][]store.ConnectionState{
	store.ConnOffline:      {store.ConnConnecting},
	store.ConnConnecting:   {store.ConnOnline, store.ConnReconnecting, store.ConnFailed, store.ConnOffline},
	store.ConnOnline:       {store.ConnReconnecting, store.ConnOffline},
	store.ConnReconnecting: {store.ConnConnecting, store.ConnOnline, store.ConnFailed, store.ConnOffline},
	store.ConnFailed:       {store.ConnConnecting, store.ConnOffline},
}

// Machine tracks the real-time connection state, mirrors it into the store,
// and announces changes on the bus.
type Machine struct {
	mu      sync.RWMutex
	current store.ConnectionState
	store   *store.Store
	bus     *bus.Bus
}

// Change is the payload for connection change events.
type Change struct {
	From store.ConnectionState
	To   store.ConnectionState
}

// NewMachine creates a machine starting offline.
func NewMachine(st *store.Store, b *bus.Bus) *Machine {
	return &Machine{current: store.ConnOffline, store: st, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() store.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. A transition to the current
// state is a no-op; an invalid transition returns an error and changes
// nothing.
func (m *Machine) Transition(to store.ConnectionState) error {
	m.mu.Lock()
	if m.current == to {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid connection transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.store != nil {
		m.store.SetConnectionStatus(to)
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Topic:     bus.TopicConnChanged,
			Timestamp: time.Now(),
			Payload:   Change{From: from, To: to},
		})
	}
	return nil
}
