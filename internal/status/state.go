package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/srvmarket/srvchat/internal/bus"
)

// State is a synchronizer lifecycle phase.
type State string

const (
	Idle    State = "IDLE"
	Loading State = "LOADING"
	Loaded  State = "LOADED"
	Errored State = "ERRORED"
)

// validTransitions defines allowed state transitions. Every phase may return to Idle on
// teardown; Loaded and Errored go back to Loading on refresh or retry.
var validTransitions = map[State][]State{
	Idle:    {Loading},
	Loading: {Loaded, Errored, Idle},
	Loaded:  {Loading, Idle},
	Errored: {Loading, Idle},
}

// Machine tracks and enforces lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.set(to)
	return nil
}

// Reset returns the machine to Idle from any state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != Idle {
		m.set(Idle)
	}
}

func (m *Machine) set(to State) {
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStateChanged,
			Timestamp: m.since,
			Payload:   StatusChange{From: from, To: to},
		})
	}
}

// StatusChange is the payload for state change events.
type StatusChange struct {
	From State
	To   State
}
