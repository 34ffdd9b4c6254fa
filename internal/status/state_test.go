package status

import (
	"testing"

	"github.com/srvmarket/srvchat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Loading},
		{Loading, Loaded},
		{Loading, Errored},
		{Loading, Idle},
		{Loaded, Loading},
		{Loaded, Idle},
		{Errored, Loading},
		{Errored, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Loaded},
		{Idle, Errored},
		{Loaded, Errored},
		{Errored, Loaded},
		{Loading, Loading},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Loading); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStateChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStateChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Idle || change.To != Loading {
		t.Errorf("change = %v -> %v, want IDLE -> LOADING", change.From, change.To)
	}
}

// TestRetryAfterError walks Idle -> Loading -> Errored -> Loading -> Loaded.
func TestRetryAfterError(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{Loading, Errored, Loading, Loaded}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Loaded {
		t.Errorf("final state = %s, want LOADED", m.Current())
	}
}

func TestResetFromAnyState(t *testing.T) {
	for _, s := range []State{Idle, Loading, Loaded, Errored} {
		m := NewMachine(nil)
		walkTo(t, m, s)
		m.Reset()
		if m.Current() != Idle {
			t.Errorf("Reset from %s: state = %s, want IDLE", s, m.Current())
		}
	}
}

func TestResetFromIdleIsSilent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	NewMachine(b).Reset()

	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	default:
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:    {},
		Loading: {Loading},
		Loaded:  {Loading, Loaded},
		Errored: {Loading, Errored},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
