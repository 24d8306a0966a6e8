// Package state implements the Child state machine: Init, Open, Faulted,
// Closed, and the transient Rebuild-Dst state a child occupies while it is
// the destination of a rebuild job.
package state

import "fmt"

// State is a child's lifecycle state.
type State int

const (
	// Init is the state of a child before its first successful Open.
	Init State = iota

	// Open is a healthy child serving reads and writes.
	Open

	// RebuildDst is a child being populated by a rebuild job. It accepts
	// writes issued by the foreground write-fan-out path (kept current with
	// the other children) but is not yet a read candidate.
	RebuildDst

	// Faulted is a child that failed an I/O or handshake and has been
	// removed from the write fan-out and read rotation.
	Faulted

	// Closed is a child that was explicitly removed from its Nexus.
	Closed
)

// String returns the Mayastor-style name for the state, used in log fields
// and RPC responses.
func (s State) String() string {
	switch s {
	case Init:
		return "CHILD_INIT"
	case Open:
		return "CHILD_ONLINE"
	case RebuildDst:
		return "CHILD_DEGRADED"
	case Faulted:
		return "CHILD_FAULTED"
	case Closed:
		return "CHILD_CLOSED"
	default:
		return fmt.Sprintf("CHILD_UNKNOWN(%d)", int(s))
	}
}

// Event is a state machine input.
type Event int

const (
	// EventOpened fires when a child's Device.Open succeeds.
	EventOpened Event = iota

	// EventAddedForRebuild fires when a child is added to a Nexus that
	// already has other Online children, so it must be rebuilt before it
	// can serve reads.
	EventAddedForRebuild

	// EventRebuildComplete fires when a rebuild job targeting this child
	// finishes copying every segment.
	EventRebuildComplete

	// EventIOFailed fires when a read, write, or flush against this child
	// returns an error.
	EventIOFailed

	// EventOffline fires on an operator-requested OfflineChild RPC.
	EventOffline

	// EventRemoved fires when the child is removed from its Nexus.
	EventRemoved
)

// transitions enumerates every legal (from, event) -> to mapping. A state
// machine this size doesn't need a generated table; a literal map is
// clearer and this is the full set of allowed edges.
var transitions = map[State]map[Event]State{
	Init: {
		EventOpened:          Open,
		EventAddedForRebuild: RebuildDst,
		EventIOFailed:        Faulted,
		EventRemoved:         Closed,
	},
	Open: {
		EventIOFailed: Faulted,
		EventOffline:  Faulted,
		EventRemoved:  Closed,
	},
	RebuildDst: {
		EventRebuildComplete: Open,
		EventIOFailed:        Faulted,
		EventOffline:         Faulted,
		EventRemoved:         Closed,
	},
	Faulted: {
		EventOpened:          Open,
		EventAddedForRebuild: RebuildDst,
		EventRemoved:         Closed,
	},
}

// Machine is a single child's state machine. It is not safe for concurrent
// use by multiple goroutines; callers serialize transitions through the
// reconfiguration engine's single-writer queue.
type Machine struct {
	current State
}

// NewMachine returns a Machine starting in Init.
func NewMachine() *Machine {
	return &Machine{current: Init}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	return m.current
}

// Transition applies event to the machine, returning an error if the
// transition is not legal from the current state.
func (m *Machine) Transition(event Event) error {
	edges, ok := transitions[m.current]
	if !ok {
		return fmt.Errorf("child state %s has no outgoing transitions", m.current)
	}
	next, ok := edges[event]
	if !ok {
		return fmt.Errorf("event %d not valid from child state %s", event, m.current)
	}
	m.current = next
	return nil
}

// IsReadCandidate reports whether a child in this state may serve reads.
func (s State) IsReadCandidate() bool {
	return s == Open
}

// IsWriteTarget reports whether a child in this state should receive
// foreground write fan-out.
func (s State) IsWriteTarget() bool {
	return s == Open || s == RebuildDst
}
