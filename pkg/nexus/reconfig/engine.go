package reconfig

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusd/nexuscore/internal/logger"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/child/state"
)

// EventKind identifies a reconfiguration event.
type EventKind int

const (
	// EventAddChild adds a child to the set, in the given initial state.
	EventAddChild EventKind = iota

	// EventRemoveChild removes a child from the set.
	EventRemoveChild

	// EventSetState transitions an existing child to a new state (e.g. on
	// IO failure, rebuild completion, or an operator Offline/Online request).
	EventSetState
)

// Event is a single mutation submitted to the engine's queue.
type Event struct {
	Kind   EventKind
	Child  ChildView
	result chan error
}

// Engine is the single-writer reconfiguration queue for one Nexus. All
// mutations to the child set go through Submit, which enqueues an Event
// and blocks until the engine's single goroutine has applied it and every
// registered consumer has acknowledged the resulting snapshot (or the ack
// timeout elapsed).
type Engine struct {
	ackTimeout time.Duration
	events     chan Event

	mu        sync.Mutex
	children  []ChildView
	machines  map[string]*state.Machine
	version   uint64
	consumers []*Consumer

	stopped chan struct{}
}

// NewEngine returns an Engine with an empty child set. ackTimeout bounds
// how long Submit waits for a consumer to acknowledge a refresh before
// proceeding anyway (a consumer that never acks is a liveness bug
// elsewhere, not a reason to wedge every future reconfiguration).
func NewEngine(ackTimeout time.Duration) *Engine {
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	return &Engine{
		ackTimeout: ackTimeout,
		events:     make(chan Event),
		machines:   make(map[string]*state.Machine),
		stopped:    make(chan struct{}),
	}
}

// eventForTransition picks the state.Machine event that drives current to
// target, or false if no single edge reaches target from current.
func eventForTransition(current, target state.State) (state.Event, bool) {
	switch target {
	case state.Open:
		if current == state.RebuildDst {
			return state.EventRebuildComplete, true
		}
		return state.EventOpened, true
	case state.RebuildDst:
		return state.EventAddedForRebuild, true
	case state.Faulted:
		return state.EventIOFailed, true
	case state.Closed:
		return state.EventRemoved, true
	default:
		return 0, false
	}
}

// Consumer is a per-reactor handle on the engine's published snapshots.
// Reactors load Current() before issuing I/O and never hold a lock across
// an awaited child operation; the engine is the only writer.
type Consumer struct {
	id       int
	snapshot atomic.Pointer[Snapshot]
	refresh  chan *Snapshot
	ack      chan struct{}
}

// Current returns the consumer's most recently published snapshot.
func (c *Consumer) Current() *Snapshot {
	return c.snapshot.Load()
}

// Run starts the consumer's refresh-acknowledgement loop. It returns when
// ctx is cancelled. Reactors that also need to act on state transitions
// (e.g. stop submitting to a child that just faulted) observe that by
// calling Current() before each I/O; Run here only serves the ack
// protocol, which exists to bound how long a reconfiguration waits for a
// reactor to be scheduled at all.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-c.refresh:
			c.snapshot.Store(snap)
			select {
			case c.ack <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// RegisterConsumer adds a new reactor consumer, seeded with the engine's
// current snapshot. Callers must start Consumer.Run in a goroutine before
// the first reconfiguration that should reach it.
func (e *Engine) RegisterConsumer() *Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Consumer{
		id:      len(e.consumers),
		refresh: make(chan *Snapshot, 1),
		ack:     make(chan struct{}, 1),
	}
	c.snapshot.Store(e.currentSnapshotLocked())
	e.consumers = append(e.consumers, c)
	return c
}

func (e *Engine) currentSnapshotLocked() *Snapshot {
	children := make([]ChildView, len(e.children))
	copy(children, e.children)
	return &Snapshot{Version: e.version, Children: children}
}

// Run drains the event queue on the calling goroutine until ctx is
// cancelled. There is exactly one Run goroutine per Engine; that goroutine
// is the single writer the reconfiguration protocol depends on.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			err := e.apply(ev)
			ev.result <- err
		}
	}
}

// Submit enqueues ev and blocks until it has been applied and
// acknowledged (or the ack timeout elapsed). It is safe to call from any
// goroutine; Submit itself does not mutate state, only Run does.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	ev.result = make(chan error, 1)
	select {
	case e.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return fmt.Errorf("reconfiguration engine stopped")
	}

	select {
	case err := <-ev.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply mutates the child set for ev, publishes the resulting snapshot to
// every consumer, and waits for each to acknowledge before returning. Every
// state change, whether a new child's initial state or an existing child's
// transition, is driven through a state.Machine so an illegal transition
// (e.g. promoting a Closed child back to Open) is rejected with Internal
// rather than silently applied.
func (e *Engine) apply(ev Event) error {
	e.mu.Lock()
	switch ev.Kind {
	case EventAddChild:
		for _, c := range e.children {
			if c.URI == ev.Child.URI {
				e.mu.Unlock()
				return fmt.Errorf("child %s already present", ev.Child.URI)
			}
		}
		m := state.NewMachine()
		mev, ok := eventForTransition(m.Current(), ev.Child.State)
		if !ok {
			e.mu.Unlock()
			return cerrors.NewInternalError(fmt.Sprintf("no state machine event reaches %s for new child %s", ev.Child.State, ev.Child.URI))
		}
		if err := m.Transition(mev); err != nil {
			e.mu.Unlock()
			return cerrors.NewInternalError(err.Error())
		}
		ev.Child.State = m.Current()
		e.machines[ev.Child.URI] = m
		e.children = append(e.children, ev.Child)

	case EventRemoveChild:
		found := false
		next := e.children[:0:0]
		for _, c := range e.children {
			if c.URI == ev.Child.URI {
				found = true
				continue
			}
			next = append(next, c)
		}
		if !found {
			e.mu.Unlock()
			return fmt.Errorf("child %s not present", ev.Child.URI)
		}
		e.children = next
		delete(e.machines, ev.Child.URI)

	case EventSetState:
		found := false
		for i, c := range e.children {
			if c.URI == ev.Child.URI {
				m, ok := e.machines[ev.Child.URI]
				if !ok {
					e.mu.Unlock()
					return cerrors.NewInternalError(fmt.Sprintf("child %s has no tracked state machine", ev.Child.URI))
				}
				mev, ok := eventForTransition(m.Current(), ev.Child.State)
				if !ok {
					e.mu.Unlock()
					return cerrors.NewInternalError(fmt.Sprintf("no state machine event reaches %s from %s for child %s", ev.Child.State, m.Current(), ev.Child.URI))
				}
				if err := m.Transition(mev); err != nil {
					e.mu.Unlock()
					return cerrors.NewInternalError(err.Error())
				}
				e.children[i].State = m.Current()
				found = true
				break
			}
		}
		if !found {
			e.mu.Unlock()
			return fmt.Errorf("child %s not present", ev.Child.URI)
		}

	default:
		e.mu.Unlock()
		return fmt.Errorf("unknown reconfiguration event kind %d", ev.Kind)
	}

	e.version++
	snap := e.currentSnapshotLocked()
	consumers := make([]*Consumer, len(e.consumers))
	copy(consumers, e.consumers)
	e.mu.Unlock()

	e.broadcastAndAwaitAck(snap, consumers)
	return nil
}

func (e *Engine) broadcastAndAwaitAck(snap *Snapshot, consumers []*Consumer) {
	deadline := time.Now().Add(e.ackTimeout)
	for _, c := range consumers {
		select {
		case c.refresh <- snap:
		default:
			// consumer hasn't drained a prior refresh yet; swap the
			// snapshot directly so it observes the latest version even if
			// the ack for an in-flight refresh never arrives.
			c.snapshot.Store(snap)
			continue
		}

		select {
		case <-c.ack:
		case <-time.After(time.Until(deadline)):
			logger.Warn("reconfiguration consumer did not ack in time", "consumer", c.id, "version", snap.Version)
			c.snapshot.Store(snap)
		}
	}
}

// CurrentSnapshot returns the engine's latest snapshot without going
// through a registered consumer, for callers (RPC handlers, tests) that
// only need a point-in-time read rather than a reactor's ack-bound view.
func (e *Engine) CurrentSnapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentSnapshotLocked()
}
