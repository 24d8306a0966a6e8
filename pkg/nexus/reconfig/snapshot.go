// Package reconfig implements the Reconfiguration Engine: the single
// writer that mutates a Nexus's child set and publishes immutable,
// per-reactor snapshots of it via atomic pointer swap so that reactors
// never take a lock across a suspension point.
//
// Grounded on the single-writer-goroutine-over-a-channel shape of
// pkg/payload/offloader (a queue drained by one worker that mutates
// shared state and signals completion), generalized here to the
// apply -> broadcast-refresh -> await-ack protocol.
package reconfig

import (
	"github.com/nexusd/nexuscore/pkg/child"
	"github.com/nexusd/nexuscore/pkg/child/state"
)

// ChildView is one child's state as visible in a Snapshot. It is a value
// copy: Device is shared (backends are safe for concurrent I/O against
// distinct block ranges), but the view itself never mutates once published.
type ChildView struct {
	URI    string
	Device child.Device
	State  state.State
}

// IsReadCandidate reports whether this child may serve reads.
func (c ChildView) IsReadCandidate() bool { return c.State.IsReadCandidate() }

// IsWriteTarget reports whether this child should receive write fan-out.
func (c ChildView) IsWriteTarget() bool { return c.State.IsWriteTarget() }

// Snapshot is an immutable view of a Nexus's child set at a point in
// logical time (Version). Reactors hold an atomic.Pointer[Snapshot] and
// never mutate the slice in place.
type Snapshot struct {
	Version  uint64
	Children []ChildView
}

// ReadCandidates returns the children eligible to serve a read.
func (s *Snapshot) ReadCandidates() []ChildView {
	if s == nil {
		return nil
	}
	out := make([]ChildView, 0, len(s.Children))
	for _, c := range s.Children {
		if c.IsReadCandidate() {
			out = append(out, c)
		}
	}
	return out
}

// WriteTargets returns the children that should receive write fan-out.
func (s *Snapshot) WriteTargets() []ChildView {
	if s == nil {
		return nil
	}
	out := make([]ChildView, 0, len(s.Children))
	for _, c := range s.Children {
		if c.IsWriteTarget() {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the child view for uri, if present.
func (s *Snapshot) Find(uri string) (ChildView, bool) {
	if s == nil {
		return ChildView{}, false
	}
	for _, c := range s.Children {
		if c.URI == uri {
			return c, true
		}
	}
	return ChildView{}, false
}
