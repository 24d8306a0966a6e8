package nexus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Descriptor is a refcounted capability to a Nexus, matching §3's
// ownership rule: a Block Descriptor keeps the Nexus alive even if
// destroy is requested while descriptors are outstanding. The final
// Close after a pending destroy actually tears the Nexus down.
type Descriptor struct {
	nexus       *Nexus
	closeOnce   sync.Once
	destroyWhenDone atomic.Bool
}

// OpenDescriptor increments the Nexus's descriptor refcount and returns a
// handle the caller must Close exactly once.
func (n *Nexus) OpenDescriptor() *Descriptor {
	n.mu.Lock()
	n.descriptors++
	n.mu.Unlock()
	return &Descriptor{nexus: n}
}

// Nexus returns the descriptor's backing Nexus.
func (d *Descriptor) Nexus() *Nexus {
	return d.nexus
}

// RequestDestroy marks the Nexus for destruction once every outstanding
// descriptor (including this one) has closed.
func (d *Descriptor) RequestDestroy() {
	d.destroyWhenDone.Store(true)
}

// Close decrements the Nexus's descriptor refcount. If it reaches zero
// and a destroy was requested through any descriptor, it destroys the
// Nexus.
func (d *Descriptor) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		n := d.nexus
		n.mu.Lock()
		n.descriptors--
		remaining := n.descriptors
		n.mu.Unlock()

		if remaining == 0 && d.destroyWhenDone.Load() {
			err = n.Destroy(ctx)
		}
	})
	return err
}
