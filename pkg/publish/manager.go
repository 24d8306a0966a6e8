package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusd/nexuscore/internal/logger"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/nexus"
)

// Descriptor records one Nexus's active publication.
type Descriptor struct {
	Protocol   Protocol
	Endpoint   string
	TargetName string // subsystem (nqn) or target (iqn) name
	ACL        string
}

// Manager enforces "at most one active publication, republish is
// unpublish+publish" for a single Nexus. It holds the Nexus open via a
// descriptor for as long as it is published, matching §3's "open
// descriptor" capability handle the publish layer consumes.
type Manager struct {
	n            *nexus.Nexus
	nexusName    string
	listenAddr   func(Protocol) string
	drainTimeout time.Duration

	mu     sync.Mutex
	target Target
	desc   *Descriptor
	handle *nexus.Descriptor
}

// NewManager returns a Manager for one Nexus. listenAddr resolves a
// protocol to the host:port its stand-in listener binds (nvmf/iscsi
// only; ignored for local).
func NewManager(n *nexus.Nexus, listenAddr func(Protocol) string, drainTimeout time.Duration) *Manager {
	return &Manager{n: n, nexusName: n.Name, listenAddr: listenAddr, drainTimeout: drainTimeout}
}

// Publish allocates a listener for protocol and returns the client-facing
// endpoint URI. Returns AlreadyExists if a publication is already active;
// callers must Unpublish first, even to change protocol.
func (m *Manager) Publish(ctx context.Context, protocol Protocol, acl string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.target != nil {
		return "", cerrors.NewAlreadyExistsError("publication", m.nexusName)
	}

	name := uuid.NewString()
	var addr string
	if m.listenAddr != nil {
		addr = m.listenAddr(protocol)
	}

	target, err := NewTarget(protocol, m.nexusName, addr, name)
	if err != nil {
		return "", err
	}
	endpoint, err := target.Listen(ctx)
	if err != nil {
		return "", err
	}

	m.handle = m.n.OpenDescriptor()
	m.target = target
	m.desc = &Descriptor{Protocol: protocol, Endpoint: endpoint, TargetName: name, ACL: acl}

	logger.Info("nexus published", logger.Nexus(m.nexusName), logger.Protocol(string(protocol)), logger.TargetAddr(endpoint))
	return endpoint, nil
}

// Unpublish drains the active publication (bounded by m.drainTimeout) and
// tears it down. Calling Unpublish with no active publication is a no-op,
// matching the destroy path's idempotent-re-destroy precedent.
func (m *Manager) Unpublish(ctx context.Context) error {
	m.mu.Lock()
	target := m.target
	handle := m.handle
	m.mu.Unlock()
	if target == nil {
		return nil
	}

	drainCtx, cancel := drainWithTimeout(ctx, m.drainTimeout)
	defer cancel()
	if err := target.Drain(drainCtx); err != nil {
		return fmt.Errorf("publish: drain %s: %w", m.nexusName, err)
	}
	if err := target.Close(ctx); err != nil {
		return fmt.Errorf("publish: close %s: %w", m.nexusName, err)
	}

	m.mu.Lock()
	m.target = nil
	m.desc = nil
	m.handle = nil
	m.mu.Unlock()

	if handle != nil {
		if err := handle.Close(ctx); err != nil {
			return fmt.Errorf("publish: release descriptor for %s: %w", m.nexusName, err)
		}
	}

	logger.Info("nexus unpublished", logger.Nexus(m.nexusName))
	return nil
}

// Descriptor returns the current publication, or nil if unpublished.
func (m *Manager) Descriptor() *Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}
