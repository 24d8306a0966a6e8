// Package child defines the Child Device capability: the interface every
// backend (aio, uring, pcie, nvmf, iscsi) implements, the URI-scheme
// registry used to construct one, and the DMA-aligned buffer type used for
// reads and writes.
package child

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

// Device is the capability every child backend implements. A Device is a
// byte-addressable block device reached by URI: aio://, uring://, pcie://,
// nvmf://, iscsi://.
type Device interface {
	// Open establishes the backend's session (file descriptor, PCIe BAR
	// mapping, NVMe-oF/iSCSI transport connection).
	Open(ctx context.Context) error

	// BlockSize returns the device's logical block size in bytes.
	BlockSize() uint32

	// NumBlocks returns the device's capacity in blocks.
	NumBlocks() uint64

	// ReadAt reads len(buf)/BlockSize() blocks starting at the given block.
	ReadAt(ctx context.Context, block uint64, buf []byte) error

	// WriteAt writes len(buf)/BlockSize() blocks starting at the given block.
	WriteAt(ctx context.Context, block uint64, buf []byte) error

	// Flush forces any buffered writes to stable storage.
	Flush(ctx context.Context) error

	// Reset releases the backend's transport session without destroying
	// on-disk state, so a later Open can reconnect.
	Reset(ctx context.Context) error

	// Close releases the backend's session permanently.
	Close(ctx context.Context) error

	// AllocDMA allocates an aligned buffer suitable for this device's I/O path.
	AllocDMA(nBlocks int) (*DMABuffer, error)

	// URI returns the URI this device was constructed from.
	URI() string
}

// Factory constructs a Device from a parsed URI.
type Factory func(raw string, u *url.URL) (Device, error)

// Registry maps URI schemes to backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty scheme registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates a scheme (e.g. "nvmf") with a Factory. Registering the
// same scheme twice overwrites the previous factory, matching the
// register-by-name idiom used for named stores elsewhere in the stack.
func (r *Registry) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = f
}

// Open parses a child URI and constructs its Device via the registered
// factory for its scheme.
func (r *Registry) Open(raw string) (Device, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, cerrors.NewInvalidURIError(raw, err.Error())
	}
	if u.Scheme == "" {
		return nil, cerrors.NewInvalidURIError(raw, "missing scheme")
	}

	r.mu.RLock()
	f, ok := r.factories[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, cerrors.NewInvalidURIError(raw, fmt.Sprintf("unknown scheme %q", u.Scheme))
	}

	return f(raw, u)
}

// DefaultRegistry is the process-wide scheme registry. Backend packages
// register themselves against it from an init() func.
var DefaultRegistry = NewRegistry()
