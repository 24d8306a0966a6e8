package child

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DMABuffer is a page-aligned buffer suitable for O_DIRECT and raw transport
// I/O. It is backed by an anonymous mmap rather than a plain Go slice:
// Go's allocator gives no alignment guarantee, and O_DIRECT requires the
// buffer address (and length) to be a multiple of the device's logical
// block size. A page-aligned address satisfies that for every block size
// that divides the page size.
type DMABuffer struct {
	mu     sync.Mutex
	buf    []byte
	region []byte
	freed  bool
}

// NewDMABuffer allocates a zeroed, page-aligned buffer of exactly size bytes.
func NewDMABuffer(size int) (*DMABuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dma buffer size must be positive, got %d", size)
	}

	pageSize := unix.Getpagesize()
	mapSize := ((size + pageSize - 1) / pageSize) * pageSize

	region, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap dma buffer: %w", err)
	}

	return &DMABuffer{buf: region[:size], region: region}, nil
}

// Bytes returns the buffer's backing slice. The caller must not retain it
// past Release.
func (d *DMABuffer) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf
}

// Len returns the buffer's usable length in bytes.
func (d *DMABuffer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

// Release unmaps the buffer. It is safe to call more than once.
func (d *DMABuffer) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.freed {
		return nil
	}
	d.freed = true
	d.buf = nil
	return unix.Munmap(d.region)
}
