// Package aio implements the Child Device capability against a local file
// or block device opened with O_DIRECT, modeled on Mayastor's AIO bdev
// backend. It registers itself against child.DefaultRegistry for the
// "aio" URI scheme.
//
// Reads and writes go through pread64/pwrite64 at block granularity.
// O_DIRECT requires the caller's buffer, offset, and length to be aligned
// to the device's logical block size; callers that pass an unaligned
// buffer get back an InvalidAlignment error rather than a silent fallback,
// since silently buffering would defeat the point of using this backend
// on a hot write-fan-out path.
package aio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/child"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

func init() {
	child.DefaultRegistry.Register("aio", Open)
}

// defaultBlockSize is used for plain files and devices that don't report a
// logical block size via BLKSSZGET (i.e. anything that isn't a block
// special file).
const defaultBlockSize = 4096

// Device is a child.Device backed by a local file or block device.
type Device struct {
	mu        sync.Mutex
	uri       string
	path      string
	file      *os.File
	blockSize uint32
	numBlocks uint64
}

// Open constructs a Device from an aio:// URI without opening the
// underlying file. The path is taken from the URI's path component, e.g.
// aio:///var/nexus/pool0/child0.img.
func Open(raw string, u *url.URL) (child.Device, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return nil, cerrors.NewInvalidURIError(raw, "aio URI has no path")
	}
	return &Device{uri: raw, path: path}, nil
}

// Open establishes the backend's file descriptor with O_DIRECT, falling
// back to buffered I/O if the filesystem rejects O_DIRECT (as tmpfs does).
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, direct, err := openDirectOrBuffered(d.path)
	if err != nil {
		return cerrors.NewTransportUnavailableError(d.uri, err)
	}

	size, blockSize, err := statGeometry(f)
	if err != nil {
		f.Close()
		return cerrors.NewTransportUnavailableError(d.uri, err)
	}

	d.file = f
	d.blockSize = blockSize
	d.numBlocks = size / uint64(blockSize)

	logger.Debug("aio child opened",
		logger.ChildURI(d.uri),
		"direct", direct,
		logger.BlockSize(d.blockSize),
		logger.NumBlocks(d.numBlocks))

	return nil
}

// openDirectOrBuffered tries O_DIRECT first and retries without it on
// EINVAL, which is what ext4/tmpfs/overlayfs return when O_DIRECT isn't
// supported for the target file.
func openDirectOrBuffered(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_DIRECT, 0o644)
	if err == nil {
		return f, true, nil
	}
	if !errIsEINVAL(err) {
		return nil, false, err
	}
	f, err = os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

func errIsEINVAL(err error) bool {
	var errno unix.Errno
	return errors.As(err, &errno) && errno == unix.EINVAL
}

// statGeometry returns the size in bytes and logical block size of the
// open file. Block special files report their logical sector size via
// BLKSSZGET; regular files use defaultBlockSize and their stat size.
func statGeometry(f *os.File) (size uint64, blockSize uint32, err error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}

	if fi.Mode()&os.ModeDevice != 0 {
		bs, ierr := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
		if ierr != nil {
			return 0, 0, fmt.Errorf("BLKSSZGET: %w", ierr)
		}
		var devSize uint64
		if serr := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64, &devSize); serr != nil {
			return 0, 0, fmt.Errorf("BLKGETSIZE64: %w", serr)
		}
		return devSize, uint32(bs), nil
	}

	return uint64(fi.Size()), defaultBlockSize, nil
}

// BlockSize returns the device's logical block size in bytes.
func (d *Device) BlockSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockSize
}

// NumBlocks returns the device's capacity in blocks.
func (d *Device) NumBlocks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numBlocks
}

// URI returns the URI this device was constructed from.
func (d *Device) URI() string {
	return d.uri
}

func (d *Device) checkBounds(block uint64, buf []byte) error {
	if d.blockSize == 0 {
		return cerrors.NewTransportUnavailableError(d.uri, fmt.Errorf("device not open"))
	}
	if len(buf)%int(d.blockSize) != 0 {
		return cerrors.NewInvalidAlignmentError(d.uri, d.blockSize)
	}
	nBlocks := uint64(len(buf)) / uint64(d.blockSize)
	if block+nBlocks > d.numBlocks {
		return cerrors.NewInvalidOffsetError(d.uri, block, d.numBlocks)
	}
	return nil
}

// ReadAt reads len(buf)/BlockSize() blocks starting at the given block.
func (d *Device) ReadAt(ctx context.Context, block uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkBounds(block, buf); err != nil {
		return err
	}

	off := int64(block) * int64(d.blockSize)
	n, err := d.file.ReadAt(buf, off)
	if err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	if n != len(buf) {
		return cerrors.NewIOError(d.uri, fmt.Errorf("short read: got %d of %d bytes", n, len(buf)))
	}
	return nil
}

// WriteAt writes len(buf)/BlockSize() blocks starting at the given block.
func (d *Device) WriteAt(ctx context.Context, block uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkBounds(block, buf); err != nil {
		return err
	}

	off := int64(block) * int64(d.blockSize)
	n, err := d.file.WriteAt(buf, off)
	if err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	if n != len(buf) {
		return cerrors.NewIOError(d.uri, fmt.Errorf("short write: wrote %d of %d bytes", n, len(buf)))
	}
	return nil
}

// Flush forces any buffered writes to stable storage via fsync. It is
// issued even when the file was opened O_DIRECT: those writes bypass the
// page cache, but the device's write cache still needs the flush.
func (d *Device) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return cerrors.NewTransportUnavailableError(d.uri, fmt.Errorf("device not open"))
	}
	if err := d.file.Sync(); err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	return nil
}

// Reset closes the file descriptor without forgetting the device's
// geometry, so a later Open can reopen the same path.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	if err != nil {
		return cerrors.NewIOError(d.uri, err)
	}
	return nil
}

// Close releases the backend's file descriptor permanently.
func (d *Device) Close(ctx context.Context) error {
	return d.Reset(ctx)
}

// AllocDMA allocates a page-aligned buffer sized for nBlocks of this
// device's block size.
func (d *Device) AllocDMA(nBlocks int) (*child.DMABuffer, error) {
	d.mu.Lock()
	bs := d.blockSize
	d.mu.Unlock()
	if bs == 0 {
		bs = defaultBlockSize
	}
	return child.NewDMABuffer(nBlocks * int(bs))
}
