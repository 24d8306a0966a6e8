package nexus

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nexusd/nexuscore/pkg/child"
	_ "github.com/nexusd/nexuscore/pkg/child/aio"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/nexus/rebuild"
)

const testBlockSize = 4096

// faultyDevice is an in-memory child.Device registered under the "faulty"
// scheme so ReadAt's demote-and-retry path can be exercised without a real
// backend: its ReadAt fails on demand while Open/WriteAt/geometry behave
// like an ordinary device.
type faultyDevice struct {
	uri       string
	blockSize uint32
	numBlocks uint64

	mu   sync.Mutex
	data []byte
	fail *atomic.Bool
}

var faultyRegistry = struct {
	mu   sync.Mutex
	fail map[string]*atomic.Bool
}{fail: make(map[string]*atomic.Bool)}

func init() {
	child.DefaultRegistry.Register("faulty", func(raw string, u *url.URL) (child.Device, error) {
		faultyRegistry.mu.Lock()
		fail, ok := faultyRegistry.fail[raw]
		if !ok {
			fail = &atomic.Bool{}
			faultyRegistry.fail[raw] = fail
		}
		faultyRegistry.mu.Unlock()
		return &faultyDevice{
			uri:       raw,
			blockSize: testBlockSize,
			numBlocks: 4,
			data:      make([]byte, testBlockSize*4),
			fail:      fail,
		}, nil
	})
}

// setFaulty controls whether uri's ReadAt calls fail from this point on.
func setFaulty(t *testing.T, uri string, v bool) {
	t.Helper()
	faultyRegistry.mu.Lock()
	defer faultyRegistry.mu.Unlock()
	fail, ok := faultyRegistry.fail[uri]
	if !ok {
		fail = &atomic.Bool{}
		faultyRegistry.fail[uri] = fail
	}
	fail.Store(v)
}

func (d *faultyDevice) Open(ctx context.Context) error  { return nil }
func (d *faultyDevice) BlockSize() uint32               { return d.blockSize }
func (d *faultyDevice) NumBlocks() uint64               { return d.numBlocks }
func (d *faultyDevice) URI() string                     { return d.uri }
func (d *faultyDevice) Flush(ctx context.Context) error { return nil }
func (d *faultyDevice) Reset(ctx context.Context) error { return nil }
func (d *faultyDevice) Close(ctx context.Context) error { return nil }

func (d *faultyDevice) AllocDMA(nBlocks int) (*child.DMABuffer, error) {
	return child.NewDMABuffer(nBlocks * int(d.blockSize))
}

func (d *faultyDevice) ReadAt(ctx context.Context, block uint64, buf []byte) error {
	if d.fail != nil && d.fail.Load() {
		return cerrors.NewIOError(d.uri, fmt.Errorf("simulated read failure"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := block * uint64(d.blockSize)
	copy(buf, d.data[off:off+uint64(len(buf))])
	return nil
}

func (d *faultyDevice) WriteAt(ctx context.Context, block uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := block * uint64(d.blockSize)
	copy(d.data[off:off+uint64(len(buf))], buf)
	return nil
}

func newChildFile(t *testing.T, numBlocks int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "child.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create child file: %v", err)
	}
	if err := f.Truncate(int64(numBlocks * testBlockSize)); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	f.Close()
	return "aio://" + path
}

// waitForRebuild blocks until the rebuild job AddChild auto-started for
// destURI reaches a terminal state, so tests don't race the completion
// callback that promotes it to Open.
func waitForRebuild(t *testing.T, n *Nexus, destURI string) {
	t.Helper()
	job, ok := n.RebuildProgress(destURI)
	if !ok {
		t.Fatalf("expected AddChild to have enqueued a rebuild job targeting %s", destURI)
	}
	job.Wait()
	if job.State() != rebuild.StateComplete {
		t.Fatalf("expected rebuild targeting %s to complete, got %s (err=%v)", destURI, job.State(), job.Err())
	}
}

func newTestNexus(t *testing.T, numBlocks uint64) *Nexus {
	t.Helper()
	n, err := New(Config{
		Name:       "nexus-test",
		UUID:       uuid.New(),
		BlockSize:  testBlockSize,
		NumBlocks:  numBlocks,
		AckTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestNexus_AddChildFirstIsOnline(t *testing.T) {
	n := newTestNexus(t, 4)
	uri := newChildFile(t, 4)

	if err := n.AddChild(context.Background(), uri); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if n.State() != StateOnline {
		t.Fatalf("expected NEXUS_ONLINE, got %s", n.State())
	}
}

func TestNexus_SecondChildStartsAsRebuildDst(t *testing.T) {
	n := newTestNexus(t, 4)
	uri1 := newChildFile(t, 4)
	uri2 := newChildFile(t, 4)

	if err := n.AddChild(context.Background(), uri1); err != nil {
		t.Fatalf("AddChild 1: %v", err)
	}
	if err := n.AddChild(context.Background(), uri2); err != nil {
		t.Fatalf("AddChild 2: %v", err)
	}

	if n.State() != StateDegraded {
		t.Fatalf("expected NEXUS_DEGRADED with a rebuild-dst child, got %s", n.State())
	}

	snap := n.Snapshot()
	view, ok := snap.Find(uri2)
	if !ok {
		t.Fatal("expected second child present in snapshot")
	}
	if view.IsReadCandidate() {
		t.Fatal("rebuild-dst child must not be a read candidate")
	}
	if !view.IsWriteTarget() {
		t.Fatal("rebuild-dst child must still receive write fan-out")
	}
}

func TestNexus_WriteFansOutToAllTargets(t *testing.T) {
	n := newTestNexus(t, 4)
	uri1 := newChildFile(t, 4)
	uri2 := newChildFile(t, 4)
	if err := n.AddChild(context.Background(), uri1); err != nil {
		t.Fatalf("AddChild 1: %v", err)
	}
	if err := n.AddChild(context.Background(), uri2); err != nil {
		t.Fatalf("AddChild 2: %v", err)
	}

	buf := make([]byte, testBlockSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := n.WriteAt(context.Background(), 0, buf); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	got := make([]byte, testBlockSize)
	if err := n.ReadAt(context.Background(), 0, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i := range buf {
		if got[i] != buf[i] {
			t.Fatalf("byte %d mismatch after write fan-out", i)
		}
	}
}

func TestNexus_ReadWithNoChildrenFails(t *testing.T) {
	n := newTestNexus(t, 4)
	err := n.ReadAt(context.Background(), 0, make([]byte, testBlockSize))
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrNoHealthyChild {
		t.Fatalf("expected NoHealthyChild, got %v", err)
	}
}

func TestNexus_ReadRetriesOnIOErrorThenSucceeds(t *testing.T) {
	n := newTestNexus(t, 4)
	ctx := context.Background()
	badURI := "faulty:///retry-a"
	goodURI := "faulty:///retry-b"
	if err := n.AddChild(ctx, badURI); err != nil {
		t.Fatalf("AddChild bad: %v", err)
	}
	if err := n.AddChild(ctx, goodURI); err != nil {
		t.Fatalf("AddChild good: %v", err)
	}
	waitForRebuild(t, n, goodURI)

	setFaulty(t, badURI, true)

	if err := n.ReadAt(ctx, 0, make([]byte, testBlockSize)); err != nil {
		t.Fatalf("expected read to succeed against the remaining child, got %v", err)
	}

	snap := n.Snapshot()
	view, ok := snap.Find(badURI)
	if !ok {
		t.Fatal("expected faulty child present in snapshot")
	}
	if view.IsReadCandidate() {
		t.Fatal("expected child that failed ReadAt to be demoted out of the read candidate set")
	}
}

func TestNexus_ReadFailsWhenAllChildrenFault(t *testing.T) {
	n := newTestNexus(t, 4)
	ctx := context.Background()
	uri1 := "faulty:///allfault-a"
	uri2 := "faulty:///allfault-b"
	if err := n.AddChild(ctx, uri1); err != nil {
		t.Fatalf("AddChild 1: %v", err)
	}
	if err := n.AddChild(ctx, uri2); err != nil {
		t.Fatalf("AddChild 2: %v", err)
	}
	waitForRebuild(t, n, uri2)

	setFaulty(t, uri1, true)
	setFaulty(t, uri2, true)

	// The retry is exactly one attempt: once the retry's own candidate also
	// fails, ReadAt surfaces that second failure directly rather than
	// masking it as NoHealthyChild. NoHealthyChild is reserved for the case
	// where no read candidate exists at all.
	err := n.ReadAt(ctx, 0, make([]byte, testBlockSize))
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrIO {
		t.Fatalf("expected ErrIO from the failed retry, got %v", err)
	}

	snap := n.Snapshot()
	for _, uri := range []string{uri1, uri2} {
		view, ok := snap.Find(uri)
		if !ok {
			t.Fatalf("expected %s present in snapshot", uri)
		}
		if view.IsReadCandidate() {
			t.Fatalf("expected %s demoted out of the read candidate set", uri)
		}
	}
}

func TestNexus_UnalignedWriteRejectedBeforeTouchingChildren(t *testing.T) {
	n := newTestNexus(t, 4)
	uri := newChildFile(t, 4)
	if err := n.AddChild(context.Background(), uri); err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	err := n.WriteAt(context.Background(), 0, make([]byte, 10))
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrInvalidAlignment {
		t.Fatalf("expected InvalidAlignment, got %v", err)
	}
}

func TestNexus_RemoveChildThenReadFailsOverToRemaining(t *testing.T) {
	n := newTestNexus(t, 4)
	uri1 := newChildFile(t, 4)
	uri2 := newChildFile(t, 4)
	ctx := context.Background()
	if err := n.AddChild(ctx, uri1); err != nil {
		t.Fatalf("AddChild 1: %v", err)
	}
	if err := n.AddChild(ctx, uri2); err != nil {
		t.Fatalf("AddChild 2: %v", err)
	}
	// AddChild auto-started a rebuild onto uri2; wait for it to complete and
	// promote uri2 to Open so it becomes a read candidate too.
	waitForRebuild(t, n, uri2)

	if err := n.RemoveChild(ctx, uri1); err != nil {
		t.Fatalf("RemoveChild: %v", err)
	}

	if err := n.ReadAt(ctx, 0, make([]byte, testBlockSize)); err != nil {
		t.Fatalf("ReadAt after removal: %v", err)
	}
}

func TestNexus_InsufficientCapacityRejected(t *testing.T) {
	n := newTestNexus(t, 4)
	uri := newChildFile(t, 2) // smaller than nexus requires
	err := n.AddChild(context.Background(), uri)
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrInsufficientCapacity {
		t.Fatalf("expected InsufficientCapacity, got %v", err)
	}
}

func TestNexus_AddChildAutoStartsRebuildAndPromotesOnCompletion(t *testing.T) {
	n := newTestNexus(t, 4)
	uri1 := newChildFile(t, 4)
	uri2 := newChildFile(t, 4)
	ctx := context.Background()
	if err := n.AddChild(ctx, uri1); err != nil {
		t.Fatalf("AddChild 1: %v", err)
	}

	buf := make([]byte, testBlockSize)
	for i := range buf {
		buf[i] = 0x7A
	}
	if err := n.WriteAt(ctx, 0, buf); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Joining a Nexus with an Online child must enqueue a rebuild job on its
	// own, with no separate StartRebuild call.
	if err := n.AddChild(ctx, uri2); err != nil {
		t.Fatalf("AddChild 2: %v", err)
	}
	waitForRebuild(t, n, uri2)

	snap := n.Snapshot()
	view, ok := snap.Find(uri2)
	if !ok {
		t.Fatal("expected uri2 present in snapshot")
	}
	if !view.IsReadCandidate() {
		t.Fatal("expected uri2 promoted to a read candidate after rebuild completion")
	}
}

func TestNexus_DestroyRefusesWithOutstandingDescriptor(t *testing.T) {
	n := newTestNexus(t, 4)
	uri := newChildFile(t, 4)
	ctx := context.Background()
	if err := n.AddChild(ctx, uri); err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	desc := n.OpenDescriptor()
	err := n.Destroy(ctx)
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrInProgress {
		t.Fatalf("expected InProgress, got %v", err)
	}

	desc.RequestDestroy()
	if err := desc.Close(ctx); err != nil {
		t.Fatalf("descriptor Close: %v", err)
	}
}
