package rebuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexusd/nexuscore/pkg/child"
	_ "github.com/nexusd/nexuscore/pkg/child/aio"
	"github.com/nexusd/nexuscore/pkg/notify"
)

const testBlockSize = 4096

func openTestDevice(t *testing.T, numBlocks int, fill byte) child.Device {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "child.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	size := int64(numBlocks * testBlockSize)
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if fill != 0 {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = fill
		}
		if _, err := f.WriteAt(buf, 0); err != nil {
			t.Fatalf("seed write: %v", err)
		}
	}
	f.Close()

	dev, err := child.DefaultRegistry.Open("aio://" + path)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	if err := dev.Open(context.Background()); err != nil {
		t.Fatalf("device Open: %v", err)
	}
	return dev
}

func TestJob_CopiesAllSegments(t *testing.T) {
	ctx := context.Background()
	source := openTestDevice(t, 8, 0xAB)
	dest := openTestDevice(t, 8, 0x00)

	bus := notify.NewBus()
	events, unsubscribe := bus.Subscribe(32)
	defer unsubscribe()

	e := NewEngine("nexus-test", bus, 1, 2)
	j, err := e.Start(ctx, source, dest, 2, 8, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Wait()

	if j.State() != StateComplete {
		t.Fatalf("expected StateComplete, got %s (err=%v)", j.State(), j.Err())
	}
	if j.Cursor() != 8 {
		t.Fatalf("expected cursor 8, got %d", j.Cursor())
	}

	got := make([]byte, testBlockSize)
	if err := dest.ReadAt(ctx, 0, got); err != nil {
		t.Fatalf("ReadAt dest: %v", err)
	}
	for i := range got {
		if got[i] != 0xAB {
			t.Fatalf("byte %d not copied, got %x", i, got[i])
		}
	}

	var sawComplete bool
	drain:
	for {
		select {
		case ev := <-events:
			if ev.Kind == notify.RebuildComplete {
				sawComplete = true
			}
		case <-time.After(50 * time.Millisecond):
			break drain
		}
	}
	if !sawComplete {
		t.Fatal("expected a RebuildComplete event")
	}
}

func TestJob_OnCompleteCallbackFires(t *testing.T) {
	ctx := context.Background()
	source := openTestDevice(t, 4, 0x11)
	dest := openTestDevice(t, 4, 0x00)

	e := NewEngine("nexus-test", nil, 1, 1)
	done := make(chan *Job, 1)
	_, err := e.Start(ctx, source, dest, 4, 4, func(j *Job) { done <- j })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case j := <-done:
		if j.State() != StateComplete {
			t.Fatalf("expected StateComplete, got %s", j.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onComplete callback never fired")
	}
}

func TestJob_CancelStopsCopy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := openTestDevice(t, 64, 0x22)
	dest := openTestDevice(t, 64, 0x00)

	e := NewEngine("nexus-test", nil, 1, 1)
	j, err := e.Start(ctx, source, dest, 1, 64, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	j.Wait()

	if j.State() != StateCancelled {
		t.Fatalf("expected StateCancelled, got %s", j.State())
	}
}

func TestEngine_DuplicateDestinationRejected(t *testing.T) {
	ctx := context.Background()
	source := openTestDevice(t, 64, 0x33)
	dest := openTestDevice(t, 64, 0x00)

	e := NewEngine("nexus-test", nil, 1, 1)
	if _, err := e.Start(ctx, source, dest, 1, 64, nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := e.Start(ctx, source, dest, 1, 64, nil); err == nil {
		t.Fatal("expected error starting a second rebuild to the same destination")
	}
}

func TestEngine_ListReturnsTrackedJobs(t *testing.T) {
	ctx := context.Background()
	source := openTestDevice(t, 4, 0x44)
	dest := openTestDevice(t, 4, 0x00)

	e := NewEngine("nexus-test", nil, 1, 1)
	j, err := e.Start(ctx, source, dest, 4, 4, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Wait()

	list := e.List()
	if len(list) != 1 || list[0].ID != j.ID {
		t.Fatalf("expected List to contain the started job, got %v", list)
	}

	got, ok := e.Get(j.ID)
	if !ok || got.ID != j.ID {
		t.Fatalf("Get did not return the started job")
	}
}
