package aio

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

func newTestFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "child0.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test file: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		t.Fatalf("truncate test file: %v", err)
	}
	return path
}

func openTestDevice(t *testing.T, size int) *Device {
	t.Helper()
	path := newTestFile(t, size)
	raw := "aio://" + path
	dev, err := Open(raw, mustParseURL(t, raw))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d := dev.(*Device)
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("device Open: %v", err)
	}
	t.Cleanup(func() { d.Close(context.Background()) })
	return d
}

func TestDevice_OpenReportsGeometry(t *testing.T) {
	d := openTestDevice(t, 16*defaultBlockSize)
	if d.BlockSize() != defaultBlockSize {
		t.Fatalf("expected block size %d, got %d", defaultBlockSize, d.BlockSize())
	}
	if d.NumBlocks() != 16 {
		t.Fatalf("expected 16 blocks, got %d", d.NumBlocks())
	}
}

func TestDevice_WriteThenRead(t *testing.T) {
	d := openTestDevice(t, 4*defaultBlockSize)
	ctx := context.Background()

	want := make([]byte, defaultBlockSize)
	for i := range want {
		want[i] = byte(i % 251)
	}

	if err := d.WriteAt(ctx, 1, want); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := make([]byte, defaultBlockSize)
	if err := d.ReadAt(ctx, 1, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDevice_UnalignedWriteRejected(t *testing.T) {
	d := openTestDevice(t, 4*defaultBlockSize)
	err := d.WriteAt(context.Background(), 0, make([]byte, 10))
	if !isCode(err, cerrors.ErrInvalidAlignment) {
		t.Fatalf("expected InvalidAlignment, got %v", err)
	}
}

func TestDevice_OutOfRangeWriteRejected(t *testing.T) {
	d := openTestDevice(t, 4*defaultBlockSize)
	err := d.WriteAt(context.Background(), 10, make([]byte, defaultBlockSize))
	if !isCode(err, cerrors.ErrInvalidOffset) {
		t.Fatalf("expected InvalidOffset, got %v", err)
	}
}

func TestDevice_ResetAllowsReopen(t *testing.T) {
	d := openTestDevice(t, 4*defaultBlockSize)
	ctx := context.Background()
	if err := d.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := d.Open(ctx); err != nil {
		t.Fatalf("reopen after Reset: %v", err)
	}
}

func TestDevice_AllocDMAMatchesBlockSize(t *testing.T) {
	d := openTestDevice(t, 4*defaultBlockSize)
	buf, err := d.AllocDMA(2)
	if err != nil {
		t.Fatalf("AllocDMA: %v", err)
	}
	defer buf.Release()
	if buf.Len() != 2*defaultBlockSize {
		t.Fatalf("expected %d bytes, got %d", 2*defaultBlockSize, buf.Len())
	}
}

func isCode(err error, code cerrors.ErrorCode) bool {
	de, ok := err.(*cerrors.DeviceError)
	return ok && de.Code == code
}
