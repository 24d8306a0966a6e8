package nvmf

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/child/transport"
)

func openTestDevice(t *testing.T, numBlocks uint64, blockSize uint32) (*Device, *transport.FakeTarget) {
	t.Helper()
	ft, err := transport.NewFakeTarget(numBlocks, blockSize)
	if err != nil {
		t.Fatalf("NewFakeTarget: %v", err)
	}
	t.Cleanup(func() { ft.Close() })

	raw := fmt.Sprintf("nvmf://%s/nqn.2024-01.io.nexus:disk0", ft.Addr())
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	dev, err := Open(raw, u)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d := dev.(*Device)
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("device Open: %v", err)
	}
	t.Cleanup(func() { d.Close(context.Background()) })
	return d, ft
}

func TestDevice_OpenReportsGeometry(t *testing.T) {
	d, _ := openTestDevice(t, 32, 512)
	if d.BlockSize() != 512 || d.NumBlocks() != 32 {
		t.Fatalf("expected 32 blocks of 512 bytes, got %d of %d", d.NumBlocks(), d.BlockSize())
	}
}

func TestDevice_WriteThenRead(t *testing.T) {
	d, _ := openTestDevice(t, 8, 512)
	ctx := context.Background()

	want := make([]byte, 512)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := d.WriteAt(ctx, 3, want); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := make([]byte, 512)
	if err := d.ReadAt(ctx, 3, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch", i)
		}
	}
}

func TestDevice_UnalignedWriteRejected(t *testing.T) {
	d, _ := openTestDevice(t, 8, 512)
	err := d.WriteAt(context.Background(), 0, make([]byte, 10))
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrInvalidAlignment {
		t.Fatalf("expected InvalidAlignment, got %v", err)
	}
}

func TestDevice_LoginRejectedSurfacesAuthError(t *testing.T) {
	ft, err := transport.NewFakeTarget(4, 512)
	if err != nil {
		t.Fatalf("NewFakeTarget: %v", err)
	}
	defer ft.Close()
	ft.RejectLogin(true)

	raw := fmt.Sprintf("nvmf://%s/nqn.2024-01.io.nexus:disk0", ft.Addr())
	u, _ := url.Parse(raw)
	dev, err := Open(raw, u)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = dev.Open(context.Background())
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrAuthRejected {
		t.Fatalf("expected AuthRejected, got %v", err)
	}
}
