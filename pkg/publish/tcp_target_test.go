package publish

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPTarget_ListenReturnsFormattedEndpoint(t *testing.T) {
	target := newTCPTarget(ProtocolNVMf, "n1", "127.0.0.1:0", "nqn.2024-01.io.nexusd:n1", formatNVMfEndpoint)
	endpoint, err := target.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if endpoint == "" || endpoint[:7] != "nvmf://" {
		t.Fatalf("expected nvmf:// endpoint, got %s", endpoint)
	}
	if err := target.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTCPTarget_DrainWaitsForInFlightConnection(t *testing.T) {
	target := newTCPTarget(ProtocolISCSI, "n1", "127.0.0.1:0", "iqn.2024-01.io.nexusd:n1", formatISCSIEndpoint)
	endpoint, err := target.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	addr := target.ln.Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s (endpoint %s): %v", addr, endpoint, err)
	}

	drained := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		drained <- target.Drain(ctx)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned before the in-flight connection closed")
	case <-time.After(50 * time.Millisecond):
	}

	conn.Close()

	select {
	case err := <-drained:
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after the connection closed")
	}
}

func TestTCPTarget_DrainTimesOutOnStuckConnection(t *testing.T) {
	target := newTCPTarget(ProtocolNVMf, "n1", "127.0.0.1:0", "nqn.2024-01.io.nexusd:n1", formatNVMfEndpoint)
	if _, err := target.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	conn, err := net.Dial("tcp", target.ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := target.Drain(ctx); err != nil {
		t.Fatalf("expected Drain to return nil on timeout, got %v", err)
	}
}

func TestLocalTarget_DrainAndCloseAreNoops(t *testing.T) {
	target := newLocalTarget("n1")
	endpoint, err := target.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if endpoint != "file:///dev/nexus-n1" {
		t.Fatalf("unexpected endpoint %s", endpoint)
	}
	if err := target.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if err := target.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
