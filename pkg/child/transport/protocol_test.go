package transport

import (
	"testing"
	"time"
)

func TestConn_LoginIdentifyReadWriteFlush(t *testing.T) {
	ft, err := NewFakeTarget(16, 512)
	if err != nil {
		t.Fatalf("NewFakeTarget: %v", err)
	}
	defer ft.Close()

	conn, err := Dial(ft.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Login("nqn.2024-01.io.nexus:disk0"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	numBlocks, blockSize, err := conn.Identify()
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if numBlocks != 16 || blockSize != 512 {
		t.Fatalf("expected 16/512, got %d/%d", numBlocks, blockSize)
	}

	want := make([]byte, 512)
	for i := range want {
		want[i] = byte(i)
	}
	if err := conn.Write(2, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := make([]byte, 512)
	if err := conn.Read(2, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch", i)
		}
	}
}

func TestConn_LoginRejected(t *testing.T) {
	ft, err := NewFakeTarget(4, 512)
	if err != nil {
		t.Fatalf("NewFakeTarget: %v", err)
	}
	defer ft.Close()
	ft.RejectLogin(true)

	conn, err := Dial(ft.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Login("iqn.2024-01.io.nexus:disk0"); err == nil {
		t.Fatal("expected login rejection")
	}
}
