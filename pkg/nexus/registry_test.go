package nexus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	_ "github.com/nexusd/nexuscore/pkg/child/aio"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

func TestRegistry_CreateGetList(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(Config{Name: "b", UUID: uuid.New(), BlockSize: testBlockSize, NumBlocks: 4, AckTimeout: time.Second})
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	_, err = r.Create(Config{Name: "a", UUID: uuid.New(), BlockSize: testBlockSize, NumBlocks: 4, AckTimeout: time.Second})
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("expected sorted [a b], got %v", list)
	}

	if _, err := r.Get("a"); err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected NotFound for missing nexus")
	}
}

func TestRegistry_CreateDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	cfg := Config{Name: "dup", UUID: uuid.New(), BlockSize: testBlockSize, NumBlocks: 4, AckTimeout: time.Second}
	if _, err := r.Create(cfg); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := r.Create(cfg)
	de, ok := err.(*cerrors.DeviceError)
	if !ok || de.Code != cerrors.ErrAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestRegistry_DestroyRemovesFromList(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create(Config{Name: "gone", UUID: uuid.New(), BlockSize: testBlockSize, NumBlocks: 4, AckTimeout: time.Second}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Destroy(context.Background(), "gone"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatal("expected empty registry after destroy")
	}
}
