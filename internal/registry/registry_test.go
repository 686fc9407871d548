package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
)

func TestRegister_AtMostOneInFlight(t *testing.T) {
	r := registry.New()
	if _, err := r.Register("chk-1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := r.Register("chk-1"); !errors.Is(err, registry.ErrAlreadyInFlight) {
		t.Fatalf("expected ErrAlreadyInFlight, got %v", err)
	}
	if !r.InFlight("chk-1") {
		t.Fatalf("expected chk-1 to be in flight")
	}
}

func TestResolve_DeliversAndClearsEntry(t *testing.T) {
	r := registry.New()
	handle, err := r.Register("chk-2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	go r.Resolve("chk-2", registry.UserResponse{Kind: registry.Accepted, PIN: "1234"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := handle.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if resp.Kind != registry.Accepted || resp.PIN != "1234" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if r.InFlight("chk-2") {
		t.Fatalf("entry should be removed after resolve")
	}

	// Re-registering after resolution must succeed (the prior holder is gone).
	if _, err := r.Register("chk-2"); err != nil {
		t.Fatalf("re-register after resolve: %v", err)
	}
}

func TestResolve_NoMatchingEntryIsNoop(t *testing.T) {
	r := registry.New()
	r.Resolve("never-registered", registry.UserResponse{Kind: registry.Cancelled})
	// No panic, no entry created.
	if r.InFlight("never-registered") {
		t.Fatalf("resolve must not create an entry")
	}
}

func TestExpire_RemovesEntry(t *testing.T) {
	r := registry.New()
	if _, err := r.Register("chk-3"); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Expire("chk-3")
	if r.InFlight("chk-3") {
		t.Fatalf("expire should remove entry")
	}
	// A late resolve after expiry is a no-op, not a panic.
	r.Resolve("chk-3", registry.UserResponse{Kind: registry.Timeout})
}
