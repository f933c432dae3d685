package scope

import (
	"testing"

	"github.com/wippyai/ffi-bridge/errors"
)

func TestScope_CleanupOrder(t *testing.T) {
	s := New()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if err := s.Register(func() { order = append(order, i) }); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if !s.Alive() {
		t.Fatal("scope should be alive before Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Alive() {
		t.Fatal("scope should be dead after Close")
	}

	// cleanups run in reverse registration order
	want := []int{2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("expected %d cleanups, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cleanup order %v, want %v", order, want)
		}
	}
}

func TestScope_DoubleClose(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}

	err := s.Close()
	if err == nil {
		t.Fatal("expected error on second Close")
	}
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindScopeClosed {
		t.Fatalf("expected scope_closed kind, got %v", err)
	}
}

func TestScope_RegisterAfterClose(t *testing.T) {
	s := New()
	s.Close()

	err := s.Register(func() { t.Fatal("cleanup must not run") })
	if err == nil {
		t.Fatal("expected registration on closed scope to fail")
	}
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindScopeClosed {
		t.Fatalf("expected scope_closed kind, got %v", err)
	}
}
