package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuardHonoursPauses(t *testing.T) {
	if err := Guard(nil, "market"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(pauseMap{"market": true}, "market"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauseMap{"bank": true}, "market"); err != nil {
		t.Fatalf("unrelated pause must not block: %v", err)
	}
}

func TestCallGuardRejectsNestedEntry(t *testing.T) {
	var g CallGuard
	if err := g.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if !g.Active() {
		t.Fatalf("expected guard to be active")
	}
	if err := g.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	g.Exit()
	if err := g.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
	g.Exit()
}
