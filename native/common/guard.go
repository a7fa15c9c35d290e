package common

import (
	"errors"
	"sync/atomic"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call rejected")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// CallGuard is a call-scoped mutual exclusion flag. Enter fails while another
// call is in flight instead of blocking, which is what rejects a collaborator
// calling back into the module during an external transfer.
type CallGuard struct {
	entered atomic.Bool
}

// Enter marks the module as executing.
func (g *CallGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit clears the executing flag.
func (g *CallGuard) Exit() {
	if g == nil {
		return
	}
	g.entered.Store(false)
}

// Active reports whether a call is currently in flight.
func (g *CallGuard) Active() bool {
	if g == nil {
		return false
	}
	return g.entered.Load()
}
