// Package guard provides the lock that keeps conversions from overlapping.
//
// A Guard never waits. If it is already held, Acquire fails with
// ErrReentrantCall, whether the second attempt is nested inside the
// first call or comes from an unrelated goroutine.
package guard

import (
	"errors"
	"sync/atomic"
)

var ErrReentrantCall = errors.New("reentrant call detected")

// Guard is a binary lock. The zero value is unlocked and ready to use.
type Guard struct {
	locked atomic.Bool
}

func New() *Guard {
	return &Guard{}
}

// Acquire moves the guard from unlocked to locked.
func (g *Guard) Acquire() error {
	if !g.locked.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Release unlocks the guard unconditionally.
func (g *Guard) Release() {
	g.locked.Store(false)
}

func (g *Guard) Locked() bool {
	return g.locked.Load()
}

// Do runs fn while holding the guard. The guard is released on every exit
// path of fn, panics included.
func (g *Guard) Do(fn func() error) error {
	if err := g.Acquire(); err != nil {
		return err
	}
	defer g.Release()

	return fn()
}
