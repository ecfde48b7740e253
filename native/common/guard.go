package common

import (
	"errors"
	"sync/atomic"
)

var ErrReentrantCall = errors.New("reentrant call rejected")

// Guard is a process-wide non-reentrant execution region. Enter fails
// immediately when another operation is already in flight; nested re-entry
// from a side effect of an in-progress operation is rejected, never queued.
type Guard struct {
	busy atomic.Bool
}

func (g *Guard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *Guard) Exit() {
	if g == nil {
		return
	}
	g.busy.Store(false)
}
