package i2cdrv

import "sync/atomic"

// Guard serializes bus access across competing goroutines: at most one owner
// at a time per driver, held across a full transaction including any
// restart-chained operations. It is the sole serialization point for bus
// access; the state machine assumes single-owner access.
//
// Ownership is tracked as a state, not as a goroutine identity (Go offers
// none), so releasing from a goroutine that never acquired is a caller
// obligation the guard cannot detect. Double release and release while free
// are detected and reported as logic errors.
type Guard struct {
	sem   chan struct{}
	owned atomic.Bool
}

func newGuard() *Guard {
	return &Guard{sem: make(chan struct{}, 1)}
}

// Acquire blocks the caller until ownership is free, then grants it.
func (g *Guard) Acquire() {
	g.sem <- struct{}{}
	g.owned.Store(true)
}

// TryAcquire grants ownership only if it is immediately free.
func (g *Guard) TryAcquire() bool {
	select {
	case g.sem <- struct{}{}:
		g.owned.Store(true)
		return true
	default:
		return false
	}
}

// Release returns ownership. Releasing without ownership is a logic error.
func (g *Guard) Release() error {
	if !g.owned.CompareAndSwap(true, false) {
		return logicErrorf("bus guard released without ownership")
	}
	<-g.sem
	return nil
}

// Held reports whether some caller currently owns the bus.
func (g *Guard) Held() bool {
	return g.owned.Load()
}
