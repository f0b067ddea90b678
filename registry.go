package i2cdrv

import (
	"sync"
)

// Registry of driver instances keyed by peripheral identifier. Replaces
// ambient per-peripheral singletons: callers look drivers up by PortID and
// have them injected rather than referencing globals.
var (
	initOnce  sync.Once
	regMu     sync.RWMutex
	instances map[PortID]*Driver
)

// Init performs the process-wide one-time setup. Idempotent; it has no effect
// on hardware until a driver is started. Register and New call it implicitly,
// so an explicit call is only needed by code that wants the setup cost paid
// up front.
func Init() {
	initOnce.Do(func() {
		instances = make(map[PortID]*Driver)
	})
}

// Register adds a driver to the registry. A duplicate identifier is a logic
// error.
func Register(d *Driver) error {
	Init()
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := instances[d.id]; exists {
		return logicErrorf("port %d already registered", d.id)
	}
	instances[d.id] = d
	return nil
}

// Lookup returns the driver registered for id.
func Lookup(id PortID) (*Driver, bool) {
	Init()
	regMu.RLock()
	defer regMu.RUnlock()
	d, ok := instances[id]
	return d, ok
}

// Unregister removes the driver registered for id, if any.
func Unregister(id PortID) {
	Init()
	regMu.Lock()
	defer regMu.Unlock()
	delete(instances, id)
}
