package i2cdrv

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Driver is one I2C peripheral instance: its state machine state, the active
// configuration, the active session and the arbitration guard. One Driver per
// physical peripheral.
//
// State and the active session are mutated only under the internal lock,
// either by the port's event context through HandleEvent or by callers
// through the defined operations.
type Driver struct {
	id    PortID
	port  Port
	guard *Guard
	log   logr.Logger

	mu    sync.Mutex
	state State
	cfg   *Config
	sess  *Session

	// Address-phase scratch. addrBuf holds the address byte(s) being shifted
	// out, addrTail the read-direction 10-bit header re-sent after a repeated
	// start mid address phase.
	addrBuf  [2]byte
	addrLen  int
	addrIdx  int
	addrTail byte
	tailSent bool

	// startPending latches a repeated start that arrived while no session was
	// bound, between two restart-chained operations.
	startPending bool

	// Data-phase scratch. pec accumulates the running CRC-8; rxTotal and
	// rxGot count wire bytes including a trailing PEC byte.
	pec        byte
	pecPending bool
	pecSent    bool
	rxTotal    int
	rxGot      int

	// SMBus clock-low watchdog.
	watchdog *time.Timer
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithLogger attaches a structured logger. State transitions log at V(1),
// terminal errors through the error channel. The default discards everything.
func WithLogger(log logr.Logger) Option {
	return func(d *Driver) {
		d.log = log.WithName("i2cdrv")
	}
}

// New creates a driver for the given port. The driver starts in StateStop
// (peripheral disabled); Start brings it to StateReady.
func New(id PortID, port Port, opts ...Option) *Driver {
	Init()
	d := &Driver{
		id:    id,
		port:  port,
		guard: newGuard(),
		log:   logr.Discard(),
		state: StateStop,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the peripheral identifier.
func (d *Driver) ID() PortID {
	return d.id
}

// State returns the current machine state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ActiveSession returns the session currently bound to an in-flight transfer,
// or nil when idle.
func (d *Driver) ActiveSession() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

// Start binds cfg, programs clock, mode and own-address settings on the port
// and transitions to StateReady. Rejected while a transfer is in flight. The
// configuration is borrowed: the caller owns it and must keep it unchanged
// while the driver is active.
func (d *Driver) Start(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.inTransfer() {
		return logicErrorf("start while transfer in flight in state %s", d.state)
	}
	d.port.Sink(d)
	if err := d.port.Apply(cfg); err != nil {
		return err
	}
	d.cfg = cfg
	d.setState(StateReady)
	d.log.V(1).Info("driver started", "port", d.id, "mode", cfg.Mode.String(), "clock", cfg.ClockSpeed)
	return nil
}

// Stop releases the peripheral and returns to StateStop. It fails loudly if a
// transfer is in flight or a restart chain is still open: in-flight work must
// complete, and open chains must be closed with MasterStop, before the driver
// can be stopped.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if d.state.inTransfer() {
		err := logicErrorf("stop while transfer in flight in state %s", d.state)
		d.mu.Unlock()
		return err
	}
	if d.state == StateStop {
		d.mu.Unlock()
		return nil
	}
	d.cfg = nil
	d.startPending = false
	d.setState(StateStop)
	d.mu.Unlock()
	// Shutdown may wait for the port's event context to drain; the lock must
	// not be held or a late event delivery deadlocks against it.
	if err := d.port.Shutdown(); err != nil {
		return err
	}
	d.log.V(1).Info("driver stopped", "port", d.id)
	return nil
}

// SetClock reprograms the bus clock. Legal only while not mid-transfer.
func (d *Driver) SetClock(hz uint32) error {
	return d.reconfigure(func(c *Config) { c.ClockSpeed = hz })
}

// SetOpMode reprograms the operating mode. Legal only while not mid-transfer.
func (d *Driver) SetOpMode(m OpMode) error {
	return d.reconfigure(func(c *Config) { c.Mode = m })
}

// SetOwnAddress reprograms the node's own slave addresses. Legal only while
// not mid-transfer.
func (d *Driver) SetOwnAddress(a7 uint8, a10 uint16) error {
	return d.reconfigure(func(c *Config) {
		c.OwnAddress7 = a7
		c.OwnAddress10 = a10
	})
}

// reconfigure validates one mutated configuration facet before committing it
// to the borrowed config and reapplying it on the port.
func (d *Driver) reconfigure(mutate func(*Config)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil {
		return logicErrorf("driver not started")
	}
	if d.state.inTransfer() {
		return logicErrorf("reconfiguration while transfer in flight in state %s", d.state)
	}
	next := *d.cfg
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	*d.cfg = next
	return d.port.Apply(d.cfg)
}

// Acquire blocks until this caller holds exclusive bus ownership.
func (d *Driver) Acquire() {
	d.guard.Acquire()
}

// Release returns bus ownership. Only valid for the current owner.
func (d *Driver) Release() error {
	return d.guard.Release()
}

// Guard exposes the arbitration guard, for callers that want TryAcquire.
func (d *Driver) Guard() *Guard {
	return d.guard
}

// setState records a transition. Callers hold d.mu.
func (d *Driver) setState(next State) {
	if next != d.state {
		d.log.V(1).Info("state transition", "port", d.id, "from", d.state.String(), "to", next.String())
	}
	d.state = next
}

// armWatchdog starts the SMBus clock-low timeout for the transfer being
// armed. Plain I2C has no native timeout; a caller wanting one races Wait
// against its own timer. Callers hold d.mu.
const smbusTimeout = 35 * time.Millisecond

func (d *Driver) armWatchdog() {
	if d.cfg == nil || d.cfg.Mode == ModeI2C {
		return
	}
	d.watchdog = time.AfterFunc(smbusTimeout, func() {
		d.HandleEvent(Event{Kind: EvTimeout})
	})
}

// stopWatchdog cancels the SMBus timeout. A timer that already fired delivers
// a stray EvTimeout which the event handler ignores. Callers hold d.mu.
func (d *Driver) stopWatchdog() {
	if d.watchdog != nil {
		d.watchdog.Stop()
		d.watchdog = nil
	}
}
