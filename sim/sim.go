// Package sim provides an in-process implementation of the i2cdrv hardware
// adapter: a simulated I2C port with attachable slave device models, fault
// injection and a recorded wire trace. It stands where a real target package
// would stand, and is what the tests and the i2cprobe tool run against.
package sim

import (
	"errors"
	"sync"
	"time"

	"i2cdrv"
)

type cmdKind uint8

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdWrite
	cmdRead
)

type command struct {
	kind cmdKind
	data byte
	ack  bool
}

type busPhase uint8

const (
	phaseIdle busPhase = iota
	phaseAddr
	phaseAddr10Low
	phaseData
)

// Port is a simulated I2C peripheral. Commands from the engine are queued and
// consumed by a single pump goroutine, the interrupt-equivalent event
// context, which mutates bus state, drives the attached devices and delivers
// events back to the engine in strict order.
type Port struct {
	name string

	mu      sync.Mutex
	sink    i2cdrv.EventSink
	cfg     i2cdrv.Config
	devices []Device
	trace   []TraceEntry

	// One-shot fault injection flags.
	nackAddr    bool
	failAfter   int // NACK after this many data bytes, -1 disabled
	busFault    bool
	arbLoss     bool
	corruptRead bool
	stretch     time.Duration

	running bool
	cmds    chan command
	quit    chan struct{}
	wg      sync.WaitGroup

	// Bus state below is touched only by the pump goroutine.
	phase    busPhase
	cur      Device
	addr10hi uint16
	addr10   uint16
	dataN    int
}

// NewPort creates a simulated port. The name shows up in bridge interfaces
// and logs.
func NewPort(name string) *Port {
	return &Port{
		name:      name,
		failAfter: -1,
	}
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Attach adds a slave device model to the bus. Not legal while a transfer is
// in flight.
func (p *Port) Attach(dev Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append(p.devices, dev)
}

// Sink implements i2cdrv.Port.
func (p *Port) Sink(s i2cdrv.EventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// Apply implements i2cdrv.Port. The first call starts the pump goroutine;
// later calls just take the new settings.
func (p *Port) Apply(cfg *i2cdrv.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink == nil {
		return errors.New("sim: no event sink registered")
	}
	p.cfg = *cfg
	if !p.running {
		p.cmds = make(chan command, 64)
		p.quit = make(chan struct{})
		p.running = true
		p.wg.Add(1)
		go p.pump()
	}
	return nil
}

// Shutdown implements i2cdrv.Port, stopping the pump.
func (p *Port) Shutdown() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
	p.phase = phaseIdle
	p.cur = nil
	return nil
}

// Start implements i2cdrv.Port.
func (p *Port) Start() error {
	return p.submit(command{kind: cmdStart})
}

// Stop implements i2cdrv.Port.
func (p *Port) Stop() error {
	return p.submit(command{kind: cmdStop})
}

// WriteByte implements i2cdrv.Port.
func (p *Port) WriteByte(b byte) error {
	return p.submit(command{kind: cmdWrite, data: b})
}

// ReadByte implements i2cdrv.Port.
func (p *Port) ReadByte(ack bool) error {
	return p.submit(command{kind: cmdRead, ack: ack})
}

func (p *Port) submit(c command) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return errors.New("sim: port not running")
	}
	select {
	case p.cmds <- c:
		return nil
	default:
		return errors.New("sim: command queue overflow")
	}
}

// NackAddress makes the next address byte go unacknowledged, regardless of
// attached devices.
func (p *Port) NackAddress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nackAddr = true
}

// FailAfter makes the current or next write transfer NACK after n data bytes
// have been accepted.
func (p *Port) FailAfter(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAfter = n
}

// InjectBusError reports a bus error on the next wire byte.
func (p *Port) InjectBusError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busFault = true
}

// InjectArbitrationLoss makes the next start condition lose arbitration.
func (p *Port) InjectArbitrationLoss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arbLoss = true
}

// CorruptPEC flips the bits of the next byte shifted in from the bus. With
// packet error checking enabled any corrupted byte of the read frame makes the
// trailing check byte fail verification.
func (p *Port) CorruptPEC() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corruptRead = true
}

// StretchClock delays the next bus step by d, simulating a slave stretching
// the clock. With d beyond the SMBus limit this drives the engine's timeout
// path.
func (p *Port) StretchClock(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stretch = d
}

func (p *Port) pump() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case c := <-p.cmds:
			p.step(c)
		}
	}
}

// step processes one queued command: advances bus state, consults fault
// flags, drives the addressed device, records the trace entry and delivers
// the resulting event.
func (p *Port) step(c command) {
	p.mu.Lock()
	if d := p.stretch; d > 0 {
		p.stretch = 0
		p.mu.Unlock()
		time.Sleep(d)
		p.mu.Lock()
	}
	sink := p.sink
	p.mu.Unlock()

	switch c.kind {
	case cmdStart:
		p.record(TraceEntry{Op: OpStart})
		if p.consumeArbLoss() {
			p.phase = phaseIdle
			sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvArbitrationLost})
			return
		}
		p.phase = phaseAddr
		sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvStartSent})

	case cmdStop:
		p.record(TraceEntry{Op: OpStop})
		if p.cur != nil {
			p.cur.Stop()
			p.cur = nil
		}
		p.phase = phaseIdle

	case cmdWrite:
		if p.consumeBusFault() {
			p.record(TraceEntry{Op: OpWrite, Data: c.data})
			sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvBusError})
			return
		}
		ack := p.writeByte(c.data)
		p.record(TraceEntry{Op: OpWrite, Data: c.data, Ack: ack})
		if ack {
			sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvByteSent})
		} else {
			sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvNack})
		}

	case cmdRead:
		if p.consumeBusFault() {
			p.record(TraceEntry{Op: OpRead})
			sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvBusError})
			return
		}
		b := byte(0xFF) // floating bus
		if p.cur != nil {
			b = p.cur.Read()
		}
		if p.consumeCorruptRead() {
			b ^= 0xFF
		}
		p.record(TraceEntry{Op: OpRead, Data: b, Ack: c.ack})
		sink.HandleEvent(i2cdrv.Event{Kind: i2cdrv.EvByteReceived, Data: b})
	}
}

// writeByte runs the bus-side address decode and data forwarding for one
// written byte, returning the acknowledge.
func (p *Port) writeByte(b byte) bool {
	switch p.phase {
	case phaseAddr:
		if b&0xF8 == addr10HeaderMask {
			return p.writeHeader10(b)
		}
		addr := uint16(b >> 1)
		write := b&1 == 0
		dev := p.find(addr, false)
		if p.consumeNackAddr() || dev == nil {
			p.phase = phaseIdle
			return false
		}
		p.cur = dev
		p.dataN = 0
		p.phase = phaseData
		dev.Select(write)
		return true

	case phaseAddr10Low:
		p.addr10 = p.addr10hi | uint16(b)
		dev := p.find(p.addr10, true)
		if p.consumeNackAddr() || dev == nil {
			p.phase = phaseIdle
			return false
		}
		p.cur = dev
		p.dataN = 0
		p.phase = phaseData
		dev.Select(true)
		return true

	case phaseData:
		if p.cur == nil {
			return false
		}
		if n := p.consumeFailAfter(); n >= 0 && p.dataN >= n {
			return false
		}
		if !p.cur.Write(b) {
			return false
		}
		p.dataN++
		return true
	}
	return false
}

// writeHeader10 handles the 11110xx 10-bit address header. A write header is
// followed by the low address byte; a read header after a repeated start
// re-addresses the slave selected by the preceding write header pair.
func (p *Port) writeHeader10(b byte) bool {
	hi := uint16(b>>1&0x3) << 8
	if b&1 == 0 {
		p.addr10hi = hi
		p.phase = phaseAddr10Low
		return true
	}
	if p.addr10&0x300 != hi {
		p.phase = phaseIdle
		return false
	}
	dev := p.find(p.addr10, true)
	if p.consumeNackAddr() || dev == nil {
		p.phase = phaseIdle
		return false
	}
	p.cur = dev
	p.dataN = 0
	p.phase = phaseData
	dev.Select(false)
	return true
}

func (p *Port) find(addr uint16, tenBit bool) Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, dev := range p.devices {
		a := dev.Address()
		if a.Is10Bit() == tenBit && a.Value() == addr {
			return dev
		}
	}
	return nil
}

func (p *Port) consumeNackAddr() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.nackAddr
	p.nackAddr = false
	return v
}

func (p *Port) consumeBusFault() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.busFault
	p.busFault = false
	return v
}

func (p *Port) consumeCorruptRead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.corruptRead
	p.corruptRead = false
	return v
}

func (p *Port) consumeArbLoss() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.arbLoss
	p.arbLoss = false
	return v
}

// consumeFailAfter peeks the threshold; the flag is cleared when it fires so
// a retried transfer succeeds.
func (p *Port) consumeFailAfter() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.failAfter
	if n >= 0 && p.dataN >= n {
		p.failAfter = -1
	}
	return n
}

const addr10HeaderMask = 0xF0
