package i2cdrv

// PortID identifies a physical peripheral instance within the registry.
type PortID uint8

// EventKind enumerates the hardware-level events a Port reports while a
// transfer is in flight.
type EventKind uint8

const (
	// EvStartSent: a start or repeated-start condition has been generated and
	// the bus is ours.
	EvStartSent EventKind = iota

	// EvByteSent: the byte handed to WriteByte was shifted out and
	// acknowledged by the target.
	EvByteSent

	// EvByteReceived: a byte was shifted in; Event.Data carries it.
	EvByteReceived

	// EvNack: the target did not acknowledge the last address or data byte.
	EvNack

	// EvBusError: malformed framing was detected on the wire.
	EvBusError

	// EvArbitrationLost: another master won arbitration.
	EvArbitrationLost

	// EvTimeout: the port's own SMBus timeout detection fired. The engine
	// additionally enforces the SMBus clock-low timeout itself, so ports
	// without hardware timeout support never need to produce this.
	EvTimeout

	// EvPECError: the port's hardware packet error check failed. Like
	// EvTimeout, optional; the engine verifies PEC in software.
	EvPECError
)

func (k EventKind) String() string {
	switch k {
	case EvStartSent:
		return "start-sent"
	case EvByteSent:
		return "byte-sent"
	case EvByteReceived:
		return "byte-received"
	case EvNack:
		return "nack"
	case EvBusError:
		return "bus-error"
	case EvArbitrationLost:
		return "arbitration-lost"
	case EvTimeout:
		return "timeout"
	case EvPECError:
		return "pec-error"
	}
	return "unknown"
}

// Event is one hardware-level notification. Data is meaningful only for
// EvByteReceived.
type Event struct {
	Kind EventKind
	Data byte
}

// EventSink consumes hardware events. A Driver is the sink of its Port.
type EventSink interface {
	HandleEvent(Event)
}

// Port is the register-level interface the state machine programs. Target
// packages implement it for real peripherals; the sim package provides an
// in-process implementation for tests and host-side use.
//
// Contract: events are delivered strictly ordered from a single event context
// (the interrupt-equivalent goroutine), and never synchronously from within a
// programming call below. Start, Stop, WriteByte and ReadByte only enqueue
// work on the hardware; their outcome arrives as an Event.
type Port interface {
	// Apply programs clock, mode and own-address settings from cfg. Called at
	// Start and whenever one configuration facet is reprogrammed.
	Apply(cfg *Config) error

	// Shutdown releases the peripheral. No events are delivered afterwards
	// until the next Apply.
	Shutdown() error

	// Sink registers the consumer of this port's events. Called once before
	// Apply.
	Sink(s EventSink)

	// Start generates a start condition, or a repeated start if the bus is
	// already owned. Reported back as EvStartSent.
	Start() error

	// Stop generates a stop condition, releasing the bus. Not acknowledged by
	// an event.
	Stop() error

	// WriteByte shifts one byte out. Reported back as EvByteSent or EvNack.
	WriteByte(b byte) error

	// ReadByte shifts one byte in, answering with ACK when ack is true and
	// NACK on the final byte of a read. Reported back as EvByteReceived.
	ReadByte(ack bool) error
}
