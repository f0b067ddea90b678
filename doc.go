// Package i2cdrv implements an interrupt-driven I2C master transfer engine.
//
// The engine owns the driver state machine, per-transaction sessions, bus
// arbitration between competing goroutines, and completion dispatch. It is
// hardware-agnostic: the register-level peripheral is abstracted behind the
// Port interface, which programs start/stop generation and byte shifting and
// reports hardware events back to the engine. The sim package provides an
// in-process Port with attachable slave device models; compat subpackages
// bridge the engine to established Go I2C bus interfaces.
//
// A caller configures a Driver, acquires bus ownership, fills a Session with
// buffers and a target address, and invokes MasterTransmit or MasterReceive.
// The state machine advances on hardware events until all bytes have moved,
// then dispatches completion and, depending on Session.Restart, ends the
// transaction with a stop condition or a repeated start for a chained
// follow-on operation.
package i2cdrv
