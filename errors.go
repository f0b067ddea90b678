package i2cdrv

import (
	"errors"
	"fmt"
)

// Error kinds reported by the engine. Asynchronous failures arrive wrapped in
// a *TransferError; synchronous misuse is reported directly from the call that
// introduced it.
var (
	// ErrConfig signals an invalid configuration: clock speed above the
	// fast-mode ceiling, a fast duty cycle outside fast mode, a malformed
	// address field, or PEC requested outside SMBus operation.
	ErrConfig = errors.New("invalid configuration")

	// ErrBus signals malformed framing detected on the wire.
	ErrBus = errors.New("bus error")

	// ErrArbitration signals lost arbitration against another master. The
	// transaction may be retried by the caller once the bus is re-framed.
	ErrArbitration = errors.New("arbitration lost")

	// ErrNack signals that the target did not acknowledge an address or data
	// byte.
	ErrNack = errors.New("nack received")

	// ErrTimeout signals that an SMBus transfer exceeded the clock-low
	// timeout.
	ErrTimeout = errors.New("smbus timeout")

	// ErrProtocol signals an SMBus protocol violation such as a packet error
	// check mismatch.
	ErrProtocol = errors.New("smbus protocol error")

	// ErrLogic signals driver misuse: release of the bus guard without
	// ownership, reconfiguration mid-transfer, or a transfer started from the
	// wrong state. Fatal to the offending call, not to the driver.
	ErrLogic = errors.New("driver misuse")
)

// TransferError is the terminal error of a failed transfer. Bytes carries the
// number of data bytes actually moved before the failure, so a NACK after N
// bytes of an M-byte transmit reports N.
type TransferError struct {
	Kind  error // one of the sentinel kinds above
	Bytes int   // data bytes moved before the failure
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("i2c transfer failed: %v (%d bytes moved)", e.Kind, e.Bytes)
}

// Unwrap makes errors.Is(err, ErrNack) and friends work on dispatched errors.
func (e *TransferError) Unwrap() error {
	return e.Kind
}

func logicErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrLogic)...)
}

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfig)...)
}
