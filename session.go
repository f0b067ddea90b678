package i2cdrv

// CompleteHandler is notified when a session's transfer completes normally.
// It runs in the event context and must not block, perform long-running work,
// or re-enter driver operations.
type CompleteHandler interface {
	HandleComplete(d *Driver, s *Session)
}

// CompleteHandlerFunc adapts an ordinary function to a CompleteHandler.
type CompleteHandlerFunc func(d *Driver, s *Session)

// HandleComplete implements CompleteHandler.
func (f CompleteHandlerFunc) HandleComplete(d *Driver, s *Session) {
	f(d, s)
}

// ErrorHandler is notified when a session's transfer fails. The error is a
// *TransferError carrying the kind and the partial byte count. Same
// non-blocking contract as CompleteHandler.
type ErrorHandler interface {
	HandleError(d *Driver, s *Session, err error)
}

// ErrorHandlerFunc adapts an ordinary function to an ErrorHandler.
type ErrorHandlerFunc func(d *Driver, s *Session, err error)

// HandleError implements ErrorHandler.
func (f ErrorHandlerFunc) HandleError(d *Driver, s *Session, err error) {
	f(d, s, err)
}

// Session holds one logical transaction: target address, borrowed buffers,
// progress counters and optional notification handlers. The caller populates
// it, binds it to a Driver through a transfer call, and may reuse or discard
// it once completion has been dispatched.
//
// Buffers are exclusively owned by the caller; the driver borrows them only
// while the transfer is in flight and never retains them past completion.
type Session struct {
	// Addr is the packed target address, built via Addr7 or Addr10.
	Addr Addr

	// Restart selects the bus control at the end of the transfer: true issues
	// a repeated start keeping the bus owned for a chained follow-on
	// operation, false issues a stop condition.
	Restart bool

	// Transmit buffer, requested byte count and progress head. TxBytes must
	// not exceed len(TxBuf); TxHead is maintained by the driver, reset at
	// transfer entry and monotone up to TxBytes.
	TxBuf   []byte
	TxBytes int
	TxHead  int

	// Receive side, same contract as the transmit side.
	RxBuf   []byte
	RxBytes int
	RxHead  int

	// Optional notification handlers. Both slots are independently optional;
	// a blocking caller may rely on Wait alone.
	OnComplete CompleteHandler
	OnError    ErrorHandler

	// dir is the R/W bit of the current operation, set by the transfer call.
	dir byte

	// One-shot completion signal replacing a raw waiting-thread handle. done
	// is re-created at every transfer entry; err is published before done is
	// closed.
	done chan struct{}
	err  error
}

const (
	dirWrite byte = 0
	dirRead  byte = 1
)

// reset re-arms the session for a new transaction.
func (s *Session) reset(dir byte) {
	s.dir = dir
	s.TxHead = 0
	s.RxHead = 0
	s.err = nil
	s.done = make(chan struct{})
}

// finish publishes the terminal result and wakes waiters. Called exactly once
// per armed transaction, from the event context.
func (s *Session) finish(err error) {
	s.err = err
	close(s.done)
}

// Done returns a channel closed when the current transaction terminates.
// Valid after the session has been bound by a transfer call.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the current transaction terminates and returns its result:
// nil on completion, a *TransferError on failure.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Err returns the terminal result once Done is closed.
func (s *Session) Err() error {
	return s.err
}

// validate checks the session against the addressing and buffer contracts for
// the given direction.
func (s *Session) validate(dir byte) error {
	if err := s.Addr.Validate(); err != nil {
		return err
	}
	if dir == dirWrite {
		if s.TxBytes < 0 || s.TxBytes > len(s.TxBuf) {
			return configErrorf("tx byte count %d exceeds buffer depth %d", s.TxBytes, len(s.TxBuf))
		}
	} else {
		if s.RxBytes < 0 || s.RxBytes > len(s.RxBuf) {
			return configErrorf("rx byte count %d exceeds buffer depth %d", s.RxBytes, len(s.RxBuf))
		}
	}
	return nil
}
