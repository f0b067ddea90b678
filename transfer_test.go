package i2cdrv

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// The tests in this file drive the state machine by hand: the stub port
// records programming calls and the test posts the hardware events a real
// peripheral would raise.

func TestManualTransmitFlow(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	completions := 0
	s := &Session{
		Addr:    mustAddr7(t, 0x2A),
		TxBuf:   []byte{0x11, 0x22},
		TxBytes: 2,
		OnComplete: CompleteHandlerFunc(func(*Driver, *Session) {
			completions++
		}),
	}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	if d.State() != StateMasterStart {
		t.Fatalf("state = %s, want master-start", d.State())
	}
	if got := d.ActiveSession(); got != s {
		t.Fatalf("active session not bound")
	}

	d.HandleEvent(Event{Kind: EvStartSent})
	if d.State() != StateMasterAddr {
		t.Fatalf("state = %s after start, want master-addr", d.State())
	}
	d.HandleEvent(Event{Kind: EvByteSent}) // address acked
	d.HandleEvent(Event{Kind: EvByteSent}) // first data byte acked
	d.HandleEvent(Event{Kind: EvByteSent}) // second data byte acked

	if err := s.Wait(); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	want := []byte{0x2A << 1, 0x11, 0x22}
	if !bytes.Equal(port.written, want) {
		t.Errorf("wire bytes = %#v, want %#v", port.written, want)
	}
	if port.stops != 1 {
		t.Errorf("port.Stop called %d times, want 1", port.stops)
	}
	if d.State() != StateReady {
		t.Errorf("state = %s after completion, want ready", d.State())
	}
	if d.ActiveSession() != nil {
		t.Error("active session not cleared after completion")
	}
	if completions != 1 {
		t.Errorf("completion dispatched %d times, want 1", completions)
	}
	if s.TxHead != 2 {
		t.Errorf("TxHead = %d, want 2", s.TxHead)
	}
}

func TestManualReceiveFlow(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	s := &Session{Addr: mustAddr7(t, 0x2A), RxBuf: make([]byte, 2), RxBytes: 2}
	if err := d.MasterReceiveDirect(s); err != nil {
		t.Fatalf("arm failed: %v", err)
	}

	d.HandleEvent(Event{Kind: EvStartSent})
	if got, want := port.written, []byte{0x2A<<1 | 1}; !bytes.Equal(got, want) {
		t.Fatalf("address byte = %#v, want %#v", got, want)
	}
	d.HandleEvent(Event{Kind: EvByteSent}) // address acked
	d.HandleEvent(Event{Kind: EvByteReceived, Data: 0xAA})
	d.HandleEvent(Event{Kind: EvByteReceived, Data: 0xBB})

	if err := s.Wait(); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !bytes.Equal(s.RxBuf, []byte{0xAA, 0xBB}) {
		t.Errorf("received %#v", s.RxBuf)
	}
	// ACK on all but the final byte.
	if want := []bool{true, false}; len(port.reads) != 2 || port.reads[0] != want[0] || port.reads[1] != want[1] {
		t.Errorf("read acks = %v, want %v", port.reads, want)
	}
	if s.RxHead != 2 {
		t.Errorf("RxHead = %d, want 2", s.RxHead)
	}
}

func TestZeroLengthTransferFramesAndDispatchesOnce(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	completions := 0
	s := &Session{
		Addr: mustAddr7(t, 0x50),
		OnComplete: CompleteHandlerFunc(func(*Driver, *Session) {
			completions++
		}),
	}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent}) // address acked, no data phase

	if err := s.Wait(); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if completions != 1 {
		t.Errorf("completion dispatched %d times, want 1", completions)
	}
	if s.TxHead != 0 || s.TxBytes != 0 {
		t.Errorf("TxHead = %d, TxBytes = %d, want 0, 0", s.TxHead, s.TxBytes)
	}
	if port.starts != 1 || port.stops != 1 {
		t.Errorf("framing = %d starts, %d stops, want 1, 1", port.starts, port.stops)
	}
}

func TestAddressNack(t *testing.T) {
	d, _ := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	failures := 0
	s := &Session{
		Addr:    mustAddr7(t, 0x3C),
		TxBuf:   []byte{1, 2, 3},
		TxBytes: 3,
		OnError: ErrorHandlerFunc(func(_ *Driver, _ *Session, err error) {
			failures++
		}),
	}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvNack}) // address rejected

	err := s.Wait()
	if !errors.Is(err, ErrNack) {
		t.Fatalf("expected ErrNack, got %v", err)
	}
	var terr *TransferError
	if !errors.As(err, &terr) || terr.Bytes != 0 {
		t.Errorf("expected partial count 0, got %+v", terr)
	}
	if failures != 1 {
		t.Errorf("error dispatched %d times, want 1", failures)
	}
	if d.State() != StateReady {
		t.Errorf("state = %s after address nack, want ready", d.State())
	}
}

func TestDataNackFreezesHead(t *testing.T) {
	d, _ := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	s := &Session{Addr: mustAddr7(t, 0x3C), TxBuf: []byte{1, 2, 3, 4, 5}, TxBytes: 5}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent}) // address
	d.HandleEvent(Event{Kind: EvByteSent}) // byte 0 acked
	d.HandleEvent(Event{Kind: EvByteSent}) // byte 1 acked
	d.HandleEvent(Event{Kind: EvNack})     // byte 2 rejected

	err := s.Wait()
	var terr *TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransferError, got %v", err)
	}
	if !errors.Is(err, ErrNack) || terr.Bytes != 2 {
		t.Errorf("got kind %v count %d, want nack count 2", terr.Kind, terr.Bytes)
	}
	if s.TxHead != 2 {
		t.Errorf("TxHead = %d, want frozen at 2", s.TxHead)
	}
}

func TestBusFaultParksInErrorUntilRestart(t *testing.T) {
	d, _ := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()

	s := &Session{Addr: mustAddr7(t, 0x3C), TxBuf: []byte{1}, TxBytes: 1}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvBusError})

	if err := s.Wait(); !errors.Is(err, ErrBus) {
		t.Fatalf("expected ErrBus, got %v", err)
	}
	if d.State() != StateError {
		t.Fatalf("state = %s, want error", d.State())
	}
	if err := d.MasterTransmitDirect(s, false); !errors.Is(err, ErrLogic) {
		t.Errorf("transfer from error state: expected ErrLogic, got %v", err)
	}
	d.Release()

	// Recovery is an explicit lifecycle round trip.
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := d.Start(&Config{Mode: ModeI2C, ClockSpeed: 100000}); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if d.State() != StateReady {
		t.Errorf("state = %s after recovery, want ready", d.State())
	}
}

func TestArbitrationLossSkipsStop(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	s := &Session{Addr: mustAddr7(t, 0x3C), TxBuf: []byte{1}, TxBytes: 1}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvArbitrationLost})

	if err := s.Wait(); !errors.Is(err, ErrArbitration) {
		t.Fatalf("expected ErrArbitration, got %v", err)
	}
	if port.stops != 0 {
		t.Errorf("stop issued on a bus we no longer own")
	}
	if d.State() != StateError {
		t.Errorf("state = %s, want error", d.State())
	}
}

func TestRestartChainArmedAfterStart(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	tx := &Session{Addr: mustAddr7(t, 0x50), Restart: true, TxBuf: []byte{0x07}, TxBytes: 1}
	if err := d.MasterTransmitDirect(tx, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent}) // address
	d.HandleEvent(Event{Kind: EvByteSent}) // data byte; restart issued

	if err := tx.Wait(); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}
	if port.stops != 0 {
		t.Fatal("stop issued despite restart")
	}
	if port.starts != 2 {
		t.Fatalf("port.Start called %d times, want 2 (start + repeated start)", port.starts)
	}
	if d.State() != StateMasterStart {
		t.Fatalf("state = %s, want parked master-start", d.State())
	}

	// The repeated start lands before the next operation is armed: it must be
	// latched, and the chained receive picks it up immediately.
	d.HandleEvent(Event{Kind: EvStartSent})
	rx := &Session{Addr: mustAddr7(t, 0x50), RxBuf: make([]byte, 1), RxBytes: 1}
	if err := d.MasterReceiveDirect(rx); err != nil {
		t.Fatalf("chained arm failed: %v", err)
	}
	if d.State() != StateMasterAddr {
		t.Fatalf("state = %s, want master-addr (latched start consumed)", d.State())
	}
	d.HandleEvent(Event{Kind: EvByteSent}) // address acked
	d.HandleEvent(Event{Kind: EvByteReceived, Data: 0x99})

	if err := rx.Wait(); err != nil {
		t.Fatalf("chained receive failed: %v", err)
	}
	if rx.RxBuf[0] != 0x99 {
		t.Errorf("received %#x, want 0x99", rx.RxBuf[0])
	}
	if port.stops != 1 {
		t.Errorf("chain not closed with a single stop: %d", port.stops)
	}
}

func TestRestartChainArmedBeforeStart(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	tx := &Session{Addr: mustAddr7(t, 0x50), Restart: true, TxBuf: []byte{0x07}, TxBytes: 1}
	if err := d.MasterTransmitDirect(tx, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent})
	d.HandleEvent(Event{Kind: EvByteSent})
	if err := tx.Wait(); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}

	// Arm the chained operation before the repeated start lands.
	rx := &Session{Addr: mustAddr7(t, 0x50), RxBuf: make([]byte, 1), RxBytes: 1}
	if err := d.MasterReceiveDirect(rx); err != nil {
		t.Fatalf("chained arm failed: %v", err)
	}
	if d.State() != StateMasterStart {
		t.Fatalf("state = %s, want master-start", d.State())
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent})
	d.HandleEvent(Event{Kind: EvByteReceived, Data: 0x77})

	if err := rx.Wait(); err != nil {
		t.Fatalf("chained receive failed: %v", err)
	}
	if rx.RxBuf[0] != 0x77 {
		t.Errorf("received %#x, want 0x77", rx.RxBuf[0])
	}
	if port.stops != 1 {
		t.Errorf("stops = %d, want 1", port.stops)
	}
}

func TestTenBitAddressPhases(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeI2C, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	// Write: header, low byte, data.
	tx := &Session{Addr: mustAddr10(t, 0x155), TxBuf: []byte{0xEE}, TxBytes: 1}
	if err := d.MasterTransmitDirect(tx, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent}) // header acked
	d.HandleEvent(Event{Kind: EvByteSent}) // low byte acked
	d.HandleEvent(Event{Kind: EvByteSent}) // data acked
	if err := tx.Wait(); err != nil {
		t.Fatalf("10-bit transmit failed: %v", err)
	}
	want := []byte{0xF2, 0x55, 0xEE} // 11110_01_0, low 0x55
	if !bytes.Equal(port.written, want) {
		t.Fatalf("wire bytes = %#v, want %#v", port.written, want)
	}

	// Read: header+low in write direction, repeated start, header with the
	// read bit.
	port.written = nil
	rx := &Session{Addr: mustAddr10(t, 0x155), RxBuf: make([]byte, 1), RxBytes: 1}
	if err := d.MasterReceiveDirect(rx); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent}) // header acked
	d.HandleEvent(Event{Kind: EvByteSent}) // low byte acked; repeated start requested
	if port.starts != 3 {
		t.Fatalf("port.Start calls = %d, want 3", port.starts)
	}
	d.HandleEvent(Event{Kind: EvStartSent}) // repeated start landed
	d.HandleEvent(Event{Kind: EvByteSent})  // read header acked
	d.HandleEvent(Event{Kind: EvByteReceived, Data: 0x5A})
	if err := rx.Wait(); err != nil {
		t.Fatalf("10-bit receive failed: %v", err)
	}
	want = []byte{0xF2, 0x55, 0xF3}
	if !bytes.Equal(port.written, want) {
		t.Errorf("wire bytes = %#v, want %#v", port.written, want)
	}
	if rx.RxBuf[0] != 0x5A {
		t.Errorf("received %#x, want 0x5a", rx.RxBuf[0])
	}
}

func TestSMBusWatchdogTimesOut(t *testing.T) {
	d, _ := newTestDriver(t, &Config{Mode: ModeSMBusHost, ClockSpeed: 100000})
	d.Acquire()
	defer d.Release()

	s := &Session{Addr: mustAddr7(t, 0x10), TxBuf: []byte{1}, TxBytes: 1}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	// No events arrive: the clock-low watchdog must end the transfer.
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
	if err := s.Err(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPECAppendedOnTransmit(t *testing.T) {
	d, port := newTestDriver(t, &Config{Mode: ModeSMBusHost, ClockSpeed: 100000, PEC: true})
	d.Acquire()
	defer d.Release()

	s := &Session{Addr: mustAddr7(t, 0x48), TxBuf: []byte{0x06, 0x2C}, TxBytes: 2}
	if err := d.MasterTransmitDirect(s, false); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	d.HandleEvent(Event{Kind: EvStartSent})
	d.HandleEvent(Event{Kind: EvByteSent}) // address
	d.HandleEvent(Event{Kind: EvByteSent}) // data 0
	d.HandleEvent(Event{Kind: EvByteSent}) // data 1
	d.HandleEvent(Event{Kind: EvByteSent}) // pec byte

	if err := s.Wait(); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	wantPEC := PEC([]byte{0x48 << 1, 0x06, 0x2C})
	want := []byte{0x48 << 1, 0x06, 0x2C, wantPEC}
	if !bytes.Equal(port.written, want) {
		t.Errorf("wire bytes = %#v, want %#v", port.written, want)
	}
	if s.TxHead != 2 {
		t.Errorf("TxHead = %d, want 2 (pec byte not counted)", s.TxHead)
	}
}

func TestPECVerifiedOnReceive(t *testing.T) {
	run := func(t *testing.T, corrupt bool) error {
		d, _ := newTestDriver(t, &Config{Mode: ModeSMBusHost, ClockSpeed: 100000, PEC: true})
		d.Acquire()
		defer d.Release()

		s := &Session{Addr: mustAddr7(t, 0x48), RxBuf: make([]byte, 2), RxBytes: 2}
		if err := d.MasterReceiveDirect(s); err != nil {
			t.Fatalf("arm failed: %v", err)
		}
		d.HandleEvent(Event{Kind: EvStartSent})
		d.HandleEvent(Event{Kind: EvByteSent}) // address
		d.HandleEvent(Event{Kind: EvByteReceived, Data: 0xDE})
		d.HandleEvent(Event{Kind: EvByteReceived, Data: 0xAD})
		pec := PEC([]byte{0x48<<1 | 1, 0xDE, 0xAD})
		if corrupt {
			pec ^= 0xFF
		}
		d.HandleEvent(Event{Kind: EvByteReceived, Data: pec})
		return s.Wait()
	}

	if err := run(t, false); err != nil {
		t.Errorf("valid pec rejected: %v", err)
	}
	if err := run(t, true); !errors.Is(err, ErrProtocol) {
		t.Errorf("corrupt pec: expected ErrProtocol, got %v", err)
	}
}
