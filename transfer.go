package i2cdrv

// Transfer entry points and the state machine consuming hardware events.
//
// Restart chaining model: the state machine consumes Session.Restart
// autonomously. When the final byte of a transfer has moved and Restart is
// set, the engine issues the repeated start itself, dispatches completion and
// parks in StateMasterStart with the start latched; the caller, still holding
// bus ownership, chains the next operation through one of the Direct entry
// points. The engine manages the wire condition, the caller manages the
// chain.

// MasterTransmit performs a master transmit of s.TxBytes bytes and blocks
// until completion or error. The caller must hold bus ownership via Acquire.
// Legal from StateReady or at the tail of a restart-chained operation.
func (d *Driver) MasterTransmit(s *Session) error {
	if err := d.armTransfer(s, dirWrite, true, true); err != nil {
		return err
	}
	return s.Wait()
}

// MasterReceive performs a master receive of s.RxBytes bytes and blocks until
// completion or error. Same preconditions as MasterTransmit.
func (d *Driver) MasterReceive(s *Session) error {
	if err := d.armTransfer(s, dirRead, true, true); err != nil {
		return err
	}
	return s.Wait()
}

// MasterTransmitDirect arms a master transmit and returns without waiting.
// Bus ownership is assumed, not re-validated: calling it without prior
// Acquire is undefined. With restart set the operation continues a chain
// whose repeated start is already on the wire; otherwise it must start from
// StateReady. Completion arrives through the session's handlers and one-shot
// signal.
func (d *Driver) MasterTransmitDirect(s *Session, restart bool) error {
	return d.armTransfer(s, dirWrite, restart, false)
}

// MasterReceiveDirect arms a master receive and returns without waiting. Bus
// ownership is assumed, not re-validated. Legal from StateReady or as the
// tail of a chain.
func (d *Driver) MasterReceiveDirect(s *Session) error {
	return d.armTransfer(s, dirRead, true, false)
}

// MasterStart issues a bare start condition, claiming the wire without
// binding a session. Advanced framing control for callers chaining manually.
func (d *Driver) MasterStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady {
		return logicErrorf("master start in state %s", d.state)
	}
	d.startPending = false
	d.setState(StateMasterStart)
	if err := d.port.Start(); err != nil {
		d.setState(StateReady)
		return err
	}
	return nil
}

// MasterStop closes an open chain or bare start with a stop condition,
// returning the bus to idle. Legal only while the wire is claimed and no
// transfer is bound.
func (d *Driver) MasterStop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateMasterStart || d.sess != nil {
		return logicErrorf("master stop in state %s", d.state)
	}
	d.startPending = false
	if err := d.port.Stop(); err != nil {
		return err
	}
	d.setState(StateReady)
	return nil
}

// armTransfer validates the session, binds it and initiates the start or
// picks up a latched repeated start. chained allows entry at the tail of a
// restart chain; checkOwner enforces the bus-guard precondition of the
// blocking entry points.
func (d *Driver) armTransfer(s *Session, dir byte, chained, checkOwner bool) error {
	if checkOwner && !d.guard.Held() {
		return logicErrorf("transfer without bus ownership")
	}
	if err := s.validate(dir); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.state == StateReady:
		d.bind(s, dir)
		d.setState(StateMasterStart)
		if err := d.port.Start(); err != nil {
			d.stopWatchdog()
			d.sess = nil
			d.setState(StateReady)
			return err
		}
	case chained && d.state == StateMasterStart && d.sess == nil:
		d.bind(s, dir)
		if d.startPending {
			// The repeated start of the previous operation already landed.
			d.startPending = false
			d.beginAddressPhaseLocked()
		}
	default:
		return logicErrorf("transfer in state %s", d.state)
	}
	return nil
}

// bind attaches a session to the driver and resets all transfer scratch.
// Callers hold d.mu.
func (d *Driver) bind(s *Session, dir byte) {
	s.reset(dir)
	d.sess = s
	d.addrIdx = 0
	d.addrLen = 0
	d.addrTail = 0
	d.tailSent = false
	d.pec = 0
	d.pecPending = false
	d.pecSent = false
	d.rxTotal = 0
	d.rxGot = 0
	d.armWatchdog()
}

// HandleEvent consumes one hardware event from the port's event context. It
// never blocks; it reacts, reprograms the port and returns.
func (d *Driver) HandleEvent(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case EvStartSent:
		switch {
		case d.state == StateMasterStart && d.sess == nil:
			// Gap between two chained operations: latch until the next one
			// is bound.
			d.startPending = true
		case d.state == StateMasterStart:
			d.beginAddressPhaseLocked()
		case d.state == StateMasterAddr && d.addrTail != 0 && !d.tailSent:
			// Repeated start inside a 10-bit read address phase: re-send the
			// header with the read bit.
			d.tailSent = true
			d.portWriteLocked(d.addrTail)
		default:
			d.strayLocked(ev)
		}

	case EvByteSent:
		switch d.state {
		case StateMasterAddr:
			d.addrAckedLocked()
		case StateMasterTx:
			d.txAckedLocked()
		default:
			d.strayLocked(ev)
		}

	case EvByteReceived:
		if d.state == StateMasterRx && d.sess != nil {
			d.rxByteLocked(ev.Data)
		} else {
			d.strayLocked(ev)
		}

	case EvNack:
		switch {
		case d.state == StateMasterAddr:
			d.failLocked(ErrNack, 0)
		case d.state.inTransfer() && d.sess != nil:
			d.failLocked(ErrNack, d.movedLocked())
		default:
			d.strayLocked(ev)
		}

	case EvBusError:
		if d.state.inTransfer() {
			d.failLocked(ErrBus, d.movedLocked())
		} else {
			d.strayLocked(ev)
		}

	case EvArbitrationLost:
		if d.state.inTransfer() {
			d.failLocked(ErrArbitration, d.movedLocked())
		} else {
			d.strayLocked(ev)
		}

	case EvTimeout:
		if d.state.inTransfer() && d.sess != nil {
			d.failLocked(ErrTimeout, d.movedLocked())
		} else {
			d.strayLocked(ev)
		}

	case EvPECError:
		if d.state.inTransfer() && d.sess != nil {
			d.failLocked(ErrProtocol, d.movedLocked())
		} else {
			d.strayLocked(ev)
		}
	}
}

// beginAddressPhaseLocked builds the address byte(s) for the bound session
// and shifts the first one out. One byte for 7-bit addressing; for 10-bit,
// the 11110xx header and low byte, with a read re-issuing the header after a
// repeated start.
func (d *Driver) beginAddressPhaseLocked() {
	s := d.sess
	v := s.Addr.Value()
	d.addrIdx = 0
	d.tailSent = false
	d.pec = 0
	if s.Addr.Is10Bit() {
		hdr := addr10Header | byte(v>>8)<<1
		d.addrBuf[0] = hdr
		d.addrBuf[1] = byte(v)
		d.addrLen = 2
		if s.dir == dirRead {
			d.addrTail = hdr | 1
		} else {
			d.addrTail = 0
		}
	} else {
		d.addrBuf[0] = byte(v)<<1 | s.dir
		d.addrLen = 1
		d.addrTail = 0
	}
	d.setState(StateMasterAddr)
	d.portWriteLocked(d.addrBuf[0])
}

// addrAckedLocked advances the address phase on each acknowledged address
// byte.
func (d *Driver) addrAckedLocked() {
	if d.tailSent {
		d.enterDataPhaseLocked()
		return
	}
	d.addrIdx++
	if d.addrIdx < d.addrLen {
		d.portWriteLocked(d.addrBuf[d.addrIdx])
		return
	}
	if d.addrTail != 0 {
		// 10-bit read: repeated start, then the read header.
		if err := d.port.Start(); err != nil {
			d.failLocked(ErrBus, 0)
		}
		return
	}
	d.enterDataPhaseLocked()
}

// enterDataPhaseLocked transitions into the data phase. Zero-length transfers
// complete immediately, keeping full start/stop framing.
func (d *Driver) enterDataPhaseLocked() {
	s := d.sess
	if s.dir == dirWrite {
		d.setState(StateMasterTx)
		d.pecPending = d.cfg.PEC && s.TxBytes > 0
		d.pecSent = false
		if s.TxBytes == 0 {
			d.finishLocked()
			return
		}
		d.portWriteLocked(s.TxBuf[0])
		return
	}
	d.setState(StateMasterRx)
	d.rxGot = 0
	d.rxTotal = s.RxBytes
	if d.cfg.PEC && s.RxBytes > 0 {
		d.rxTotal++ // trailing PEC byte on the wire, not counted in RxBytes
	}
	if d.rxTotal == 0 {
		d.finishLocked()
		return
	}
	d.portReadLocked(d.rxTotal > 1)
}

// txAckedLocked advances the transmit head on each acknowledged data byte.
func (d *Driver) txAckedLocked() {
	s := d.sess
	if d.pecSent {
		d.finishLocked()
		return
	}
	s.TxHead++
	if s.TxHead < s.TxBytes {
		d.portWriteLocked(s.TxBuf[s.TxHead])
		return
	}
	if d.pecPending {
		d.pecSent = true
		// Raw write: the check byte does not fold into its own CRC.
		if err := d.port.WriteByte(d.pec); err != nil {
			d.failLocked(ErrBus, s.TxHead)
		}
		return
	}
	d.finishLocked()
}

// rxByteLocked stores one received byte, or verifies the trailing PEC byte.
func (d *Driver) rxByteLocked(b byte) {
	s := d.sess
	d.rxGot++
	if s.RxHead < s.RxBytes {
		s.RxBuf[s.RxHead] = b
		s.RxHead++
		d.pec = crc8Update(d.pec, b)
	} else if b != d.pec {
		d.failLocked(ErrProtocol, s.RxHead)
		return
	}
	if d.rxGot < d.rxTotal {
		d.portReadLocked(d.rxTotal-d.rxGot > 1)
		return
	}
	d.finishLocked()
}

// finishLocked ends the transfer: stop or repeated start per Session.Restart,
// clear the active session, dispatch completion.
func (d *Driver) finishLocked() {
	s := d.sess
	d.stopWatchdog()
	d.sess = nil
	if s.Restart {
		d.setState(StateMasterStart)
		d.startPending = false
		if err := d.port.Start(); err != nil {
			d.setState(StateError)
			d.dispatchError(s, &TransferError{Kind: ErrBus, Bytes: movedOf(s)})
			return
		}
	} else {
		_ = d.port.Stop()
		d.setState(StateReady)
	}
	d.dispatchComplete(s)
}

// failLocked ends the transfer on an error. A NACK re-frames the bus with a
// stop and returns to StateReady; bus faults park in StateError until the
// caller recovers with Stop/Start.
func (d *Driver) failLocked(kind error, moved int) {
	s := d.sess
	d.stopWatchdog()
	d.sess = nil
	d.startPending = false
	switch kind {
	case ErrArbitration:
		// The bus is no longer ours; issuing a stop would be framing noise.
		d.setState(StateError)
	case ErrNack:
		_ = d.port.Stop()
		d.setState(StateReady)
	default:
		_ = d.port.Stop()
		d.setState(StateError)
	}
	if s == nil {
		d.log.V(1).Info("bus fault outside transfer", "port", d.id, "kind", kind.Error())
		return
	}
	d.dispatchError(s, &TransferError{Kind: kind, Bytes: moved})
}

// portWriteLocked shifts a byte out and folds it into the running PEC.
func (d *Driver) portWriteLocked(b byte) {
	if err := d.port.WriteByte(b); err != nil {
		d.failLocked(ErrBus, d.movedLocked())
		return
	}
	d.pec = crc8Update(d.pec, b)
}

// portReadLocked requests one byte in.
func (d *Driver) portReadLocked(ack bool) {
	if err := d.port.ReadByte(ack); err != nil {
		d.failLocked(ErrBus, d.movedLocked())
	}
}

func (d *Driver) movedLocked() int {
	if d.sess == nil {
		return 0
	}
	return movedOf(d.sess)
}

func movedOf(s *Session) int {
	if s.dir == dirRead {
		return s.RxHead
	}
	return s.TxHead
}

func (d *Driver) strayLocked(ev Event) {
	d.log.V(2).Info("stray event ignored", "port", d.id, "event", ev.Kind.String(), "state", d.state.String())
}
