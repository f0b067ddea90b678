package i2cdrv

// Transact performs a complete bus transaction against a: a write of w, then
// a restart-chained read into r, with stop framing and bus ownership handled
// internally. Either half may be empty; with both empty a zero-length write
// probes the address. This is the convenience surface the compat bridges
// build on; callers needing finer control use the Master* operations with an
// explicitly held guard.
func (d *Driver) Transact(a Addr, w, r []byte) error {
	d.Acquire()
	defer d.Release()

	s := &Session{Addr: a}
	if len(w) > 0 || len(r) == 0 {
		s.TxBuf = w
		s.TxBytes = len(w)
		s.Restart = len(r) > 0
		if err := d.MasterTransmit(s); err != nil {
			return err
		}
		if len(r) == 0 {
			return nil
		}
		s.Restart = false
		s.RxBuf = r
		s.RxBytes = len(r)
		if err := d.MasterReceiveDirect(s); err != nil {
			// Close the chain left open by the transmit's repeated start.
			_ = d.MasterStop()
			return err
		}
		return s.Wait()
	}

	s.RxBuf = r
	s.RxBytes = len(r)
	return d.MasterReceive(s)
}
