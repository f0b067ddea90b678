package i2cdrv

// Completion and error dispatch. Both run in the context that detected the
// terminating condition, i.e. the port's event context: handlers must not
// block, perform long-running work, or re-enter driver operations. The
// one-shot signal is published after the handler returns, so a caller woken
// from Session.Wait observes the handler's effects.

func (d *Driver) dispatchComplete(s *Session) {
	d.log.V(1).Info("transfer complete",
		"port", d.id, "addr", s.Addr.Value(), "tx", s.TxHead, "rx", s.RxHead, "restart", s.Restart)
	if s.OnComplete != nil {
		s.OnComplete.HandleComplete(d, s)
	}
	s.finish(nil)
}

func (d *Driver) dispatchError(s *Session, err *TransferError) {
	d.log.Error(err, "transfer failed", "port", d.id, "addr", s.Addr.Value(), "moved", err.Bytes)
	if s.OnError != nil {
		s.OnError.HandleError(d, s, err)
	}
	s.finish(err)
}
