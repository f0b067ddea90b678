package sim

// TraceOp labels one recorded wire action.
type TraceOp uint8

const (
	OpStart TraceOp = iota
	OpStop
	OpWrite
	OpRead
)

func (o TraceOp) String() string {
	switch o {
	case OpStart:
		return "START"
	case OpStop:
		return "STOP"
	case OpWrite:
		return "WRITE"
	case OpRead:
		return "READ"
	}
	return "?"
}

// TraceEntry is one recorded wire action: a start/stop condition or a byte
// with its acknowledge.
type TraceEntry struct {
	Op   TraceOp
	Data byte
	Ack  bool
}

// Trace returns a copy of the recorded wire trace.
func (p *Port) Trace() []TraceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TraceEntry, len(p.trace))
	copy(out, p.trace)
	return out
}

// ClearTrace discards the recorded trace.
func (p *Port) ClearTrace() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trace = p.trace[:0]
}

func (p *Port) record(e TraceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trace = append(p.trace, e)
}
