package i2cdrv

// State is the driver state machine state. StateUninit is the zero value of a
// Driver that has not been created through New; there is no terminal state,
// StateStop and StateReady are re-enterable.
type State uint8

const (
	StateUninit      State = iota // not initialized
	StateStop                     // peripheral disabled
	StateReady                    // configured, bus idle
	StateMasterStart              // start condition issued, arbitration pending
	StateMasterAddr               // address phase in progress
	StateMasterTx                 // data phase, transmitting
	StateMasterRx                 // data phase, receiving
	StateError                    // terminal bus fault, cleared by Stop/Start
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateStop:
		return "stop"
	case StateReady:
		return "ready"
	case StateMasterStart:
		return "master-start"
	case StateMasterAddr:
		return "master-addr"
	case StateMasterTx:
		return "master-tx"
	case StateMasterRx:
		return "master-rx"
	case StateError:
		return "error"
	}
	return "unknown"
}

// inTransfer reports whether the state is one of the in-progress transfer
// states.
func (s State) inTransfer() bool {
	switch s {
	case StateMasterStart, StateMasterAddr, StateMasterTx, StateMasterRx:
		return true
	}
	return false
}
