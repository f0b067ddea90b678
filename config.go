package i2cdrv

// OpMode selects the bus protocol variant. SMBus modes layer timeout
// enforcement and optional packet error checking on top of the same engine.
type OpMode uint8

const (
	ModeI2C OpMode = iota
	ModeSMBusDevice
	ModeSMBusHost
)

func (m OpMode) String() string {
	switch m {
	case ModeI2C:
		return "i2c"
	case ModeSMBusDevice:
		return "smbus-device"
	case ModeSMBusHost:
		return "smbus-host"
	}
	return "unknown"
}

// DutyCycle selects the SCL duty cycle. The fast ratios are only meaningful
// in fast mode (clock above 100 kHz).
type DutyCycle uint8

const (
	DutyStandard DutyCycle = iota
	DutyFast2              // fast mode 2:1
	DutyFast16x9           // fast mode 16:9
)

// Bus clock limits in Hz.
const (
	StandardModeCeiling = 100_000
	FastModeCeiling     = 400_000
)

// Config is the operating configuration of a Driver. It is created by the
// caller before Start and borrowed by the driver while active; the driver
// re-reads it only when a configuration facet is applied. Callers must not
// mutate it while the driver is started.
type Config struct {
	Mode       OpMode
	ClockSpeed uint32 // target bus clock in Hz, at most FastModeCeiling
	Duty       DutyCycle

	// Own addresses used when this node is addressed as a slave. The 10-bit
	// address is zero when unused.
	OwnAddress7  uint8
	OwnAddress10 uint16

	// PEC enables SMBus packet error checking: transfers carry a trailing
	// CRC-8 over the address and data bytes. Only valid in SMBus modes.
	PEC bool
}

// Validate checks the constraints from the configuration contract. It is run
// at Start and at every reconfiguration call.
func (c *Config) Validate() error {
	if c.ClockSpeed == 0 {
		return configErrorf("clock speed must be non-zero")
	}
	if c.ClockSpeed > FastModeCeiling {
		return configErrorf("clock speed %d Hz above fast-mode ceiling %d Hz", c.ClockSpeed, uint32(FastModeCeiling))
	}
	if c.Duty != DutyStandard && c.ClockSpeed <= StandardModeCeiling {
		return configErrorf("fast duty cycle requires fast mode clock, got %d Hz", c.ClockSpeed)
	}
	if c.PEC && c.Mode == ModeI2C {
		return configErrorf("packet error checking requires an SMBus mode")
	}
	if c.OwnAddress7 > 0x7F {
		return configErrorf("own 7-bit address %#x out of range", c.OwnAddress7)
	}
	if c.OwnAddress10 > 0x3FF {
		return configErrorf("own 10-bit address %#x out of range", c.OwnAddress10)
	}
	return nil
}
