// Package periphio exposes an i2cdrv Driver through the periph.io conn/v3
// i2c.Bus interface, so periph device code and i2c.Dev wrappers run on top of
// the transfer engine.
package periphio

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"i2cdrv"
)

// Bus adapts a Driver to periph's i2c.Bus.
type Bus struct {
	name string
	d    *i2cdrv.Driver
}

var _ i2c.Bus = (*Bus)(nil)

// New wraps a started driver. The name is what String reports, conventionally
// the port name.
func New(name string, d *i2cdrv.Driver) *Bus {
	return &Bus{name: name, d: d}
}

// String implements i2c.Bus.
func (b *Bus) String() string {
	return b.name
}

// Tx implements i2c.Bus. Addresses above 0x7F are treated as 10-bit.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	var (
		a   i2cdrv.Addr
		err error
	)
	if addr > 0x7F {
		a, err = i2cdrv.Addr10(addr)
	} else {
		a, err = i2cdrv.Addr7(uint8(addr))
	}
	if err != nil {
		return err
	}
	return b.d.Transact(a, w, r)
}

// SetSpeed implements i2c.Bus, mapping the frequency onto the driver's clock
// reconfiguration. Legal only between transfers.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	hz := int64(f / physic.Hertz)
	if hz <= 0 || hz > int64(i2cdrv.FastModeCeiling) {
		return fmt.Errorf("periphio: unsupported bus speed %s", f)
	}
	return b.d.SetClock(uint32(hz))
}
