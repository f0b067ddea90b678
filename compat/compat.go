// Package compat exposes an i2cdrv Driver through the TinyGo drivers I2C bus
// interface, so existing device drivers written against tinygo.org/x/drivers
// run unchanged on top of the transfer engine.
package compat

import (
	"tinygo.org/x/drivers"

	"i2cdrv"
)

// Bus adapts a Driver to drivers.I2C. Each call runs one full bus
// transaction: ownership is acquired, a write and a restart-chained read are
// performed, and ownership is released.
type Bus struct {
	d *i2cdrv.Driver
}

var _ drivers.I2C = (*Bus)(nil)

// NewBus wraps a started driver.
func NewBus(d *i2cdrv.Driver) *Bus {
	return &Bus{d: d}
}

// Tx implements drivers.I2C. Addresses above 0x7F are treated as 10-bit.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	a, err := packAddr(addr)
	if err != nil {
		return err
	}
	return b.d.Transact(a, w, r)
}

// ReadRegister implements drivers.I2C: a register-pointer write followed by a
// restarted read.
func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister implements drivers.I2C.
func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	return b.Tx(uint16(addr), w, nil)
}

func packAddr(addr uint16) (i2cdrv.Addr, error) {
	if addr > 0x7F {
		return i2cdrv.Addr10(addr)
	}
	return i2cdrv.Addr7(uint8(addr))
}
