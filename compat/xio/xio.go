// Package xio exposes an i2cdrv Driver as a golang.org/x/exp/io/i2c driver,
// resolving drivers through the peripheral registry. Open a device with
//
//	dev, err := i2c.Open(xio.Opener{Port: 0}, 0x50)
package xio

import (
	"fmt"

	"golang.org/x/exp/io/i2c/driver"

	"i2cdrv"
)

// Opener implements driver.Opener over a registered driver instance.
type Opener struct {
	Port i2cdrv.PortID
}

var _ driver.Opener = Opener{}

// Open implements driver.Opener.
func (o Opener) Open(addr int, tenbit bool) (driver.Conn, error) {
	d, ok := i2cdrv.Lookup(o.Port)
	if !ok {
		return nil, fmt.Errorf("xio: no driver registered for port %d", o.Port)
	}
	var (
		a   i2cdrv.Addr
		err error
	)
	if tenbit {
		if addr < 0 || addr > 0x3FF {
			return nil, fmt.Errorf("xio: 10-bit address %#x out of range", addr)
		}
		a, err = i2cdrv.Addr10(uint16(addr))
	} else {
		if addr < 0 || addr > 0x7F {
			return nil, fmt.Errorf("xio: 7-bit address %#x out of range", addr)
		}
		a, err = i2cdrv.Addr7(uint8(addr))
	}
	if err != nil {
		return nil, err
	}
	return &conn{d: d, addr: a}, nil
}

type conn struct {
	d    *i2cdrv.Driver
	addr i2cdrv.Addr
}

var _ driver.Conn = (*conn)(nil)

// Tx implements driver.Conn: w is written, then r is filled after a repeated
// start, as a single transaction.
func (c *conn) Tx(w, r []byte) error {
	return c.d.Transact(c.addr, w, r)
}

// Close implements driver.Conn. The driver's lifecycle is owned by whoever
// registered it, so nothing is torn down here.
func (c *conn) Close() error {
	return nil
}
