// Package eeprom drives 24-series serial EEPROMs over any tinygo.org/x/drivers
// I2C bus, including the compat bridge onto the i2cdrv engine. Parts with a
// single-byte register pointer are supported; larger parts in that family
// bank additional address bits into the device address, which is handled
// transparently.
package eeprom

import (
	"errors"
	"io"
	"time"

	"tinygo.org/x/drivers"
)

// Config describes one EEPROM part.
type Config struct {
	Size       int           // total array size in bytes
	PageSize   int           // write page size in bytes
	WriteDelay time.Duration // post-write cycle time (t_WR)
}

// Common parts.
var (
	Conf24C02 = Config{Size: 256, PageSize: 8, WriteDelay: 5 * time.Millisecond}
	Conf24C04 = Config{Size: 512, PageSize: 16, WriteDelay: 5 * time.Millisecond}
	Conf24C08 = Config{Size: 1024, PageSize: 16, WriteDelay: 5 * time.Millisecond}
	Conf24C16 = Config{Size: 2048, PageSize: 16, WriteDelay: 5 * time.Millisecond}
)

// Device is a file-like view of the EEPROM array: it reads, writes with page
// splitting, and seeks.
type Device struct {
	bus  drivers.I2C
	addr uint8
	conf Config
	p    int // array pointer
}

// New creates a device at the given 7-bit base address. The bus must already
// be configured.
func New(bus drivers.I2C, addr uint8, conf Config) (*Device, error) {
	if conf.Size <= 0 || conf.PageSize <= 0 || conf.Size%conf.PageSize != 0 {
		return nil, errors.New("eeprom: invalid geometry")
	}
	if addr > 0x7F {
		return nil, errors.New("eeprom: address out of range")
	}
	return &Device{bus: bus, addr: addr, conf: conf}, nil
}

var (
	_ io.Reader = (*Device)(nil)
	_ io.Writer = (*Device)(nil)
	_ io.Seeker = (*Device)(nil)
)

// devaddr banks the high address bits of pos into the device address, one
// address increment per 256 bytes.
func (d *Device) devaddr(pos int) uint16 {
	return uint16(d.addr) + uint16(pos>>8)
}

// Read reads from the current pointer, advancing it. Returns io.EOF at the
// end of the array.
func (d *Device) Read(b []byte) (int, error) {
	if d.p >= d.conf.Size {
		return 0, io.EOF
	}
	n := len(b)
	if rem := d.conf.Size - d.p; n > rem {
		n = rem
	}
	if n == 0 {
		return 0, nil
	}
	// Reads may cross the 256-byte bank boundary, so split per bank.
	read := 0
	for read < n {
		chunk := n - read
		if rem := 256 - d.p&0xFF; chunk > rem {
			chunk = rem
		}
		err := d.bus.Tx(d.devaddr(d.p), []byte{byte(d.p)}, b[read:read+chunk])
		if err != nil {
			return read, err
		}
		d.p += chunk
		read += chunk
	}
	return read, nil
}

// Write writes through the current pointer with page splitting, waiting out
// the device's write cycle between pages. Returns io.EOF if the array ends
// before all bytes are written.
func (d *Device) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) && d.p < d.conf.Size {
		chunk := len(b) - written
		if rem := d.conf.PageSize - d.p%d.conf.PageSize; chunk > rem {
			chunk = rem
		}
		w := make([]byte, 0, chunk+1)
		w = append(w, byte(d.p))
		w = append(w, b[written:written+chunk]...)
		if err := d.bus.Tx(d.devaddr(d.p), w, nil); err != nil {
			return written, err
		}
		if d.conf.WriteDelay > 0 {
			time.Sleep(d.conf.WriteDelay)
		}
		d.p += chunk
		written += chunk
	}
	if written < len(b) {
		return written, io.EOF
	}
	return written, nil
}

// Seek implements io.Seeker over the array.
func (d *Device) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(d.p) + offset
	case io.SeekEnd:
		abs = int64(d.conf.Size) + offset
	default:
		return int64(d.p), errors.New("eeprom: invalid whence")
	}
	if abs < 0 || abs > int64(d.conf.Size) {
		return int64(d.p), errors.New("eeprom: position outside array")
	}
	d.p = int(abs)
	return abs, nil
}

// Current reads from the device's own current-address pointer without
// repositioning, the cheapest read the part offers.
func (d *Device) Current(b []byte) error {
	return d.bus.Tx(uint16(d.addr), nil, b)
}
