package sim

import "i2cdrv"

// Device is a slave model attached to a simulated bus. The port performs
// address decoding; a device only sees selection, data bytes and stop
// conditions. All methods are called from the port's event context.
type Device interface {
	// Address returns the packed address the device answers at.
	Address() i2cdrv.Addr

	// Select is called when the device has been addressed after a start or
	// repeated start. write reports the transfer direction.
	Select(write bool)

	// Write offers one data byte; returning false NACKs it.
	Write(b byte) bool

	// Read produces the next data byte.
	Read() byte

	// Stop is called when a stop condition ends the transaction.
	Stop()
}

// MemoryDevice models a 256-byte register file with an auto-incrementing
// pointer, the classic EEPROM/sensor shape: the first byte written after a
// write selection sets the pointer, further writes store through it, reads
// stream from it. The pointer survives a repeated start, so a write of the
// pointer followed by a restarted read performs a random-access read.
type MemoryDevice struct {
	addr      i2cdrv.Addr
	mem       [256]byte
	reg       uint8
	expectPtr bool
}

// NewMemoryDevice creates a memory device answering at addr.
func NewMemoryDevice(addr i2cdrv.Addr) *MemoryDevice {
	return &MemoryDevice{addr: addr}
}

// Load preloads data starting at the given register offset.
func (m *MemoryDevice) Load(offset uint8, data []byte) {
	for i, b := range data {
		m.mem[(int(offset)+i)%len(m.mem)] = b
	}
}

// Mem returns a copy of n bytes starting at the given register offset.
func (m *MemoryDevice) Mem(offset uint8, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.mem[(int(offset)+i)%len(m.mem)]
	}
	return out
}

// Address implements Device.
func (m *MemoryDevice) Address() i2cdrv.Addr {
	return m.addr
}

// Select implements Device.
func (m *MemoryDevice) Select(write bool) {
	if write {
		m.expectPtr = true
	}
}

// Write implements Device.
func (m *MemoryDevice) Write(b byte) bool {
	if m.expectPtr {
		m.reg = b
		m.expectPtr = false
		return true
	}
	m.mem[m.reg] = b
	m.reg++
	return true
}

// Read implements Device.
func (m *MemoryDevice) Read() byte {
	b := m.mem[m.reg]
	m.reg++
	return b
}

// Stop implements Device.
func (m *MemoryDevice) Stop() {}
