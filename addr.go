package i2cdrv

// Addr is a packed 16-bit target address. Bits 0-6 hold a 7-bit address when
// bit 15 is clear; bits 0-9 hold a 10-bit address when bit 15 is set. All
// other bits are unused and must be zero; the driver rejects sessions whose
// unused bits are set rather than send a corrupted address.
//
// Values are built through Addr7 and Addr10, never by bit manipulation at
// call sites.
type Addr uint16

const (
	addr10Flag Addr = 1 << 15

	addr7Mask  Addr = 0x007F
	addr10Mask Addr = 0x03FF

	// 11110xx0 header introducing a 10-bit address on the wire.
	addr10Header byte = 0xF0
)

// Addr7 packs a 7-bit target address. Addresses above 0x7F are rejected.
func Addr7(a uint8) (Addr, error) {
	if a > 0x7F {
		return 0, configErrorf("7-bit address %#x out of range", a)
	}
	return Addr(a), nil
}

// Addr10 packs a 10-bit target address. Addresses above 0x3FF are rejected.
func Addr10(a uint16) (Addr, error) {
	if a > 0x3FF {
		return 0, configErrorf("10-bit address %#x out of range", a)
	}
	return addr10Flag | Addr(a), nil
}

// Is10Bit reports whether the mode-select bit marks a 10-bit address.
func (a Addr) Is10Bit() bool {
	return a&addr10Flag != 0
}

// Value returns the numeric address without the mode-select bit.
func (a Addr) Value() uint16 {
	if a.Is10Bit() {
		return uint16(a & addr10Mask)
	}
	return uint16(a & addr7Mask)
}

// Validate rejects addresses whose unused bits are non-zero.
func (a Addr) Validate() error {
	if a.Is10Bit() {
		if a&^(addr10Flag|addr10Mask) != 0 {
			return configErrorf("address %#x has unused bits set", uint16(a))
		}
		return nil
	}
	if a&^addr7Mask != 0 {
		return configErrorf("address %#x has unused bits set", uint16(a))
	}
	return nil
}
