package i2cdrv

// SMBus packet error checking uses CRC-8 with polynomial x^8 + x^2 + x + 1
// (0x07), initial value 0, over every byte on the wire including the address
// byte(s).

func crc8Update(crc, b byte) byte {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = crc<<1 ^ 0x07
		} else {
			crc <<= 1
		}
	}
	return crc
}

// PEC computes the SMBus packet error check over p. Exported for slave-side
// implementations and tests that need to produce or verify the trailing check
// byte.
func PEC(p []byte) byte {
	var crc byte
	for _, b := range p {
		crc = crc8Update(crc, b)
	}
	return crc
}
