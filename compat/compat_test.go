package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i2cdrv"
	"i2cdrv/sim"
)

func newBus(t *testing.T, devs ...sim.Device) *Bus {
	t.Helper()
	port := sim.NewPort("sim0")
	for _, dev := range devs {
		port.Attach(dev)
	}
	d := i2cdrv.New(1, port)
	require.NoError(t, d.Start(&i2cdrv.Config{Mode: i2cdrv.ModeI2C, ClockSpeed: 100000}))
	t.Cleanup(func() { _ = d.Stop() })
	return NewBus(d)
}

func mustAddr7(t *testing.T, a uint8) i2cdrv.Addr {
	t.Helper()
	addr, err := i2cdrv.Addr7(a)
	require.NoError(t, err)
	return addr
}

func TestRegisterRoundtrip(t *testing.T) {
	dev := sim.NewMemoryDevice(mustAddr7(t, 0x50))
	bus := newBus(t, dev)

	require.NoError(t, bus.WriteRegister(0x50, 0x10, []byte{0xAA, 0xBB}))

	buf := make([]byte, 2)
	require.NoError(t, bus.ReadRegister(0x50, 0x10, buf))
	assert.Equal(t, []byte{0xAA, 0xBB}, buf)
}

func TestTxWriteThenRead(t *testing.T) {
	dev := sim.NewMemoryDevice(mustAddr7(t, 0x23))
	dev.Load(0x00, []byte{0x11, 0x22, 0x33})
	bus := newBus(t, dev)

	r := make([]byte, 3)
	require.NoError(t, bus.Tx(0x23, []byte{0x00}, r))
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, r)
}

func TestTxTenBitAddress(t *testing.T) {
	a, err := i2cdrv.Addr10(0x155)
	require.NoError(t, err)
	dev := sim.NewMemoryDevice(a)
	dev.Load(0x00, []byte{0x42})
	bus := newBus(t, dev)

	// Addresses above 0x7F select 10-bit addressing.
	r := make([]byte, 1)
	require.NoError(t, bus.Tx(0x155, []byte{0x00}, r))
	assert.Equal(t, byte(0x42), r[0])
}

func TestTxAbsentDevice(t *testing.T) {
	bus := newBus(t)

	err := bus.Tx(0x33, []byte{0x00}, nil)
	assert.ErrorIs(t, err, i2cdrv.ErrNack)
}
