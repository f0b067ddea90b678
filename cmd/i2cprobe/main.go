// i2cprobe brings up the transfer engine on a simulated bus, scans the 7-bit
// address space and dumps the registers of whatever answers. It doubles as a
// smoke test and as a usage example for the engine's public surface.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"i2cdrv"
	"i2cdrv/compat"
	"i2cdrv/sim"
)

var (
	clock   = flag.Uint("clock", 100000, "Bus clock in Hz")
	smbus   = flag.Bool("smbus", false, "Run in SMBus host mode")
	dump    = flag.Int("dump", 16, "Registers to dump per responding device")
	verbose = flag.Bool("v", false, "Enable engine logging")
)

func main() {
	flag.Parse()

	log := logr.Discard()
	if *verbose {
		log = funcr.New(func(prefix, args string) {
			fmt.Fprintf(os.Stderr, "%s %s\n", prefix, args)
		}, funcr.Options{Verbosity: 2})
	}

	port := sim.NewPort("sim0")
	seedDevices(port)

	d := i2cdrv.New(0, port, i2cdrv.WithLogger(log))
	if err := i2cdrv.Register(d); err != nil {
		fatal(err)
	}

	mode := i2cdrv.ModeI2C
	if *smbus {
		mode = i2cdrv.ModeSMBusHost
	}
	cfg := &i2cdrv.Config{Mode: mode, ClockSpeed: uint32(*clock)}
	if err := d.Start(cfg); err != nil {
		fatal(err)
	}
	defer d.Stop()

	fmt.Printf("Scanning port %s at %d Hz (%s mode)\n", port.Name(), cfg.ClockSpeed, cfg.Mode)

	bus := compat.NewBus(d)
	found := scan(d)
	if len(found) == 0 {
		fmt.Println("No devices found")
		return
	}

	for _, addr := range found {
		fmt.Printf("\nDevice at %#02x:\n", addr)
		buf := make([]byte, *dump)
		if err := bus.ReadRegister(addr, 0, buf); err != nil {
			fmt.Printf("  read failed: %v\n", err)
			continue
		}
		for i, b := range buf {
			if i%8 == 0 {
				fmt.Printf("  %02x:", i)
			}
			fmt.Printf(" %02x", b)
			if i%8 == 7 || i == len(buf)-1 {
				fmt.Println()
			}
		}
	}
}

// scan probes every assignable 7-bit address with a zero-length transmit.
func scan(d *i2cdrv.Driver) []uint8 {
	var found []uint8
	for addr := uint8(0x08); addr <= 0x77; addr++ {
		a, err := i2cdrv.Addr7(addr)
		if err != nil {
			continue
		}
		if d.Transact(a, nil, nil) == nil {
			found = append(found, addr)
		}
	}
	return found
}

// seedDevices populates the simulated bus so there is something to find.
func seedDevices(port *sim.Port) {
	a50, _ := i2cdrv.Addr7(0x50)
	ee := sim.NewMemoryDevice(a50)
	ee.Load(0, []byte("i2cprobe demo eeprom"))
	port.Attach(ee)

	a68, _ := i2cdrv.Addr7(0x68)
	rtc := sim.NewMemoryDevice(a68)
	rtc.Load(0, []byte{0x55, 0x30, 0x12, 0x03, 0x17, 0x08, 0x26})
	port.Attach(rtc)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
