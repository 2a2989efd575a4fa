//go:build linux
// +build linux

package i2c

import (
	"fmt"

	d2r2 "github.com/d2r2/go-i2c"
)

// D2r2 adapts the d2r2/go-i2c stack to the Bus interface.  go-i2c binds one
// file handle per device address, so handles are opened lazily per address
// and cached for the life of the adapter.
type D2r2 struct {
	busNo int
	devs  map[uint8]*d2r2.I2C
}

// NewD2r2 returns an adapter for /dev/i2c-<busNo>.  No handles are opened
// until the first transaction.
func NewD2r2(busNo int) *D2r2 {
	return &D2r2{busNo: busNo, devs: map[uint8]*d2r2.I2C{}}
}

func (a *D2r2) dev(addr uint8) (*d2r2.I2C, error) {
	if dev, ok := a.devs[addr]; ok {
		return dev, nil
	}
	dev, err := d2r2.NewI2C(addr, a.busNo)
	if err != nil {
		return nil, err
	}
	a.devs[addr] = dev
	return dev, nil
}

// Transmit writes p to the device at addr.
func (a *D2r2) Transmit(addr uint8, p []byte) error {
	dev, err := a.dev(addr)
	if err != nil {
		return err
	}
	n, err := dev.WriteBytes(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("i2c: wrote %d bytes, expected %d", n, len(p))
	}
	return nil
}

// Receive reads len(p) bytes from the device at addr.
func (a *D2r2) Receive(addr uint8, p []byte) error {
	dev, err := a.dev(addr)
	if err != nil {
		return err
	}
	n, err := dev.ReadBytes(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("i2c: read %d bytes, expected %d", n, len(p))
	}
	return nil
}

// Ready probes addr; opening the handle does not touch the wire, so an
// empty write forces the address phase.
func (a *D2r2) Ready(addr uint8) error {
	dev, err := a.dev(addr)
	if err != nil {
		return ErrNoDevice
	}
	if _, err := dev.WriteBytes(nil); err != nil {
		return ErrNoDevice
	}
	return nil
}

// Close releases every cached device handle.
func (a *D2r2) Close() error {
	var first error
	for addr, dev := range a.devs {
		if err := dev.Close(); err != nil && first == nil {
			first = err
		}
		delete(a.devs, addr)
	}
	return first
}
