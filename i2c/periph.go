package i2c

import (
	periphi2c "periph.io/x/conn/v3/i2c"
)

// Periph adapts a periph.io bus to the Bus interface.
type Periph struct {
	bus periphi2c.Bus
}

// NewPeriph wraps an already-open periph.io bus, e.g. one obtained from
// i2creg.Open.
func NewPeriph(bus periphi2c.Bus) *Periph {
	return &Periph{bus: bus}
}

// Transmit writes p to the device at addr.
func (a *Periph) Transmit(addr uint8, p []byte) error {
	return a.bus.Tx(uint16(addr), p, nil)
}

// Receive reads len(p) bytes from the device at addr.
func (a *Periph) Receive(addr uint8, p []byte) error {
	return a.bus.Tx(uint16(addr), nil, p)
}

// Ready probes addr with an empty write, the same presence check the kernel
// i2cdetect tool uses for non-read-only parts.
func (a *Periph) Ready(addr uint8) error {
	if err := a.bus.Tx(uint16(addr), []byte{}, nil); err != nil {
		return ErrNoDevice
	}
	return nil
}
