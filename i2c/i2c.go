// Package i2c defines the bus transport consumed by the device drivers in
// this repository, along with adapters for the common Linux I2C stacks.
package i2c

import (
	"errors"
	"time"
)

// DefaultTimeout bounds one bus transaction.  Adapters that support
// deadlines apply it; the drivers own no timing of their own.
const DefaultTimeout = 10 * time.Millisecond

var (
	// ErrNACK is generated when a device does not acknowledge a transfer.
	ErrNACK = errors.New("i2c: NACK received")

	// ErrNoDevice is generated when nothing acknowledges at an address.
	ErrNoDevice = errors.New("i2c: no device at address")
)

// Bus issues blocking transactions to a 7-bit addressed device.  Addresses
// are pre-shift; each implementation applies the <<1 wire framing itself.
// A Bus serializes access internally; drivers assume at most one in-flight
// transaction per bus.
type Bus interface {
	// Transmit writes len(p) bytes to the device at addr.
	Transmit(addr uint8, p []byte) error

	// Receive reads len(p) bytes from the device at addr.
	Receive(addr uint8, p []byte) error

	// Ready performs a zero-length presence check, returning ErrNoDevice
	// if nothing acknowledged at addr.
	Ready(addr uint8) error
}
