/*Package mcp47feb controls the Microchip MCP47FEB family of dual channel,
12-bit DACs over I2C.

Every setting on the part exists twice: a volatile working copy and an
EEPROM mirror retained across power loss.  Setters touch the working copy;
Persist copies the working state into the mirror.  The EEPROM variants of
the getters read the mirror back.

The driver is a thin register codec over an i2c.Bus.  It performs no
validation, no retries and no recovery: transport errors propagate to the
caller unchanged, and out-of-range output values are masked to 12 bits
rather than rejected.  Composite operations (SetOutputs, Persist) are
sequences of independent transactions; a failure partway leaves the device
partially updated and the caller decides how to proceed.
*/
package mcp47feb

import (
	"github.com/oplab/daclab/i2c"
)

// DefaultAddr is the factory-programmed bus address.
const DefaultAddr = 0x60

// Gain settings, one bit per channel.
const (
	GainX1 = 0
	GainX2 = 1
)

// Power-down modes, two bits per channel.  The non-normal modes disconnect
// the output buffer and tie the pin through the named load.
const (
	PowerNormal   = 0x00
	PowerDown1k   = 0x01
	PowerDown100k = 0x02
	PowerDownHiZ  = 0x03
)

// Voltage reference sources, two bits per channel.
const (
	VrefVDD              = 0x00
	VrefBandGap          = 0x01
	VrefExternal         = 0x02
	VrefExternalBuffered = 0x03
)

// Dev is one MCP47FEB on a bus.  Handles are value-like: the address and
// bus are never reassigned after New, and a Dev owns no resources of its
// own.  The bus is shared with the caller and outlives the handle.
type Dev struct {
	addr uint8
	bus  i2c.Bus
}

// New returns a handle to the device at the 7-bit address addr.  No bus
// traffic occurs.
func New(bus i2c.Bus, addr uint8) *Dev {
	return &Dev{addr: addr, bus: bus}
}

// Addr returns the device's 7-bit bus address.
func (d *Dev) Addr() uint8 {
	return d.addr
}

// Ready reports whether the device acknowledges its address.  An error
// means nothing answered, not that the handle is unusable.
func (d *Dev) Ready() error {
	return d.bus.Ready(d.addr)
}

// readReg fetches one register, volatile or EEPROM mirror.  Every register
// reads back as two bytes.
func (d *Dev) readReg(reg register, nonvolatile bool) (b0, b1 byte, err error) {
	var buf [2]byte
	if err = d.bus.Transmit(d.addr, []byte{encode(reg, cmdRead, nonvolatile)}); err != nil {
		return 0, 0, err
	}
	if err = d.bus.Receive(d.addr, buf[:]); err != nil {
		return 0, 0, err
	}
	return buf[0], buf[1], nil
}

// fastWrite writes a full 16-bit value to one register, high byte first.
func (d *Dev) fastWrite(reg register, data uint16) error {
	return d.bus.Transmit(d.addr, []byte{encode(reg, cmdWrite, false), byte(data >> 8), byte(data)})
}

// writeReg writes a narrow field register.  The gain register takes its
// payload in the high data byte; every other register takes it in the low
// byte.  Quirk of the part, preserved exactly.
func (d *Dev) writeReg(reg register, data byte) error {
	buf := []byte{encode(reg, cmdWrite, false), 0, data}
	if reg == regGain {
		buf[1], buf[2] = data, 0
	}
	return d.bus.Transmit(d.addr, buf)
}

// command issues a bare command word with a zeroed data field.
func (d *Dev) command(word uint8) error {
	return d.bus.Transmit(d.addr, []byte{word, 0, 0})
}

// Value returns the 12-bit output value of channel 0 or 1.
func (d *Dev) Value(channel int) (uint16, error) {
	b0, b1, err := d.readReg(dacReg(channel), false)
	if err != nil {
		return 0, err
	}
	return uint16(b0&0x0F)<<8 | uint16(b1), nil
}

// ValueEEPROM returns the mirrored 12-bit output value of one channel, the
// value the part boots with.
func (d *Dev) ValueEEPROM(channel int) (uint16, error) {
	b0, b1, err := d.readReg(dacReg(channel), true)
	if err != nil {
		return 0, err
	}
	return uint16(b0&0x0F)<<8 | uint16(b1), nil
}

// SetOutputs writes both channel outputs, channel 0 first.  Values are
// masked to 12 bits.  The two writes are separate transactions; a failure
// between them leaves the device split across old and new values.
func (d *Dev) SetOutputs(v0, v1 uint16) error {
	if err := d.fastWrite(regDAC0, v0&0xFFF); err != nil {
		return err
	}
	return d.fastWrite(regDAC1, v1&0xFFF)
}

// Gain returns the gain setting (GainX1 or GainX2) of one channel.
func (d *Dev) Gain(channel int) (uint8, error) {
	b0, _, err := d.readReg(regGain, false)
	if err != nil {
		return 0, err
	}
	g0, g1 := unpack1(b0)
	return pick(channel, g0, g1), nil
}

// GainEEPROM returns the mirrored gain setting of one channel.
func (d *Dev) GainEEPROM(channel int) (uint8, error) {
	b0, _, err := d.readReg(regGain, true)
	if err != nil {
		return 0, err
	}
	g0, g1 := unpack1(b0)
	return pick(channel, g0, g1), nil
}

// SetGain writes the gain setting of both channels.
func (d *Dev) SetGain(g0, g1 uint8) error {
	return d.writeReg(regGain, pack1(g0, g1))
}

// Vref returns the voltage reference source of one channel.
func (d *Dev) Vref(channel int) (uint8, error) {
	_, b1, err := d.readReg(regVref, false)
	if err != nil {
		return 0, err
	}
	r0, r1 := unpack2(b1)
	return pick(channel, r0, r1), nil
}

// VrefEEPROM returns the mirrored voltage reference source of one channel.
func (d *Dev) VrefEEPROM(channel int) (uint8, error) {
	_, b1, err := d.readReg(regVref, true)
	if err != nil {
		return 0, err
	}
	r0, r1 := unpack2(b1)
	return pick(channel, r0, r1), nil
}

// SetVref writes the voltage reference source of both channels.
func (d *Dev) SetVref(v0, v1 uint8) error {
	return d.writeReg(regVref, pack2(v0, v1))
}

// PowerDown returns the power-down mode of one channel.
func (d *Dev) PowerDown(channel int) (uint8, error) {
	_, b1, err := d.readReg(regPowerDown, false)
	if err != nil {
		return 0, err
	}
	p0, p1 := unpack2(b1)
	return pick(channel, p0, p1), nil
}

// PowerDownEEPROM returns the mirrored power-down mode of one channel.
func (d *Dev) PowerDownEEPROM(channel int) (uint8, error) {
	_, b1, err := d.readReg(regPowerDown, true)
	if err != nil {
		return 0, err
	}
	p0, p1 := unpack2(b1)
	return pick(channel, p0, p1), nil
}

// SetPowerDown writes the power-down mode of both channels.
func (d *Dev) SetPowerDown(p0, p1 uint8) error {
	return d.writeReg(regPowerDown, pack2(p0, p1))
}

// Persist copies the working settings into the EEPROM mirror: both output
// values, then vref, gain and power-down.  Five separate writes; a failure
// partway leaves the mirror partially updated.
func (d *Dev) Persist() error {
	for _, channel := range []int{0, 1} {
		v, err := d.Value(channel)
		if err != nil {
			return err
		}
		if err := d.fastWrite(dacReg(channel)+eepromOffset, v); err != nil {
			return err
		}
	}
	r0, err := d.Vref(0)
	if err != nil {
		return err
	}
	r1, err := d.Vref(1)
	if err != nil {
		return err
	}
	if err := d.fastWrite(regVref+eepromOffset, uint16(pack2(r0, r1))); err != nil {
		return err
	}
	g0, err := d.Gain(0)
	if err != nil {
		return err
	}
	g1, err := d.Gain(1)
	if err != nil {
		return err
	}
	// the gain mirror wants its payload in the high byte, same as the
	// volatile gain register
	if err := d.fastWrite(regGain+eepromOffset, uint16(pack1(g0, g1))<<8); err != nil {
		return err
	}
	p0, err := d.PowerDown(0)
	if err != nil {
		return err
	}
	p1, err := d.PowerDown(1)
	if err != nil {
		return err
	}
	return d.fastWrite(regPowerDown+eepromOffset, uint16(pack2(p0, p1)))
}

// Unlock issues the SALCK unlock command.  The HVC pin sequencing the part
// requires around this command is the caller's job; the driver only emits
// the bus traffic.
func (d *Dev) Unlock() error {
	return d.command(salck | salckUnlock)
}

// Lock locks the device's address, reachable afterwards at newAddr.  The
// command goes out through a transient handle on the same bus so the
// caller's handle is left untouched.
//
// TODO: confirm the SALCK lock command word against a bus capture; the
// vendor utility sends the unlock pattern at this point in the sequence.
func (d *Dev) Lock(newAddr uint8) error {
	t := New(d.bus, newAddr)
	return t.command(salck | salckUnlock)
}

// Reset broadcasts the general-call reset, returning every device on the
// bus to its power-on state.
func (d *Dev) Reset() error {
	return d.bus.Transmit(generalCallAddr, []byte{generalCallReset})
}

// Wake broadcasts the general-call wake-up, clearing the power-down state
// of every device on the bus.
func (d *Dev) Wake() error {
	return d.bus.Transmit(generalCallAddr, []byte{generalCallWake})
}
