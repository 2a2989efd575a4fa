package mcp47feb

// Register addressing.  Every access sends one address byte laid out as
//
//	[7: nonvolatile select] [6..3: register code] [2..0: command bits]
//
// The low field is not a plain R/W bit: the part wants 0x06 for a read and
// 0x00 for a write, and the SALCK sequence reuses it for its own command
// bits.

type register uint8

const (
	regDAC0      register = 0x00
	regDAC1      register = 0x01
	regVref      register = 0x08
	regPowerDown register = 0x09
	regGain      register = 0x0A
	regWiperLock register = 0x0B
)

// EEPROM mirror registers live 0x10 above their volatile counterparts.
// Fast writes address them directly by the high code; reads select the
// mirror with the nonvolatile bit instead.
const eepromOffset register = 0x10

const (
	cmdRead        = 0x06
	cmdWrite       = 0x00
	nonVolatileBit = 0x80
)

// SALCK command words (datasheet figure 7-14).  The command occupies a full
// address byte: the wiper-lock status code in the high field with the
// lock/unlock selector in the low field.
const (
	salck       = 0xD0
	salckUnlock = 0x02
	salckLock   = 0x04
)

// General call commands, broadcast at bus address zero.
const (
	generalCallAddr  = 0x00
	generalCallReset = 0x06
	generalCallWake  = 0x0A
)

// encode produces the address byte for one register access.
func encode(reg register, cmd uint8, nonvolatile bool) uint8 {
	b := uint8(reg)<<3 | cmd
	if nonvolatile {
		b |= nonVolatileBit
	}
	return b
}

// dacReg maps a channel number to its output value register.
func dacReg(channel int) register {
	if channel == 0 {
		return regDAC0
	}
	return regDAC1
}
