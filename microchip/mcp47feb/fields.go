package mcp47feb

// The narrow registers hold both channels in one byte: channel 0 in the low
// bits, channel 1 immediately above it, shifted by the field width.  Gain is
// a 1-bit field; vref and power-down are 2-bit fields.

// pack1 packs two 1-bit fields.
func pack1(ch0, ch1 uint8) uint8 {
	return ch0&0x01 | (ch1&0x01)<<1
}

// unpack1 recovers both 1-bit fields.
func unpack1(b uint8) (ch0, ch1 uint8) {
	return b & 0x01, b >> 1 & 0x01
}

// pack2 packs two 2-bit fields.
func pack2(ch0, ch1 uint8) uint8 {
	return ch0&0x03 | (ch1&0x03)<<2
}

// unpack2 recovers both 2-bit fields.
func unpack2(b uint8) (ch0, ch1 uint8) {
	return b & 0x03, b >> 2 & 0x03
}

// pick selects one channel's value from an unpacked pair.
func pick(channel int, ch0, ch1 uint8) uint8 {
	if channel == 0 {
		return ch0
	}
	return ch1
}
