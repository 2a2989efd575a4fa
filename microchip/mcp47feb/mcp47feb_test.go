package mcp47feb

import (
	"bytes"
	"errors"
	"testing"
)

var errBus = errors.New("bus failure")

// fakeBus models the register file of the part well enough to echo writes
// back on reads.  The address byte is decoded the way the device decodes
// it: the top five bits select the register (the nonvolatile flag lands on
// the mirror codes naturally, since they sit 0x10 above the volatile ones),
// the low three carry the command.
type fakeBus struct {
	regs    map[uint8]uint16
	tx      [][]byte
	addrs   []uint8
	pending uint8
	failAt  int // fail the nth transmit, 1-based; 0 disables
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: map[uint8]uint16{}}
}

func (f *fakeBus) Transmit(addr uint8, p []byte) error {
	f.tx = append(f.tx, append([]byte{}, p...))
	f.addrs = append(f.addrs, addr)
	if f.failAt != 0 && len(f.tx) >= f.failAt {
		return errBus
	}
	switch len(p) {
	case 1:
		f.pending = p[0]
	case 3:
		f.regs[p[0]>>3] = uint16(p[1])<<8 | uint16(p[2])
	}
	return nil
}

func (f *fakeBus) Receive(addr uint8, p []byte) error {
	v := f.regs[f.pending>>3]
	p[0] = byte(v >> 8)
	p[1] = byte(v)
	return nil
}

func (f *fakeBus) Ready(addr uint8) error {
	f.tx = append(f.tx, []byte{})
	return nil
}

// writes returns only the 3-byte data transmissions, skipping address-only
// reads.
func (f *fakeBus) writes() [][]byte {
	var out [][]byte
	for _, t := range f.tx {
		if len(t) == 3 {
			out = append(out, t)
		}
	}
	return out
}

func TestEncode(t *testing.T) {
	cases := []struct {
		reg         register
		cmd         uint8
		nonvolatile bool
		want        uint8
	}{
		{regGain, cmdWrite, false, 0x50},
		{regPowerDown, cmdRead, true, 0xCE},
		{regDAC0, cmdRead, false, 0x06},
		{regDAC1, cmdWrite, false, 0x08},
		{regVref, cmdRead, false, 0x46},
	}
	for _, tc := range cases {
		got := encode(tc.reg, tc.cmd, tc.nonvolatile)
		if got != tc.want {
			t.Errorf("encode(%#02x, %#02x, %v) = %#02x, want %#02x",
				tc.reg, tc.cmd, tc.nonvolatile, got, tc.want)
		}
	}
}

func TestValueRoundTrip(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	for _, v := range []uint16{0, 1, 0x800, 0xFFF, 0x1234, 0xFFFF} {
		if err := dac.SetOutputs(v, 0); err != nil {
			t.Fatal(err)
		}
		got, err := dac.Value(0)
		if err != nil {
			t.Fatal(err)
		}
		if got != v&0xFFF {
			t.Errorf("Value(0) after SetOutputs(%#x) = %#x, want %#x", v, got, v&0xFFF)
		}
	}
}

func TestSetOutputsMasksTo12Bits(t *testing.T) {
	over := newFakeBus()
	masked := newFakeBus()
	if err := New(over, DefaultAddr).SetOutputs(0x5123, 0xF456); err != nil {
		t.Fatal(err)
	}
	if err := New(masked, DefaultAddr).SetOutputs(0x123, 0x456); err != nil {
		t.Fatal(err)
	}
	if len(over.tx) != len(masked.tx) {
		t.Fatalf("transaction counts differ: %d != %d", len(over.tx), len(masked.tx))
	}
	for i := range over.tx {
		if !bytes.Equal(over.tx[i], masked.tx[i]) {
			t.Errorf("transmission %d: % x != % x", i, over.tx[i], masked.tx[i])
		}
	}
}

func TestSetOutputsChannelOrder(t *testing.T) {
	bus := newFakeBus()
	if err := New(bus, DefaultAddr).SetOutputs(0xAAA, 0x555); err != nil {
		t.Fatal(err)
	}
	w := bus.writes()
	if len(w) != 2 {
		t.Fatalf("got %d writes, want 2", len(w))
	}
	if w[0][0] != 0x00 || w[1][0] != 0x08 {
		t.Errorf("address bytes % x, % x; want channel 0 then channel 1", w[0][0], w[1][0])
	}
}

func TestGainPayloadRidesHighByte(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	if err := dac.SetGain(GainX2, GainX1); err != nil {
		t.Fatal(err)
	}
	if err := dac.SetPowerDown(PowerDown1k, PowerNormal); err != nil {
		t.Fatal(err)
	}
	if err := dac.SetVref(VrefBandGap, VrefVDD); err != nil {
		t.Fatal(err)
	}
	w := bus.writes()
	if len(w) != 3 {
		t.Fatalf("got %d writes, want 3", len(w))
	}
	gain := w[0]
	if gain[1] != 0x01 || gain[2] != 0x00 {
		t.Errorf("gain payload bytes %#02x %#02x; want data in the high byte", gain[1], gain[2])
	}
	for _, other := range w[1:] {
		if other[1] != 0x00 || other[2] != 0x01 {
			t.Errorf("register %#02x payload bytes %#02x %#02x; want data in the low byte",
				other[0], other[1], other[2])
		}
	}
}

func TestGainEchoScenario(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	if err := dac.SetGain(1, 0); err != nil {
		t.Fatal(err)
	}
	g0, err := dac.Gain(0)
	if err != nil {
		t.Fatal(err)
	}
	g1, err := dac.Gain(1)
	if err != nil {
		t.Fatal(err)
	}
	if g0 != 1 || g1 != 0 {
		t.Errorf("Gain readback = (%d, %d), want (1, 0)", g0, g1)
	}
}

func TestNarrowFieldRoundTrips(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	cases := []struct {
		name string
		set  func(uint8, uint8) error
		get  func(int) (uint8, error)
		max  uint8
	}{
		{"gain", dac.SetGain, dac.Gain, 1},
		{"vref", dac.SetVref, dac.Vref, 3},
		{"power-down", dac.SetPowerDown, dac.PowerDown, 3},
	}
	for _, tc := range cases {
		for v0 := uint8(0); v0 <= tc.max; v0++ {
			for v1 := uint8(0); v1 <= tc.max; v1++ {
				if err := tc.set(v0, v1); err != nil {
					t.Fatal(err)
				}
				g0, err := tc.get(0)
				if err != nil {
					t.Fatal(err)
				}
				g1, err := tc.get(1)
				if err != nil {
					t.Fatal(err)
				}
				if g0 != v0 || g1 != v1 {
					t.Errorf("%s: set (%d, %d), read back (%d, %d)", tc.name, v0, v1, g0, g1)
				}
			}
		}
	}
}

func TestPersistWriteOrder(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	if err := dac.SetOutputs(0x123, 0x456); err != nil {
		t.Fatal(err)
	}
	if err := dac.SetVref(VrefBandGap, VrefExternal); err != nil {
		t.Fatal(err)
	}
	if err := dac.SetGain(GainX2, GainX2); err != nil {
		t.Fatal(err)
	}
	if err := dac.SetPowerDown(PowerNormal, PowerDown100k); err != nil {
		t.Fatal(err)
	}
	bus.tx = nil
	if err := dac.Persist(); err != nil {
		t.Fatal(err)
	}
	w := bus.writes()
	if len(w) != 5 {
		t.Fatalf("Persist issued %d fast writes, want 5", len(w))
	}
	wantOrder := []uint8{0x10, 0x11, 0x18, 0x1A, 0x19}
	for i, want := range wantOrder {
		if got := w[i][0] >> 3; got != want {
			t.Errorf("write %d addressed register %#02x, want %#02x", i, got, want)
		}
	}
	// the mirrored values match the working copies
	if v, _ := dac.ValueEEPROM(0); v != 0x123 {
		t.Errorf("mirrored value 0 = %#x, want 0x123", v)
	}
	if v, _ := dac.ValueEEPROM(1); v != 0x456 {
		t.Errorf("mirrored value 1 = %#x, want 0x456", v)
	}
	if g, _ := dac.GainEEPROM(0); g != GainX2 {
		t.Errorf("mirrored gain 0 = %d, want %d", g, GainX2)
	}
	if r, _ := dac.VrefEEPROM(1); r != VrefExternal {
		t.Errorf("mirrored vref 1 = %d, want %d", r, VrefExternal)
	}
	if p, _ := dac.PowerDownEEPROM(1); p != PowerDown100k {
		t.Errorf("mirrored power-down 1 = %d, want %d", p, PowerDown100k)
	}
}

func TestPersistPropagatesMidSequenceFailure(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	if err := dac.SetOutputs(0x123, 0x456); err != nil {
		t.Fatal(err)
	}
	count := len(bus.tx)
	bus.failAt = count + 5 // inside the mirror sequence
	if err := dac.Persist(); err != errBus {
		t.Errorf("Persist error = %v, want %v", err, errBus)
	}
}

func TestUnlockCommandBytes(t *testing.T) {
	bus := newFakeBus()
	if err := New(bus, DefaultAddr).Unlock(); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xD2, 0, 0}
	if len(bus.tx) != 1 || !bytes.Equal(bus.tx[0], want) {
		t.Errorf("Unlock transmitted % x, want % x", bus.tx, want)
	}
}

func TestLockUsesTransientHandle(t *testing.T) {
	bus := newFakeBus()
	dac := New(bus, DefaultAddr)
	if err := dac.Lock(0x61); err != nil {
		t.Fatal(err)
	}
	if dac.Addr() != DefaultAddr {
		t.Errorf("caller's handle re-addressed to %#02x", dac.Addr())
	}
	if len(bus.addrs) != 1 || bus.addrs[0] != 0x61 {
		t.Errorf("command addressed %#02x, want 0x61", bus.addrs)
	}
	want := []byte{0xD2, 0, 0}
	if len(bus.tx) != 1 || !bytes.Equal(bus.tx[0], want) {
		t.Errorf("Lock transmitted % x, want % x", bus.tx, want)
	}
}

func TestTransportErrorsPropagate(t *testing.T) {
	bus := newFakeBus()
	bus.failAt = 1
	dac := New(bus, DefaultAddr)
	if _, err := dac.Value(0); err != errBus {
		t.Errorf("Value error = %v, want %v", err, errBus)
	}
	if err := dac.SetGain(0, 0); err != errBus {
		t.Errorf("SetGain error = %v, want %v", err, errBus)
	}
}
