package comm_test

import (
	"io"
	"net"
	"testing"

	"github.com/snksoft/crc"

	"github.com/oplab/daclab/comm"
	"github.com/oplab/daclab/i2c"
	"github.com/oplab/daclab/microchip/mcp47feb"
)

// bridgeEmulator speaks the bridge frame protocol over TCP and models a
// device register file the same way the bridge's far segment would: length-1
// writes latch a register address, longer writes store data, reads return
// the latched register.
type bridgeEmulator struct {
	present uint8
	regs    map[uint8]uint16
	pending uint8
}

func (e *bridgeEmulator) serve(conn net.Conn) {
	defer conn.Close()
	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		if hdr[0] != 0xA5 {
			return
		}
		n := int(hdr[3])
		rest := make([]byte, n+2)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		sum := uint16(crc.CalculateCRC(crc.CCITT, append(hdr[1:4:4], rest[:n]...)))
		if sum != uint16(rest[n])<<8|uint16(rest[n+1]) {
			return
		}
		op, addr, payload := hdr[1], hdr[2], rest[:n]
		var reply []byte
		switch {
		case addr != e.present:
			reply = e.reply(0x01, nil) // NACK
		case op == 0x01: // write
			switch len(payload) {
			case 1:
				e.pending = payload[0]
			case 3:
				e.regs[payload[0]>>3] = uint16(payload[1])<<8 | uint16(payload[2])
			}
			reply = e.reply(0x00, nil)
		case op == 0x02: // read
			v := e.regs[e.pending>>3]
			reply = e.reply(0x00, []byte{byte(v >> 8), byte(v)})
		case op == 0x03: // ping
			reply = e.reply(0x00, nil)
		default:
			reply = e.reply(0xFF, nil)
		}
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func (e *bridgeEmulator) reply(status uint8, payload []byte) []byte {
	f := []byte{0xA5, status, uint8(len(payload))}
	f = append(f, payload...)
	sum := uint16(crc.CalculateCRC(crc.CCITT, f[1:]))
	return append(f, byte(sum>>8), byte(sum))
}

func startEmulator(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal("could not listen, bridge test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	em := &bridgeEmulator{present: mcp47feb.DefaultAddr, regs: map[uint8]uint16{}}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go em.serve(conn)
		}
	}()
	return ln.Addr().String()
}

func openBridge(t *testing.T) *comm.Bridge {
	t.Helper()
	b := comm.NewBridge(startEmulator(t), false)
	if err := b.Open(); err != nil {
		t.Fatal("could not open bridge:", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBridgeReady(t *testing.T) {
	b := openBridge(t)
	if err := b.Ready(mcp47feb.DefaultAddr); err != nil {
		t.Error("device not ready through bridge:", err)
	}
	if err := b.Ready(0x2A); err != i2c.ErrNoDevice {
		t.Errorf("Ready at an empty address = %v, want %v", err, i2c.ErrNoDevice)
	}
}

func TestBridgeNACKSurfacesAsSharedError(t *testing.T) {
	b := openBridge(t)
	if err := b.Transmit(0x2A, []byte{0x00, 0x01, 0x02}); err != i2c.ErrNACK {
		t.Errorf("Transmit to an empty address = %v, want %v", err, i2c.ErrNACK)
	}
}

func TestBridgeNotConnected(t *testing.T) {
	b := comm.NewBridge("localhost:1", false)
	if err := b.Transmit(0x60, []byte{0}); err != comm.ErrNotConnected {
		t.Errorf("Transmit before Open = %v, want %v", err, comm.ErrNotConnected)
	}
}

func TestDACOverBridge(t *testing.T) {
	b := openBridge(t)
	dac := mcp47feb.New(b, mcp47feb.DefaultAddr)
	if err := dac.SetOutputs(0xABC, 0x321); err != nil {
		t.Fatal(err)
	}
	v0, err := dac.Value(0)
	if err != nil {
		t.Fatal(err)
	}
	v1, err := dac.Value(1)
	if err != nil {
		t.Fatal(err)
	}
	if v0 != 0xABC || v1 != 0x321 {
		t.Errorf("read back (%#x, %#x), want (0xABC, 0x321)", v0, v1)
	}
	if err := dac.SetGain(mcp47feb.GainX2, mcp47feb.GainX1); err != nil {
		t.Fatal(err)
	}
	g, err := dac.Gain(0)
	if err != nil {
		t.Fatal(err)
	}
	if g != mcp47feb.GainX2 {
		t.Errorf("gain 0 = %d, want %d", g, mcp47feb.GainX2)
	}
	if err := dac.Persist(); err != nil {
		t.Fatal(err)
	}
	v, err := dac.ValueEEPROM(0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xABC {
		t.Errorf("mirrored value 0 = %#x, want 0xABC", v)
	}
}
