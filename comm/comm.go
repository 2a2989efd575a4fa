/*Package comm connects to a serial- or network-attached I2C bridge: a small
MCU that forwards framed bus transactions onto a local I2C segment.  The
Bridge type implements i2c.Bus, so a device driver works identically over a
directly attached bus or a bridge on the far side of a cable.

The wire protocol is a fixed frame in both directions:

	request:  SOF  op    addr  len  payload...  crc16-hi  crc16-lo
	reply:    SOF  stat        len  payload...  crc16-hi  crc16-lo

op is one of write, read or ping.  For reads the payload is a single byte
carrying the requested count.  The CRC is CCITT over everything between the
SOF and the checksum itself.  A non-zero status maps to the shared i2c
error values, so a NACK on the far segment surfaces the same way a local
NACK would.
*/
package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/snksoft/crc"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"

	"github.com/oplab/daclab/i2c"
)

const (
	sof = 0xA5

	opWrite = 0x01
	opRead  = 0x02
	opPing  = 0x03

	statusOK   = 0x00
	statusNACK = 0x01

	// bridgeBaud is the fixed rate of the bridge's serial port.
	bridgeBaud = 115200

	// transactionsPerSecond paces frames so a slow bridge MCU is never
	// overrun; the limit is well above anything the DAC drivers generate.
	transactionsPerSecond = 200
)

var (
	// ErrNotConnected is generated when Conn is nil and a transaction is issued.
	ErrNotConnected = errors.New("conn is nil, not connected to bridge")

	// ErrBadFrame is generated when a reply is malformed or fails its checksum.
	ErrBadFrame = errors.New("malformed frame from bridge")
)

// Bridge is one serial- or TCP-attached I2C bridge.  It satisfies i2c.Bus.
// Transactions are paced by an internal rate limiter; there is no other
// concurrency control, matching the one-in-flight-transaction bus model.
type Bridge struct {
	Addr     string
	IsSerial bool
	Conn     io.ReadWriteCloser
	limiter  *rate.Limiter
}

// NewBridge creates a new Bridge instance.  Addr is a serial device path
// when isSerial is true, otherwise a host:port.
func NewBridge(addr string, isSerial bool) *Bridge {
	return &Bridge{
		Addr:     addr,
		IsSerial: isSerial,
		limiter:  rate.NewLimiter(transactionsPerSecond, 1)}
}

// Open the connection, setting the Conn variable
func (b *Bridge) Open() error {
	// exponential backoff; bridge MCUs reset their USB CDC port when
	// connection thrashed
	wasTimeout := false
	op := func() error {
		err := b.open()
		if err != nil {
			errS := strings.ToLower(err.Error())
			if strings.Contains(errS, "refused") {
				return err
			}
			wasTimeout = true
			return nil
		}
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err == nil && !wasTimeout {
		return nil
	}
	if wasTimeout {
		return fmt.Errorf("connection timeout to %s", b.Addr)
	}
	return err
}

func (b *Bridge) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if b.IsSerial {
		conn, err = serial.OpenPort(&serial.Config{
			Name:        b.Addr,
			Baud:        bridgeBaud,
			ReadTimeout: i2c.DefaultTimeout})
	} else {
		conn, err = TCPSetup(b.Addr, 3*time.Second)
	}
	if err != nil {
		return err
	}
	b.Conn = conn
	return nil
}

// Close the connection, nil-ing the Conn variable
func (b *Bridge) Close() error {
	if b.Conn == nil {
		return nil
	}
	err := b.Conn.Close()
	if err == nil {
		b.Conn = nil
	}
	return err
}

// frame assembles one request frame.
func frame(op, addr uint8, payload []byte) []byte {
	f := make([]byte, 0, len(payload)+6)
	f = append(f, sof, op, addr, uint8(len(payload)))
	f = append(f, payload...)
	sum := uint16(crc.CalculateCRC(crc.CCITT, f[1:]))
	return append(f, byte(sum>>8), byte(sum))
}

// exchange sends one request and decodes the reply, expecting want payload
// bytes back.
func (b *Bridge) exchange(op, addr uint8, payload []byte, want int) ([]byte, error) {
	if b.Conn == nil {
		return nil, ErrNotConnected
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return nil, err
	}
	if conn, ok := b.Conn.(net.Conn); ok {
		conn.SetDeadline(time.Now().Add(3 * time.Second))
	}
	if _, err := b.Conn.Write(frame(op, addr, payload)); err != nil {
		return nil, err
	}
	hdr := make([]byte, 3)
	if _, err := io.ReadFull(b.Conn, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != sof {
		return nil, ErrBadFrame
	}
	n := int(hdr[2])
	rest := make([]byte, n+2)
	if _, err := io.ReadFull(b.Conn, rest); err != nil {
		return nil, err
	}
	sum := uint16(crc.CalculateCRC(crc.CCITT, append(hdr[1:3:3], rest[:n]...)))
	if sum != uint16(rest[n])<<8|uint16(rest[n+1]) {
		return nil, ErrBadFrame
	}
	switch hdr[1] {
	case statusOK:
	case statusNACK:
		return nil, i2c.ErrNACK
	default:
		return nil, fmt.Errorf("bridge status %#02x", hdr[1])
	}
	if n != want {
		return nil, ErrBadFrame
	}
	return rest[:n], nil
}

// Transmit writes p to the device at addr on the far segment.
func (b *Bridge) Transmit(addr uint8, p []byte) error {
	_, err := b.exchange(opWrite, addr, p, 0)
	return err
}

// Receive reads len(p) bytes from the device at addr on the far segment.
func (b *Bridge) Receive(addr uint8, p []byte) error {
	r, err := b.exchange(opRead, addr, []byte{uint8(len(p))}, len(p))
	if err != nil {
		return err
	}
	copy(p, r)
	return nil
}

// Ready pings addr on the far segment.
func (b *Bridge) Ready(addr uint8) error {
	_, err := b.exchange(opPing, addr, nil, 0)
	if err == i2c.ErrNACK {
		return i2c.ErrNoDevice
	}
	return err
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
