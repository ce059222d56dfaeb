package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"i4.energy/across/espat/at"
)

// DefaultBaudRate is the factory UART speed of the ESP32 AT firmware.
const DefaultBaudRate = 115200

// SerialDialer opens the modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	// Mode defaults to 115200 8N1 when nil.
	Mode *serial.Mode
}

// Dial opens the port. The context is only checked before opening since
// the underlying open call cannot be interrupted.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: DefaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return NewSerialTransport(port, *mode), nil
}

// SerialTransport adapts a serial.Port to the byte-oriented Transport.
type SerialTransport struct {
	port    serial.Port
	mode    serial.Mode
	timeout time.Duration
	set     bool
	one     [1]byte
}

// NewSerialTransport wraps an already opened port configured with mode.
func NewSerialTransport(port serial.Port, mode serial.Mode) *SerialTransport {
	return &SerialTransport{port: port, mode: mode}
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// ReadByte reads a single byte. go.bug.st/serial reports an expired read
// timeout as a zero-length read, which is mapped to at.ErrTimeout.
func (t *SerialTransport) ReadByte(timeout time.Duration) (byte, error) {
	if timeout < 0 {
		timeout = serial.NoTimeout
	} else if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	if !t.set || timeout != t.timeout {
		if err := t.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		t.timeout, t.set = timeout, true
	}

	n, err := t.port.Read(t.one[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, at.ErrTimeout
	}
	return t.one[0], nil
}

func (t *SerialTransport) ClearBuffer() error {
	return t.port.ResetInputBuffer()
}

// SetBaudRate reconfigures the port, keeping the other line settings.
func (t *SerialTransport) SetBaudRate(baud int) error {
	mode := t.mode
	mode.BaudRate = baud
	if err := t.port.SetMode(&mode); err != nil {
		return err
	}
	t.mode = mode
	return nil
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

var (
	_ Transport      = (*SerialTransport)(nil)
	_ BaudRateSetter = (*SerialTransport)(nil)
)
