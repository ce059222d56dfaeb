package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"context"
	"time"
)

// Transport represents an established, bidirectional byte stream to an
// ESP32 running the AT firmware.
//
// A Transport is assumed to be already connected and ready for use. Reads
// are byte-at-a-time with a per-call timeout; a negative timeout waits
// until a byte arrives. An expired timeout is reported with at.ErrTimeout,
// any other error is a transport failure. Typical implementations include
// serial ports and in-memory fakes used for testing.
type Transport interface {
	Write(p []byte) (int, error)
	ReadByte(timeout time.Duration) (byte, error)
	// ClearBuffer discards bytes received but not yet read.
	ClearBuffer() error
	Close() error
}

// BaudRateSetter is implemented by transports whose line speed can be
// changed after the modem has been told to switch.
type BaudRateSetter interface {
	SetBaudRate(baud int) error
}

// Dialer opens a Transport to the modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is intended to be used during modem
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}
