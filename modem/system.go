package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"i4.energy/across/espat/at"
	"periph.io/x/conn/v3/gpio"
)

// Heartbeat sends a bare "AT" and reports whether the modem answered OK.
// An ERROR answer is reported as false without an error.
func (m *Modem) Heartbeat(ctx context.Context) (bool, error) {
	_, err := m.Exec(ctx, at.Execute(""), 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrResponse):
		return false, nil
	}
	return false, err
}

// Reset pulses the reset line and waits for the firmware to report
// "ready". All status fields return to their power-on values.
//
// Reset must not be called while another goroutine relies on the status
// of an operation in flight.
func (m *Modem) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(); err != nil {
		return err
	}
	pin := m.config.resetPin
	if pin == nil {
		return ErrNoResetPin
	}

	m.logger.Info("resetting modem")
	m.resetStatus()

	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("drive reset low: %w", err)
	}
	m.config.clock.Sleep(m.config.resetPulse)

	// Whatever arrived before the reset is stale.
	if err := m.transport.ClearBuffer(); err != nil {
		return &TransportError{Op: "clear", Err: err}
	}
	m.reader.Reset()

	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	return m.waitReady(ctx)
}

// SoftReset restarts the firmware with AT+RST.
func (m *Modem) SoftReset(ctx context.Context) error {
	return m.restart(ctx, at.Execute("+RST"))
}

// Restore erases the persisted settings with AT+RESTORE, which also
// restarts the firmware.
func (m *Modem) Restore(ctx context.Context) error {
	return m.restart(ctx, at.Execute("+RESTORE"))
}

func (m *Modem) restart(ctx context.Context, req at.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.exec(ctx, req, 0); err != nil {
		return err
	}
	m.resetStatus()
	return m.waitReady(ctx)
}

// waitReady blocks until the "ready" notification within the reset
// timeout.
func (m *Modem) waitReady(ctx context.Context) error {
	err := m.waitURC(ctx, m.deadline(m.config.resetTimeout), func(at.URC) bool {
		return m.ModemStatus() == ModemReady
	})
	if isTimeout(err) {
		return fmt.Errorf("%w within %v", ErrReset, m.config.resetTimeout)
	}
	return err
}

// SetEcho turns command echo on (ATE1) or off (ATE0).
func (m *Modem) SetEcho(ctx context.Context, on bool) error {
	cmd := "E0"
	if on {
		cmd = "E1"
	}
	_, err := m.Exec(ctx, at.Execute(cmd), 0)
	return err
}

// Version returns the firmware version lines reported by AT+GMR.
func (m *Modem) Version(ctx context.Context) ([]string, error) {
	resp, err := m.Exec(ctx, at.Execute("+GMR"), 0)
	if err != nil {
		return nil, err
	}
	return resp.Lines(), nil
}

// SetBaudRate switches the modem's UART to baud (8N1, no flow control)
// for the current session, then follows with the transport when it
// supports changing speed.
func (m *Modem) SetBaudRate(ctx context.Context, baud int) error {
	if baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", baud)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req := at.Setup("+UART_CUR", strconv.Itoa(baud), "8", "1", "0", "0")
	if _, err := m.exec(ctx, req, 0); err != nil {
		return err
	}

	if s, ok := m.transport.(BaudRateSetter); ok {
		if err := s.SetBaudRate(baud); err != nil {
			return &TransportError{Op: "set baud rate", Err: err}
		}
	}
	return nil
}
