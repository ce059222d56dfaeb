package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/espat/at"
)

// Modem is a session with an ESP32 running the AT command firmware.
//
// Every operation is synchronous: the calling goroutine writes the
// request and reads the answer itself. There is no background reader, so
// notifications (URCs) are only observed while an operation is reading;
// until then they wait in the transport's receive buffer. A mutex
// serializes operations, which makes a Modem safe to share between
// goroutines.
type Modem struct {
	// transport provides the physical connection to the modem
	transport Transport
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger
	// reader frames the transport into lines and keeps the unfinished one
	// across timeouts
	reader *at.LineReader
	table  at.Table

	// mu is held for the whole duration of an operation
	mu     sync.Mutex
	closed atomic.Bool

	statusMu sync.RWMutex
	status   Status
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection, resets the modem when a reset
// pin is configured, checks that it answers and turns command echo off.
//
// Returns an error if the transport connection or modem initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
		reader:    at.NewLineReader(),
		table:     at.DefaultTable,
	}

	initCtx := ctx
	if config.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.initTimeout)
		defer cancel()
	}

	if err := m.init(initCtx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

func (m *Modem) init(ctx context.Context) error {
	if m.config.resetPin != nil {
		if err := m.Reset(ctx); err != nil {
			return err
		}
	}

	alive, err := m.Heartbeat(ctx)
	if err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}
	if !alive {
		return fmt.Errorf("modem not responding: %w", ErrResponse)
	}

	if err := m.SetEcho(ctx, false); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}
	return nil
}

// Close releases the transport. After calling Close, the modem cannot be
// reused.
func (m *Modem) Close() error {
	if m.closed.Swap(true) {
		return ErrAlreadyClosed
	}
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

func (m *Modem) String() string {
	s := m.Status()
	return fmt.Sprintf("esp32-at(modem=%s wifi=%s connection=%s)", s.Modem, s.WiFi, s.Connection)
}

// Exec sends one request and collects the response until OK or an error
// token. Notifications received meanwhile update the status and are left
// out of the response.
//
// A zero timeout uses the configured AT timeout; at.NoTimeout waits
// indefinitely. When the modem answers with an error token the response
// is returned together with an error matching ErrResponse.
func (m *Modem) Exec(ctx context.Context, req at.Request, timeout time.Duration) (at.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exec(ctx, req, timeout)
}

// exec is Exec for callers already holding mu.
func (m *Modem) exec(ctx context.Context, req at.Request, timeout time.Duration) (at.Response, error) {
	return m.execWith(ctx, req, timeout, nil)
}

// execWith is exec with length-prefixed payloads diverted into sink.
func (m *Modem) execWith(ctx context.Context, req at.Request, timeout time.Duration, sink *dataSink) (at.Response, error) {
	if err := m.ready(); err != nil {
		return at.Response{}, err
	}

	wire, err := req.Marshal()
	if err != nil {
		return at.Response{}, fmt.Errorf("%s: %w", req.Kind, err)
	}

	m.updateStatus(func(s *Status) { s.Connection = ConnectionClosed })

	m.logger.Debug("tx", "request", req.String())
	if err := m.write(wire); err != nil {
		return at.Response{}, fmt.Errorf("write command %q: %w", req.String(), err)
	}

	deadline := m.deadline(timeout)
	var resp at.Response
	for {
		line, _, err := m.readLine(ctx, deadline, at.ModeLine, sink)
		if err != nil {
			return resp, fmt.Errorf("%s: %w", req, err)
		}

		if kind, ok := m.table.Match(line); ok {
			m.apply(kind)
			continue
		}
		if line == "" {
			continue
		}

		resp.Content = append(resp.Content, line)
		switch at.Classify(line) {
		case at.TypeFinal:
			resp.OK = true
			return resp, nil
		case at.TypeError:
			return resp, fmt.Errorf("%s: %w: %s", req, ErrResponse, line)
		}
	}
}

// WaitURC reads until the given notification arrives or timeout expires.
// Other notifications seen on the way are applied; unsolicited data lines
// are dropped.
func (m *Modem) WaitURC(ctx context.Context, kind at.URC, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ready(); err != nil {
		return err
	}
	seen := false
	return m.waitURC(ctx, m.deadline(timeout), func(k at.URC) bool {
		seen = seen || k == kind
		return seen
	})
}

// waitURC reads lines and applies notifications until done reports true
// for one of them.
func (m *Modem) waitURC(ctx context.Context, deadline time.Time, done func(at.URC) bool) error {
	for {
		line, _, err := m.readLine(ctx, deadline, at.ModeLine, nil)
		if err != nil {
			return err
		}
		kind, ok := m.table.Match(line)
		if !ok {
			if line != "" {
				m.logger.Debug("dropped unsolicited line", "line", line)
			}
			continue
		}
		m.apply(kind)
		if done(kind) {
			return nil
		}
	}
}

// waitPrompt reads until the modem sends the data prompt.
func (m *Modem) waitPrompt(ctx context.Context, deadline time.Time) error {
	for {
		line, prompt, err := m.readLine(ctx, deadline, at.ModePrompt, nil)
		if err != nil {
			return err
		}
		if prompt {
			return nil
		}
		if kind, ok := m.table.Match(line); ok {
			m.apply(kind)
			continue
		}
		switch at.Classify(line) {
		case at.TypeError:
			return fmt.Errorf("%w: %s", ErrResponse, line)
		case at.TypeData:
			m.logger.Debug("dropped line while waiting for prompt", "line", line)
		}
	}
}

// dataSink collects the payloads of "<prefix><size>,<data>" responses,
// whose data may hold any byte including CRLF.
type dataSink struct {
	prefix string
	data   []byte
}

// readLine polls the line reader until it yields a line or the prompt,
// the deadline passes or the transport fails. A zero deadline waits
// indefinitely. With a sink, payload bytes following a matching header
// are read raw into it and never surface as lines.
func (m *Modem) readLine(ctx context.Context, deadline time.Time, mode at.Mode, sink *dataSink) (string, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		timeout := at.NoTimeout
		if !deadline.IsZero() {
			timeout = deadline.Sub(m.config.clock.Now())
			if timeout <= 0 {
				return "", false, ErrResponseTimeout
			}
		}

		res := m.reader.Poll(m.transport, timeout, mode)
		switch res.Outcome {
		case at.Complete:
			m.logger.Debug("rx", "line", res.Line)
			return res.Line, false, nil
		case at.PromptReceived:
			m.logger.Debug("rx prompt")
			return "", true, nil
		case at.Pending:
			if sink == nil {
				continue
			}
			if size, ok := m.reader.DataHeader(sink.prefix); ok {
				m.reader.Reset()
				if err := m.readRaw(ctx, deadline, size, sink); err != nil {
					return "", false, err
				}
			}
		case at.Failed:
			if errors.Is(res.Err, at.ErrLineTooLong) {
				return "", false, ErrLineTooLong
			}
			return "", false, &TransportError{Op: "read", Err: res.Err}
		}
	}
}

// readRaw appends exactly size bytes from the transport to sink.
func (m *Modem) readRaw(ctx context.Context, deadline time.Time, size int, sink *dataSink) error {
	for read := 0; read < size; {
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := at.NoTimeout
		if !deadline.IsZero() {
			timeout = deadline.Sub(m.config.clock.Now())
			if timeout <= 0 {
				return ErrResponseTimeout
			}
		}

		b, err := m.transport.ReadByte(timeout)
		if err != nil {
			if errors.Is(err, at.ErrTimeout) {
				continue
			}
			return &TransportError{Op: "read", Err: err}
		}
		sink.data = append(sink.data, b)
		read++
	}
	m.logger.Debug("rx payload", "prefix", sink.prefix, "bytes", size)
	return nil
}

func (m *Modem) write(p []byte) error {
	if _, err := m.transport.Write(p); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (m *Modem) deadline(timeout time.Duration) time.Time {
	if timeout == 0 {
		timeout = m.config.atTimeout
	}
	if timeout < 0 {
		return time.Time{}
	}
	return m.config.clock.Now().Add(timeout)
}

func (m *Modem) ready() error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if m.transport == nil {
		return ErrNotInitialized
	}
	return nil
}

// isTimeout reports whether err is an expired operation timeout.
func isTimeout(err error) bool {
	return errors.Is(err, ErrResponseTimeout)
}
