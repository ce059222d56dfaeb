package modem

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"i4.energy/across/espat/at"
)

// TestTransport is a test helper that plays the modem's side of a
// scripted conversation.
//
// Each expected write releases its canned reply into the receive buffer.
// Reads drain that buffer one byte at a time; when it is empty a read
// times out immediately, advancing the attached FakeClock by the
// requested timeout so deadline loops finish without real waiting.
type TestTransport struct {
	mu         sync.Mutex
	clock      *FakeClock
	rx         []byte
	script     []scriptStep
	writes     [][]byte
	unexpected [][]byte
	readErr    error
	cleared    int
	baud       int
	closed     bool
}

type scriptStep struct {
	// write is the expected bytes; nil accepts any write
	write []byte
	reply string
}

// NewTestTransport creates a new test transport driven by clock, which
// may be nil.
func NewTestTransport(clock *FakeClock) *TestTransport {
	return &TestTransport{clock: clock}
}

// Expect queues a reply sent once write has been written.
func (t *TestTransport) Expect(write, reply string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, scriptStep{write: []byte(write), reply: reply})
	return t
}

// ExpectAny queues a reply to the next write whatever its content, for
// raw payloads.
func (t *TestTransport) ExpectAny(reply string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, scriptStep{reply: reply})
	return t
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, data...)
}

// FailReads makes reads return err once the receive buffer is drained.
func (t *TestTransport) FailReads(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	t.writes = append(t.writes, bytes.Clone(p))
	if len(t.script) == 0 {
		t.unexpected = append(t.unexpected, bytes.Clone(p))
		return len(p), nil
	}
	step := t.script[0]
	if step.write != nil && !bytes.Equal(step.write, p) {
		t.unexpected = append(t.unexpected, bytes.Clone(p))
		return len(p), nil
	}
	t.script = t.script[1:]
	t.rx = append(t.rx, step.reply...)
	return len(p), nil
}

func (t *TestTransport) ReadByte(timeout time.Duration) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	if len(t.rx) > 0 {
		b := t.rx[0]
		t.rx = t.rx[1:]
		return b, nil
	}
	if t.readErr != nil {
		return 0, t.readErr
	}
	if t.clock != nil && timeout > 0 {
		t.clock.Advance(timeout)
	}
	return 0, at.ErrTimeout
}

func (t *TestTransport) ClearBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = t.rx[:0]
	t.cleared++
	return nil
}

func (t *TestTransport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baud = baud
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Writes returns every write so far as strings.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	for i, w := range t.writes {
		out[i] = string(w)
	}
	return out
}

// Verify reports writes that did not match the script and script steps
// that were never reached.
func (t *TestTransport) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.unexpected) > 0 {
		return fmt.Errorf("unexpected writes: %q", t.unexpected)
	}
	if len(t.script) > 0 {
		return fmt.Errorf("%d scripted writes never happened, next %q", len(t.script), t.script[0].write)
	}
	return nil
}

// Cleared returns how often ClearBuffer was called.
func (t *TestTransport) Cleared() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleared
}

// BaudRate returns the last rate set through SetBaudRate.
func (t *TestTransport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

// FakeClock is a manually advanced Clock. Sleep advances it instantly.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns the durations passed to Sleep.
func (c *FakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

var (
	_ Transport      = (*TestTransport)(nil)
	_ BaudRateSetter = (*TestTransport)(nil)
	_ Clock          = (*FakeClock)(nil)
)
