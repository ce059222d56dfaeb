package modem_test

import (
	"context"
	"sync"
	"testing"
	"time"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/espat/at"
	"i4.energy/across/espat/modem"
)

// byteFeed stands in for the modem's UART: writes scripted through a
// MockSequenceBuilder push their reply here and ReadByte drains it.
type byteFeed struct {
	mu  sync.Mutex
	buf []byte
}

func (f *byteFeed) push(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, s...)
}

func (f *byteFeed) ReadByte(time.Duration) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		return 0, at.ErrTimeout
	}
	b := f.buf[0]
	f.buf = f.buf[1:]
	return b, nil
}

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	feed      *byteFeed
	calls     []any
}

// NewMockSequence wires transport reads to a fresh feed. Call it once per
// mock transport.
func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	feed := &byteFeed{}
	transport.EXPECT().ReadByte(gomock.Any()).DoAndReturn(feed.ReadByte).AnyTimes()
	return &MockSequenceBuilder{
		transport: transport,
		feed:      feed,
		calls:     []any{},
	}
}

// Command expects wire to be written and answers with reply.
func (b *MockSequenceBuilder) Command(wire, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).DoAndReturn(func(p []byte) (int, error) {
			b.feed.push(reply)
			return len(p), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Command("AT\r\n", "AT\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Command("ATE0\r\n", "ATE0\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	calls := b.calls
	b.calls = []any{}
	return calls
}

// initMockCalls scripts the handshake New performs without a reset pin.
func initMockCalls(seq *MockSequenceBuilder) []any {
	return seq.AT().EchoOff().Build()
}

type dialerFunc func(ctx context.Context) (modem.Transport, error)

func (f dialerFunc) Dial(ctx context.Context) (modem.Transport, error) { return f(ctx) }

// newTestModem builds a Modem on a TestTransport that has already
// answered the init handshake.
func newTestModem(t *testing.T, configure ...func(*modem.ConfigBuilder)) (*modem.Modem, *modem.TestTransport, *modem.FakeClock) {
	t.Helper()

	clock := modem.NewFakeClock()
	transport := modem.NewTestTransport(clock).
		Expect("AT\r\n", "OK\r\n").
		Expect("ATE0\r\n", "ATE0\r\nOK\r\n")

	builder := modem.NewConfigBuilder().
		WithDialer(dialerFunc(func(context.Context) (modem.Transport, error) { return transport, nil })).
		WithClock(clock)
	for _, c := range configure {
		c(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := modem.New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to create modem: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, transport, clock
}
