package modem_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"
	"i4.energy/across/espat/at"
	"i4.energy/across/espat/modem"
)

func TestModemNew(t *testing.T) {
	t.Run("Initialization Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		seq := NewMockSequence(mockTransport)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(seq),
		)...)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()

		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(context.Background(), config)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m == nil {
			t.Fatal("New() should return valid modem on success")
		}
		if got := m.ModemStatus(); got != modem.ModemInitializing {
			t.Errorf("expected modem to stay initializing without a reset, got %v", got)
		}

		// Clean up
		mockTransport.EXPECT().Close().Return(nil)
		if err := m.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("Closes transport when the modem does not answer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		seq := NewMockSequence(mockTransport)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			seq.Command("AT\r\n", "ERROR\r\n").Build(),
			[]any{
				mockTransport.EXPECT().Close(),
			},
		)...)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrResponse) {
			t.Errorf("expected ErrResponse, got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when error occurs")
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection failed"))

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()

		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		ctx := context.Background()
		m, err := modem.New(ctx, config)

		if err == nil {
			t.Error("expected error from dialer failure")
		}
		if m != nil {
			t.Error("New() should return nil modem when dialer fails")
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		m, err := modem.New(context.Background(), modem.Config{})
		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when no dialer provided")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()

		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		_, err = modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from New(), got: %v", err)
		}
	})
}

func TestModemClose(t *testing.T) {
	t.Run("Returns transport error on close failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		seq := NewMockSequence(mockTransport)

		closeError := errors.New("transport close failed")
		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(seq),
			[]any{
				mockTransport.EXPECT().Close().Return(closeError),
			},
		)...)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()

		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := m.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close and later exchanges", func(t *testing.T) {
		m, _, _ := newTestModem(t)

		if err := m.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := m.Close(); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}

		_, err := m.Exec(context.Background(), at.Execute(""), 0)
		if !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from Exec, got: %v", err)
		}
	})
}

func TestModemExec(t *testing.T) {
	t.Run("Collects lines until OK", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.Expect("AT+CWMODE?\r\n", "+CWMODE:1\r\nOK\r\n")

		resp, err := m.Exec(context.Background(), at.Query("+CWMODE"), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := at.Response{Content: []string{"+CWMODE:1", "OK"}, OK: true}
		if diff := cmp.Diff(want, resp); diff != "" {
			t.Errorf("response mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"1"}, resp.Payload("+CWMODE")); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
		if err := transport.Verify(); err != nil {
			t.Error(err)
		}
	})

	t.Run("ERROR terminal surfaces ErrResponse", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.Expect("AT+CWMODE=9\r\n", "ERROR\r\n")

		resp, err := m.Exec(context.Background(), at.Setup("+CWMODE", "9"), 0)
		if !errors.Is(err, modem.ErrResponse) {
			t.Fatalf("expected ErrResponse, got: %v", err)
		}
		want := at.Response{Content: []string{"ERROR"}, OK: false}
		if diff := cmp.Diff(want, resp); diff != "" {
			t.Errorf("response mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Alternate error token", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.Expect("AT+CWJAP?\r\n", "\r\nFAIL\r\n")

		resp, err := m.Exec(context.Background(), at.Query("+CWJAP"), 0)
		if !errors.Is(err, modem.ErrResponse) {
			t.Fatalf("expected ErrResponse, got: %v", err)
		}
		if resp.OK {
			t.Error("expected failed response")
		}
	})

	t.Run("URC inside a response updates status and is not collected", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.Expect("AT+CWMODE?\r\n", "+CWMODE:1\r\nWIFI GOT IP\r\n\r\nOK\r\n")

		resp, err := m.Exec(context.Background(), at.Query("+CWMODE"), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"+CWMODE:1", "OK"}, resp.Content); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}
		if got := m.WiFiStatus(); got != modem.WiFiReadyWithIP {
			t.Errorf("expected wifi ready with ip, got %v", got)
		}
	})

	t.Run("Busy notification pauses", func(t *testing.T) {
		m, transport, clock := newTestModem(t, func(b *modem.ConfigBuilder) {
			b.WithBusyDelay(250 * time.Millisecond)
		})
		transport.Expect("AT+CWMODE=1\r\n", "busy p...\r\nOK\r\n")

		if _, err := m.Exec(context.Background(), at.Setup("+CWMODE", "1"), 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]time.Duration{250 * time.Millisecond}, clock.Slept()); diff != "" {
			t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Request too long is rejected before writing", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		before := len(transport.Writes())

		_, err := m.Exec(context.Background(), at.Setup("+X", strings.Repeat("a", at.MaxRequestLen)), 0)
		if !errors.Is(err, modem.ErrRequestTooLong) {
			t.Fatalf("expected ErrRequestTooLong, got: %v", err)
		}
		if after := len(transport.Writes()); after != before {
			t.Errorf("expected no write, got %d new writes", after-before)
		}
	})

	t.Run("New request resets connection status", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.Expect("AT\r\n", "CONNECT\r\nOK\r\n")
		transport.Expect("AT\r\n", "OK\r\n")

		if _, err := m.Exec(context.Background(), at.Execute(""), 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.ConnectionStatus(); got != modem.ConnectionEstablished {
			t.Fatalf("expected established, got %v", got)
		}
		if _, err := m.Exec(context.Background(), at.Execute(""), 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.ConnectionStatus(); got != modem.ConnectionClosed {
			t.Errorf("expected closed after a new request, got %v", got)
		}
	})

	t.Run("Timeout without terminal line", func(t *testing.T) {
		m, transport, clock := newTestModem(t)
		transport.Expect("AT+GMR\r\n", "AT version:2.2.0.0\r\n")

		start := clock.Now()
		resp, err := m.Exec(context.Background(), at.Execute("+GMR"), 2*time.Second)
		if !errors.Is(err, modem.ErrResponseTimeout) {
			t.Fatalf("expected ErrResponseTimeout, got: %v", err)
		}
		if diff := cmp.Diff([]string{"AT version:2.2.0.0"}, resp.Content); diff != "" {
			t.Errorf("partial content mismatch (-want +got):\n%s", diff)
		}
		if elapsed := clock.Now().Sub(start); elapsed != 2*time.Second {
			t.Errorf("expected to give up after 2s, took %v", elapsed)
		}
	})

	t.Run("Transport read error", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		readErr := errors.New("parity error")
		transport.Expect("AT\r\n", "")
		transport.FailReads(readErr)

		_, err := m.Exec(context.Background(), at.Execute(""), 0)
		var terr *modem.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected *TransportError, got: %v", err)
		}
		if !errors.Is(err, readErr) {
			t.Errorf("expected transport error to be wrapped, got: %v", err)
		}
	})

	t.Run("Line longer than the limit", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.Expect("AT+GMR\r\n", strings.Repeat("x", 3000)+"\r\nOK\r\n")

		_, err := m.Exec(context.Background(), at.Execute("+GMR"), 0)
		if !errors.Is(err, modem.ErrLineTooLong) {
			t.Fatalf("expected ErrLineTooLong, got: %v", err)
		}
		var terr *modem.TransportError
		if errors.As(err, &terr) {
			t.Errorf("expected a framing error, not a transport error: %v", err)
		}
	})

	t.Run("Transport write error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)
		seq := NewMockSequence(mockTransport)

		writeErr := errors.New("device unplugged")
		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(seq),
			[]any{
				mockTransport.EXPECT().Write([]byte("AT+GMR\r\n")).Return(0, writeErr),
				mockTransport.EXPECT().Close().Return(nil),
			},
		)...)

		config, err := modem.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("failed to create modem: %v", err)
		}
		defer m.Close()

		_, err = m.Version(context.Background())
		if !errors.Is(err, writeErr) {
			t.Errorf("expected write error, got: %v", err)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		m, transport, _ := newTestModem(t)
		transport.ExpectAny("")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := m.Exec(ctx, at.Execute(""), 0)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})
}

func TestPartialLineSurvivesTimeout(t *testing.T) {
	m, transport, _ := newTestModem(t)
	transport.Expect("AT+GMR\r\n", "WIFI GOT IP\r\nWI")

	_, err := m.Exec(context.Background(), at.Execute("+GMR"), time.Second)
	if !errors.Is(err, modem.ErrResponseTimeout) {
		t.Fatalf("expected ErrResponseTimeout, got: %v", err)
	}
	if got := m.WiFiStatus(); got != modem.WiFiReadyWithIP {
		t.Fatalf("expected wifi ready with ip, got %v", got)
	}

	transport.SendData("FI DISCONNECT\r\n")
	if err := m.WaitURC(context.Background(), at.URCWiFiDisconnect, time.Second); err != nil {
		t.Fatalf("expected resumed line to dispatch disconnect, got: %v", err)
	}
	if got := m.WiFiStatus(); got != modem.WiFiDisconnected {
		t.Errorf("expected wifi disconnected, got %v", got)
	}
}

func TestWaitURC(t *testing.T) {
	m, transport, _ := newTestModem(t)
	transport.SendData("stray\r\nWIFI CONNECTED\r\n0,CONNECT\r\nWIFI GOT IP\r\n")

	if err := m.WaitURC(context.Background(), at.URCWiFiGotIP, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := modem.Status{
		Modem:      modem.ModemInitializing,
		WiFi:       modem.WiFiReadyWithIP,
		Connection: modem.ConnectionEstablished,
	}
	if diff := cmp.Diff(want, m.Status()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}

	err := m.WaitURC(context.Background(), at.URCReady, time.Second)
	if !errors.Is(err, modem.ErrResponseTimeout) {
		t.Errorf("expected ErrResponseTimeout, got: %v", err)
	}
}
