package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/espat/at"
)

// WiFiMode is the radio role set with AT+CWMODE.
type WiFiMode int

const (
	WiFiModeOff WiFiMode = iota
	WiFiModeStation
	WiFiModeSoftAP
	WiFiModeStationSoftAP
)

func (w WiFiMode) String() string {
	switch w {
	case WiFiModeOff:
		return "off"
	case WiFiModeStation:
		return "station"
	case WiFiModeSoftAP:
		return "softap"
	case WiFiModeStationSoftAP:
		return "station+softap"
	}
	return "unknown"
}

func (m *Modem) SetWiFiMode(ctx context.Context, mode WiFiMode) error {
	if mode < WiFiModeOff || mode > WiFiModeStationSoftAP {
		return fmt.Errorf("invalid wifi mode %d", int(mode))
	}
	_, err := m.Exec(ctx, at.Setup("+CWMODE", strconv.Itoa(int(mode))), 0)
	return err
}

func (m *Modem) WiFiMode(ctx context.Context) (WiFiMode, error) {
	resp, err := m.Exec(ctx, at.Query("+CWMODE"), 0)
	if err != nil {
		return 0, err
	}
	values := resp.Values("+CWMODE")
	if len(values) == 0 {
		return 0, fmt.Errorf("no +CWMODE in response: %q", resp.String())
	}
	n, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return 0, fmt.Errorf("parse wifi mode %q: %w", values[0], err)
	}
	return WiFiMode(n), nil
}

// JoinAP connects the station to an access point.
//
// The command's OK alone is not enough: JoinAP then waits, within the
// join timeout, for the modem to report an IP address. A rejected join
// is returned as a *JoinError carrying the modem's reason.
func (m *Modem) JoinAP(ctx context.Context, ssid, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := at.Setup("+CWJAP", at.Quote(ssid), at.Quote(password))
	deadline := m.deadline(m.config.joinTimeout)

	// An address from a previous association must not satisfy this join.
	m.updateStatus(func(s *Status) { s.WiFi = WiFiDisconnected })

	resp, err := m.exec(ctx, req, m.config.joinTimeout)
	if err != nil {
		if errors.Is(err, ErrResponse) {
			return joinError(resp)
		}
		return err
	}

	if m.WiFiStatus() == WiFiReadyWithIP {
		return nil
	}
	err = m.waitURC(ctx, deadline, func(at.URC) bool {
		return m.WiFiStatus() == WiFiReadyWithIP
	})
	if isTimeout(err) {
		return fmt.Errorf("%w: joined %q but got no IP address", ErrResponse, ssid)
	}
	return err
}

// joinError decodes the "+CWJAP:<code>" line of a failed join.
func joinError(resp at.Response) *JoinError {
	values := resp.Values("+CWJAP")
	if len(values) == 0 {
		return &JoinError{Reason: JoinUnknown, Code: -1}
	}
	code, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return &JoinError{Reason: JoinUnknown, Code: -1}
	}
	return &JoinError{Reason: joinReasonFromCode(code), Code: code}
}

// LeaveAP disconnects the station. The status follows once the modem
// reports WIFI DISCONNECT.
func (m *Modem) LeaveAP(ctx context.Context) error {
	_, err := m.Exec(ctx, at.Execute("+CWQAP"), 0)
	return err
}

// StationIP returns the station's IPv4 address.
func (m *Modem) StationIP(ctx context.Context) (string, error) {
	resp, err := m.Exec(ctx, at.Query("+CIPSTA"), 0)
	if err != nil {
		return "", err
	}
	for _, p := range resp.Payload("+CIPSTA") {
		if v, ok := strings.CutPrefix(p, "ip:"); ok {
			return strings.Trim(v, `"`), nil
		}
	}
	return "", fmt.Errorf("no station ip in response: %q", resp.String())
}
