package modem

import (
	"i4.energy/across/espat/at"
)

// ModemStatus tracks whether the firmware finished booting.
type ModemStatus int

const (
	ModemInitializing ModemStatus = iota
	ModemReady
)

func (s ModemStatus) String() string {
	switch s {
	case ModemInitializing:
		return "initializing"
	case ModemReady:
		return "ready"
	}
	return "unknown"
}

// WiFiStatus tracks the station link to an access point.
type WiFiStatus int

const (
	WiFiDisconnected WiFiStatus = iota
	WiFiConnected
	WiFiReadyWithIP
)

func (s WiFiStatus) String() string {
	switch s {
	case WiFiDisconnected:
		return "disconnected"
	case WiFiConnected:
		return "connected"
	case WiFiReadyWithIP:
		return "ready with ip"
	}
	return "unknown"
}

// ConnectionStatus tracks the single outstanding TCP/HTTP transfer.
type ConnectionStatus int

const (
	ConnectionClosed ConnectionStatus = iota
	ConnectionEstablished
	ConnectionSendOK
	ConnectionError
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionClosed:
		return "closed"
	case ConnectionEstablished:
		return "established"
	case ConnectionSendOK:
		return "send ok"
	case ConnectionError:
		return "error"
	}
	return "unknown"
}

// Status is a snapshot of the three status fields.
type Status struct {
	Modem      ModemStatus
	WiFi       WiFiStatus
	Connection ConnectionStatus
}

// Status returns the current status snapshot. It does not wait for an
// exchange in flight.
func (m *Modem) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

func (m *Modem) ModemStatus() ModemStatus           { return m.Status().Modem }
func (m *Modem) WiFiStatus() WiFiStatus             { return m.Status().WiFi }
func (m *Modem) ConnectionStatus() ConnectionStatus { return m.Status().Connection }

func (m *Modem) updateStatus(fn func(s *Status)) {
	m.statusMu.Lock()
	before := m.status
	fn(&m.status)
	after := m.status
	m.statusMu.Unlock()

	if after != before {
		m.logger.Info("status changed",
			"modem", after.Modem.String(),
			"wifi", after.WiFi.String(),
			"connection", after.Connection.String(),
		)
	}
}

// resetStatus puts every field back to its power-on value.
func (m *Modem) resetStatus() {
	m.updateStatus(func(s *Status) { *s = Status{} })
}

// apply performs the status mutation bound to a notification.
func (m *Modem) apply(kind at.URC) {
	m.logger.Debug("urc", "kind", kind.String())

	switch kind {
	case at.URCReady:
		m.updateStatus(func(s *Status) { s.Modem = ModemReady })
	case at.URCBusy:
		// The modem is still processing the previous command.
		m.config.clock.Sleep(m.config.busyDelay)
	case at.URCWiFiConnected:
		m.updateStatus(func(s *Status) { s.WiFi = WiFiConnected })
	case at.URCWiFiGotIP:
		m.updateStatus(func(s *Status) { s.WiFi = WiFiReadyWithIP })
	case at.URCWiFiDisconnect:
		m.updateStatus(func(s *Status) {
			s.WiFi = WiFiDisconnected
			s.Connection = ConnectionClosed
		})
	case at.URCConnect:
		m.updateStatus(func(s *Status) { s.Connection = ConnectionEstablished })
	case at.URCSendOK:
		m.updateStatus(func(s *Status) { s.Connection = ConnectionSendOK })
	case at.URCSendFail:
		m.updateStatus(func(s *Status) { s.Connection = ConnectionError })
	case at.URCClosed:
		m.updateStatus(func(s *Status) { s.Connection = ConnectionClosed })
	}
}
