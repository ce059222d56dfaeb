package at

import (
	"fmt"
	"strings"
)

// URC identifies an unsolicited notification from the modem.
type URC int

const (
	URCReady URC = iota + 1
	URCBusy
	URCWiFiConnected
	URCWiFiGotIP
	URCWiFiDisconnect
	URCConnect
	URCSendOK
	URCSendFail
	URCClosed
)

func (u URC) String() string {
	switch u {
	case URCReady:
		return "ready"
	case URCBusy:
		return "busy"
	case URCWiFiConnected:
		return "wifi connected"
	case URCWiFiGotIP:
		return "wifi got ip"
	case URCWiFiDisconnect:
		return "wifi disconnect"
	case URCConnect:
		return "connect"
	case URCSendOK:
		return "send ok"
	case URCSendFail:
		return "send fail"
	case URCClosed:
		return "closed"
	}
	return fmt.Sprintf("URC(%d)", int(u))
}

// Entry is one row of a URC table. A line matches when it starts with
// Prefix or, if Suffix is set, ends with Suffix.
type Entry struct {
	Prefix string
	Suffix string
	Kind   URC
}

func (e Entry) Match(line string) bool {
	if strings.HasPrefix(line, e.Prefix) {
		return true
	}
	return e.Suffix != "" && strings.HasSuffix(line, e.Suffix)
}

// Table is scanned top to bottom and the first matching entry wins, so
// order matters: "WIFI DISCONNECT" must be tried before the link entries.
type Table []Entry

// DefaultTable lists the notifications of the ESP32 AT firmware. Link
// events carry a link id when multiple connections are enabled
// ("0,CONNECT"), hence the suffix forms.
var DefaultTable = Table{
	{Prefix: UrcReady, Kind: URCReady},
	{Prefix: UrcBusy, Kind: URCBusy},
	{Prefix: UrcWiFiConnected, Kind: URCWiFiConnected},
	{Prefix: UrcWiFiGotIP, Kind: URCWiFiGotIP},
	{Prefix: UrcWiFiDisconnect, Kind: URCWiFiDisconnect},
	{Prefix: UrcConnect, Suffix: "," + UrcConnect, Kind: URCConnect},
	{Prefix: UrcSendOK, Kind: URCSendOK},
	{Prefix: UrcSendFail, Kind: URCSendFail},
	{Prefix: UrcClosed, Suffix: "," + UrcClosed, Kind: URCClosed},
}

func init() {
	if err := DefaultTable.Validate(); err != nil {
		panic(err)
	}
}

// Match returns the kind of the first entry matching line.
func (t Table) Match(line string) (URC, bool) {
	for _, e := range t {
		if e.Match(line) {
			return e.Kind, true
		}
	}
	return 0, false
}

// Validate reports malformed entries and prefixes listed more than once.
func (t Table) Validate() error {
	seen := make(map[string]bool, len(t))
	for i, e := range t {
		if e.Prefix == "" {
			return fmt.Errorf("at: urc entry %d has an empty prefix", i)
		}
		if e.Kind == 0 {
			return fmt.Errorf("at: urc entry %d (%q) has no kind", i, e.Prefix)
		}
		if seen[e.Prefix] {
			return fmt.Errorf("at: urc prefix %q listed twice", e.Prefix)
		}
		seen[e.Prefix] = true
	}
	return nil
}

// MatchURC classifies line against DefaultTable.
func MatchURC(line string) (URC, bool) {
	return DefaultTable.Match(line)
}
