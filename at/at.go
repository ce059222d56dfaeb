package at

import (
	"errors"
	"time"
)

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prefix = "AT"
	Prompt = '>'

	// MaxRequestLen is the longest serialized request, CRLF included, the
	// modem accepts on its command line.
	MaxRequestLen = 256

	// MaxLineLen bounds a received line, CRLF excluded. Length-prefixed
	// payloads are read raw and do not count against it.
	MaxLineLen = 2048

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	FAIL     = "FAIL"
	CmeError = "+CME ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcReady          = "ready"
	UrcBusy           = "busy p"
	UrcWiFiConnected  = "WIFI CONNECTED"
	UrcWiFiGotIP      = "WIFI GOT IP"
	UrcWiFiDisconnect = "WIFI DISCONNECT"
	UrcConnect        = "CONNECT"
	UrcSendOK         = "SEND OK"
	UrcSendFail       = "SEND FAIL"
	UrcClosed         = "CLOSED"
)

// NoTimeout makes a read wait until a byte arrives.
const NoTimeout time.Duration = -1

var (
	// ErrTimeout is returned by a ByteSource when no byte arrived within
	// the requested timeout.
	ErrTimeout = errors.New("at: read timeout")

	// ErrRequestTooLong is returned when a serialized request would exceed
	// MaxRequestLen. Nothing is written in that case.
	ErrRequestTooLong = errors.New("at: request too long")

	// ErrLineTooLong is returned when more than MaxLineLen bytes arrive
	// without a line terminator. The partial line is discarded.
	ErrLineTooLong = errors.New("at: response line too long")
)

type ResponseType int

const (
	TypeEmpty ResponseType = iota // Blank line between responses
	TypeFinal                     // OK
	TypeError                     // ERROR, FAIL, +CME ERROR
	TypeURC                       // Asynchronous notifications
	TypeData                      // Intermediate command output (+CWMODE:1)
)

func (t ResponseType) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeFinal:
		return "final"
	case TypeError:
		return "error"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	}
	return "unknown"
}
