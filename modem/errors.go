package modem

import (
	"errors"
	"fmt"

	"i4.energy/across/espat/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the Dialer returned no Transport or if the Modem was
	// not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and by every operation attempted afterwards.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrRequestTooLong is returned when a request serializes to more than
	// at.MaxRequestLen bytes. Nothing is transmitted in that case.
	ErrRequestTooLong = at.ErrRequestTooLong

	// ErrResponseTimeout is returned when no terminal line, prompt or
	// awaited notification arrived within the operation's timeout.
	//
	// Bytes of a partially received line are kept and completed by the
	// next read.
	ErrResponseTimeout = errors.New("response timeout")

	// ErrLineTooLong is returned when a modem response line exceeds
	// at.MaxLineLen bytes. This typically indicates binary data or a lost
	// line terminator.
	//
	// The oversized line is discarded and the next read starts afresh.
	ErrLineTooLong = at.ErrLineTooLong

	// ErrResponse is returned when the modem answered with ERROR (or an
	// alternate failure token), or when an operation's follow-up condition
	// was not met after the command itself succeeded.
	ErrResponse = errors.New("modem returned error")

	// ErrReset is returned when the modem did not report "ready" after a
	// reset or restore within the reset timeout.
	ErrReset = errors.New("modem did not become ready")

	// ErrNoResetPin is returned by Reset when no reset line is configured.
	ErrNoResetPin = errors.New("no reset pin configured")

	// ErrNoPrompt is returned when the modem did not ask for the payload
	// of a data transfer.
	ErrNoPrompt = errors.New("no data prompt")
)

// TransportError wraps a failure of the underlying byte stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// JoinFailureReason is the cause the modem reports for a failed join.
type JoinFailureReason int

const (
	JoinUnknown JoinFailureReason = iota
	JoinTimeout
	JoinWrongPassword
	JoinAPNotFound
	JoinConnectFailed
)

// joinReasonFromCode decodes the numeric +CWJAP error code. Unknown codes
// are not an error.
func joinReasonFromCode(code int) JoinFailureReason {
	switch code {
	case 1:
		return JoinTimeout
	case 2:
		return JoinWrongPassword
	case 3:
		return JoinAPNotFound
	case 4:
		return JoinConnectFailed
	}
	return JoinUnknown
}

func (r JoinFailureReason) String() string {
	switch r {
	case JoinTimeout:
		return "timeout"
	case JoinWrongPassword:
		return "wrong password"
	case JoinAPNotFound:
		return "access point not found"
	case JoinConnectFailed:
		return "connect failed"
	}
	return "unknown"
}

// JoinError is returned by JoinAP when the modem rejected the join.
// It matches ErrResponse with errors.Is.
type JoinError struct {
	Reason JoinFailureReason
	// Code is the raw code, -1 if the modem sent none.
	Code int
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join access point: %s (code %d)", e.Reason, e.Code)
}

func (e *JoinError) Unwrap() error {
	return ErrResponse
}
