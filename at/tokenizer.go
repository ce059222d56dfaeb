package at

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

// ByteSource is the read half of a modem transport. A negative timeout
// waits indefinitely. Implementations report an expired timeout with
// ErrTimeout.
type ByteSource interface {
	ReadByte(timeout time.Duration) (byte, error)
}

// Mode selects how a LineReader treats the prompt byte.
type Mode int

const (
	// ModeLine only terminates on CRLF.
	ModeLine Mode = iota
	// ModePrompt additionally terminates on a single '>' byte, which the
	// modem sends when it is ready to accept a raw payload.
	ModePrompt
)

type Outcome int

const (
	Complete Outcome = iota // Line holds a full line, CRLF stripped
	Pending                 // A byte was consumed, no line yet
	TimedOut                // No byte within the timeout
	PromptReceived          // The prompt byte arrived in ModePrompt
	Failed                  // Err holds the transport error
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case Pending:
		return "pending"
	case TimedOut:
		return "timed out"
	case PromptReceived:
		return "prompt"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is what a single Poll produced.
type Result struct {
	Outcome Outcome
	Line    string
	Err     error
}

// LineReader frames a byte stream into CRLF-terminated lines.
//
// It reads one byte per Poll. Bytes of an unfinished line survive a
// timeout or a transport error, so the next Poll resumes the same line.
// A line that outgrows MaxLineLen is dropped with ErrLineTooLong.
type LineReader struct {
	buf []byte
}

// NewLineReader returns a LineReader with room for a typical response line.
func NewLineReader() *LineReader {
	return &LineReader{buf: make([]byte, 0, 128)}
}

// Poll consumes at most one byte from src.
func (r *LineReader) Poll(src ByteSource, timeout time.Duration, mode Mode) Result {
	b, err := src.ReadByte(timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return Result{Outcome: TimedOut, Err: err}
		}
		return Result{Outcome: Failed, Err: err}
	}

	if mode == ModePrompt && b == Prompt {
		r.buf = r.buf[:0]
		return Result{Outcome: PromptReceived}
	}

	r.buf = append(r.buf, b)
	n := len(r.buf)
	if b == '\n' && n >= 2 && r.buf[n-2] == '\r' {
		line := string(r.buf[:n-2])
		r.buf = r.buf[:0]
		return Result{Outcome: Complete, Line: line}
	}
	if n > MaxLineLen+1 {
		r.buf = r.buf[:0]
		return Result{Outcome: Failed, Err: ErrLineTooLong}
	}
	return Result{Outcome: Pending}
}

// DataHeader reports whether the pending bytes form a length-prefixed
// payload header "<prefix><size>," and returns the size. The payload
// itself follows without a terminator and must be read raw.
func (r *LineReader) DataHeader(prefix string) (int, bool) {
	n := len(r.buf)
	if n == 0 || r.buf[n-1] != ',' || !bytes.HasPrefix(r.buf, []byte(prefix)) {
		return 0, false
	}
	digits := r.buf[len(prefix) : n-1]
	if len(digits) == 0 {
		return 0, false
	}
	size := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		size = size*10 + int(c-'0')
		if size > 1<<24 {
			return 0, false
		}
	}
	return size, true
}

// Buffered returns the bytes of the line currently being accumulated.
func (r *LineReader) Buffered() []byte {
	return r.buf
}

// Reset drops any partially accumulated line.
func (r *LineReader) Reset() {
	r.buf = r.buf[:0]
}

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == "" {
		return TypeEmpty
	}

	if _, ok := MatchURC(line); ok {
		return TypeURC
	}

	switch {
	case strings.HasPrefix(line, OK):
		return TypeFinal
	case strings.HasPrefix(line, ERROR),
		strings.HasPrefix(line, CmeError),
		line == FAIL:
		return TypeError
	default:
		return TypeData
	}
}
