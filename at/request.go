package at

import (
	"strings"
)

// Kind selects one of the four AT command shapes.
type Kind int

const (
	KindExecute Kind = iota // AT<cmd>
	KindQuery               // AT<cmd>?
	KindTest                // AT<cmd>=?
	KindSetup               // AT<cmd>=<params>
)

func (k Kind) String() string {
	switch k {
	case KindExecute:
		return "execute"
	case KindQuery:
		return "query"
	case KindTest:
		return "test"
	case KindSetup:
		return "setup"
	}
	return "unknown"
}

// Request is a single AT command line. Command is everything after the
// "AT" prefix, e.g. "+CWMODE" or "E0"; it may be empty for the bare
// heartbeat command.
type Request struct {
	Kind    Kind
	Command string
	Params  []string
}

func Execute(cmd string) Request { return Request{Kind: KindExecute, Command: cmd} }
func Query(cmd string) Request   { return Request{Kind: KindQuery, Command: cmd} }
func Test(cmd string) Request    { return Request{Kind: KindTest, Command: cmd} }

// Setup builds a set command; params are joined with commas.
func Setup(cmd string, params ...string) Request {
	return Request{Kind: KindSetup, Command: cmd, Params: params}
}

// String returns the command line without its terminator.
func (r Request) String() string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString(r.Command)
	switch r.Kind {
	case KindQuery:
		b.WriteByte('?')
	case KindTest:
		b.WriteString("=?")
	case KindSetup:
		b.WriteByte('=')
		b.WriteString(strings.Join(r.Params, ","))
	}
	return b.String()
}

// Marshal serializes the request as it goes on the wire, CRLF included.
// It returns ErrRequestTooLong, and no bytes, when the line is longer
// than MaxRequestLen.
func (r Request) Marshal() ([]byte, error) {
	line := r.String() + CRLF
	if len(line) > MaxRequestLen {
		return nil, ErrRequestTooLong
	}
	return []byte(line), nil
}

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `,`, `\,`)

// Quote wraps s in double quotes, escaping the characters the modem
// treats specially inside string parameters.
func Quote(s string) string {
	return `"` + quoter.Replace(s) + `"`
}
