package at

import (
	"strings"
)

// Response holds the solicited lines of one exchange, terminal line
// included, and whether that terminal line reported success.
type Response struct {
	Content []string
	OK      bool
}

// Payload returns the values of every "<cmd>:<values>" line, with the
// command name and colon stripped.
func (r Response) Payload(cmd string) []string {
	prefix := cmd + ":"
	var out []string
	for _, line := range r.Content {
		if v, ok := strings.CutPrefix(line, prefix); ok {
			out = append(out, v)
		}
	}
	return out
}

// Values splits the first payload line of cmd on commas. It returns nil
// when the response carries no such line.
func (r Response) Values(cmd string) []string {
	p := r.Payload(cmd)
	if len(p) == 0 {
		return nil
	}
	return strings.Split(p[0], ",")
}

// Lines returns the content without the terminal line.
func (r Response) Lines() []string {
	if n := len(r.Content); n > 0 {
		switch Classify(r.Content[n-1]) {
		case TypeFinal, TypeError:
			return r.Content[:n-1]
		}
	}
	return r.Content
}

func (r Response) String() string {
	return strings.Join(r.Content, "\n")
}
