package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/espat/at"
)

// HTTPGet fetches url through the modem's HTTP client (AT+HTTPCGET) and
// returns the response body.
//
// The body arrives as "+HTTPCGET:<size>,<data>" chunks whose data is raw:
// it may contain CRLF or text that looks like a status token.
// Each chunk is therefore read by size, not by line.
func (m *Modem) HTTPGet(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sink := &dataSink{prefix: "+HTTPCGET:"}
	resp, err := m.execWith(ctx, at.Setup("+HTTPCGET", at.Quote(url)), m.config.httpTimeout, sink)
	if err != nil {
		return nil, err
	}
	for _, line := range resp.Lines() {
		if strings.HasPrefix(line, sink.prefix) {
			return nil, fmt.Errorf("malformed +HTTPCGET chunk: %q", line)
		}
	}
	return sink.data, nil
}

// HTTPPost posts body to url (AT+HTTPCPOST). headers are sent verbatim,
// e.g. "Content-Type: application/json".
//
// The transfer has three phases: the command announcing the size, the
// raw payload written once the modem sends its '>' prompt, and the SEND
// OK or SEND FAIL notification that reports the actual outcome. The
// modem stays locked for all three.
func (m *Modem) HTTPPost(ctx context.Context, url string, body []byte, headers ...string) error {
	params := []string{at.Quote(url), strconv.Itoa(len(body))}
	if len(headers) > 0 {
		params = append(params, strconv.Itoa(len(headers)))
		for _, h := range headers {
			params = append(params, at.Quote(h))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.exec(ctx, at.Setup("+HTTPCPOST", params...), 0); err != nil {
		return err
	}

	if err := m.waitPrompt(ctx, m.deadline(m.config.atTimeout)); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w", ErrNoPrompt, err)
		}
		return err
	}

	m.logger.Debug("tx payload", "bytes", len(body))
	if err := m.write(body); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return m.waitSent(ctx, m.config.sendTimeout)
}

// waitSent blocks until the modem reports the fate of a written payload.
func (m *Modem) waitSent(ctx context.Context, timeout time.Duration) error {
	err := m.waitURC(ctx, m.deadline(timeout), func(kind at.URC) bool {
		return kind == at.URCSendOK || kind == at.URCSendFail
	})
	if err != nil {
		return err
	}
	if m.ConnectionStatus() != ConnectionSendOK {
		return fmt.Errorf("%w: %s", ErrResponse, at.UrcSendFail)
	}
	return nil
}

// SetWebServer enables or disables the firmware's provisioning web
// server. Its OK is final; unlike JoinAP no follow-up notification is
// awaited.
func (m *Modem) SetWebServer(ctx context.Context, enable bool, port int, timeout time.Duration) error {
	req := at.Setup("+WEBSERVER", "0")
	if enable {
		req = at.Setup("+WEBSERVER", "1", strconv.Itoa(port), strconv.Itoa(int(timeout/time.Second)))
	}
	_, err := m.Exec(ctx, req, 0)
	return err
}
