package modem_test

import (
	"context"
	"testing"

	"i4.energy/across/espat/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Builds with a dialer", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().
			WithDialer(dialerFunc(func(context.Context) (modem.Transport, error) { return nil, nil })).
			WithATTimeout(0).
			Build()
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
