package modem

import (
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// ResetPin drives the modem's active-low reset line. Any periph.io
// gpio.PinOut satisfies it.
type ResetPin interface {
	Out(l gpio.Level) error
}

// Clock is the time source of a Modem. Deadlines are computed from Now
// and every deliberate pause goes through Sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Config holds the settings of a Modem. Build one with NewConfigBuilder.
type Config struct {
	dialer   Dialer
	resetPin ResetPin
	clock    Clock
	logger   *slog.Logger

	atTimeout    time.Duration
	initTimeout  time.Duration
	resetTimeout time.Duration
	resetPulse   time.Duration
	joinTimeout  time.Duration
	sendTimeout  time.Duration
	httpTimeout  time.Duration
	busyDelay    time.Duration
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.resetTimeout == 0 {
		c.resetTimeout = 5 * time.Second
	}
	if c.resetPulse == 0 {
		c.resetPulse = 100 * time.Millisecond
	}
	if c.joinTimeout == 0 {
		c.joinTimeout = 20 * time.Second
	}
	if c.sendTimeout == 0 {
		c.sendTimeout = 10 * time.Second
	}
	if c.httpTimeout == 0 {
		c.httpTimeout = 10 * time.Second
	}
	if c.busyDelay == 0 {
		c.busyDelay = 200 * time.Millisecond
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithResetPin enables hardware resets; New then resets the modem before
// talking to it.
func (b *ConfigBuilder) WithResetPin(p ResetPin) *ConfigBuilder {
	b.config.resetPin = p
	return b
}

func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithATTimeout sets the timeout of exchanges that don't pass their own.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithResetTimeout bounds the wait for "ready" after a reset or restore.
func (b *ConfigBuilder) WithResetTimeout(d time.Duration) *ConfigBuilder {
	b.config.resetTimeout = d
	return b
}

func (b *ConfigBuilder) WithResetPulse(d time.Duration) *ConfigBuilder {
	b.config.resetPulse = d
	return b
}

// WithJoinTimeout bounds JoinAP, including the wait for an IP address.
func (b *ConfigBuilder) WithJoinTimeout(d time.Duration) *ConfigBuilder {
	b.config.joinTimeout = d
	return b
}

// WithSendTimeout bounds the wait for SEND OK after a payload was written.
func (b *ConfigBuilder) WithSendTimeout(d time.Duration) *ConfigBuilder {
	b.config.sendTimeout = d
	return b
}

func (b *ConfigBuilder) WithHTTPTimeout(d time.Duration) *ConfigBuilder {
	b.config.httpTimeout = d
	return b
}

// WithBusyDelay sets how long to pause when the modem reports "busy p...".
func (b *ConfigBuilder) WithBusyDelay(d time.Duration) *ConfigBuilder {
	b.config.busyDelay = d
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
