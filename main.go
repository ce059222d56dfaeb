package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.bug.st/serial"
	"i4.energy/across/espat/modem"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("reset-pin", "", "GPIO wired to the modem's EN pin (empty disables hardware reset)")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("wifi-ssid", "", "Access point to join at startup")
	flag.String("heartbeat", "@every 1m", "Cron schedule of the modem heartbeat (empty disables it)")
	flag.String("mqtt-broker", "", "MQTT broker for status publishing (e.g. tcp://localhost:1883)")
	flag.String("mqtt-topic", "espat/status", "MQTT topic for status publishing")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	builder := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		})

	if config.ResetPin != "" {
		if _, err := host.Init(); err != nil {
			logger.Error("Failed to initialize periph", "error", err)
			os.Exit(1)
		}
		pin := gpioreg.ByName(config.ResetPin)
		if pin == nil {
			logger.Error("Unknown reset pin", "pin", config.ResetPin)
			os.Exit(1)
		}
		builder = builder.WithResetPin(pin)
	}

	modemConfig, err := builder.Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	m, err := modem.New(context.Background(), modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting ESP32 AT gateway", "modem", m)

	if config.WiFi.SSID != "" {
		if err := m.SetWiFiMode(context.Background(), modem.WiFiModeStation); err != nil {
			logger.Error("Failed to set station mode", "error", err)
		} else if err := m.JoinAP(context.Background(), config.WiFi.SSID, config.WiFi.Password); err != nil {
			// The API can retry the join later.
			logger.Error("Failed to join access point", "error", err, "ssid", config.WiFi.SSID)
		} else {
			logger.Info("Joined access point", "ssid", config.WiFi.SSID)
		}
	}

	monitor := &Monitor{
		Logger:  logger.With("component", "monitor"),
		Modem:   m,
		Topic:   config.MQTT.Topic,
		Timeout: 10 * time.Second,
	}
	if config.MQTT.Broker != "" {
		client, err := mqttConnect(config.MQTT, logger.With("component", "mqtt"))
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", "error", err)
			os.Exit(1)
		}
		defer client.Disconnect(250)
		monitor.Publisher = mqttPublisher{client: client}
	}

	cr := cron.New()
	if config.Heartbeat != "" {
		if _, err := cr.AddJob(config.Heartbeat, monitor); err != nil {
			logger.Error("Invalid heartbeat schedule", "error", err, "schedule", config.Heartbeat)
			os.Exit(1)
		}
		logger.Info("Starting heartbeat monitor", "schedule", config.Heartbeat)
		cr.Start()
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Modem:  m,
			Token:  config.HTTPToken,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	// Let a running heartbeat finish before the modem goes away.
	<-cr.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
}
