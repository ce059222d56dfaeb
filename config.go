package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// HTTPToken, when set, must be sent as "Authorization: Bearer <token>"
	HTTPToken string `yaml:"http_token"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// ResetPin is the GPIO name wired to the ESP32's EN pin (e.g. "GPIO17").
	// Empty disables hardware reset.
	ResetPin string `yaml:"reset_pin"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	WiFi WiFiConfig `yaml:"wifi"`

	// Heartbeat is the cron schedule of the modem health check (e.g. "@every 1m").
	// Empty disables the monitor.
	Heartbeat string `yaml:"heartbeat"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// WiFiConfig is the access point joined at startup. An empty SSID skips
// the join.
type WiFiConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// MQTTConfig configures status publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.Heartbeat = "@every 1m"
		c.MQTT.ClientID = "espat-gw"
		c.MQTT.Topic = "espat/status"
		return nil
	}
}

// WithFile overlays the YAML file at path. Keys missing from the file keep
// their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if token := os.Getenv("HTTP_TOKEN"); token != "" {
			c.HTTPToken = token
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if pin := os.Getenv("RESET_PIN"); pin != "" {
			c.ResetPin = pin
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if ssid := os.Getenv("WIFI_SSID"); ssid != "" {
			c.WiFi.SSID = ssid
		}
		if pwd := os.Getenv("WIFI_PASSWORD"); pwd != "" {
			c.WiFi.Password = pwd
		}

		if schedule := os.Getenv("HEARTBEAT"); schedule != "" {
			c.Heartbeat = schedule
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTT.Broker = broker
		}
		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MQTT.ClientID = id
		}
		if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
			c.MQTT.Topic = topic
		}
		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTT.Username = user
		}
		if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
			c.MQTT.Password = pass
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "reset-pin":
				c.ResetPin = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "wifi-ssid":
				c.WiFi.SSID = f.Value.String()
			case "heartbeat":
				c.Heartbeat = f.Value.String()
			case "mqtt-broker":
				c.MQTT.Broker = f.Value.String()
			case "mqtt-topic":
				c.MQTT.Topic = f.Value.String()
			}

		})
		return nil
	}

}
