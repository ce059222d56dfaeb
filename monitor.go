package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"i4.energy/across/espat/modem"
)

const publishTimeout = 10 * time.Second

// Publisher delivers a status snapshot to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Monitor is a cron job that checks the modem with a heartbeat and
// publishes the resulting status.
type Monitor struct {
	Logger    *slog.Logger
	Modem     *modem.Modem
	Publisher Publisher
	Topic     string
	// Timeout bounds one heartbeat; zero uses the modem's AT timeout
	Timeout time.Duration
}

// Run implements cron.Job.
func (j *Monitor) Run() {
	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	alive, err := j.Modem.Heartbeat(ctx)
	if err != nil {
		j.Logger.Warn("Heartbeat failed", "error", err)
	} else if !alive {
		j.Logger.Warn("Modem answered heartbeat with an error")
	}

	if j.Publisher == nil {
		return
	}

	status := newStatusResponse(j.Modem.Status())
	status.Alive = &alive
	payload, err := json.Marshal(status)
	if err != nil {
		j.Logger.Error("Failed to encode status", "error", err)
		return
	}
	if err := j.Publisher.Publish(j.Topic, payload); err != nil {
		j.Logger.Error("Failed to publish status", "error", err, "topic", j.Topic)
	}
}

// mqttPublisher publishes with QoS 1 and waits for the broker's
// acknowledgement.
type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	if ok := token.WaitTimeout(publishTimeout); !ok {
		return fmt.Errorf("publish timed out after %v", publishTimeout)
	} else if token.Error() != nil {
		return fmt.Errorf("failed to publish: %w", token.Error())
	}
	return nil
}

// mqttConnect connects to the broker in cfg.
func mqttConnect(cfg MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("Connected to MQTT broker", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("Connection to MQTT broker lost", "error", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("MQTT connection attempt timed out after %v", publishTimeout)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}
