package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"firewatch/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQoS            = 1
	mqttPublishTimeout = 5 * time.Second
)

type mqttAlert struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// MQTT publishes alerts as JSON to a broker topic.
type MQTT struct {
	client mqtt.Client
	topic  string
	logger *logger.Logger
}

// NewMQTT starts connecting in the background. The broker being down at
// startup is not an error; Send fails until the connection is up.
func NewMQTT(broker, topic, clientID, username, password string, logger *logger.Logger) *MQTT {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info("MQTT connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warning("MQTT connection lost, will reconnect: %v", err)
	}

	client := mqtt.NewClient(opts)
	client.Connect()

	return &MQTT{client: client, topic: topic, logger: logger}
}

func (m *MQTT) Send(ctx context.Context, title, body string) error {
	if !m.client.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}

	payload, err := json.Marshal(mqttAlert{Title: title, Body: body, SentAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := m.client.Publish(m.topic, mqttQoS, false, payload)
	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return errors.New("mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
