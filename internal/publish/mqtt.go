package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/fall-guard/internal/logger"
)

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes status on an MQTT topic. The last status is
// retained so a dashboard that subscribes late sees the current state.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	timeout time.Duration
}

const (
	// mqttQoS is "at least once".
	mqttQoS = 1
	// mqttQuiesce is how long Disconnect waits for in-flight work, in milliseconds.
	mqttQuiesce = 250
	// mqttKeepAlive is the keep-alive interval.
	mqttKeepAlive = 30 * time.Second
)

var (
	// errNoTopic is returned when an MQTT publisher is built without a topic.
	errNoTopic = errors.New("mqtt topic is required")
	// errPublishTimeout is returned when the broker does not acknowledge in time.
	errPublishTimeout = errors.New("mqtt publish timed out")
)

// DialMQTT connects to broker and returns a publisher for topic.
func DialMQTT(ctx context.Context, broker, clientID, topic string, timeout time.Duration) (*MQTTPublisher, error) {
	if topic == "" {
		return nil, errNoTopic
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.InfoKV(ctx, "MQTT client connected", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost", "broker", broker, "error", err)
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		// Connect retries in the background; publishes queue until it succeeds.
		logger.WarnKV(ctx, "MQTT broker not reachable yet", "broker", broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT %s: %w", broker, err)
	}

	return newMQTTPublisher(client, topic, timeout), nil
}

// newMQTTPublisher wraps a client.
func newMQTTPublisher(client mqttClient, topic string, timeout time.Duration) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		topic:   topic,
		timeout: timeout,
	}
}

// Name implements Publisher.
func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(_ context.Context, payload []byte) error {
	token := p.client.Publish(p.topic, mqttQoS, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%w: %s", errPublishTimeout, p.topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(mqttQuiesce)

	return nil
}
