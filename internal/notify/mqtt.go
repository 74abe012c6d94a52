package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"parkwatch-service/internal/domain/violation"
)

const publishTimeout = 2 * time.Second

// MQTTEmitter publishes every event to a broker topic, for deployments
// that feed violations into a message bus besides the dashboard.
type MQTTEmitter struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
}

func NewMQTTEmitter(brokerURL, clientID, topic string, log zerolog.Logger) (*MQTTEmitter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}

	e := &MQTTEmitter{
		client: client,
		topic:  topic,
		log:    log.With().Str("component", "mqtt").Logger(),
	}
	e.log.Info().Str("broker", brokerURL).Str("topic", topic).Msg("mqtt emitter connected")
	return e, nil
}

func (e *MQTTEmitter) Emit(payload violation.EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	token := e.client.Publish(e.topic, 0, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", e.topic)
	}
	return token.Error()
}

func (e *MQTTEmitter) Close() {
	e.client.Disconnect(250)
}
