// Package transport adapts an MQTT session to the chat boundary. Each chat
// group maps to a topic under the configured prefix; inbound commands arrive
// as JSON payloads and replies are published back per target.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"capital-bot/domain"
	apperrors "capital-bot/errors"
)

type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	SendTimeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "capital"
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// MQTTTransport owns the paho client. Automatic reconnection is disabled:
// connection loss is surfaced as an event and recovery is decided upstream
// by the lifecycle state machine.
type MQTTTransport struct {
	log    *slog.Logger
	config MQTTConfig
	client mqtt.Client

	events   chan domain.TransportEvent
	messages chan domain.InboundMessage
}

func NewMQTTTransport(log *slog.Logger, config MQTTConfig) *MQTTTransport {
	t := &MQTTTransport{
		log:      log,
		config:   config.withDefaults(),
		events:   make(chan domain.TransportEvent, 16),
		messages: make(chan domain.InboundMessage, 64),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.config.BrokerURL)
	opts.SetClientID(t.config.ClientID)
	opts.SetUsername(t.config.Username)
	opts.SetPassword(t.config.Password)
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)
	opts.OnConnect = t.onConnect
	opts.OnConnectionLost = t.onConnectionLost
	t.client = mqtt.NewClient(opts)
	return t
}

func (t *MQTTTransport) Start(_ context.Context) error {
	t.log.Info("Connecting to MQTT broker", "broker", t.config.BrokerURL, "clientID", t.config.ClientID)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		t.emit(domain.TransportEvent{Kind: domain.EventAuthFailure, Reason: token.Error().Error()})
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

func (t *MQTTTransport) Stop() {
	t.client.Disconnect(250)
}

func (t *MQTTTransport) Send(_ context.Context, targetID, body string, opts domain.SendOptions) error {
	if !t.client.IsConnectionOpen() {
		return apperrors.ErrNotConnected
	}
	topic := fmt.Sprintf("%s/outbound/%s", t.config.TopicPrefix, targetID)
	token := t.client.Publish(topic, 1, opts.Retained, body)
	if !token.WaitTimeout(t.config.SendTimeout) {
		return fmt.Errorf("mqtt publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}

func (t *MQTTTransport) Ping(_ context.Context) error {
	if !t.client.IsConnectionOpen() {
		return apperrors.ErrNotConnected
	}
	return nil
}

func (t *MQTTTransport) Events() <-chan domain.TransportEvent   { return t.events }
func (t *MQTTTransport) Messages() <-chan domain.InboundMessage { return t.messages }

func (t *MQTTTransport) onConnect(client mqtt.Client) {
	t.log.Info("Connected to MQTT")
	t.emit(domain.TransportEvent{Kind: domain.EventAuthenticated})

	topic := t.config.TopicPrefix + "/inbound/#"
	if token := client.Subscribe(topic, 1, t.onInbound); token.Wait() && token.Error() != nil {
		t.log.Error("Subscribe failed", "topic", topic, "err", token.Error())
		t.emit(domain.TransportEvent{Kind: domain.EventDisconnected, Reason: token.Error().Error()})
		return
	}
	t.emit(domain.TransportEvent{Kind: domain.EventReady})
}

func (t *MQTTTransport) onConnectionLost(_ mqtt.Client, err error) {
	t.log.Warn("MQTT connection lost", "err", err)
	t.emit(domain.TransportEvent{Kind: domain.EventDisconnected, Reason: err.Error()})
}

func (t *MQTTTransport) onInbound(_ mqtt.Client, msg mqtt.Message) {
	var inbound domain.InboundMessage
	if err := json.Unmarshal(msg.Payload(), &inbound); err != nil {
		t.log.Warn("Dropping malformed inbound payload", "topic", msg.Topic(), "err", err)
		return
	}
	if inbound.Timestamp.IsZero() {
		inbound.Timestamp = time.Now().UTC()
	}

	select {
	case t.messages <- inbound:
	default:
		t.log.Warn("Inbound channel full, dropping message", "chat", inbound.ChatID)
	}
}

func (t *MQTTTransport) emit(ev domain.TransportEvent) {
	select {
	case t.events <- ev:
	default:
		t.log.Warn("Transport event dropped, channel full", "kind", ev.Kind)
	}
}
