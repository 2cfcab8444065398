// Copyright 2026 Aiku AI

package bridge

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/rs/zerolog"
)

// ErrAuth marks a broker or server credential rejection. Auth failures are
// operator errors: the session must not be retried.
var ErrAuth = errors.New("bridge: credentials rejected")

const (
	mqttConnectTimeout    = 30 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds, paho's own unit
)

// MQTTSession wraps the shared paho client. Both pipelines use the same
// session: the broker connection is one transport regardless of direction.
// Post-connect drops are handled by paho's auto-reconnect; only the initial
// connect is ours, so the supervisor can distinguish auth from transient.
type MQTTSession struct {
	cfg *Config
	log zerolog.Logger

	client    mqtt.Client
	connected atomic.Bool
}

// NewMQTTSession creates an unconnected session.
func NewMQTTSession(cfg *Config, log zerolog.Logger) *MQTTSession {
	return &MQTTSession{
		cfg: cfg,
		log: log.With().Str("component", "mqtt_session").Logger(),
	}
}

// presenceTopic is where the bridge announces itself: retained "1" while
// running, "0" via last-will or clean shutdown.
func presenceTopic() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("clients/%s/mqtt-aprs/state", host)
}

// Connect dials the broker. A credential rejection returns an error wrapping
// ErrAuth; anything else is transient and retryable.
func (s *MQTTSession) Connect() error {
	presence := presenceTopic()
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.MQTTBrokerURL()).
		SetClientID(fmt.Sprintf("mqtt-aprs-%d", os.Getpid())).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetWill(presence, "0", 1, true)
	if s.cfg.MQTT.User != "" {
		opts.SetUsername(s.cfg.MQTT.User)
		opts.SetPassword(s.cfg.MQTT.Pass)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.connected.Store(true)
		c.Publish(presence, 1, true, "1")
		s.log.Info().Str("broker", s.cfg.MQTTBrokerURL()).Msg("MQTT session established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		s.log.Warn().Err(err).Msg("MQTT connection lost, auto-reconnect engaged")
	})

	s.client = mqtt.NewClient(opts)
	tok := s.client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("bridge: mqtt connect timeout after %s", mqttConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		if isAuthErr(err) {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return fmt.Errorf("bridge: mqtt connect: %w", err)
	}
	return nil
}

func isAuthErr(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}

// Connected reports whether the broker link is currently up.
func (s *MQTTSession) Connected() bool {
	return s.client != nil && s.connected.Load() && s.client.IsConnectionOpen()
}

// Subscribe registers a handler for topic. Paho re-subscribes automatically
// after auto-reconnect; the handler runs on paho's dispatch goroutine and
// must not block.
func (s *MQTTSession) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	tok := s.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("bridge: mqtt subscribe %q timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("bridge: mqtt subscribe %q: %w", topic, err)
	}
	s.log.Info().Str("topic", topic).Msg("Subscribed")
	return nil
}

// Publish sends one message at QoS 1. Failures are returned, not retried;
// positions are transient state, not durable events.
func (s *MQTTSession) Publish(topic string, payload []byte, retained bool) error {
	if !s.Connected() {
		return fmt.Errorf("bridge: mqtt publish to %q: not connected", topic)
	}
	tok := s.client.Publish(topic, 1, retained, payload)
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("bridge: mqtt publish to %q timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("bridge: mqtt publish to %q: %w", topic, err)
	}
	return nil
}

// Close marks the bridge offline on the presence topic and disconnects.
func (s *MQTTSession) Close() {
	if s.client == nil {
		return
	}
	if s.client.IsConnectionOpen() {
		s.client.Publish(presenceTopic(), 1, true, "0").WaitTimeout(time.Second)
	}
	s.client.Disconnect(mqttDisconnectQuiesce)
	s.connected.Store(false)
	s.log.Info().Msg("MQTT session closed")
}
